package girocode

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"gitlab.com/tozd/go/errors"
)

// pdfcpu otherwise reads and creates a config dir under the user's home
var configOnce sync.Once

// ErrPlaceholderMissing is returned when the configured page or image does not exist
var ErrPlaceholderMissing = errors.Base("placeholder image missing")

// Stamper puts a PNG in place of a placeholder image of a PDF and writes the result
type Stamper interface {
	Stamp(pdfPath string, image []byte, outputPath string, pageIndex, imageIndex int) error
}

// PDFCPUStamper swaps the placeholder image XObject with pdfcpu. The new image
// is drawn in the placeholder's box, so the layout of the page is kept.
type PDFCPUStamper struct{}

// Stamp writes to a temporary file next to outputPath and renames it into
// place, so a failed stamp never leaves a partial output behind.
// pageIndex and imageIndex are 0-based; images of a page are ordered by
// object number.
func (PDFCPUStamper) Stamp(pdfPath string, image []byte, outputPath string, pageIndex, imageIndex int) error {
	configOnce.Do(api.DisableConfigDir)

	in, err := os.Open(pdfPath)
	if err != nil {
		return errors.Errorf("opening %s: %w", pdfPath, err)
	}
	defer in.Close()

	pages, err := api.PageCount(in, nil)
	if err != nil {
		return errors.Errorf("reading %s: %w", pdfPath, err)
	}
	if pageIndex >= pages {
		return errors.Errorf("%w: page index %d, document has %d pages", ErrPlaceholderMissing, pageIndex, pages)
	}
	pageNr := pageIndex + 1

	placeholder, err := pageImage(in, pageNr, imageIndex)
	if err != nil {
		return errors.Errorf("%s: %w", pdfPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return errors.Errorf("creating output: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := in.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return errors.Errorf("reading %s: %w", pdfPath, err)
	}
	if err := api.UpdateImages(in, bytes.NewReader(image), tmp, 0, pageNr, placeholder.Name, nil); err != nil {
		tmp.Close()
		return errors.Errorf("replacing image %s on page %d of %s: %w", placeholder.Name, pageNr, pdfPath, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Errorf("writing %s: %w", outputPath, err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return errors.Errorf("writing %s: %w", outputPath, err)
	}
	return nil
}

// pageImage returns the index-th image of page pageNr, thumbnails excluded
func pageImage(rs io.ReadSeeker, pageNr, index int) (model.Image, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return model.Image{}, err
	}
	listed, err := api.Images(rs, []string{strconv.Itoa(pageNr)}, nil)
	if err != nil {
		return model.Image{}, errors.Errorf("listing images: %w", err)
	}

	var images []model.Image
	for _, byObjNr := range listed {
		for _, img := range byObjNr {
			if img.PageNr == pageNr && !img.Thumb {
				images = append(images, img)
			}
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].ObjNr < images[j].ObjNr })

	if index >= len(images) {
		return model.Image{}, errors.Errorf("%w: image index %d, page %d has %d images", ErrPlaceholderMissing, index, pageNr, len(images))
	}
	return images[index], nil
}
