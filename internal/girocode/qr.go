package girocode

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"

	"github.com/skip2/go-qrcode"
	"gitlab.com/tozd/go/errors"
)

// RenderQR encodes payload at error correction level M, as EPC069-12
// requires, into a PNG with scale pixels per module and a quiet zone of
// border modules on every side.
func RenderQR(payload string, scale, border int) ([]byte, error) {
	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, errors.Errorf("encoding QR code: %w", err)
	}
	// go-qrcode always draws a 4 module quiet zone, so draw our own
	q.DisableBorder = true

	modules := len(q.Bitmap())
	code := q.Image(modules * scale)

	quiet := border * scale
	side := modules*scale + 2*quiet
	canvas := image.NewGray(image.Rect(0, 0, side, side))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, code.Bounds().Add(image.Pt(quiet, quiet)), code, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, errors.Errorf("rendering QR code: %w", err)
	}
	return buf.Bytes(), nil
}
