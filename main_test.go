package main

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestImportGroupsSorted checks that every import group is in the order
// gofmt would write it.
func TestImportGroupsSorted(t *testing.T) {
	fset := token.NewFileSet()
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != "." && (strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".") || d.Name() == "testdata") {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}

		var group []string
		lastLine := 0
		check := func() {
			assert.True(t, sort.StringsAreSorted(group), "%s: imports not sorted: %v", path, group)
			group = nil
		}
		for _, spec := range f.Imports {
			line := fset.Position(spec.Pos()).Line
			if lastLine != 0 && line > lastLine+1 {
				check()
			}
			lastLine = line
			p, err := strconv.Unquote(spec.Path.Value)
			require.NoError(t, err)
			group = append(group, p)
		}
		check()
		return nil
	})
	require.NoError(t, err)
}
