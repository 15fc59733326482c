// Package testutils holds fixtures shared by the package tests: temporary
// project layouts, fragment containers and fault-injecting writers.
package testutils

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/types"
)

// FragmentHeader stands in for the capture container bytes that precede
// the embedded PNG.
const FragmentHeader = "MMAP\x00\x01\x02"

// Project is a temporary tilestack working directory.
type Project struct {
	Root       string
	InputDir   string
	OutputDir  string
	Background string
}

// CreateTempProject creates a project with an empty input directory. The
// output directory is left for the run to create.
func CreateTempProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	p := &Project{
		Root:       root,
		InputDir:   filepath.Join(root, "minimap_data"),
		OutputDir:  filepath.Join(root, "out"),
		Background: filepath.Join(root, "background.png"),
	}
	require.NoError(t, os.MkdirAll(p.InputDir, 0o755))
	return p
}

// WriteBackground stores a uniform background of the given size.
func (p *Project) WriteBackground(t *testing.T, width, height int, c color.NRGBA) {
	t.Helper()
	require.NoError(t, raster.Save(p.Background, raster.Filled(width, height, c), raster.FormatPNG))
}

// WriteFragment stores r as the fragment for coord and returns its path.
func (p *Project) WriteFragment(t *testing.T, coord types.GridCoordinate, r *raster.Raster) string {
	t.Helper()
	return p.WriteRaw(t, coord.String()+".minimap", EncodeFragment(t, r))
}

// WriteRaw stores arbitrary bytes in the input directory.
func (p *Project) WriteRaw(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(p.InputDir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// TilePath returns the path of a rendered tile under the output directory.
func (p *Project) TilePath(tilesDir string, coord types.GridCoordinate, format raster.Format) string {
	return filepath.Join(p.OutputDir, tilesDir, coord.String()+"."+format.Ext())
}

// EncodeFragment wraps r in a fragment container.
func EncodeFragment(t testing.TB, r *raster.Raster) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(FragmentHeader)
	require.NoError(t, raster.Encode(&buf, r, raster.FormatPNG))
	return buf.Bytes()
}

// SolidTile returns an opaque square tile.
func SolidTile(size int, c color.NRGBA) *raster.Raster {
	return raster.Filled(size, size, c)
}

// AssertPixel loads the raster at path and checks one pixel.
func AssertPixel(t *testing.T, path string, x, y int, want color.NRGBA) {
	t.Helper()
	r, err := raster.Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, r.At(x, y), "pixel (%d,%d) of %s", x, y, filepath.Base(path))
}

// AssertFilePermissions checks that a file has the expected permissions
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, expectedMode, info.Mode().Perm(), "File permissions mismatch for %s", path)
}

// AssertNoTempFiles checks that dir holds no leftover ".name.*" temp files.
func AssertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
