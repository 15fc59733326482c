package build

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tilestack/internal/atlas"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/types"
)

const tileSize = 4

var (
	fragRed  = color.NRGBA{R: 255, A: 255}
	fragBlue = color.NRGBA{B: 255, A: 255}
)

func testGrid(width, height int) types.Grid {
	return types.Grid{
		Width: width, Height: height,
		TileWidth: tileSize, TileHeight: tileSize,
		BackgroundWidth: width * tileSize, BackgroundHeight: height * tileSize,
	}
}

func bgColor(x, y int) color.NRGBA {
	return color.NRGBA{R: uint8(40 + x), G: uint8(80 + y), B: 7, A: 255}
}

// testAtlas paints each column's chunk in its own opaque color.
func testAtlas(grid types.Grid) *atlas.Atlas {
	img := raster.New(grid.BackgroundWidth, grid.BackgroundHeight)
	a := atlas.New(img, grid)
	for x := 0; x < grid.Width; x++ {
		for y := 0; y < grid.Height; y++ {
			img.Paste(raster.Filled(tileSize, tileSize, bgColor(x, y)), a.ChunkRect(x, y).Min)
		}
	}
	return a
}

// halfFragment is opaque c on the left half and transparent on the right.
func halfFragment(c color.NRGBA) *raster.Raster {
	r := raster.New(tileSize, tileSize)
	r.Paste(raster.Filled(tileSize/2, tileSize, c), image.Point{})
	return r
}

// encodeFragment wraps a raster in a minimal fragment container.
func encodeFragment(t testing.TB, r *raster.Raster) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("HDR\x00")
	require.NoError(t, raster.Encode(&buf, r, raster.FormatPNG))
	return buf.Bytes()
}

// mapFragments is an in-memory FragmentSource.
type mapFragments struct {
	data    map[types.GridCoordinate][]byte
	readErr map[types.GridCoordinate]error
}

func newMapFragments() *mapFragments {
	return &mapFragments{
		data:    make(map[types.GridCoordinate][]byte),
		readErr: make(map[types.GridCoordinate]error),
	}
}

func (m *mapFragments) Fragment(c types.GridCoordinate) ([]byte, bool, error) {
	if err, ok := m.readErr[c]; ok {
		return nil, true, err
	}
	d, ok := m.data[c]
	return d, ok, nil
}

// memWriter records written tiles and fails for the configured coordinates.
type memWriter struct {
	mu     sync.Mutex
	tiles  map[types.GridCoordinate]*raster.Raster
	failAt map[types.GridCoordinate]bool
}

func newMemWriter(failAt ...types.GridCoordinate) *memWriter {
	w := &memWriter{
		tiles:  make(map[types.GridCoordinate]*raster.Raster),
		failAt: make(map[types.GridCoordinate]bool),
	}
	for _, c := range failAt {
		w.failAt[c] = true
	}
	return w
}

var errDiskFull = errors.New("disk full")

func (w *memWriter) WriteTile(c types.GridCoordinate, r *raster.Raster) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAt[c] {
		return errDiskFull
	}
	w.tiles[c] = r.Clone()
	return nil
}

func (w *memWriter) written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tiles)
}
