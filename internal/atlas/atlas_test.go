package atlas

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/types"
)

func smallGrid() types.Grid {
	return types.Grid{
		Width: 3, Height: 2,
		TileWidth: 4, TileHeight: 4,
		BackgroundWidth: 12, BackgroundHeight: 8,
	}
}

// columnColor encodes the atlas pixel box a column owns so chunk placement
// can be checked from a single pixel.
func columnColor(x, y int) color.NRGBA {
	return color.NRGBA{R: uint8(10 + x), G: uint8(20 + y), A: 255}
}

func paintedAtlas(grid types.Grid) *raster.Raster {
	img := raster.New(grid.BackgroundWidth, grid.BackgroundHeight)
	for x := 0; x < grid.Width; x++ {
		for y := 0; y < grid.Height; y++ {
			row := grid.MaxY() - y
			img.Paste(raster.Filled(grid.TileWidth, grid.TileHeight, columnColor(x, y)),
				image.Pt(x*grid.TileWidth, row*grid.TileHeight))
		}
	}
	return img
}

func TestChunkInvertsY(t *testing.T) {
	grid := smallGrid()
	a := New(paintedAtlas(grid), grid)

	for x := 0; x < grid.Width; x++ {
		for y := 0; y < grid.Height; y++ {
			chunk, err := a.Chunk(x, y)
			require.NoError(t, err)
			assert.Equal(t, image.Pt(4, 4), chunk.Size())
			assert.Equal(t, columnColor(x, y), chunk.At(0, 0))
			assert.Equal(t, columnColor(x, y), chunk.At(3, 3))
		}
	}

	assert.Equal(t, image.Rect(0, 4, 4, 8), a.ChunkRect(0, 0))
	assert.Equal(t, image.Rect(8, 0, 12, 4), a.ChunkRect(2, 1))
}

func TestChunkIsIndependentCopy(t *testing.T) {
	grid := smallGrid()
	a := New(paintedAtlas(grid), grid)

	first, err := a.Chunk(1, 1)
	require.NoError(t, err)
	first.Set(0, 0, color.NRGBA{})

	second, err := a.Chunk(1, 1)
	require.NoError(t, err)
	assert.Equal(t, columnColor(1, 1), second.At(0, 0))
}

func TestChunkOutOfBounds(t *testing.T) {
	grid := smallGrid()
	// Atlas one tile short on the right: column x=2 falls outside.
	a := New(raster.New(8, 8), grid)

	_, err := a.Chunk(2, 0)
	assert.True(t, errors.Is(err, ErrOutOfBounds))

	_, err = a.Chunk(0, 2)
	assert.True(t, errors.Is(err, ErrOutOfBounds), "y above the grid maps above row 0")

	_, err = a.Chunk(1, 0)
	assert.NoError(t, err)
}

func TestRegion(t *testing.T) {
	grid := smallGrid()
	a := New(paintedAtlas(grid), grid)

	b := types.Bounds{MinX: 1, MaxX: 2, MinY: 0, MaxY: 0}
	assert.Equal(t, image.Rect(4, 4, 12, 8), a.RegionRect(b))

	region, ok := a.Region(b, 8, 4)
	require.True(t, ok)
	assert.Equal(t, image.Pt(8, 4), region.Size())
	assert.Equal(t, columnColor(1, 0), region.At(0, 0))
	assert.Equal(t, columnColor(2, 0), region.At(7, 3))
}

func TestRegionPadsOutsideAtlas(t *testing.T) {
	grid := types.Grid{
		Width: 2, Height: 1,
		TileWidth: 4, TileHeight: 4,
		BackgroundWidth: 8, BackgroundHeight: 4,
	}
	a := New(paintedAtlas(grid), grid)

	// Columns 0..2: column 2 has no background.
	region, ok := a.Region(types.Bounds{MinX: 0, MaxX: 2, MinY: 0, MaxY: 0}, 12, 4)
	require.True(t, ok)
	assert.Equal(t, image.Pt(12, 4), region.Size())

	for x := 0; x < 12; x++ {
		var want color.NRGBA
		switch {
		case x < 4:
			want = columnColor(0, 0)
		case x < 8:
			want = columnColor(1, 0)
		}
		assert.Equal(t, want, region.At(x, 1), "x=%d", x)
	}

	_, ok = a.Region(types.Bounds{MinX: 5, MaxX: 6, MinY: 0, MaxY: 0}, 8, 4)
	assert.False(t, ok)
}

func TestRegionPadsNegativeColumns(t *testing.T) {
	grid := smallGrid()
	a := New(paintedAtlas(grid), grid)

	region, ok := a.Region(types.Bounds{MinX: -1, MaxX: 0, MinY: 0, MaxY: 0}, 8, 4)
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{}, region.At(0, 0))
	assert.Equal(t, color.NRGBA{}, region.At(3, 3))
	assert.Equal(t, columnColor(0, 0), region.At(4, 0))
	assert.Equal(t, columnColor(0, 0), region.At(7, 3))
}

func TestRegionResizesFilledAtlas(t *testing.T) {
	grid := smallGrid()
	a := New(paintedAtlas(grid), grid)

	region, ok := a.Region(types.Bounds{MinX: 0, MaxX: 2, MinY: 0, MaxY: 1}, 24, 16)
	require.True(t, ok)
	assert.Equal(t, image.Pt(24, 16), region.Size())
	assert.True(t, region.IsOpaque())
}

func TestLoad(t *testing.T) {
	grid := smallGrid()
	dir := t.TempDir()
	path := filepath.Join(dir, "background.png")
	require.NoError(t, raster.Save(path, paintedAtlas(grid), raster.FormatPNG))

	a, err := Load(context.Background(), path, grid, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, image.Pt(12, 8), a.Size())
	assert.Equal(t, grid, a.Grid())
}

func TestLoadWarnsOnSizeMismatch(t *testing.T) {
	grid := smallGrid()
	path := filepath.Join(t.TempDir(), "background.png")
	require.NoError(t, raster.Save(path, raster.New(6, 6), raster.FormatPNG))

	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelWarn, Output: &buf})

	a, err := Load(context.Background(), path, grid, logger)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(6, 6), a.Size())
	assert.Contains(t, buf.String(), "Background size differs")
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("nope"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "absent.png")},
		{"undecodable", garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.path, smallGrid(), logging.Discard())
			require.Error(t, err)
			assert.True(t, tserrors.IsConfigError(err))
			assert.True(t, tserrors.HasCode(err, tserrors.ErrCodeBackgroundMissing))
		})
	}
}
