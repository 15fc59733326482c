// Package atlas holds the background raster that seeds the lowest floor of
// every column and backfills the full composite.
package atlas

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/types"
)

// ErrOutOfBounds is returned by Chunk when the column's pixel box does not
// fit inside the atlas raster.
var ErrOutOfBounds = errors.New("chunk outside background atlas")

// Atlas is the background raster for one run. It is read-only after Load and
// safe for concurrent use.
type Atlas struct {
	img  *raster.Raster
	grid types.Grid
}

// New wraps an already decoded background raster.
func New(img *raster.Raster, grid types.Grid) *Atlas {
	return &Atlas{img: img, grid: grid}
}

// Load decodes the background at path. A missing or undecodable file is a
// configuration error; a size other than the configured background size is
// only logged.
func Load(ctx context.Context, path string, grid types.Grid, logger logging.Logger) (*Atlas, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, tserrors.WrapConfig(err, tserrors.ErrCodeBackgroundMissing,
			"background atlas not found").WithPath(path)
	}

	img, err := raster.Load(path)
	if err != nil {
		return nil, tserrors.WrapConfig(err, tserrors.ErrCodeBackgroundMissing,
			"background atlas could not be decoded").WithPath(path)
	}

	if img.Width() != grid.BackgroundWidth || img.Height() != grid.BackgroundHeight {
		logger.Warn(ctx, nil, "Background size differs from configured size",
			"path", path,
			"width", img.Width(),
			"height", img.Height(),
			"expected_width", grid.BackgroundWidth,
			"expected_height", grid.BackgroundHeight)
	}

	logger.Debug(ctx, "Background atlas loaded", "path", path, "width", img.Width(), "height", img.Height())

	return New(img, grid), nil
}

// Size returns the pixel size of the loaded background.
func (a *Atlas) Size() image.Point { return a.img.Size() }

// Grid returns the grid geometry the atlas was loaded for.
func (a *Atlas) Grid() types.Grid { return a.grid }

// ChunkRect is the pixel box of column (x, y). Atlas row 0 is the top of the
// map while y=0 is the bottom row, so Y is inverted.
func (a *Atlas) ChunkRect(x, y int) image.Rectangle {
	left := x * a.grid.TileWidth
	top := (a.grid.MaxY() - y) * a.grid.TileHeight
	return image.Rect(left, top, left+a.grid.TileWidth, top+a.grid.TileHeight)
}

// Chunk returns an independent copy of the background under column (x, y).
func (a *Atlas) Chunk(x, y int) (*raster.Raster, error) {
	rect := a.ChunkRect(x, y)
	if !rect.In(a.img.Bounds()) {
		return nil, fmt.Errorf("%w: column (%d,%d) box %v, atlas %v",
			ErrOutOfBounds, x, y, rect, a.img.Bounds())
	}
	return a.img.Crop(rect)
}

// RegionRect is the pixel box covering every column inside b.
func (a *Atlas) RegionRect(b types.Bounds) image.Rectangle {
	left := b.MinX * a.grid.TileWidth
	top := (a.grid.MaxY() - b.MaxY) * a.grid.TileHeight
	return image.Rect(left, top,
		left+b.Width()*a.grid.TileWidth,
		top+b.Height()*a.grid.TileHeight)
}

// Region copies the background under the columns in b and resamples it to
// width x height. Parts of the box outside the atlas stay transparent, so
// every background pixel keeps its position relative to the columns. ok is
// false when the box does not overlap the atlas at all.
func (a *Atlas) Region(b types.Bounds, width, height int) (out *raster.Raster, ok bool) {
	rect := a.RegionRect(b)
	inside := rect.Intersect(a.img.Bounds())
	if inside.Empty() {
		return nil, false
	}
	crop, err := a.img.Crop(inside)
	if err != nil {
		return nil, false
	}
	canvas := raster.New(rect.Dx(), rect.Dy())
	canvas.Paste(crop, inside.Min.Sub(rect.Min))
	return canvas.Resize(width, height), true
}
