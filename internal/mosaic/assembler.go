// Package mosaic stitches cached tiles into one raster per floor and stacks
// those floors into the full composite.
//
// Grid Y grows upwards while raster rows grow downwards, so a tile at row y
// lands at pixel row (maxY - y) * tileHeight, matching the background atlas.
package mosaic

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/tilestack/internal/build"
	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/types"
)

// Backfill supplies the background under a block of columns, resampled to
// the requested size. The atlas implements it.
type Backfill interface {
	Region(b types.Bounds, width, height int) (*raster.Raster, bool)
}

// Config controls assembly.
type Config struct {
	// SurfaceFloor is the lowest floor drawn in color when
	// GrayscaleUnderground is set.
	SurfaceFloor         int
	GrayscaleUnderground bool
	// Workers bounds concurrent layer builds; 0 means NumCPU.
	Workers int
}

// LayerMosaic is the stitched raster of one floor.
type LayerMosaic struct {
	Z      int
	Bounds types.Bounds
	Tiles  int
	Image  *raster.Raster
}

// Assembler reads a completed LayerCache. It must only be created after the
// compose stage has finished writing to the cache.
type Assembler struct {
	cache    *build.LayerCache
	backfill Backfill
	config   Config
	tileSize image.Point
	logger   logging.Logger
}

// NewAssembler fixes the canonical tile size from the first cached tile. An
// empty cache leaves nothing to size the mosaics by and is a configuration
// error.
func NewAssembler(cache *build.LayerCache, backfill Backfill, config Config, logger logging.Logger) (*Assembler, error) {
	first, tile, ok := cache.First()
	if !ok {
		return nil, tserrors.NewConfigError(tserrors.ErrCodeNoTiles,
			"no composed tiles, cannot determine tile size")
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}

	a := &Assembler{
		cache:    cache,
		backfill: backfill,
		config:   config,
		tileSize: tile.Size(),
		logger:   logger.WithComponent("mosaic"),
	}
	a.logger.Debug(context.Background(), "Tile size determined",
		"tile", first.String(), "width", a.tileSize.X, "height", a.tileSize.Y)
	return a, nil
}

// TileSize returns the canonical tile size.
func (a *Assembler) TileSize() image.Point { return a.tileSize }

// LayerMosaic stitches every cached tile on floor z. ok is false when the
// floor has no tiles.
func (a *Assembler) LayerMosaic(z int) (*LayerMosaic, bool) {
	tiles := a.cache.Floor(z)
	if len(tiles) == 0 {
		return nil, false
	}

	cols := make([]types.Column, 0, len(tiles))
	for c := range tiles {
		cols = append(cols, c)
	}
	b, _ := types.BoundsOf(cols)

	tw, th := a.tileSize.X, a.tileSize.Y
	canvas := raster.New(b.Width()*tw, b.Height()*th)
	for c, tile := range tiles {
		if tile.Size() != a.tileSize {
			tile = tile.Resize(tw, th)
		}
		at := image.Pt((c.X-b.MinX)*tw, (b.MaxY-c.Y)*th)
		canvas.Paste(tile, at)
	}

	return &LayerMosaic{Z: z, Bounds: b, Tiles: len(tiles), Image: canvas}, true
}

// BuildLayers builds the mosaic of every cached floor concurrently and
// returns them ordered by ascending floor.
func (a *Assembler) BuildLayers(ctx context.Context) ([]*LayerMosaic, error) {
	floors := a.cache.Floors()
	layers := make([]*LayerMosaic, len(floors))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Workers)
	for i, z := range floors {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, ok := a.LayerMosaic(z)
			if !ok {
				return fmt.Errorf("floor %d vanished from cache", z)
			}
			layers[i] = m
			a.logger.Debug(ctx, "Layer stitched", "z", z, "tiles", m.Tiles,
				"width", m.Image.Width(), "height", m.Image.Height())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return layers, nil
}

// GlobalBounds is the bounding box of every column with a cached tile on
// any floor.
func (a *Assembler) GlobalBounds() (types.Bounds, bool) {
	return types.BoundsOf(a.cache.Columns())
}

// FullComposite stacks layers in ascending floor order over the background.
// Pixels no layer covers show the background region under the composite.
func (a *Assembler) FullComposite(ctx context.Context, layers []*LayerMosaic) (*raster.Raster, types.Bounds, error) {
	global, ok := a.GlobalBounds()
	if !ok {
		return nil, types.Bounds{}, tserrors.NewConfigError(tserrors.ErrCodeNoTiles, "no composed tiles to stack")
	}

	tw, th := a.tileSize.X, a.tileSize.Y
	stack := raster.New(global.Width()*tw, global.Height()*th)

	ordered := sortedLayers(layers)
	for _, layer := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, types.Bounds{}, err
		}
		img := layer.Image
		if a.config.GrayscaleUnderground && layer.Z < a.config.SurfaceFloor {
			img = img.Grayscale()
		}
		at := image.Pt((layer.Bounds.MinX-global.MinX)*tw, (global.MaxY-layer.Bounds.MaxY)*th)
		stack.PasteOver(img, at)
	}

	if a.backfill == nil {
		return stack, global, nil
	}
	bg, ok := a.backfill.Region(global, stack.Width(), stack.Height())
	if !ok {
		a.logger.Warn(ctx, nil, "Background does not cover the composite, no backfill",
			"min_x", global.MinX, "max_x", global.MaxX, "min_y", global.MinY, "max_y", global.MaxY)
		return stack, global, nil
	}
	bg.PasteOver(stack, image.Point{})
	return bg, global, nil
}

// Output names the files the assembler writes.
type Output struct {
	Dir    string
	Format raster.Format
}

// LayerPath returns the file for floor z.
func (o Output) LayerPath(z int) string {
	return filepath.Join(o.Dir, "layer_"+strconv.Itoa(z)+"."+o.Format.Ext())
}

// CompositePath returns the file for the full composite.
func (o Output) CompositePath() string {
	return filepath.Join(o.Dir, "composite."+o.Format.Ext())
}

// LayerResult describes one saved layer.
type LayerResult struct {
	Z       int          `json:"z" yaml:"z"`
	Bounds  types.Bounds `json:"bounds" yaml:"bounds"`
	Tiles   int          `json:"tiles" yaml:"tiles"`
	Width   int          `json:"width" yaml:"width"`
	Height  int          `json:"height" yaml:"height"`
	Path    string       `json:"path" yaml:"path"`
	Written bool         `json:"written" yaml:"written"`
}

// Result is the outcome of Assemble.
type Result struct {
	Layers           []LayerResult `json:"layers" yaml:"layers"`
	Bounds           types.Bounds  `json:"bounds" yaml:"bounds"`
	CompositePath    string        `json:"composite_path" yaml:"composite_path"`
	CompositeWritten bool          `json:"composite_written" yaml:"composite_written"`
	CompositeWidth   int           `json:"composite_width" yaml:"composite_width"`
	CompositeHeight  int           `json:"composite_height" yaml:"composite_height"`
}

// LayersWritten counts layers that reached disk.
func (r *Result) LayersWritten() int {
	n := 0
	for _, l := range r.Layers {
		if l.Written {
			n++
		}
	}
	return n
}

// Assemble builds and writes every layer mosaic and the full composite.
// Write failures are recorded in errs and never stop assembly.
func (a *Assembler) Assemble(ctx context.Context, out Output, errs *tserrors.ErrorCollector) (*Result, error) {
	perf := logging.StartOperation(a.logger, "assemble")

	layers, err := a.BuildLayers(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Layers: make([]LayerResult, 0, len(layers))}
	for _, layer := range layers {
		result.Layers = append(result.Layers, a.saveLayer(ctx, layer, out, errs))
	}

	composite, bounds, err := a.FullComposite(ctx, layers)
	if err != nil {
		return nil, err
	}
	result.Bounds = bounds
	result.CompositePath = out.CompositePath()
	result.CompositeWidth = composite.Width()
	result.CompositeHeight = composite.Height()

	if err := raster.Save(result.CompositePath, composite, out.Format); err != nil {
		perErr := tserrors.WrapPersist(err, tserrors.ErrCodeCompositePersist, "composite not written").
			WithPath(result.CompositePath)
		errs.Record(perErr, 1)
		a.logger.Error(ctx, perErr, "Composite write failed")
	} else {
		result.CompositeWritten = true
		a.logger.Info(ctx, "Composite written", "path", result.CompositePath,
			"width", composite.Width(), "height", composite.Height())
	}

	perf.End(ctx, "layers", len(layers), "layers_written", result.LayersWritten())
	return result, nil
}

func (a *Assembler) saveLayer(ctx context.Context, layer *LayerMosaic, out Output, errs *tserrors.ErrorCollector) LayerResult {
	res := LayerResult{
		Z:      layer.Z,
		Bounds: layer.Bounds,
		Tiles:  layer.Tiles,
		Width:  layer.Image.Width(),
		Height: layer.Image.Height(),
		Path:   out.LayerPath(layer.Z),
	}
	if err := raster.Save(res.Path, layer.Image, out.Format); err != nil {
		perErr := tserrors.WrapPersist(err, tserrors.ErrCodeLayerPersist, "layer not written").
			WithPath(res.Path).WithContext("z", layer.Z)
		errs.Record(perErr, 1)
		a.logger.Warn(ctx, perErr, "Layer write failed, continuing", "z", layer.Z)
		return res
	}
	res.Written = true
	a.logger.Info(ctx, "Layer written", "z", layer.Z, "path", res.Path, "tiles", layer.Tiles)
	return res
}

// sortedLayers returns layers ordered by ascending floor without touching
// the caller's slice.
func sortedLayers(layers []*LayerMosaic) []*LayerMosaic {
	out := make([]*LayerMosaic, 0, len(layers))
	for _, l := range layers {
		if l != nil {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Z < out[j].Z })
	return out
}
