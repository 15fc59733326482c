// Package services orchestrates one tilestack run: it wires the atlas, the
// fragment index, the compositor and the assembler together and produces
// the run summary.
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conneroisu/tilestack/internal/atlas"
	"github.com/conneroisu/tilestack/internal/build"
	"github.com/conneroisu/tilestack/internal/config"
	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/mosaic"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/report"
	"github.com/conneroisu/tilestack/internal/scanner"
	"github.com/conneroisu/tilestack/internal/types"
)

// BuildService runs the compose and assemble stages.
type BuildService struct {
	config *config.Config
	logger logging.Logger
}

// NewBuildService creates a new build service
func NewBuildService(cfg *config.Config, logger logging.Logger) *BuildService {
	if logger == nil {
		logger = logging.NewLogger(cfg.LoggerConfig())
	}
	return &BuildService{
		config: cfg,
		logger: logger.WithComponent("pipeline"),
	}
}

// BuildOptions contains options for the build process
type BuildOptions struct {
	// ComposeOnly writes the per-coordinate tiles and skips the mosaics.
	ComposeOnly bool
}

// Build composes every tile from the fragments and, unless ComposeOnly is
// set, assembles the layer mosaics and the full composite.
//
// A returned error is fatal: the run could not start, or was cancelled.
// Recoverable failures are counted in the summary instead.
func (s *BuildService) Build(ctx context.Context, opts BuildOptions) (*report.Summary, error) {
	command := "build"
	if opts.ComposeOnly {
		command = "compose"
	}
	summary := s.newSummary(command)
	grid := s.config.GridSpec()

	bg, err := atlas.Load(ctx, s.config.Background.File, grid, s.logger)
	if err != nil {
		return nil, s.fatal(ctx, err)
	}

	fragments, err := scanner.NewFragmentScanner(s.config.Input.Extension, s.logger).
		ScanFragments(ctx, s.config.Input.Dir)
	if err != nil {
		return nil, s.fatal(ctx, err)
	}
	summary.ZRange = fragments.ZRange
	summary.FragmentsFound = fragments.Len()
	summary.FragmentsSkipped = fragments.Skipped

	for _, col := range fragments.Columns() {
		if !grid.Contains(col) {
			s.logger.Warn(ctx, nil, "Fragments outside the grid are ignored", "column", col.String())
		}
	}

	writer, err := build.NewFileTileWriter(s.config.TilesDir(), s.config.OutputFormat())
	if err != nil {
		return nil, s.fatal(ctx, tserrors.WrapConfig(err, tserrors.ErrCodeConfigInvalid,
			"output directory not writable").WithPath(s.config.TilesDir()))
	}

	cache := build.NewLayerCache()
	metrics := build.NewRunMetrics()
	compositor := build.NewTileCompositor(build.CompositorConfig{
		TileWidth:   grid.TileWidth,
		TileHeight:  grid.TileHeight,
		ZRange:      fragments.ZRange,
		Workers:     s.config.Workers(),
		CachePolicy: s.config.CachePolicy(),
	}, bg, fragments, writer, cache, metrics, s.logger)

	if err := compositor.Run(ctx, grid.Columns()); err != nil {
		return nil, s.fatal(ctx, err)
	}

	snap := metrics.GetSnapshot()
	summary.FragmentsApplied = snap.FragmentsApplied
	summary.ColumnsBroken = snap.ColumnsBroken
	summary.TilesComposed = snap.TilesComposed
	summary.TilesPersisted = snap.TilesPersisted
	summary.SetWorkerStats(compositor.WorkerStats())

	if !opts.ComposeOnly {
		if err := s.assemble(ctx, cache, bg, metrics.Errors, summary); err != nil {
			return nil, s.fatal(ctx, err)
		}
	}
	summary.SetCacheStats(cache.Stats())

	s.finish(ctx, summary, metrics.Errors)
	return summary, nil
}

// Stitch assembles the mosaics from tiles already rendered into tilesDir.
// An empty tilesDir selects the configured tiles directory. Tiles that
// cannot be decoded are counted and left out; tiles outside the grid are
// skipped with a warning, as fragments are in Build.
func (s *BuildService) Stitch(ctx context.Context, tilesDir string) (*report.Summary, error) {
	if tilesDir == "" {
		tilesDir = s.config.TilesDir()
	}
	summary := s.newSummary("stitch")
	summary.CachePolicy = ""
	grid := s.config.GridSpec()

	bg, err := atlas.Load(ctx, s.config.Background.File, grid, s.logger)
	if err != nil {
		return nil, s.fatal(ctx, err)
	}

	format := s.config.OutputFormat()
	tiles, err := scanner.NewFragmentScanner(format.Ext(), s.logger).ScanTiles(ctx, tilesDir)
	if err != nil {
		return nil, s.fatal(ctx, err)
	}
	summary.ZRange = tiles.ZRange
	summary.FragmentsFound = tiles.Len()
	summary.FragmentsSkipped = tiles.Skipped

	errs := tserrors.NewErrorCollector(build.MaxErrorRecords)
	cache, outside, err := s.loadTiles(ctx, tiles, grid, errs)
	if err != nil {
		return nil, s.fatal(ctx, err)
	}
	summary.FragmentsSkipped = append(summary.FragmentsSkipped, outside...)

	if err := s.assemble(ctx, cache, bg, errs, summary); err != nil {
		return nil, s.fatal(ctx, err)
	}
	summary.SetCacheStats(cache.Stats())

	s.finish(ctx, summary, errs)
	return summary, nil
}

// loadTiles decodes every indexed tile inside grid into a fresh LayerCache
// and returns the names of the tiles it skipped for lying outside the grid.
func (s *BuildService) loadTiles(ctx context.Context, tiles *scanner.Index, grid types.Grid, errs *tserrors.ErrorCollector) (*build.LayerCache, []string, error) {
	cache := build.NewLayerCache()
	var outside []string
	for _, coord := range tiles.Coordinates() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		path, _ := tiles.Path(coord)
		if !grid.Contains(coord.Column()) {
			s.logger.Warn(ctx, nil, "Tiles outside the grid are ignored", "tile", coord.String(), "path", path)
			outside = append(outside, filepath.Base(path))
			continue
		}
		r, err := raster.Load(path)
		if err != nil {
			decErr := tserrors.WrapDecode(err, tserrors.ErrCodeDecodeFailed, "tile not decodable, left out").
				WithCoordinate(coord).WithPath(path)
			errs.Record(decErr, 1)
			s.logger.Warn(ctx, decErr, "Tile skipped", "tile", coord.String())
			continue
		}
		if err := cache.Put(coord, r); err != nil {
			return nil, nil, tserrors.NewInternalError(tserrors.ErrCodeInternalError, "tile loaded twice", err).
				WithCoordinate(coord)
		}
	}
	return cache, outside, nil
}

func (s *BuildService) assemble(ctx context.Context, cache *build.LayerCache, bg mosaic.Backfill, errs *tserrors.ErrorCollector, summary *report.Summary) error {
	if err := os.MkdirAll(s.config.Output.Dir, 0o755); err != nil {
		return tserrors.WrapConfig(err, tserrors.ErrCodeConfigInvalid, "output directory not writable").
			WithPath(s.config.Output.Dir)
	}

	assembler, err := mosaic.NewAssembler(cache, bg, mosaic.Config{
		SurfaceFloor:         s.config.Composite.SurfaceFloor,
		GrayscaleUnderground: s.config.Composite.GrayscaleUnderground,
		Workers:              s.config.Workers(),
	}, s.logger)
	if err != nil {
		return err
	}

	result, err := assembler.Assemble(ctx, mosaic.Output{
		Dir:    s.config.Output.Dir,
		Format: s.config.OutputFormat(),
	}, errs)
	if err != nil {
		return err
	}
	summary.SetAssembly(result)
	return nil
}

func (s *BuildService) newSummary(command string) *report.Summary {
	summary := report.NewSummary(command)
	summary.OutputDir = s.config.Output.Dir
	summary.Grid = s.config.GridSpec()
	summary.CachePolicy = string(s.config.CachePolicy())
	return summary
}

// finish stamps the summary and writes the summary file and the gallery.
// Neither write changes the run outcome.
func (s *BuildService) finish(ctx context.Context, summary *report.Summary, errs *tserrors.ErrorCollector) {
	summary.SetErrors(errs)
	summary.Finish()

	if err := os.MkdirAll(s.config.Output.Dir, 0o755); err != nil {
		s.logger.Warn(ctx, err, "Output directory unavailable, summary not written")
		return
	}

	path, err := summary.Write(s.config.Output.Dir, s.config.SummaryFormat())
	switch {
	case err != nil:
		s.logger.Warn(ctx, err, "Summary not written")
	case path != "":
		s.logger.Info(ctx, "Summary written", "path", path)
	}

	if s.config.Report.HTML {
		path, err := report.WriteGallery(ctx, s.config.Output.Dir, summary)
		if err != nil {
			s.logger.Warn(ctx, err, "Gallery not written")
		} else {
			s.logger.Info(ctx, "Gallery written", "path", path)
		}
	}

	s.logger.Info(ctx, "Run finished",
		"command", summary.Command,
		"duration", summary.Duration().String(),
		"errors", summary.TotalErrors)
}

func (s *BuildService) fatal(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.logger.Warn(ctx, err, "Run cancelled")
		return err
	}
	details := tserrors.GetErrorContext(err)
	fields := make([]interface{}, 0, 8)
	for _, key := range []string{"code", "type", "tile", "file"} {
		if v, ok := details[key]; ok {
			fields = append(fields, key, v)
		}
	}
	s.logger.Error(ctx, err, "Run aborted", fields...)
	return err
}

// Describe renders a one-line description of the grid a run covers.
func Describe(g types.Grid, zr types.ZRange) string {
	return fmt.Sprintf("%dx%d columns of %dx%d px, floors %d..%d",
		g.Width, g.Height, g.TileWidth, g.TileHeight, zr.Min, zr.Max)
}
