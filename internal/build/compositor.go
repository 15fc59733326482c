package build

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conneroisu/tilestack/internal/atlas"
	"github.com/conneroisu/tilestack/internal/capture"
	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/types"
)

// BaseSource supplies the background chunk under a column. The atlas
// implements it.
type BaseSource interface {
	Chunk(x, y int) (*raster.Raster, error)
}

// FragmentSource returns the raw fragment stored for a coordinate. ok is
// false when the coordinate has no fragment; err is set when one exists but
// cannot be read.
type FragmentSource interface {
	Fragment(c types.GridCoordinate) (data []byte, ok bool, err error)
}

// TileWriter persists a composed tile.
type TileWriter interface {
	WriteTile(c types.GridCoordinate, r *raster.Raster) error
}

// Decoder turns fragment bytes into a raster of the given size.
type Decoder func(data []byte, width, height int) (*raster.Raster, error)

// CachePolicy decides when a composed tile enters the LayerCache.
type CachePolicy string

const (
	// CacheOnCompose caches every composed tile, whether or not it could be
	// written. Output failures never break the floors above.
	CacheOnCompose CachePolicy = "compose"
	// CacheOnPersist caches a tile only after it was written, so a failed
	// write cascades to every floor above it.
	CacheOnPersist CachePolicy = "persist"
)

// ParseCachePolicy validates a policy name. An empty name selects
// CacheOnCompose.
func ParseCachePolicy(name string) (CachePolicy, error) {
	switch CachePolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", CacheOnCompose:
		return CacheOnCompose, nil
	case CacheOnPersist:
		return CacheOnPersist, nil
	default:
		return "", fmt.Errorf("unknown cache policy %q (use compose or persist)", name)
	}
}

// CompositorConfig holds the compose stage settings.
type CompositorConfig struct {
	TileWidth   int
	TileHeight  int
	ZRange      types.ZRange
	Workers     int
	CachePolicy CachePolicy
}

// TileCompositor builds every floor of every column bottom-up. The lowest
// floor starts from the background chunk; each floor above starts from the
// tile cached one floor below and overlays its own fragment, if any.
//
// A floor whose predecessor is not cached is skipped, and since nothing is
// cached for it the floor above is skipped as well. Cache absence is the
// only signal of a broken chain.
type TileCompositor struct {
	config    CompositorConfig
	base      BaseSource
	fragments FragmentSource
	writer    TileWriter
	decode    Decoder
	cache     *LayerCache
	metrics   *RunMetrics
	pool      *WorkerManager
	logger    logging.Logger
}

// NewTileCompositor wires a compositor. writer may be nil, in which case
// tiles are only cached.
func NewTileCompositor(
	config CompositorConfig,
	base BaseSource,
	fragments FragmentSource,
	writer TileWriter,
	cache *LayerCache,
	metrics *RunMetrics,
	logger logging.Logger,
) *TileCompositor {
	if config.CachePolicy == "" {
		config.CachePolicy = CacheOnCompose
	}
	if metrics == nil {
		metrics = NewRunMetrics()
	}
	return &TileCompositor{
		config:    config,
		base:      base,
		fragments: fragments,
		writer:    writer,
		decode:    capture.Decode,
		cache:     cache,
		metrics:   metrics,
		pool:      NewWorkerManager(config.Workers),
		logger:    logger.WithComponent("compositor"),
	}
}

// SetDecoder replaces the fragment decoder.
func (tc *TileCompositor) SetDecoder(d Decoder) {
	tc.decode = d
}

// Cache returns the LayerCache the compositor writes to.
func (tc *TileCompositor) Cache() *LayerCache { return tc.cache }

// Metrics returns the compose stage metrics.
func (tc *TileCompositor) Metrics() *RunMetrics { return tc.metrics }

// WorkerStats reports how the column pool spent the last Run.
func (tc *TileCompositor) WorkerStats() WorkerStats { return tc.pool.GetWorkerStats() }

// Run composes every column and returns after all of them are done, so the
// cache is complete once Run returns. Recoverable errors are recorded in
// the metrics; only context cancellation is returned.
func (tc *TileCompositor) Run(ctx context.Context, columns []types.Column) error {
	perf := logging.StartOperation(tc.logger, "compose")
	tc.logger.Info(ctx, "Composing tiles",
		"columns", len(columns),
		"z_min", tc.config.ZRange.Min,
		"z_max", tc.config.ZRange.Max,
		"workers", tc.pool.Workers(),
		"cache_policy", string(tc.config.CachePolicy))

	err := tc.pool.Run(ctx, columns, tc.ComposeColumn)

	snap := tc.metrics.GetSnapshot()
	perf.End(ctx,
		"tiles_composed", snap.TilesComposed,
		"tiles_persisted", snap.TilesPersisted,
		"errors", snap.Errors)

	return err
}

// ComposeColumn walks the floors of col from ZRange.Min to ZRange.Max.
func (tc *TileCompositor) ComposeColumn(ctx context.Context, col types.Column) {
	start := time.Now()
	zr := tc.config.ZRange
	logger := tc.logger.With("column", col.String())

	for z := zr.Min; z <= zr.Max; z++ {
		coord := col.At(z)

		var base *raster.Raster
		if z == zr.Min {
			chunk, err := tc.base.Chunk(col.X, col.Y)
			if err != nil {
				code := tserrors.ErrCodeColumnBroken
				if errors.Is(err, atlas.ErrOutOfBounds) {
					code = tserrors.ErrCodeOutOfBounds
				}
				colErr := tserrors.NewColumnError(code, "background chunk unavailable, column skipped", err).
					WithCoordinate(coord)
				tc.metrics.RecordError(colErr, int64(zr.Len()))
				tc.metrics.RecordColumn(true, time.Since(start))
				logger.Warn(ctx, colErr, "Column broken", "floors", zr.Len())
				return
			}
			base = chunk
		} else {
			prev, ok := tc.cache.Get(coord.Below())
			if !ok {
				missErr := tserrors.NewColumnError(tserrors.ErrCodeMissingBase,
					fmt.Sprintf("floor %d not cached, floor skipped", z-1), nil).WithCoordinate(coord)
				tc.metrics.RecordError(missErr, 1)
				logger.Warn(ctx, missErr, "Floor skipped", "z", z)
				continue
			}
			base = prev
		}

		composed := tc.composeFloor(ctx, coord, base, logger)
		tc.emit(ctx, coord, composed, logger)
	}

	tc.metrics.RecordColumn(false, time.Since(start))
}

// composeFloor overlays the fragment at coord on a copy of base. A missing
// fragment, or one that cannot be decoded, yields the copy unchanged.
func (tc *TileCompositor) composeFloor(ctx context.Context, coord types.GridCoordinate, base *raster.Raster, logger logging.Logger) *raster.Raster {
	composed := base.Clone()

	data, ok, err := tc.fragments.Fragment(coord)
	if !ok {
		logger.Debug(ctx, "No fragment, floor copied", "tile", coord.String())
		return composed
	}
	if err != nil {
		tc.recordDecodeError(ctx, coord, tserrors.ErrCodeFragmentRead, "fragment unreadable", err, logger)
		return composed
	}

	tile, err := tc.decode(data, tc.config.TileWidth, tc.config.TileHeight)
	if err != nil {
		code := tserrors.ErrCodeDecodeFailed
		if errors.Is(err, capture.ErrNoPayload) {
			code = tserrors.ErrCodeNoPayload
		}
		tc.recordDecodeError(ctx, coord, code, "fragment not decodable", err, logger)
		return composed
	}

	composed.PasteOver(tile, composed.Bounds().Min)
	tc.metrics.RecordFragment(true)
	logger.Debug(ctx, "Fragment overlaid", "tile", coord.String())
	return composed
}

func (tc *TileCompositor) recordDecodeError(ctx context.Context, coord types.GridCoordinate, code, msg string, cause error, logger logging.Logger) {
	decErr := tserrors.NewDecodeError(code, msg+", using base", cause).WithCoordinate(coord)
	tc.metrics.RecordError(decErr, 1)
	tc.metrics.RecordFragment(false)
	logger.Warn(ctx, decErr, "Fragment skipped", "tile", coord.String())
}

// emit persists the composed tile and caches it according to the policy.
func (tc *TileCompositor) emit(ctx context.Context, coord types.GridCoordinate, composed *raster.Raster, logger logging.Logger) {
	persisted := true
	if tc.writer != nil {
		if err := tc.writer.WriteTile(coord, composed); err != nil {
			persisted = false
			perErr := tserrors.WrapPersist(err, tserrors.ErrCodeTilePersist, "tile not written").
				WithCoordinate(coord)
			tc.metrics.RecordError(perErr, 1)
			logger.Warn(ctx, perErr, "Tile write failed", "tile", coord.String())
		}
	}
	tc.metrics.RecordTile(persisted && tc.writer != nil)

	if !persisted && tc.config.CachePolicy == CacheOnPersist {
		return
	}
	if err := tc.cache.Put(coord, composed); err != nil {
		internal := tserrors.NewInternalError(tserrors.ErrCodeInternalError, "tile composed twice", err).
			WithCoordinate(coord)
		tc.metrics.RecordError(internal, 1)
		logger.Error(ctx, internal, "Cache write rejected", "tile", coord.String())
		return
	}
	logger.Debug(ctx, "Tile cached", "tile", coord.String(), "persisted", persisted)
}
