package build

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tilestack/internal/atlas"
	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/testutils"
	"github.com/conneroisu/tilestack/internal/types"
)

func newCompositor(base BaseSource, frags FragmentSource, w TileWriter, zr types.ZRange, policy CachePolicy) *TileCompositor {
	cfg := CompositorConfig{
		TileWidth:   tileSize,
		TileHeight:  tileSize,
		ZRange:      zr,
		Workers:     2,
		CachePolicy: policy,
	}
	return NewTileCompositor(cfg, base, frags, w, NewLayerCache(), NewRunMetrics(), logging.Discard())
}

func TestParseCachePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    CachePolicy
		wantErr bool
	}{
		{"", CacheOnCompose, false},
		{"compose", CacheOnCompose, false},
		{"PERSIST", CacheOnPersist, false},
		{"always", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCachePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Columns (0,0) and (1,0), floors {0,1}; fragments only at (0,0,0) and
// (1,0,1).
func TestScenarioLayeredOverlay(t *testing.T) {
	grid := testGrid(2, 1)
	a := testAtlas(grid)
	frags := newMapFragments()
	frags.data[types.Coord(0, 0, 0)] = encodeFragment(t, halfFragment(fragRed))
	frags.data[types.Coord(1, 0, 1)] = encodeFragment(t, halfFragment(fragBlue))
	w := newMemWriter()

	tc := newCompositor(a, frags, w, types.ZRange{Min: 0, Max: 1}, CacheOnCompose)
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 0, Y: 0}, {X: 1, Y: 0}}))

	cache := tc.Cache()
	require.Equal(t, 4, cache.Len())

	t000, _ := cache.Get(types.Coord(0, 0, 0))
	assert.Equal(t, fragRed, t000.At(0, 0), "fragment covers the left half")
	assert.Equal(t, bgColor(0, 0), t000.At(tileSize-1, 0), "background shows through the right half")

	t001, _ := cache.Get(types.Coord(0, 0, 1))
	assert.True(t, t000.Equal(t001), "floor without fragment copies the floor below")
	assert.NotSame(t, t000, t001)

	t100, _ := cache.Get(types.Coord(1, 0, 0))
	chunk, err := a.Chunk(1, 0)
	require.NoError(t, err)
	assert.True(t, chunk.Equal(t100), "no fragment leaves the background unchanged")

	t101, _ := cache.Get(types.Coord(1, 0, 1))
	assert.Equal(t, fragBlue, t101.At(0, tileSize-1))
	assert.Equal(t, bgColor(1, 0), t101.At(tileSize-1, tileSize-1))

	assert.Equal(t, 4, w.written())
	assert.Zero(t, tc.Metrics().Errors.Total())

	snap := tc.Metrics().GetSnapshot()
	assert.Equal(t, int64(4), snap.TilesComposed)
	assert.Equal(t, int64(4), snap.TilesPersisted)
	assert.Equal(t, int64(2), snap.FragmentsApplied)
	assert.Equal(t, int64(2), snap.ColumnsProcessed)
}

// The background chunk for (2,3) falls outside the atlas.
func TestScenarioBrokenColumn(t *testing.T) {
	grid := testGrid(3, 4)
	// Two tiles wide: column x=2 has no background.
	a := atlas.New(raster.Filled(2*tileSize, 4*tileSize, bgColor(0, 0)), grid)
	zr := types.ZRange{Min: -1, Max: 2}

	frags := newMapFragments()
	frags.data[types.Coord(2, 3, 0)] = encodeFragment(t, halfFragment(fragRed))
	w := newMemWriter()

	tc := newCompositor(a, frags, w, zr, CacheOnCompose)
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 2, Y: 3}, {X: 0, Y: 0}}))

	for z := zr.Min; z <= zr.Max; z++ {
		assert.False(t, tc.Cache().Contains(types.Coord(2, 3, z)), "z=%d", z)
		assert.True(t, tc.Cache().Contains(types.Coord(0, 0, z)), "z=%d", z)
	}

	errs := tc.Metrics().Errors
	assert.Equal(t, int64(zr.Len()), errs.Count(tserrors.CategoryColumnBroken))
	assert.Equal(t, int64(zr.Len()), errs.Total())
	assert.Equal(t, zr.Len(), w.written())
	assert.Equal(t, int64(1), tc.Metrics().GetSnapshot().ColumnsBroken)

	records := errs.Records()
	require.Len(t, records, 1)
	assert.Equal(t, tserrors.ErrCodeOutOfBounds, records[0].Code)
	assert.Equal(t, "2-3--1", records[0].Tile)
}

// A failed write at (0,0,1) under the persist policy evicts the tile, so
// every floor above it loses its base.
func TestScenarioPersistFailureCascades(t *testing.T) {
	grid := testGrid(1, 1)
	zr := types.ZRange{Min: 0, Max: 3}
	failing := types.Coord(0, 0, 1)

	tc := newCompositor(testAtlas(grid), newMapFragments(), newMemWriter(failing), zr, CacheOnPersist)
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 0, Y: 0}}))

	assert.True(t, tc.Cache().Contains(types.Coord(0, 0, 0)))
	for z := 1; z <= 3; z++ {
		assert.False(t, tc.Cache().Contains(types.Coord(0, 0, z)), "z=%d", z)
	}

	errs := tc.Metrics().Errors
	assert.Equal(t, int64(1), errs.Count(tserrors.CategoryTilePersist))
	assert.Equal(t, int64(2), errs.Count(tserrors.CategoryMissingBase))
	assert.Equal(t, int64(3), errs.Total())
}

func TestPersistFailureDoesNotBreakChainOnCompose(t *testing.T) {
	grid := testGrid(1, 1)
	zr := types.ZRange{Min: 0, Max: 3}
	w := newMemWriter(types.Coord(0, 0, 1))

	tc := newCompositor(testAtlas(grid), newMapFragments(), w, zr, CacheOnCompose)
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 0, Y: 0}}))

	assert.Equal(t, 4, tc.Cache().Len())
	assert.Equal(t, 3, w.written())
	assert.Equal(t, int64(1), tc.Metrics().Errors.Total())

	snap := tc.Metrics().GetSnapshot()
	assert.Equal(t, int64(4), snap.TilesComposed)
	assert.Equal(t, int64(3), snap.TilesPersisted)
}

func TestPersistPolicyWithFileWriter(t *testing.T) {
	grid := testGrid(1, 1)
	zr := types.ZRange{Min: 0, Max: 3}
	files, err := NewFileTileWriter(t.TempDir(), raster.FormatPNG)
	require.NoError(t, err)

	injector := testutils.NewErrorInjector()
	injector.InjectErrorOnce(testutils.WriteOp(types.Coord(0, 0, 2)), testutils.ErrDiskFull)
	w := &testutils.FaultyTileWriter{Next: files, Injector: injector}

	tc := newCompositor(testAtlas(grid), newMapFragments(), w, zr, CacheOnPersist)
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 0, Y: 0}}))

	assert.FileExists(t, files.Path(types.Coord(0, 0, 0)))
	assert.FileExists(t, files.Path(types.Coord(0, 0, 1)))
	assert.NoFileExists(t, files.Path(types.Coord(0, 0, 2)))
	assert.NoFileExists(t, files.Path(types.Coord(0, 0, 3)))
	assert.EqualValues(t, 1, injector.Injections(testutils.WriteOp(types.Coord(0, 0, 2))))

	errs := tc.Metrics().Errors
	assert.EqualValues(t, 1, errs.Count(tserrors.CategoryTilePersist))
	assert.EqualValues(t, 1, errs.Count(tserrors.CategoryMissingBase))
	testutils.AssertNoTempFiles(t, files.Dir())
}

func TestTileWriteFailureKeepsFileAndCoordinate(t *testing.T) {
	grid := testGrid(1, 1)
	zr := types.ZRange{Min: 0, Max: 1}
	files, err := NewFileTileWriter(filepath.Join(t.TempDir(), "tiles"), raster.FormatPNG)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(files.Dir()))

	tc := newCompositor(testAtlas(grid), newMapFragments(), files, zr, CacheOnCompose)
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 0, Y: 0}}))

	assert.Equal(t, 2, tc.Cache().Len(), "compose policy caches unwritten tiles")
	errs := tc.Metrics().Errors
	assert.EqualValues(t, 2, errs.Count(tserrors.CategoryTilePersist))

	records := errs.Records()
	require.Len(t, records, 2)
	tiles := []string{records[0].Tile, records[1].Tile}
	assert.ElementsMatch(t, []string{"0-0-0", "0-0-1"}, tiles)
	for _, rec := range records {
		assert.Equal(t, tserrors.ErrCodeTilePersist, rec.Code)
		assert.Contains(t, rec.Message, files.Dir(), "the message names the file that failed")
	}
}

func TestFragmentFailuresFallBackToBase(t *testing.T) {
	grid := testGrid(1, 1)
	zr := types.ZRange{Min: 0, Max: 3}

	frags := newMapFragments()
	frags.data[types.Coord(0, 0, 0)] = encodeFragment(t, halfFragment(fragRed))
	frags.data[types.Coord(0, 0, 1)] = []byte("container without raster")
	frags.data[types.Coord(0, 0, 2)] = append([]byte("\x89PNG"), []byte("\r\n\x1a\nbroken")...)
	frags.readErr[types.Coord(0, 0, 3)] = errors.New("permission denied")

	tc := newCompositor(testAtlas(grid), frags, nil, zr, CacheOnCompose)
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 0, Y: 0}}))

	require.Equal(t, 4, tc.Cache().Len())
	first, _ := tc.Cache().Get(types.Coord(0, 0, 0))
	for z := 1; z <= 3; z++ {
		tile, _ := tc.Cache().Get(types.Coord(0, 0, z))
		assert.True(t, first.Equal(tile), "z=%d falls back to its base", z)
	}

	errs := tc.Metrics().Errors
	assert.Equal(t, int64(3), errs.Count(tserrors.CategoryFragmentDecode))

	codes := make([]string, 0, 3)
	for _, r := range errs.Records() {
		codes = append(codes, r.Code)
	}
	assert.ElementsMatch(t, []string{
		tserrors.ErrCodeNoPayload,
		tserrors.ErrCodeDecodeFailed,
		tserrors.ErrCodeFragmentRead,
	}, codes)

	snap := tc.Metrics().GetSnapshot()
	assert.Equal(t, int64(1), snap.FragmentsApplied)
	assert.Equal(t, int64(3), snap.FragmentsFailed)
	assert.Zero(t, snap.TilesPersisted, "no writer configured")
}

func TestOpaqueFragmentOccludesBase(t *testing.T) {
	grid := testGrid(1, 1)
	opaque := raster.Filled(tileSize, tileSize, fragBlue)
	opaque.Set(1, 1, fragRed)

	frags := newMapFragments()
	frags.data[types.Coord(0, 0, 0)] = encodeFragment(t, opaque)

	tc := newCompositor(testAtlas(grid), frags, nil, types.ZRange{Min: 0, Max: 0}, CacheOnCompose)
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 0, Y: 0}}))

	tile, ok := tc.Cache().Get(types.Coord(0, 0, 0))
	require.True(t, ok)
	assert.True(t, opaque.Equal(tile))
}

func TestFragmentRescaledToTileSize(t *testing.T) {
	grid := testGrid(1, 1)
	frags := newMapFragments()
	frags.data[types.Coord(0, 0, 0)] = encodeFragment(t, raster.Filled(2, 2, fragRed))

	tc := newCompositor(testAtlas(grid), frags, nil, types.ZRange{Min: 0, Max: 0}, CacheOnCompose)
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 0, Y: 0}}))

	tile, ok := tc.Cache().Get(types.Coord(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, image.Pt(tileSize, tileSize), tile.Size())
}

func TestComposeIsIdempotent(t *testing.T) {
	grid := testGrid(2, 2)
	zr := types.ZRange{Min: -1, Max: 1}
	frags := newMapFragments()
	frags.data[types.Coord(0, 1, -1)] = encodeFragment(t, halfFragment(fragRed))
	frags.data[types.Coord(1, 1, 1)] = encodeFragment(t, halfFragment(fragBlue))

	run := func() *LayerCache {
		tc := newCompositor(testAtlas(grid), frags, nil, zr, CacheOnCompose)
		require.NoError(t, tc.Run(context.Background(), grid.Columns()))
		return tc.Cache()
	}

	first, second := run(), run()
	require.Equal(t, first.Coordinates(), second.Coordinates())
	for _, c := range first.Coordinates() {
		a, _ := first.Get(c)
		b, _ := second.Get(c)
		assert.True(t, a.Equal(b), "tile %s differs between runs", c)
	}
}

func TestCustomDecoder(t *testing.T) {
	grid := testGrid(1, 1)
	frags := newMapFragments()
	frags.data[types.Coord(0, 0, 0)] = []byte("anything")

	tc := newCompositor(testAtlas(grid), frags, nil, types.ZRange{Min: 0, Max: 0}, CacheOnCompose)
	tc.SetDecoder(func(data []byte, w, h int) (*raster.Raster, error) {
		return raster.Filled(w, h, fragRed), nil
	})
	require.NoError(t, tc.Run(context.Background(), []types.Column{{X: 0, Y: 0}}))

	tile, _ := tc.Cache().Get(types.Coord(0, 0, 0))
	assert.Equal(t, fragRed, tile.At(2, 2))
}

func TestRunHonoursCancellation(t *testing.T) {
	grid := testGrid(3, 3)
	tc := newCompositor(testAtlas(grid), newMapFragments(), nil, types.ZRange{Min: 0, Max: 0}, CacheOnCompose)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tc.Run(ctx, grid.Columns())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, tc.Cache().Len(), len(grid.Columns()))
}
