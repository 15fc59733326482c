package build

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/types"
)

func TestWorkerManager_ProcessesEveryColumnOnce(t *testing.T) {
	wm := NewWorkerManager(3)
	cols := testGrid(4, 5).Columns()

	var mu sync.Mutex
	seen := make(map[types.Column]int)
	err := wm.Run(context.Background(), cols, func(_ context.Context, c types.Column) {
		mu.Lock()
		seen[c]++
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Len(t, seen, len(cols))
	for c, n := range seen {
		assert.Equal(t, 1, n, "column %s", c)
	}

	stats := wm.GetWorkerStats()
	assert.Equal(t, 3, stats.Workers)
	assert.Equal(t, int64(len(cols)), stats.CompletedColumns)
	assert.Zero(t, stats.SkippedColumns)
}

func TestWorkerManager_DefaultsToNumCPU(t *testing.T) {
	assert.Positive(t, NewWorkerManager(0).Workers())
}

func TestWorkerManager_EmptyInput(t *testing.T) {
	wm := NewWorkerManager(4)
	called := false
	require.NoError(t, wm.Run(context.Background(), nil, func(context.Context, types.Column) { called = true }))
	assert.False(t, called)
}

func TestWorkerManager_Cancelled(t *testing.T) {
	wm := NewWorkerManager(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := wm.Run(ctx, testGrid(2, 2).Columns(), func(context.Context, types.Column) {
		t.Error("no column should start after cancellation")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(4), wm.GetWorkerStats().SkippedColumns)
}

func TestFileTileWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileTileWriter(dir+"/tiles", "png")
	require.NoError(t, err)

	assert.Equal(t, dir+"/tiles/0-1--1.png", w.Path(types.Coord(0, 1, -1)))

	tile := halfFragment(fragRed)
	require.NoError(t, w.WriteTile(types.Coord(3, 2, 1), tile))
	assert.FileExists(t, w.Path(types.Coord(3, 2, 1)))
}

func TestFileTileWriterFailure(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileTileWriter(dir+"/tiles", "png")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(w.Dir()))

	err = w.WriteTile(types.Coord(1, 0, 2), halfFragment(fragRed))
	require.Error(t, err)

	var me *tserrors.MosaicError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, tserrors.ErrorTypeIO, me.Type)
	assert.Equal(t, tserrors.ErrCodeFileWrite, me.Code)
	assert.Equal(t, w.Path(types.Coord(1, 0, 2)), me.Path)
	require.NotNil(t, me.Coordinate)
	assert.Equal(t, types.Coord(1, 0, 2), *me.Coordinate)
	assert.False(t, tserrors.IsRecoverable(err))
}
