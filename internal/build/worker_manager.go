package build

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/tilestack/internal/types"
)

// ColumnFunc processes every floor of one column.
type ColumnFunc func(ctx context.Context, col types.Column)

// WorkerManager runs columns on a fixed pool of workers. Columns are
// independent of each other; the floors of one column always run on a
// single worker, in order.
type WorkerManager struct {
	// workers defines the number of concurrent column workers
	workers int
	// workerWg synchronizes worker goroutine lifecycle
	workerWg sync.WaitGroup
	// mu serialises Run calls
	mu sync.Mutex

	completed     int64
	skipped       int64
	totalDuration int64
}

// WorkerStats provides worker pool performance metrics.
type WorkerStats struct {
	Workers           int           `json:"workers" yaml:"workers"`
	CompletedColumns  int64         `json:"completed_columns" yaml:"completed_columns"`
	SkippedColumns    int64         `json:"skipped_columns" yaml:"skipped_columns"`
	AverageColumnTime time.Duration `json:"average_column_time" yaml:"average_column_time"`
}

// NewWorkerManager creates a pool of the given size. A non-positive size
// uses one worker per CPU.
func NewWorkerManager(workers int) *WorkerManager {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerManager{workers: workers}
}

// Workers returns the pool size.
func (wm *WorkerManager) Workers() int { return wm.workers }

// Run hands every column to fn and returns once all of them finished. When
// ctx is cancelled, columns not yet started are skipped and ctx.Err() is
// returned; columns already running complete.
func (wm *WorkerManager) Run(ctx context.Context, columns []types.Column, fn ColumnFunc) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	queue := make(chan types.Column)
	workers := min(wm.workers, max(len(columns), 1))

	for i := 0; i < workers; i++ {
		wm.workerWg.Add(1)
		go wm.worker(ctx, queue, fn)
	}

feed:
	for i, col := range columns {
		if ctx.Err() != nil {
			atomic.AddInt64(&wm.skipped, int64(len(columns)-i))
			break
		}
		select {
		case <-ctx.Done():
			atomic.AddInt64(&wm.skipped, int64(len(columns)-i))
			break feed
		case queue <- col:
		}
	}
	close(queue)

	// Wait for all workers to finish
	wm.workerWg.Wait()

	return ctx.Err()
}

// worker is the main worker goroutine that processes columns.
func (wm *WorkerManager) worker(ctx context.Context, queue <-chan types.Column, fn ColumnFunc) {
	defer wm.workerWg.Done()

	for col := range queue {
		start := time.Now()
		fn(ctx, col)
		atomic.AddInt64(&wm.completed, 1)
		atomic.AddInt64(&wm.totalDuration, int64(time.Since(start)))
	}
}

// GetWorkerStats returns current worker pool statistics.
func (wm *WorkerManager) GetWorkerStats() WorkerStats {
	completed := atomic.LoadInt64(&wm.completed)
	stats := WorkerStats{
		Workers:          wm.workers,
		CompletedColumns: completed,
		SkippedColumns:   atomic.LoadInt64(&wm.skipped),
	}
	if completed > 0 {
		stats.AverageColumnTime = time.Duration(atomic.LoadInt64(&wm.totalDuration) / completed)
	}
	return stats
}
