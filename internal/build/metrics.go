package build

import (
	"sync/atomic"
	"time"

	tserrors "github.com/conneroisu/tilestack/internal/errors"
)

// MaxErrorRecords bounds the error details kept for the summary.
const MaxErrorRecords = 200

// RunMetrics tracks the compose stage of one run. Counters are safe for use
// from every column worker.
type RunMetrics struct {
	Errors *tserrors.ErrorCollector

	columnsProcessed int64
	columnsBroken    int64
	tilesComposed    int64
	tilesPersisted   int64
	fragmentsApplied int64
	fragmentsFailed  int64
	totalDuration    int64
}

// MetricsSnapshot is a copy of RunMetrics counters.
type MetricsSnapshot struct {
	ColumnsProcessed int64         `json:"columns_processed" yaml:"columns_processed"`
	ColumnsBroken    int64         `json:"columns_broken" yaml:"columns_broken"`
	TilesComposed    int64         `json:"tiles_composed" yaml:"tiles_composed"`
	TilesPersisted   int64         `json:"tiles_persisted" yaml:"tiles_persisted"`
	FragmentsApplied int64         `json:"fragments_applied" yaml:"fragments_applied"`
	FragmentsFailed  int64         `json:"fragments_failed" yaml:"fragments_failed"`
	TotalDuration    time.Duration `json:"total_duration" yaml:"total_duration"`
	Errors           int64         `json:"errors" yaml:"errors"`
}

// NewRunMetrics creates a new metrics tracker
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{Errors: tserrors.NewErrorCollector(MaxErrorRecords)}
}

// RecordError counts err with the given weight under its category.
func (m *RunMetrics) RecordError(err error, weight int64) tserrors.Category {
	return m.Errors.Record(err, weight)
}

// RecordColumn records one finished column and how long it took.
func (m *RunMetrics) RecordColumn(broken bool, d time.Duration) {
	atomic.AddInt64(&m.columnsProcessed, 1)
	if broken {
		atomic.AddInt64(&m.columnsBroken, 1)
	}
	atomic.AddInt64(&m.totalDuration, int64(d))
}

// RecordTile records a composed coordinate.
func (m *RunMetrics) RecordTile(persisted bool) {
	atomic.AddInt64(&m.tilesComposed, 1)
	if persisted {
		atomic.AddInt64(&m.tilesPersisted, 1)
	}
}

// RecordFragment records whether a present fragment could be overlaid.
func (m *RunMetrics) RecordFragment(applied bool) {
	if applied {
		atomic.AddInt64(&m.fragmentsApplied, 1)
	} else {
		atomic.AddInt64(&m.fragmentsFailed, 1)
	}
}

// GetSnapshot returns a snapshot of current metrics
func (m *RunMetrics) GetSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ColumnsProcessed: atomic.LoadInt64(&m.columnsProcessed),
		ColumnsBroken:    atomic.LoadInt64(&m.columnsBroken),
		TilesComposed:    atomic.LoadInt64(&m.tilesComposed),
		TilesPersisted:   atomic.LoadInt64(&m.tilesPersisted),
		FragmentsApplied: atomic.LoadInt64(&m.fragmentsApplied),
		FragmentsFailed:  atomic.LoadInt64(&m.fragmentsFailed),
		TotalDuration:    time.Duration(atomic.LoadInt64(&m.totalDuration)),
		Errors:           m.Errors.Total(),
	}
}
