package errors

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Category names a bucket of recoverable errors in the run summary.
type Category string

const (
	CategoryColumnBroken     Category = "column_broken"
	CategoryMissingBase      Category = "missing_base"
	CategoryFragmentDecode   Category = "fragment_decode"
	CategoryTilePersist      Category = "tile_persist"
	CategoryLayerPersist     Category = "layer_persist"
	CategoryCompositePersist Category = "composite_persist"
	CategoryOther            Category = "other"
)

// Categories lists every summary category in reporting order.
func Categories() []Category {
	return []Category{
		CategoryColumnBroken,
		CategoryMissingBase,
		CategoryFragmentDecode,
		CategoryTilePersist,
		CategoryLayerPersist,
		CategoryCompositePersist,
		CategoryOther,
	}
}

// CategoryOf maps an error to its summary category using the outermost
// MosaicError code.
func CategoryOf(err error) Category {
	var me *MosaicError
	if !errors.As(err, &me) {
		return CategoryOther
	}

	switch me.Code {
	case ErrCodeColumnBroken, ErrCodeOutOfBounds:
		return CategoryColumnBroken
	case ErrCodeMissingBase:
		return CategoryMissingBase
	case ErrCodeNoPayload, ErrCodeDecodeFailed, ErrCodeFragmentRead:
		return CategoryFragmentDecode
	case ErrCodeTilePersist:
		return CategoryTilePersist
	case ErrCodeLayerPersist:
		return CategoryLayerPersist
	case ErrCodeCompositePersist:
		return CategoryCompositePersist
	default:
		return CategoryOther
	}
}

// ErrorRecord is one retained error for the run summary.
type ErrorRecord struct {
	Category  Category  `json:"category" yaml:"category"`
	Code      string    `json:"code" yaml:"code"`
	Tile      string    `json:"tile,omitempty" yaml:"tile,omitempty"`
	Message   string    `json:"message" yaml:"message"`
	Weight    int64     `json:"weight" yaml:"weight"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// ErrorCollector aggregates recoverable errors by category. It keeps every
// count but only the first maxRecords error details.
type ErrorCollector struct {
	counts     map[Category]int64
	records    []ErrorRecord
	maxRecords int
	mutex      sync.RWMutex
}

// NewErrorCollector creates a new error collector retaining at most
// maxRecords error details. A non-positive maxRecords retains none.
func NewErrorCollector(maxRecords int) *ErrorCollector {
	return &ErrorCollector{
		counts:     make(map[Category]int64),
		records:    make([]ErrorRecord, 0),
		maxRecords: maxRecords,
	}
}

// Record adds err to the collector. weight is how many error slots it
// counts for; a broken column counts once per floor.
func (ec *ErrorCollector) Record(err error, weight int64) Category {
	if err == nil || weight <= 0 {
		return ""
	}

	category := CategoryOf(err)
	record := ErrorRecord{
		Category:  category,
		Message:   err.Error(),
		Weight:    weight,
		Timestamp: time.Now(),
	}
	var me *MosaicError
	if errors.As(err, &me) {
		record.Code = me.Code
		if me.Coordinate != nil {
			record.Tile = me.Coordinate.String()
		}
	}

	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.counts[category] += weight
	if len(ec.records) < ec.maxRecords {
		ec.records = append(ec.records, record)
	}

	return category
}

// Count returns the number of errors recorded for a category.
func (ec *ErrorCollector) Count(category Category) int64 {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return ec.counts[category]
}

// Counts returns a copy of the per-category counts. Categories with no
// errors are omitted.
func (ec *ErrorCollector) Counts() map[Category]int64 {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make(map[Category]int64, len(ec.counts))
	for k, v := range ec.counts {
		result[k] = v
	}
	return result
}

// Total returns the sum of all category counts.
func (ec *ErrorCollector) Total() int64 {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var total int64
	for _, v := range ec.counts {
		total += v
	}
	return total
}

// Records returns the retained error details ordered by time.
func (ec *ErrorCollector) Records() []ErrorRecord {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]ErrorRecord, len(ec.records))
	copy(result, ec.records)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	return ec.Total() > 0
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.counts = make(map[Category]int64)
	ec.records = ec.records[:0]
}
