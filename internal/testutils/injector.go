package testutils

import (
	"errors"
	"sync"

	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/types"
)

// Common injected errors.
var (
	ErrDiskFull         = errors.New("disk full")
	ErrPermissionDenied = errors.New("permission denied")
)

// ErrorInjector fails named operations on demand.
type ErrorInjector struct {
	targets map[string]*ErrorTarget
	mu      sync.Mutex
	enabled bool
}

// ErrorTarget represents an injection point with configuration.
type ErrorTarget struct {
	Name      string
	Error     error
	Count     int64 // times injected
	Remaining int64 // -1 for unlimited
}

// NewErrorInjector creates an enabled injector with no targets.
func NewErrorInjector() *ErrorInjector {
	return &ErrorInjector{
		targets: make(map[string]*ErrorTarget),
		enabled: true,
	}
}

// InjectError makes every call of operation fail with err.
func (ei *ErrorInjector) InjectError(operation string, err error) *ErrorTarget {
	return ei.InjectErrorCount(operation, err, -1)
}

// InjectErrorOnce fails only the next call of operation.
func (ei *ErrorInjector) InjectErrorOnce(operation string, err error) *ErrorTarget {
	return ei.InjectErrorCount(operation, err, 1)
}

// InjectErrorCount fails the next count calls of operation.
func (ei *ErrorInjector) InjectErrorCount(operation string, err error, count int64) *ErrorTarget {
	ei.mu.Lock()
	defer ei.mu.Unlock()

	target := &ErrorTarget{Name: operation, Error: err, Remaining: count}
	ei.targets[operation] = target
	return target
}

// ShouldFail returns the error configured for operation, if any remains.
func (ei *ErrorInjector) ShouldFail(operation string) error {
	ei.mu.Lock()
	defer ei.mu.Unlock()

	if !ei.enabled {
		return nil
	}
	target, ok := ei.targets[operation]
	if !ok || target.Remaining == 0 {
		return nil
	}
	target.Count++
	if target.Remaining > 0 {
		target.Remaining--
	}
	return target.Error
}

// Enable turns injection on.
func (ei *ErrorInjector) Enable() {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	ei.enabled = true
}

// Disable turns injection off without forgetting targets.
func (ei *ErrorInjector) Disable() {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	ei.enabled = false
}

// Injections returns how many times operation has failed.
func (ei *ErrorInjector) Injections(operation string) int64 {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	if target, ok := ei.targets[operation]; ok {
		return target.Count
	}
	return 0
}

// WriteOp names the injection point for writing the tile at c.
func WriteOp(c types.GridCoordinate) string { return "write:" + c.String() }

// TileWriter is the write side of a tile sink.
type TileWriter interface {
	WriteTile(c types.GridCoordinate, r *raster.Raster) error
}

// FaultyTileWriter fails the writes the injector targets and passes the
// rest to Next. A nil Next discards successful writes.
type FaultyTileWriter struct {
	Next     TileWriter
	Injector *ErrorInjector
}

// WriteTile fails if the injector targets c.
func (w *FaultyTileWriter) WriteTile(c types.GridCoordinate, r *raster.Raster) error {
	if err := w.Injector.ShouldFail(WriteOp(c)); err != nil {
		return err
	}
	if w.Next == nil {
		return nil
	}
	return w.Next.WriteTile(c, r)
}
