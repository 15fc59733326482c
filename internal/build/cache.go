// Package build composes per-coordinate tiles and keeps them in the
// run-scoped LayerCache that later stages read from.
package build

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/types"
)

// ErrAlreadyCached is returned when a coordinate is written twice.
var ErrAlreadyCached = errors.New("coordinate already cached")

// LayerCache maps each composed coordinate to its finished raster. Entries
// are written once and never replaced; readers must Clone a raster before
// modifying it. A cache lives for a single run.
//
// Columns write disjoint keys, but Go maps still require a lock for
// concurrent writers, so access goes through an RWMutex.
type LayerCache struct {
	entries map[types.GridCoordinate]*raster.Raster
	mutex   sync.RWMutex
	// Statistics tracking (atomic for thread safety)
	hits     int64
	misses   int64
	sets     int64
	rejected int64
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Entries  int   `json:"entries" yaml:"entries"`
	Hits     int64 `json:"hits" yaml:"hits"`
	Misses   int64 `json:"misses" yaml:"misses"`
	Sets     int64 `json:"sets" yaml:"sets"`
	Rejected int64 `json:"rejected" yaml:"rejected"`
}

// HitRate returns hits over lookups, 0 when nothing was looked up.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total)
}

// NewLayerCache creates an empty cache.
func NewLayerCache() *LayerCache {
	return &LayerCache{entries: make(map[types.GridCoordinate]*raster.Raster)}
}

// Put stores the raster for c. The cache takes ownership of r.
func (lc *LayerCache) Put(c types.GridCoordinate, r *raster.Raster) error {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	if _, exists := lc.entries[c]; exists {
		atomic.AddInt64(&lc.rejected, 1)
		return ErrAlreadyCached
	}
	lc.entries[c] = r
	atomic.AddInt64(&lc.sets, 1)
	return nil
}

// Get returns the raster cached for c.
func (lc *LayerCache) Get(c types.GridCoordinate) (*raster.Raster, bool) {
	lc.mutex.RLock()
	r, ok := lc.entries[c]
	lc.mutex.RUnlock()

	if ok {
		atomic.AddInt64(&lc.hits, 1)
	} else {
		atomic.AddInt64(&lc.misses, 1)
	}
	return r, ok
}

// Contains reports whether c is cached without touching statistics.
func (lc *LayerCache) Contains(c types.GridCoordinate) bool {
	lc.mutex.RLock()
	defer lc.mutex.RUnlock()
	_, ok := lc.entries[c]
	return ok
}

// Len returns the number of cached coordinates.
func (lc *LayerCache) Len() int {
	lc.mutex.RLock()
	defer lc.mutex.RUnlock()
	return len(lc.entries)
}

// Coordinates returns every cached coordinate ordered by Z, X, then Y.
func (lc *LayerCache) Coordinates() []types.GridCoordinate {
	lc.mutex.RLock()
	coords := make([]types.GridCoordinate, 0, len(lc.entries))
	for c := range lc.entries {
		coords = append(coords, c)
	}
	lc.mutex.RUnlock()

	sort.Slice(coords, func(i, j int) bool {
		a, b := coords[i], coords[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return coords
}

// Floor returns the tiles cached at floor z keyed by column.
func (lc *LayerCache) Floor(z int) map[types.Column]*raster.Raster {
	lc.mutex.RLock()
	defer lc.mutex.RUnlock()

	tiles := make(map[types.Column]*raster.Raster)
	for c, r := range lc.entries {
		if c.Z == z {
			tiles[c.Column()] = r
		}
	}
	return tiles
}

// Floors returns the distinct floors with at least one tile, ascending.
func (lc *LayerCache) Floors() []int {
	lc.mutex.RLock()
	seen := make(map[int]struct{})
	for c := range lc.entries {
		seen[c.Z] = struct{}{}
	}
	lc.mutex.RUnlock()

	floors := make([]int, 0, len(seen))
	for z := range seen {
		floors = append(floors, z)
	}
	sort.Ints(floors)
	return floors
}

// Columns returns the distinct columns with at least one tile.
func (lc *LayerCache) Columns() []types.Column {
	lc.mutex.RLock()
	seen := make(map[types.Column]struct{})
	for c := range lc.entries {
		seen[c.Column()] = struct{}{}
	}
	lc.mutex.RUnlock()

	cols := make([]types.Column, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].X != cols[j].X {
			return cols[i].X < cols[j].X
		}
		return cols[i].Y < cols[j].Y
	})
	return cols
}

// First returns the lowest cached coordinate and its tile. ok is false when
// the cache is empty.
func (lc *LayerCache) First() (types.GridCoordinate, *raster.Raster, bool) {
	coords := lc.Coordinates()
	if len(coords) == 0 {
		return types.GridCoordinate{}, nil, false
	}
	lc.mutex.RLock()
	defer lc.mutex.RUnlock()
	return coords[0], lc.entries[coords[0]], true
}

// Stats returns cache statistics.
func (lc *LayerCache) Stats() CacheStats {
	return CacheStats{
		Entries:  lc.Len(),
		Hits:     atomic.LoadInt64(&lc.hits),
		Misses:   atomic.LoadInt64(&lc.misses),
		Sets:     atomic.LoadInt64(&lc.sets),
		Rejected: atomic.LoadInt64(&lc.rejected),
	}
}
