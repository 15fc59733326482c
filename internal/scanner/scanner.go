// Package scanner discovers capture fragments and rendered tiles on disk.
//
// Files are named after the grid coordinate they hold, X-Y-Z followed by a
// fixed extension. A negative floor produces a double separator
// ("3-2--1.minimap"). Fragments from older captures may carry only X-Y, in
// which case floor 0 is assumed and a warning is logged.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/types"
)

var (
	xyzPattern = regexp.MustCompile(`^(-?\d+)-(-?\d+)-(-?\d+)`)
	xyPattern  = regexp.MustCompile(`^(-?\d+)-(-?\d+)`)
)

// ParseCoordinate extracts the grid coordinate from a file name. legacy is
// true when the name carried no floor and Z=0 was assumed.
func ParseCoordinate(filename string) (coord types.GridCoordinate, legacy bool, err error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	if m := xyzPattern.FindStringSubmatch(base); m != nil {
		x, y, z, err := atoi3(m[1], m[2], m[3])
		if err != nil {
			return types.GridCoordinate{}, false, err
		}
		return types.Coord(x, y, z), false, nil
	}

	if m := xyPattern.FindStringSubmatch(base); m != nil {
		x, y, _, err := atoi3(m[1], m[2], "0")
		if err != nil {
			return types.GridCoordinate{}, false, err
		}
		return types.Coord(x, y, 0), true, nil
	}

	return types.GridCoordinate{}, false, fmt.Errorf("invalid coordinate file name %q", base)
}

// ParseTileCoordinate is the strict form used for rendered tiles: the floor
// is mandatory.
func ParseTileCoordinate(filename string) (types.GridCoordinate, error) {
	c, legacy, err := ParseCoordinate(filename)
	if err != nil {
		return types.GridCoordinate{}, err
	}
	if legacy {
		return types.GridCoordinate{}, fmt.Errorf("tile name %q has no floor", filepath.Base(filename))
	}
	return c, nil
}

func atoi3(a, b, c string) (int, int, int, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, 0, err
	}
	z, err := strconv.Atoi(c)
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}

// Index maps every discovered coordinate to its file.
type Index struct {
	// Dir is the scanned directory
	Dir string
	// Files holds one path per coordinate
	Files map[types.GridCoordinate]string
	// ZRange spans the lowest and highest floor found
	ZRange types.ZRange
	// Skipped lists matching files whose name could not be parsed
	Skipped []string
}

// Len returns the number of indexed coordinates.
func (ix *Index) Len() int { return len(ix.Files) }

// Path returns the file for a coordinate.
func (ix *Index) Path(c types.GridCoordinate) (string, bool) {
	p, ok := ix.Files[c]
	return p, ok
}

// Coordinates returns every indexed coordinate ordered by Z, X, then Y.
func (ix *Index) Coordinates() []types.GridCoordinate {
	coords := make([]types.GridCoordinate, 0, len(ix.Files))
	for c := range ix.Files {
		coords = append(coords, c)
	}
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

// Columns returns the distinct columns that have at least one file.
func (ix *Index) Columns() []types.Column {
	seen := make(map[types.Column]struct{})
	var cols []types.Column
	for _, c := range ix.Coordinates() {
		col := c.Column()
		if _, ok := seen[col]; ok {
			continue
		}
		seen[col] = struct{}{}
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].X != cols[j].X {
			return cols[i].X < cols[j].X
		}
		return cols[i].Y < cols[j].Y
	})
	return cols
}

// Fragment reads the raw bytes of the fragment at c. ok is false when no
// fragment exists for the coordinate.
func (ix *Index) Fragment(c types.GridCoordinate) (data []byte, ok bool, err error) {
	path, ok := ix.Files[c]
	if !ok {
		return nil, false, nil
	}
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, true, err
	}
	return data, true, nil
}

// FragmentScanner finds fragment files with a fixed extension in one
// directory. Subdirectories are not descended into.
type FragmentScanner struct {
	extension string
	logger    logging.Logger
}

// NewFragmentScanner creates a scanner for files ending in extension.
func NewFragmentScanner(extension string, logger logging.Logger) *FragmentScanner {
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return &FragmentScanner{
		extension: extension,
		logger:    logger.WithComponent("scanner"),
	}
}

// ScanFragments indexes the fragments in dir. It fails with a configuration
// error when the directory cannot be read, holds no matching file, or no
// file name yields a floor.
func (s *FragmentScanner) ScanFragments(ctx context.Context, dir string) (*Index, error) {
	ix, matched, err := s.scan(ctx, dir, true)
	if err != nil {
		return nil, err
	}
	if matched == 0 {
		return nil, tserrors.NewConfigError(tserrors.ErrCodeNoFragments,
			fmt.Sprintf("no %s files found", s.extension)).WithPath(dir)
	}
	if ix.Len() == 0 {
		return nil, tserrors.NewConfigError(tserrors.ErrCodeNoZRange,
			"could not determine floor range, no valid fragment names").WithPath(dir)
	}

	s.logger.Info(ctx, "Fragments indexed",
		"dir", dir,
		"fragments", ix.Len(),
		"skipped", len(ix.Skipped),
		"z_min", ix.ZRange.Min,
		"z_max", ix.ZRange.Max)

	return ix, nil
}

// ScanTiles indexes already rendered X-Y-Z tiles in dir. Names without a
// floor are skipped.
func (s *FragmentScanner) ScanTiles(ctx context.Context, dir string) (*Index, error) {
	ix, _, err := s.scan(ctx, dir, false)
	if err != nil {
		return nil, err
	}
	if ix.Len() == 0 {
		return nil, tserrors.NewConfigError(tserrors.ErrCodeNoTiles,
			fmt.Sprintf("no %s tiles found", s.extension)).WithPath(dir)
	}

	s.logger.Info(ctx, "Tiles indexed", "dir", dir, "tiles", ix.Len(),
		"z_min", ix.ZRange.Min, "z_max", ix.ZRange.Max)

	return ix, nil
}

func (s *FragmentScanner) scan(ctx context.Context, dir string, allowLegacy bool) (*Index, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, tserrors.WrapConfig(err, tserrors.ErrCodeFileNotFound,
			"cannot read input directory").WithPath(dir)
	}

	ix := &Index{Dir: dir, Files: make(map[types.GridCoordinate]string)}
	matched := 0
	first := true

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), s.extension) {
			continue
		}
		matched++

		coord, legacy, err := ParseCoordinate(name)
		if err == nil && legacy && !allowLegacy {
			err = fmt.Errorf("tile name %q has no floor", name)
		}
		if err != nil {
			s.logger.Warn(ctx, err, "Skipping file", "file", name)
			ix.Skipped = append(ix.Skipped, name)
			continue
		}
		if legacy {
			s.logger.Warn(ctx, nil, "Floor missing from file name, assuming 0", "file", name)
		}

		if prev, dup := ix.Files[coord]; dup {
			s.logger.Warn(ctx, nil, "Duplicate coordinate, keeping first file",
				"tile", coord.String(), "kept", filepath.Base(prev), "ignored", name)
			continue
		}
		ix.Files[coord] = filepath.Join(dir, name)

		if first {
			ix.ZRange = types.ZRange{Min: coord.Z, Max: coord.Z}
			first = false
		} else {
			ix.ZRange.Min = min(ix.ZRange.Min, coord.Z)
			ix.ZRange.Max = max(ix.ZRange.Max, coord.Z)
		}
	}

	sort.Strings(ix.Skipped)
	return ix, matched, nil
}
