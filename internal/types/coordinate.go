// Package types provides common type definitions used throughout tilestack.
// This package contains shared types to avoid circular dependencies between packages.
package types

import "fmt"

// GridCoordinate addresses one tile of the reconstructed map: a column (X, Y)
// on the fixed grid and a floor Z. Y=0 is the bottom row of the map.
type GridCoordinate struct {
	// X is the column index, 0 at the left edge of the grid
	X int `json:"x" yaml:"x"`
	// Y is the row index, 0 at the bottom edge of the grid
	Y int `json:"y" yaml:"y"`
	// Z is the floor, negative for underground levels
	Z int `json:"z" yaml:"z"`
}

// Coord is shorthand for building a GridCoordinate.
func Coord(x, y, z int) GridCoordinate {
	return GridCoordinate{X: x, Y: y, Z: z}
}

// Column returns the (X, Y) column this coordinate belongs to.
func (c GridCoordinate) Column() Column {
	return Column{X: c.X, Y: c.Y}
}

// Below returns the coordinate one floor down in the same column.
func (c GridCoordinate) Below() GridCoordinate {
	return GridCoordinate{X: c.X, Y: c.Y, Z: c.Z - 1}
}

// String renders the coordinate the way tile files are named: X-Y-Z.
// A negative Z therefore produces the double separator form, e.g. "0-1--1".
func (c GridCoordinate) String() string {
	return fmt.Sprintf("%d-%d-%d", c.X, c.Y, c.Z)
}

// Column is a fixed (X, Y) location spanning all floors.
type Column struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// At returns the coordinate of this column on floor z.
func (c Column) At(z int) GridCoordinate {
	return GridCoordinate{X: c.X, Y: c.Y, Z: z}
}

func (c Column) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Bounds is an inclusive bounding box over grid columns.
type Bounds struct {
	MinX int `json:"min_x" yaml:"min_x"`
	MaxX int `json:"max_x" yaml:"max_x"`
	MinY int `json:"min_y" yaml:"min_y"`
	MaxY int `json:"max_y" yaml:"max_y"`
}

// BoundsOf computes the bounding box of the given columns. ok is false when
// cols is empty.
func BoundsOf(cols []Column) (b Bounds, ok bool) {
	if len(cols) == 0 {
		return Bounds{}, false
	}
	b = Bounds{MinX: cols[0].X, MaxX: cols[0].X, MinY: cols[0].Y, MaxY: cols[0].Y}
	for _, c := range cols[1:] {
		b.MinX = min(b.MinX, c.X)
		b.MaxX = max(b.MaxX, c.X)
		b.MinY = min(b.MinY, c.Y)
		b.MaxY = max(b.MaxY, c.Y)
	}
	return b, true
}

// Width is the number of columns spanned along X.
func (b Bounds) Width() int { return b.MaxX - b.MinX + 1 }

// Height is the number of rows spanned along Y.
func (b Bounds) Height() int { return b.MaxY - b.MinY + 1 }

// ZRange is an inclusive range of floors.
type ZRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Len is the number of floors in the range.
func (r ZRange) Len() int {
	if r.Max < r.Min {
		return 0
	}
	return r.Max - r.Min + 1
}

// Contains reports whether z lies within the range.
func (r ZRange) Contains(z int) bool {
	return z >= r.Min && z <= r.Max
}
