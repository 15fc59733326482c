package types

import "fmt"

// Grid describes the fixed column grid and the pixel geometry of one run.
type Grid struct {
	Width            int `json:"width" yaml:"width"`
	Height           int `json:"height" yaml:"height"`
	TileWidth        int `json:"tile_width" yaml:"tile_width"`
	TileHeight       int `json:"tile_height" yaml:"tile_height"`
	BackgroundWidth  int `json:"background_width" yaml:"background_width"`
	BackgroundHeight int `json:"background_height" yaml:"background_height"`
}

// DefaultGrid is the 6x5 grid of 1000px tiles the capture tool produces.
func DefaultGrid() Grid {
	return Grid{
		Width:            6,
		Height:           5,
		TileWidth:        1000,
		TileHeight:       1000,
		BackgroundWidth:  6000,
		BackgroundHeight: 5000,
	}
}

// MaxX is the highest valid column X.
func (g Grid) MaxX() int { return g.Width - 1 }

// MaxY is the highest valid column Y.
func (g Grid) MaxY() int { return g.Height - 1 }

// Contains reports whether the column lies on the grid.
func (g Grid) Contains(c Column) bool {
	return c.X >= 0 && c.X < g.Width && c.Y >= 0 && c.Y < g.Height
}

// Columns enumerates every column of the grid, X outer and Y inner.
func (g Grid) Columns() []Column {
	cols := make([]Column, 0, g.Width*g.Height)
	for x := 0; x < g.Width; x++ {
		for y := 0; y < g.Height; y++ {
			cols = append(cols, Column{X: x, Y: y})
		}
	}
	return cols
}

// Validate checks that every dimension is positive.
func (g Grid) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"grid width", g.Width},
		{"grid height", g.Height},
		{"tile width", g.TileWidth},
		{"tile height", g.TileHeight},
		{"background width", g.BackgroundWidth},
		{"background height", g.BackgroundHeight},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", c.name, c.value)
		}
	}
	return nil
}
