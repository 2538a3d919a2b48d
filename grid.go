package excavation

import (
	"context"
	"math"
)

// A Coord is a pixel coordinate.
type Coord struct {
	X int // Column.
	Y int // Row.
}

// A Raster is anything that can be sampled at pixel coordinates. Samples
// outside the raster are NaN.
type Raster interface {
	Samples(ctx context.Context, coords []Coord) ([]float64, error)
	Dims() (int, int)
}

// A Grid is an immutable row-major grid of float64 values.
type Grid struct {
	width  int
	height int
	values []float64
}

func newGrid(width, height int) *Grid {
	return &Grid{
		width:  width,
		height: height,
		values: make([]float64, width*height),
	}
}

// NewGrid returns a new Grid containing a copy of rows. All rows must have the
// same, non-zero, length.
func NewGrid(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrShape
	}
	g := newGrid(len(rows[0]), len(rows))
	for r, row := range rows {
		if len(row) != g.width {
			return nil, ErrShape
		}
		copy(g.values[r*g.width:(r+1)*g.width], row)
	}
	return g, nil
}

// Width returns g's width.
func (g *Grid) Width() int {
	return g.width
}

// Height returns g's height.
func (g *Grid) Height() int {
	return g.height
}

// Dims returns g's width and height.
func (g *Grid) Dims() (int, int) {
	return g.width, g.height
}

// At returns the value at row r and column c. It panics if r or c are out of
// range.
func (g *Grid) At(r, c int) float64 {
	if r < 0 || g.height <= r || c < 0 || g.width <= c {
		panic("excavation: grid index out of range")
	}
	return g.values[r*g.width+c]
}

// Row returns a copy of row r.
func (g *Grid) Row(r int) []float64 {
	row := make([]float64, g.width)
	copy(row, g.values[r*g.width:(r+1)*g.width])
	return row
}

// Rows returns a copy of g as a slice of rows.
func (g *Grid) Rows() [][]float64 {
	flat := make([]float64, len(g.values))
	copy(flat, g.values)
	rows := make([][]float64, g.height)
	for r := range rows {
		rows[r] = flat[r*g.width : (r+1)*g.width]
	}
	return rows
}

// Values returns a copy of g's values in row-major order.
func (g *Grid) Values() []float64 {
	values := make([]float64, len(g.values))
	copy(values, g.values)
	return values
}

// Samples returns the values at coords. Coordinates outside g are NaN.
func (g *Grid) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))
	for i, coord := range coords {
		if coord.X < 0 || g.width <= coord.X || coord.Y < 0 || g.height <= coord.Y {
			samples[i] = math.NaN()
			continue
		}
		samples[i] = g.values[coord.Y*g.width+coord.X]
	}
	return samples, nil
}

// valid returns the non-NaN values of g.
func (g *Grid) valid() []float64 {
	valid := make([]float64, 0, len(g.values))
	for _, value := range g.values {
		if !math.IsNaN(value) {
			valid = append(valid, value)
		}
	}
	return valid
}
