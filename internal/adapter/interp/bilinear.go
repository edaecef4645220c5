// Package interp provides bilinear interpolation on regular lon/lat grids,
// used to bring observational products onto the model grid.
package interp

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrOutside is returned when a point falls outside the grid.
var ErrOutside = errors.New("point outside grid")

// Cell is one rectangle of a regular grid with its four corner values.
// V00 is at (X0, Y0), V10 at (X1, Y0), V01 at (X0, Y1) and V11 at (X1, Y1).
type Cell struct {
	X0, X1             float64
	Y0, Y1             float64
	V00, V10, V01, V11 float64
}

// Bilinear interpolates inside a cell:
//
//	f(x,y) = (1-t)(1-u)V00 + t(1-u)V10 + (1-t)u V01 + tu V11
//
// with t = (x-X0)/(X1-X0) and u = (y-Y0)/(Y1-Y0). A NaN corner yields NaN.
func Bilinear(c Cell, x, y float64) (float64, error) {
	if c.X1 <= c.X0 || c.Y1 <= c.Y0 {
		return 0, fmt.Errorf("degenerate cell [%g, %g] x [%g, %g]", c.X0, c.X1, c.Y0, c.Y1)
	}
	const eps = 1e-9
	if x < c.X0-eps || x > c.X1+eps || y < c.Y0-eps || y > c.Y1+eps {
		return 0, fmt.Errorf("%w: (%g, %g) not in [%g, %g] x [%g, %g]", ErrOutside, x, y, c.X0, c.X1, c.Y0, c.Y1)
	}

	t := clamp01((x - c.X0) / (c.X1 - c.X0))
	u := clamp01((y - c.Y0) / (c.Y1 - c.Y0))
	return (1-t)*(1-u)*c.V00 + t*(1-u)*c.V10 + (1-t)*u*c.V01 + t*u*c.V11, nil
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

// Grid2D is a regular grid with ascending axes. Values[j][i] is the value at
// (X[i], Y[j]); X is usually longitude and Y latitude.
type Grid2D struct {
	X      []float64
	Y      []float64
	Values [][]float64
}

// Validate checks the axes are strictly increasing and match Values.
func (g *Grid2D) Validate() error {
	if len(g.X) < 2 || len(g.Y) < 2 {
		return fmt.Errorf("grid needs at least 2 points per axis, got %d x %d", len(g.X), len(g.Y))
	}
	if len(g.Values) != len(g.Y) {
		return fmt.Errorf("grid has %d rows for %d y coordinates", len(g.Values), len(g.Y))
	}
	for j, row := range g.Values {
		if len(row) != len(g.X) {
			return fmt.Errorf("row %d has %d values, expected %d", j, len(row), len(g.X))
		}
	}
	if !increasing(g.X) {
		return errors.New("x coordinates must be strictly increasing")
	}
	if !increasing(g.Y) {
		return errors.New("y coordinates must be strictly increasing")
	}
	return nil
}

func increasing(axis []float64) bool {
	for i := 1; i < len(axis); i++ {
		if axis[i] <= axis[i-1] {
			return false
		}
	}
	return true
}

// InterpolateAt validates the grid and interpolates at (x, y).
func (g *Grid2D) InterpolateAt(x, y float64) (float64, error) {
	if err := g.Validate(); err != nil {
		return 0, fmt.Errorf("invalid grid: %w", err)
	}
	return g.Sample(x, y)
}

// Sample interpolates at (x, y) on a grid already validated.
func (g *Grid2D) Sample(x, y float64) (float64, error) {
	i, j := locate(g.X, x), locate(g.Y, y)
	if i < 0 || j < 0 {
		return 0, fmt.Errorf("%w: (%g, %g) not in [%g, %g] x [%g, %g]", ErrOutside,
			x, y, g.X[0], g.X[len(g.X)-1], g.Y[0], g.Y[len(g.Y)-1])
	}
	return Bilinear(Cell{
		X0: g.X[i], X1: g.X[i+1],
		Y0: g.Y[j], Y1: g.Y[j+1],
		V00: g.Values[j][i], V10: g.Values[j][i+1],
		V01: g.Values[j+1][i], V11: g.Values[j+1][i+1],
	}, x, y)
}

// locate returns i such that axis[i] <= v <= axis[i+1], or -1.
func locate(axis []float64, v float64) int {
	n := len(axis)
	if n < 2 || v < axis[0] || v > axis[n-1] {
		return -1
	}
	i := sort.SearchFloat64s(axis, v)
	if i == 0 {
		return 0
	}
	return i - 1
}

// SampleMany interpolates at each (xs[k], ys[k]). Points outside the grid,
// or whose cell touches a NaN corner, yield NaN.
func (g *Grid2D) SampleMany(xs, ys []float64) ([]float64, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("got %d x coordinates and %d y coordinates", len(xs), len(ys))
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	out := make([]float64, len(xs))
	for k := range xs {
		v, err := g.Sample(xs[k], ys[k])
		if err != nil {
			v = math.NaN()
		}
		out[k] = v
	}
	return out, nil
}

// WrapPeriodic appends a copy of the first column at X[0]+period when the
// axis spans (almost) a full period, so points between the last column and
// the wrap-around can be interpolated.
func (g *Grid2D) WrapPeriodic(period float64) {
	n := len(g.X)
	if n < 2 {
		return
	}
	step := g.X[1] - g.X[0]
	next := g.X[0] + period
	if next-g.X[n-1] > 1.5*step || next <= g.X[n-1] {
		return
	}
	g.X = append(g.X[:n:n], next)
	for j, row := range g.Values {
		g.Values[j] = append(row[:n:n], row[0])
	}
}
