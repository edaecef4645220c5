package domain

import (
	"fmt"
	"math"
	"slices"
)

// Field is a 2D horizontal field stored row-major: Data[j*NX+i] is the value
// at (yh[j], xh[i]). Masked or missing cells hold NaN.
type Field struct {
	Dims   []string // Dimension names, e.g. {"yh", "xh"}.
	NY, NX int
	Data   []float64
}

// NewField allocates a zero field.
func NewField(ny, nx int, dims ...string) *Field {
	if len(dims) == 0 {
		dims = []string{"yh", "xh"}
	}
	return &Field{
		Dims: slices.Clone(dims),
		NY:   ny,
		NX:   nx,
		Data: make([]float64, ny*nx),
	}
}

// NaNField allocates a field whose every cell is NaN.
func NaNField(ny, nx int, dims ...string) *Field {
	f := NewField(ny, nx, dims...)
	f.Fill(math.NaN())
	return f
}

// ZerosLike returns a zero-filled field with the same shape and dimension
// names as ref.
func ZerosLike(ref *Field) *Field {
	return NewField(ref.NY, ref.NX, ref.Dims...)
}

// At returns the value at row j, column i.
func (f *Field) At(j, i int) float64 { return f.Data[j*f.NX+i] }

// Set stores v at row j, column i.
func (f *Field) Set(j, i int, v float64) { f.Data[j*f.NX+i] = v }

// Fill sets every cell to v.
func (f *Field) Fill(v float64) {
	for k := range f.Data {
		f.Data[k] = v
	}
}

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	return &Field{
		Dims: slices.Clone(f.Dims),
		NY:   f.NY,
		NX:   f.NX,
		Data: slices.Clone(f.Data),
	}
}

// SameShape reports whether o has the same shape as f.
func (f *Field) SameShape(o *Field) bool {
	return o != nil && f.NY == o.NY && f.NX == o.NX
}

// Scale multiplies every cell by s.
func (f *Field) Scale(s float64) {
	for k := range f.Data {
		f.Data[k] *= s
	}
}

// ApplyMask sets cells to NaN wherever mask is zero or NaN.
func (f *Field) ApplyMask(mask *Field) error {
	if mask == nil {
		return nil
	}
	if !f.SameShape(mask) {
		return fmt.Errorf("mask shape [%d, %d] does not match field [%d, %d]", mask.NY, mask.NX, f.NY, f.NX)
	}
	for k, m := range mask.Data {
		if m == 0 || math.IsNaN(m) {
			f.Data[k] = math.NaN()
		}
	}
	return nil
}

// Range returns the minimum and maximum of the non-NaN cells. ok is false
// when every cell is NaN.
func (f *Field) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range f.Data {
		if math.IsNaN(v) {
			continue
		}
		ok = true
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// AllZero reports whether every non-NaN cell is exactly zero.
func (f *Field) AllZero() bool {
	for _, v := range f.Data {
		if v != 0 && !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Diff returns model - obs cell by cell. NaN in either input yields NaN.
func Diff(model, obs *Field) (*Field, error) {
	if !model.SameShape(obs) {
		return nil, fmt.Errorf("cannot difference fields of shape [%d, %d] and [%d, %d]",
			model.NY, model.NX, obs.NY, obs.NX)
	}
	out := model.Clone()
	for k, v := range obs.Data {
		out.Data[k] -= v
	}
	return out, nil
}
