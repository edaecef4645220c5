// Package ncio holds the NetCDF read/write helpers shared by the grid,
// history, observation and climatology stores.
package ncio

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/mom6-diags/internal/domain"
)

// Shape describes a variable's dimensions.
type Shape struct {
	Names []string
	Lens  []int
}

// Size returns the number of elements.
func (s Shape) Size() int {
	n := 1
	for _, l := range s.Lens {
		n *= l
	}
	return n
}

// VarShape returns the dimension names and lengths of v.
func VarShape(v netcdf.Var) (Shape, error) {
	dims, err := v.Dims()
	if err != nil {
		return Shape{}, fmt.Errorf("failed to get dimensions: %w", err)
	}
	s := Shape{Names: make([]string, len(dims)), Lens: make([]int, len(dims))}
	for i, d := range dims {
		name, err := d.Name()
		if err != nil {
			return Shape{}, fmt.Errorf("failed to get dim%d name: %w", i, err)
		}
		n, err := d.Len()
		if err != nil {
			return Shape{}, fmt.Errorf("failed to get dim%d length: %w", i, err)
		}
		s.Names[i] = name
		s.Lens[i] = int(n)
	}
	return s, nil
}

// FindVar returns the first variable present among candidates.
func FindVar(nc netcdf.Dataset, candidates ...string) (netcdf.Var, string, error) {
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if v, err := nc.Var(name); err == nil {
			return v, name, nil
		}
	}
	return netcdf.Var{}, "", fmt.Errorf("variable not found (tried: %v)", candidates)
}

// HasVar reports whether the dataset holds a variable of that name.
func HasVar(nc netcdf.Dataset, name string) bool {
	_, err := nc.Var(name)
	return err == nil
}

// ReadFloat64s reads a whole variable of any rank, flattened in storage
// order, converting numeric types to float64. scale_factor and add_offset
// are applied and _FillValue / missing_value cells become NaN.
func ReadFloat64s(v netcdf.Var) ([]float64, Shape, error) {
	shape, err := VarShape(v)
	if err != nil {
		return nil, Shape{}, err
	}
	data, err := readTyped(v, shape.Size())
	if err != nil {
		return nil, Shape{}, err
	}
	if err := decode(v, data); err != nil {
		return nil, Shape{}, err
	}
	return data, shape, nil
}

// Read1D reads a one-dimensional variable.
func Read1D(v netcdf.Var) ([]float64, error) {
	data, shape, err := ReadFloat64s(v)
	if err != nil {
		return nil, err
	}
	if len(shape.Lens) != 1 {
		return nil, fmt.Errorf("expected 1D variable, got %dD", len(shape.Lens))
	}
	return data, nil
}

// Read2D reads a [ny, nx] variable into a field. A variable stored [nx, ny]
// is transposed.
func Read2D(v netcdf.Var, ny, nx int) (*domain.Field, error) {
	data, shape, err := ReadFloat64s(v)
	if err != nil {
		return nil, err
	}
	if len(shape.Lens) != 2 {
		return nil, fmt.Errorf("expected 2D data, got %dD", len(shape.Lens))
	}

	type dimOrder struct{ d0, d1 int }
	switch (dimOrder{shape.Lens[0], shape.Lens[1]}) {
	case dimOrder{ny, nx}:
		return &domain.Field{Dims: shape.Names, NY: ny, NX: nx, Data: data}, nil
	case dimOrder{nx, ny}:
		// Data is [x, y] - need to transpose.
		return &domain.Field{
			Dims: []string{shape.Names[1], shape.Names[0]},
			NY:   ny,
			NX:   nx,
			Data: Transpose(data, nx, ny),
		}, nil
	default:
		return nil, fmt.Errorf("dimension mismatch: data is [%d, %d], expected [%d, %d] or [%d, %d]",
			shape.Lens[0], shape.Lens[1], ny, nx, nx, ny)
	}
}

// Transpose turns a row-major [rows, cols] slice into [cols, rows].
func Transpose(data []float64, rows, cols int) []float64 {
	out := make([]float64, len(data))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j*rows+i] = data[i*cols+j]
		}
	}
	return out
}

// TextAttr returns a character attribute, or "" when absent.
func TextAttr(v netcdf.Var, name string) string {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return ""
	}
	if t, err := a.Type(); err != nil || t != netcdf.CHAR {
		return ""
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return ""
	}
	// Some writers include the C terminator in the attribute length.
	for len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

// WriteTextAttr stores a character attribute. Empty values are skipped.
func WriteTextAttr(v netcdf.Var, name, value string) error {
	if value == "" {
		return nil
	}
	if err := v.Attr(name).WriteBytes([]byte(value)); err != nil {
		return fmt.Errorf("failed to write attribute %s: %w", name, err)
	}
	return nil
}

// numericAttr returns the first value of a numeric attribute.
func numericAttr(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if n, err := a.Len(); err != nil || n == 0 {
		return 0, false
	}
	// Try float64
	buf64 := make([]float64, 1)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	// Try float32
	buf32 := make([]float32, 1)
	if err := a.ReadFloat32s(buf32); err == nil {
		return float64(buf32[0]), true
	}
	// Try int32
	bufi := make([]int32, 1)
	if err := a.ReadInt32s(bufi); err == nil {
		return float64(bufi[0]), true
	}
	// Try int16
	bufs := make([]int16, 1)
	if err := a.ReadInt16s(bufs); err == nil {
		return float64(bufs[0]), true
	}
	return 0, false
}

// FillValue returns the _FillValue or missing_value attribute if present.
func FillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		if fv, ok := numericAttr(v, name); ok {
			return fv, true
		}
	}
	return 0, false
}

// decode masks fill values and applies CF packing attributes in place.
func decode(v netcdf.Var, data []float64) error {
	fv, hasFill := FillValue(v)
	scale, hasScale := numericAttr(v, "scale_factor")
	offset, hasOffset := numericAttr(v, "add_offset")
	if hasScale && scale == 0 {
		hasScale = false
	}
	for i, x := range data {
		if hasFill && (x == fv || (isFloat32Fill(fv) && float32(x) == float32(fv))) {
			data[i] = math.NaN()
			continue
		}
		// Values at or beyond the default netCDF float fill are unusable too.
		if math.Abs(x) >= 9.9e36 {
			data[i] = math.NaN()
			continue
		}
		if hasScale {
			x *= scale
		}
		if hasOffset {
			x += offset
		}
		data[i] = x
	}
	return nil
}

func isFloat32Fill(fv float64) bool {
	return math.Abs(fv) > 1e30
}

// readTyped reads n values of any supported numeric type as float64.
func readTyped(v netcdf.Var, n int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, fmt.Errorf("failed to read float64: %w", err)
		}
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, fmt.Errorf("failed to read float32: %w", err)
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, fmt.Errorf("failed to read int32: %w", err)
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, fmt.Errorf("failed to read int16: %w", err)
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.BYTE, netcdf.CHAR, netcdf.UBYTE, netcdf.USHORT, netcdf.UINT, netcdf.INT64, netcdf.UINT64, netcdf.STRING:
		return nil, fmt.Errorf("unsupported data type: %v (expected DOUBLE, FLOAT, INT, or SHORT)", t)
	default:
		return nil, fmt.Errorf("unsupported data type: %v", t)
	}
	return out, nil
}

// libMu serialises every call into libnetcdf, which is not safe for
// concurrent use. Hold it only through View and WriteFile.
var libMu sync.Mutex

// View opens path read-only and calls fn with the open dataset while
// holding the library lock. fn must copy out what it needs; the dataset is
// closed when fn returns.
func View(path string, fn func(nc netcdf.Dataset) error) error {
	libMu.Lock()
	defer libMu.Unlock()

	//nolint:gosec // G304: Paths come from configuration or the catalog.
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()
	return fn(nc)
}

// Writer wraps a NetCDF file in define mode.
type Writer struct {
	ds   netcdf.Dataset
	dims map[string]netcdf.Dim
	vars map[string]netcdf.Var
}

// WriteFile creates (clobbering) a NetCDF-4 file and calls fn with a Writer
// on it while holding the library lock. The file only counts as written
// once it closes cleanly: an error from fn or from the close removes the
// partial file.
func WriteFile(path string, fn func(w *Writer) error) (err error) {
	libMu.Lock()
	defer libMu.Unlock()

	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	return fn(&Writer{ds: ds, dims: make(map[string]netcdf.Dim), vars: make(map[string]netcdf.Var)})
}

// AddDim defines a dimension.
func (w *Writer) AddDim(name string, n int) error {
	d, err := w.ds.AddDim(name, uint64(n))
	if err != nil {
		return fmt.Errorf("failed to add dim %s: %w", name, err)
	}
	w.dims[name] = d
	return nil
}

// AddVar defines a DOUBLE variable over previously added dimensions, with
// optional text attributes given as name/value pairs.
func (w *Writer) AddVar(name string, dims []string, attrs ...string) error {
	_, err := w.AddTypedVar(name, netcdf.DOUBLE, dims, attrs...)
	return err
}

// AddTypedVar defines a variable of type t and returns it.
func (w *Writer) AddTypedVar(name string, t netcdf.Type, dims []string, attrs ...string) (netcdf.Var, error) {
	ds := make([]netcdf.Dim, len(dims))
	for i, n := range dims {
		d, ok := w.dims[n]
		if !ok {
			return netcdf.Var{}, fmt.Errorf("variable %s: unknown dimension %s", name, n)
		}
		ds[i] = d
	}
	v, err := w.ds.AddVar(name, t, ds)
	if err != nil {
		return netcdf.Var{}, fmt.Errorf("failed to add var %s: %w", name, err)
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		if err := WriteTextAttr(v, attrs[i], attrs[i+1]); err != nil {
			return netcdf.Var{}, err
		}
	}
	w.vars[name] = v
	return v, nil
}

// EndDef leaves define mode.
func (w *Writer) EndDef() error {
	if err := w.ds.EndDef(); err != nil {
		return fmt.Errorf("enddef: %w", err)
	}
	return nil
}

// Write stores the full contents of a variable. Empty data is a no-op, so
// variables over an unlimited dimension may be left without records.
func (w *Writer) Write(name string, data []float64) error {
	v, ok := w.vars[name]
	if !ok {
		return fmt.Errorf("unknown variable %s", name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := v.WriteFloat64s(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
