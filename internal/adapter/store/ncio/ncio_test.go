package ncio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAndReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.nc")

	require.NoError(t, WriteFile(path, func(w *Writer) error {
		require.NoError(t, w.AddDim("yh", 2))
		require.NoError(t, w.AddDim("xh", 3))
		require.NoError(t, w.AddVar("xh", []string{"xh"}, "units", "degrees_east"))
		require.NoError(t, w.AddVar("SSH", []string{"yh", "xh"}, "units", "m", "long_name", "Sea Surface Height"))
		require.Error(t, w.AddVar("bad", []string{"zl"}))
		require.NoError(t, w.EndDef())
		require.NoError(t, w.Write("xh", []float64{-1, 0, 1}))
		return w.Write("SSH", []float64{1, 2, 3, 4, 5, 6})
	}))

	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	require.NoError(t, err)
	defer func() { _ = nc.Close() }()

	v, name, err := FindVar(nc, "ssh", "SSH")
	require.NoError(t, err)
	assert.Equal(t, "SSH", name)
	assert.Equal(t, "m", TextAttr(v, "units"))
	assert.Equal(t, "", TextAttr(v, "missing"))

	f, err := Read2D(v, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"yh", "xh"}, f.Dims)
	assert.Equal(t, 6.0, f.At(1, 2))

	// Asking for the transposed shape flips the data.
	ft, err := Read2D(v, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 4.0, ft.At(0, 1))
	assert.Equal(t, 3.0, ft.At(2, 0))

	xh, _, err := FindVar(nc, "xh")
	require.NoError(t, err)
	axis, err := Read1D(xh)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, 1}, axis)

	assert.True(t, HasVar(nc, "SSH"))
	assert.False(t, HasVar(nc, "oml"))
	_, _, err = FindVar(nc, "oml", "")
	assert.Error(t, err)
}

func TestReadFloat64s_FillAndPacking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.nc")

	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	require.NoError(t, err)
	xDim, err := f.AddDim("x", 4)
	require.NoError(t, err)
	packed, err := f.AddVar("packed", netcdf.SHORT, []netcdf.Dim{xDim})
	require.NoError(t, err)
	require.NoError(t, packed.Attr("scale_factor").WriteFloat64s([]float64{0.5}))
	require.NoError(t, packed.Attr("add_offset").WriteFloat64s([]float64{10}))
	require.NoError(t, packed.Attr("_FillValue").WriteInt16s([]int16{-999}))
	filled, err := f.AddVar("filled", netcdf.FLOAT, []netcdf.Dim{xDim})
	require.NoError(t, err)
	require.NoError(t, filled.Attr("_FillValue").WriteFloat32s([]float32{1e20}))
	require.NoError(t, f.EndDef())
	require.NoError(t, packed.WriteInt16s([]int16{0, 2, -999, 4}))
	require.NoError(t, filled.WriteFloat32s([]float32{1.5, 1e20, 2.5, 1e20}))
	require.NoError(t, f.Close())

	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	require.NoError(t, err)
	defer func() { _ = nc.Close() }()

	v, err := nc.Var("packed")
	require.NoError(t, err)
	data, shape, err := ReadFloat64s(v)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, shape.Lens)
	assert.Equal(t, 10.0, data[0])
	assert.Equal(t, 11.0, data[1])
	assert.True(t, math.IsNaN(data[2]))
	assert.Equal(t, 12.0, data[3])

	v, err = nc.Var("filled")
	require.NoError(t, err)
	data, _, err = ReadFloat64s(v)
	require.NoError(t, err)
	assert.Equal(t, 1.5, data[0])
	assert.True(t, math.IsNaN(data[1]))
	assert.True(t, math.IsNaN(data[3]))
}

func TestTranspose(t *testing.T) {
	// [[1 2 3] [4 5 6]] -> [[1 4] [2 5] [3 6]]
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, Transpose([]float64{1, 2, 3, 4, 5, 6}, 2, 3))
}

func TestWriteFile_RemovesPartialFileOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.nc")
	errEncode := errors.New("encode failed")

	err := WriteFile(path, func(w *Writer) error {
		require.NoError(t, w.AddDim("xh", 3))
		require.NoError(t, w.AddVar("xh", []string{"xh"}))
		return errEncode
	})
	require.ErrorIs(t, err, errEncode)
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "partial file left behind: %v", statErr)
}

func TestView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axis.nc")
	require.NoError(t, WriteFile(path, func(w *Writer) error {
		if err := w.AddDim("xh", 4); err != nil {
			return err
		}
		if err := w.AddVar("xh", []string{"xh"}); err != nil {
			return err
		}
		if err := w.EndDef(); err != nil {
			return err
		}
		return w.Write("xh", []float64{0, 90, 180, 270})
	}))

	// Concurrent readers are serialised by the library lock.
	var wg sync.WaitGroup
	results := make([][]float64, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = View(path, func(nc netcdf.Dataset) error {
				v, err := nc.Var("xh")
				if err != nil {
					return err
				}
				results[i], err = Read1D(v)
				return err
			})
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, []float64{0, 90, 180, 270}, results[i])
	}

	err := View(filepath.Join(t.TempDir(), "missing.nc"), func(netcdf.Dataset) error { return nil })
	assert.Error(t, err)
}
