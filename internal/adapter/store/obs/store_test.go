package obs

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/mom6-diags/internal/adapter/store/grid"
	"go.ngs.io/mom6-diags/internal/synth"
)

func writeCatalog(t *testing.T, dir string, entries map[string]Entry) *Catalog {
	t.Helper()
	path := filepath.Join(dir, "catalog.yml")
	require.NoError(t, (&Catalog{Datasets: entries}).Save(path))
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	return c
}

func TestCatalog_LookupResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	c := writeCatalog(t, dir, map[string]Entry{
		"woa18": {Path: "woa18_mld.nc", Variables: map[string]string{"MLD": "M_an"}},
		"aviso": {Path: "/data/aviso.nc", Variables: map[string]string{"SSH": "adt"}},
		"dbm13": {Path: "sub/dbm.nc"},
	})

	assert.Equal(t, []string{"aviso", "dbm13", "woa18"}, c.IDs())

	e, err := c.Lookup("woa18")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "woa18_mld.nc"), e.Path)

	e, err = c.Lookup("aviso")
	require.NoError(t, err)
	assert.Equal(t, "/data/aviso.nc", e.Path)

	_, err = c.Lookup("argo")
	assert.ErrorIs(t, err, ErrUnknownDataset)
	assert.Contains(t, err.Error(), "woa18")
}

func TestLoadCatalog_RejectsEntryWithoutPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	require.NoError(t, os.WriteFile(path, []byte("datasets:\n  woa: {description: no path}\n"), 0o600))
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}

func TestStore_VariableFor(t *testing.T) {
	c := writeCatalog(t, t.TempDir(), map[string]Entry{
		"obs": {Path: "obs.nc", Variables: map[string]string{"MLD": "mld"}},
	})
	s := NewStore(c, nil)

	v, err := s.VariableFor("obs", "MLD", "")
	require.NoError(t, err)
	assert.Equal(t, "mld", v)

	v, err = s.VariableFor("obs", "MLD", "mlotst")
	require.NoError(t, err)
	assert.Equal(t, "mlotst", v)

	_, err = s.VariableFor("obs", "BLD", "")
	assert.ErrorIs(t, err, ErrNoObsVariable)
}

func TestStore_ClimatologyRegridsOntoModelGrid(t *testing.T) {
	dir := t.TempDir()
	g := synth.Grid{NX: 12, NY: 6, LonMin: -180, LonMax: 180, LatMin: -60, LatMax: 60}
	staticPath := filepath.Join(dir, "static.nc")
	require.NoError(t, synth.WriteStatic(staticPath, g))
	model, _, err := grid.Load(staticPath)
	require.NoError(t, err)

	// Linear in latitude so bilinear interpolation is exact away from the
	// longitude seam.
	linear := func(_, month int, lat, _ float64) float64 { return float64(month)*100 + lat }
	obsPath := filepath.Join(dir, "obs.nc")
	require.NoError(t, synth.WriteObs(obsPath, synth.Obs{
		NLon: 36, NLat: 18, Months: 12,
		Vars: map[string]synth.FieldFunc{"mld": linear},
	}))

	c := writeCatalog(t, dir, map[string]Entry{
		"obs": {Path: "obs.nc", Variables: map[string]string{"MLD": "mld"}},
	})
	s := NewStore(c, nil)
	clim, err := s.Climatology("obs", "mld", model)
	require.NoError(t, err)

	for m := 0; m < 12; m++ {
		require.Equal(t, 1, clim.Counts[m])
		f := clim.Months[m]
		require.Equal(t, 6, f.NY)
		require.Equal(t, 12, f.NX)
		for j, lat := range model.YH {
			for i := range model.XH {
				assert.InDelta(t, float64(m+1)*100+lat, f.At(j, i), 1e-9, "month %d cell (%d,%d)", m+1, j, i)
			}
		}
	}

	again, err := s.Climatology("obs", "mld", model)
	require.NoError(t, err)
	assert.Same(t, clim, again)
}

func TestStore_AnnualProductIsBroadcast(t *testing.T) {
	dir := t.TempDir()
	g := synth.Grid{NX: 4, NY: 2, LonMin: 0, LonMax: 360, LatMin: -10, LatMax: 10}
	staticPath := filepath.Join(dir, "static.nc")
	require.NoError(t, synth.WriteStatic(staticPath, g))
	model, _, err := grid.Load(staticPath)
	require.NoError(t, err)

	require.NoError(t, synth.WriteObs(filepath.Join(dir, "ann.nc"), synth.Obs{
		NLon: 8, NLat: 4, Months: 1,
		Vars: map[string]synth.FieldFunc{"ssh": func(int, int, float64, float64) float64 { return 0.25 }},
	}))
	s := NewStore(writeCatalog(t, dir, map[string]Entry{"ann": {Path: "ann.nc"}}), nil)

	clim, err := s.Climatology("ann", "ssh", model)
	require.NoError(t, err)
	for m := 0; m < 12; m++ {
		assert.Equal(t, 1, clim.Counts[m])
		for _, v := range clim.Months[m].Data {
			assert.InDelta(t, 0.25, v, 1e-12)
		}
	}
}

func TestReadGrids_DescendingLatitudeAndLonFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flip.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	require.NoError(t, err)
	lonDim, _ := f.AddDim("lon", 3)
	latDim, _ := f.AddDim("lat", 2)
	vlon, _ := f.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	vlat, _ := f.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vdat, _ := f.AddVar("v", netcdf.DOUBLE, []netcdf.Dim{lonDim, latDim})
	require.NoError(t, f.EndDef())
	require.NoError(t, vlon.WriteFloat64s([]float64{0, 10, 20}))
	require.NoError(t, vlat.WriteFloat64s([]float64{30, 20}))
	// [lon, lat]: value = lon + lat.
	require.NoError(t, vdat.WriteFloat64s([]float64{30, 20, 40, 30, 50, 40}))
	require.NoError(t, f.Close())

	grids, err := readGrids(Entry{Path: path}, "v")
	require.NoError(t, err)
	require.Len(t, grids, 1)
	gr := grids[0]
	assert.Equal(t, []float64{20, 30}, gr.Y)
	assert.Equal(t, []float64{0, 10, 20}, gr.X)
	v, err := gr.InterpolateAt(5, 25)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, v, 1e-12)
}

func TestNormalizeLonForAxis(t *testing.T) {
	axis360 := []float64{2.5, 7.5, 357.5, 362.5}
	assert.InDelta(t, 357.5, normalizeLonForAxis(axis360, -2.5), 1e-12)
	assert.InDelta(t, 361, normalizeLonForAxis(axis360, 1), 1e-12)
	assert.InDelta(t, 90, normalizeLonForAxis(axis360, 90), 1e-12)

	axis180 := []float64{-177.5, 177.5, 182.5}
	assert.InDelta(t, -90, normalizeLonForAxis(axis180, 270), 1e-12)
	assert.InDelta(t, 180, normalizeLonForAxis(axis180, 180), 1e-12)
	assert.True(t, math.IsNaN(normalizeLonForAxis(axis180, math.NaN())))
}
