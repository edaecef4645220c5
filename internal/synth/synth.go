// Package synth writes small synthetic MOM6-like cases: a static grid file,
// monthly history files and an observational climatology. It backs the
// synth-generator command and end-to-end tests.
package synth

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/mom6-diags/internal/adapter/store/ncio"
)

// FillValue is the MOM6 missing value for land points.
const FillValue float32 = 1e20

// Grid defines a regular model grid.
type Grid struct {
	NX, NY         int
	LonMin, LonMax float64
	LatMin, LatMax float64
}

// XH returns cell-center longitudes.
func (g Grid) XH() []float64 { return centers(g.LonMin, g.LonMax, g.NX) }

// YH returns cell-center latitudes.
func (g Grid) YH() []float64 { return centers(g.LatMin, g.LatMax, g.NY) }

func centers(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	d := (hi - lo) / float64(n)
	for i := range out {
		out[i] = lo + (float64(i)+0.5)*d
	}
	return out
}

// IsLand marks a rectangular continent so masks are exercised.
func (g Grid) IsLand(lat, lon float64) bool {
	return lat > 10 && lat < 40 && lon > -60 && lon < -20
}

// WriteStatic writes xh, yh, geolon, geolat, wet, areacello, deptho and a
// basin code field (1 south of the equator, 2 north, 0 on land).
func WriteStatic(path string, g Grid) error {
	xh, yh := g.XH(), g.YH()
	n := g.NX * g.NY
	geolon := make([]float64, n)
	geolat := make([]float64, n)
	wet := make([]float64, n)
	area := make([]float64, n)
	depth := make([]float64, n)
	basin := make([]float64, n)

	const earthRadius = 6.371e6
	dlon := (g.LonMax - g.LonMin) / float64(g.NX) * math.Pi / 180
	dlat := (g.LatMax - g.LatMin) / float64(g.NY) * math.Pi / 180
	for j, lat := range yh {
		for i, lon := range xh {
			k := j*g.NX + i
			geolon[k], geolat[k] = lon, lat
			area[k] = earthRadius * earthRadius * dlon * dlat * math.Cos(lat*math.Pi/180)
			if g.IsLand(lat, lon) {
				continue
			}
			wet[k] = 1
			depth[k] = 4000 - 30*math.Abs(lat)
			basin[k] = 1
			if lat >= 0 {
				basin[k] = 2
			}
		}
	}

	return ncio.WriteFile(path, func(w *ncio.Writer) error {
		if err := w.AddDim("yh", g.NY); err != nil {
			return err
		}
		if err := w.AddDim("xh", g.NX); err != nil {
			return err
		}
		defs := []struct {
			name  string
			dims  []string
			attrs []string
		}{
			{"xh", []string{"xh"}, []string{"units", "degrees_east", "long_name", "h point nominal longitude"}},
			{"yh", []string{"yh"}, []string{"units", "degrees_north", "long_name", "h point nominal latitude"}},
			{"geolon", []string{"yh", "xh"}, []string{"units", "degrees_east"}},
			{"geolat", []string{"yh", "xh"}, []string{"units", "degrees_north"}},
			{"wet", []string{"yh", "xh"}, []string{"long_name", "0 if land, 1 if ocean at tracer points"}},
			{"areacello", []string{"yh", "xh"}, []string{"units", "m2"}},
			{"deptho", []string{"yh", "xh"}, []string{"units", "m"}},
			{"basin", []string{"yh", "xh"}, []string{"long_name", "basin code"}},
		}
		for _, d := range defs {
			if err := w.AddVar(d.name, d.dims, d.attrs...); err != nil {
				return err
			}
		}
		if err := w.EndDef(); err != nil {
			return err
		}
		for name, data := range map[string][]float64{
			"xh": xh, "yh": yh, "geolon": geolon, "geolat": geolat,
			"wet": wet, "areacello": area, "deptho": depth, "basin": basin,
		} {
			if err := w.Write(name, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// FieldFunc evaluates a synthetic field at a record, month and location.
type FieldFunc func(rec, month int, lat, lon float64) float64

// History describes one history file.
type History struct {
	Units    string    // E.g. "days since 0001-01-01 00:00:00".
	Calendar string    // E.g. "noleap".
	Times    []float64 // Offsets in Units.
	Months   []int     // Calendar month of each record, passed to Vars.
	Vars     map[string]FieldFunc
}

// WriteHistory writes a (time, yh, xh) file with FLOAT variables, land
// filled with FillValue as MOM6 does. With no Times the time dimension is
// unlimited and holds zero records.
func WriteHistory(path string, g Grid, h History) error {
	if len(h.Months) != len(h.Times) {
		return fmt.Errorf("got %d months for %d times", len(h.Months), len(h.Times))
	}
	xh, yh := g.XH(), g.YH()

	names := sortedKeys(h.Vars)
	data := make(map[string][]float32, len(names))
	for _, name := range names {
		fn := h.Vars[name]
		d := make([]float32, 0, len(h.Times)*g.NY*g.NX)
		for rec := range h.Times {
			for _, lat := range yh {
				for _, lon := range xh {
					if g.IsLand(lat, lon) {
						d = append(d, FillValue)
						continue
					}
					d = append(d, float32(fn(rec, h.Months[rec], lat, lon)))
				}
			}
		}
		data[name] = d
	}

	return ncio.WriteFile(path, func(w *ncio.Writer) error {
		if err := w.AddDim("time", len(h.Times)); err != nil {
			return err
		}
		if err := w.AddDim("yh", g.NY); err != nil {
			return err
		}
		if err := w.AddDim("xh", g.NX); err != nil {
			return err
		}
		if err := w.AddVar("time", []string{"time"}, "units", h.Units, "calendar", h.Calendar); err != nil {
			return err
		}
		if err := w.AddVar("xh", []string{"xh"}, "units", "degrees_east"); err != nil {
			return err
		}
		if err := w.AddVar("yh", []string{"yh"}, "units", "degrees_north"); err != nil {
			return err
		}

		vars := make(map[string]netcdf.Var, len(names))
		for _, name := range names {
			v, err := w.AddTypedVar(name, netcdf.FLOAT, []string{"time", "yh", "xh"})
			if err != nil {
				return err
			}
			if err := v.Attr("_FillValue").WriteFloat32s([]float32{FillValue}); err != nil {
				return err
			}
			vars[name] = v
		}

		if err := w.EndDef(); err != nil {
			return err
		}
		if err := w.Write("time", h.Times); err != nil {
			return err
		}
		if err := w.Write("xh", xh); err != nil {
			return err
		}
		if err := w.Write("yh", yh); err != nil {
			return err
		}
		for _, name := range names {
			if len(data[name]) == 0 {
				continue
			}
			if err := vars[name].WriteFloat32s(data[name]); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
		}
		return nil
	})
}

// Obs describes a regular lon/lat observational climatology.
type Obs struct {
	NLon, NLat int
	Months     int // 12 for a monthly climatology, 1 for an annual mean.
	Vars       map[string]FieldFunc
}

// WriteObs writes (time, lat, lon) variables on a global 0-360 grid with
// ascending latitude. Records are monthly climatology indices.
func WriteObs(path string, o Obs) error {
	lon := centers(0, 360, o.NLon)
	lat := centers(-90, 90, o.NLat)
	months := o.Months
	if months == 0 {
		months = 12
	}

	return ncio.WriteFile(path, func(w *ncio.Writer) error {
		if err := w.AddDim("time", months); err != nil {
			return err
		}
		if err := w.AddDim("lat", o.NLat); err != nil {
			return err
		}
		if err := w.AddDim("lon", o.NLon); err != nil {
			return err
		}
		if err := w.AddVar("lon", []string{"lon"}, "units", "degrees_east"); err != nil {
			return err
		}
		if err := w.AddVar("lat", []string{"lat"}, "units", "degrees_north"); err != nil {
			return err
		}
		names := sortedKeys(o.Vars)
		for _, name := range names {
			if err := w.AddVar(name, []string{"time", "lat", "lon"}); err != nil {
				return err
			}
		}
		if err := w.EndDef(); err != nil {
			return err
		}
		if err := w.Write("lon", lon); err != nil {
			return err
		}
		if err := w.Write("lat", lat); err != nil {
			return err
		}
		for _, name := range names {
			fn := o.Vars[name]
			data := make([]float64, 0, months*o.NLat*o.NLon)
			for m := 1; m <= months; m++ {
				for _, la := range lat {
					for _, lo := range lon {
						data = append(data, fn(m-1, m, la, lo))
					}
				}
			}
			if err := w.Write(name, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// MixedLayerDepth is a seasonal mixed-layer depth: deep in local winter.
func MixedLayerDepth(_ int, month int, lat, _ float64) float64 {
	winter := math.Cos(2 * math.Pi * float64(month-1) / 12) // +1 in Jan.
	if lat < 0 {
		winter = -winter
	}
	return 40 + 0.5*math.Abs(lat) + 30*winter*math.Abs(lat)/90
}

// BoundaryLayerDepth tracks the mixed layer at 80 percent.
func BoundaryLayerDepth(rec, month int, lat, lon float64) float64 {
	return 0.8 * MixedLayerDepth(rec, month, lat, lon)
}

// SeaSurfaceHeight is a steady gyre-like pattern.
func SeaSurfaceHeight(_ int, _ int, lat, lon float64) float64 {
	return 0.6*math.Cos(lat*math.Pi/90) - 0.4 + 0.1*math.Sin(lon*math.Pi/180)
}

// Offset returns a FieldFunc shifted by bias.
func Offset(fn FieldFunc, bias float64) FieldFunc {
	return func(rec, month int, lat, lon float64) float64 {
		return fn(rec, month, lat, lon) + bias
	}
}

// Case lists the files of a synthetic case.
type Case struct {
	Dir     string
	Static  string
	History []string
	Obs     string
}

// CaseOptions tune WriteCase.
type CaseOptions struct {
	Name  string
	Grid  Grid
	Years int
	// FirstYear is the model year of the first history file.
	FirstYear int
	// DropVars removes variables from the given (0-based) year files.
	DropVars map[int][]string
	// Bias is added to the model MLD relative to the observations.
	Bias float64
}

// DefaultGrid is small enough for tests and still shows structure in plots.
func DefaultGrid() Grid {
	return Grid{NX: 36, NY: 18, LonMin: -180, LonMax: 180, LatMin: -90, LatMax: 90}
}

// WriteCase writes one noleap history file per year with twelve mid-month
// records, a static file and a monthly observational climatology.
func WriteCase(dir string, opt CaseOptions) (*Case, error) {
	if opt.Years <= 0 {
		opt.Years = 1
	}
	if opt.FirstYear <= 0 {
		opt.FirstYear = 1
	}
	if opt.Grid.NX == 0 {
		opt.Grid = DefaultGrid()
	}
	if opt.Name == "" {
		opt.Name = "synthetic"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	c := &Case{
		Dir:    dir,
		Static: filepath.Join(dir, "ocean.mom6.static.nc"),
		Obs:    filepath.Join(dir, "obs_surface_climo.nc"),
	}
	if err := WriteStatic(c.Static, opt.Grid); err != nil {
		return nil, fmt.Errorf("static: %w", err)
	}

	// Mid-month offsets of a noleap year.
	var mid [12]float64
	start := 0.0
	for m, days := range [12]float64{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31} {
		mid[m] = start + days/2
		start += days
	}

	for y := 0; y < opt.Years; y++ {
		year := opt.FirstYear + y
		h := History{
			Units:    "days since 0001-01-01 00:00:00",
			Calendar: "noleap",
			Vars: map[string]FieldFunc{
				"mlotst": Offset(MixedLayerDepth, opt.Bias),
				"oml":    BoundaryLayerDepth,
				"SSH":    SeaSurfaceHeight,
			},
		}
		for m := 0; m < 12; m++ {
			h.Times = append(h.Times, float64(365*(year-1))+mid[m])
			h.Months = append(h.Months, m+1)
		}
		for _, name := range opt.DropVars[y] {
			delete(h.Vars, name)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s.mom6.hm_%04d.nc", opt.Name, year))
		if err := WriteHistory(path, opt.Grid, h); err != nil {
			return nil, fmt.Errorf("history year %d: %w", year, err)
		}
		c.History = append(c.History, path)
	}

	obs := Obs{
		NLon: 72, NLat: 36, Months: 12,
		Vars: map[string]FieldFunc{
			"mld": MixedLayerDepth,
			"ssh": SeaSurfaceHeight,
		},
	}
	if err := WriteObs(c.Obs, obs); err != nil {
		return nil, fmt.Errorf("obs: %w", err)
	}
	return c, nil
}

func sortedKeys(m map[string]FieldFunc) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
