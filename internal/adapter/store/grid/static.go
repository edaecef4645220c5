// Package grid loads the MOM6 static grid description from NetCDF.
package grid

import (
	"fmt"
	"math"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/mom6-diags/internal/adapter/store/ncio"
	"go.ngs.io/mom6-diags/internal/domain"
)

// FileConfig lists the variable names tried for each grid quantity.
type FileConfig struct {
	XH     []string
	YH     []string
	GeoLon []string
	GeoLat []string
	Wet    []string
	Area   []string
	Depth  []string
}

// DefaultConfig returns the names used by MOM6 static and geometry files.
func DefaultConfig() FileConfig {
	return FileConfig{
		XH:     []string{"xh", "lonh"},
		YH:     []string{"yh", "lath"},
		GeoLon: []string{"geolon", "geolon_t"},
		GeoLat: []string{"geolat", "geolat_t"},
		Wet:    []string{"wet", "mask"},
		Area:   []string{"areacello", "area_t", "Ah"},
		Depth:  []string{"deptho", "depth_ocean", "D"},
	}
}

// Load reads a static file. A missing wet mask means all-ocean and a
// missing cell area means uniform weights; the returned Defaults says which
// were substituted.
func Load(path string) (*domain.Grid, Defaults, error) {
	return LoadWith(path, DefaultConfig())
}

// Defaults reports which optional quantities were substituted.
type Defaults struct {
	Wet  bool
	Area bool
}

// LoadWith reads a static file using explicit variable names. Optional
// quantities fall back to defaults only when absent; a present variable
// that cannot be read or has the wrong shape is an error.
func LoadWith(path string, cfg FileConfig) (*domain.Grid, Defaults, error) {
	var (
		g        *domain.Grid
		defaults Defaults
	)
	err := ncio.View(path, func(nc netcdf.Dataset) error {
		var err error
		g, defaults, err = readGrid(nc, cfg)
		return err
	})
	if err != nil {
		return nil, Defaults{}, fmt.Errorf("static file %s: %w", path, err)
	}

	// Land points carry fill values in the wet mask of some files.
	for k, v := range g.Wet.Data {
		if math.IsNaN(v) {
			g.Wet.Data[k] = 0
		}
	}
	if err := g.Validate(); err != nil {
		return nil, Defaults{}, fmt.Errorf("invalid grid in %s: %w", path, err)
	}
	return g, defaults, nil
}

func readGrid(nc netcdf.Dataset, cfg FileConfig) (*domain.Grid, Defaults, error) {
	var defaults Defaults

	xhVar, _, err := ncio.FindVar(nc, cfg.XH...)
	if err != nil {
		return nil, defaults, fmt.Errorf("nominal longitude: %w", err)
	}
	xh, err := ncio.Read1D(xhVar)
	if err != nil {
		return nil, defaults, fmt.Errorf("nominal longitude: %w", err)
	}
	yhVar, _, err := ncio.FindVar(nc, cfg.YH...)
	if err != nil {
		return nil, defaults, fmt.Errorf("nominal latitude: %w", err)
	}
	yh, err := ncio.Read1D(yhVar)
	if err != nil {
		return nil, defaults, fmt.Errorf("nominal latitude: %w", err)
	}
	ny, nx := len(yh), len(xh)

	// read returns (nil, nil) when none of the names is present.
	read := func(label string, names []string) (*domain.Field, error) {
		v, _, err := ncio.FindVar(nc, names...)
		if err != nil {
			return nil, nil
		}
		f, err := ncio.Read2D(v, ny, nx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		return f, nil
	}
	required := func(label string, names []string) (*domain.Field, error) {
		f, err := read(label, names)
		if err == nil && f == nil {
			err = fmt.Errorf("%s: variable not found (tried: %v)", label, names)
		}
		return f, err
	}

	g := &domain.Grid{XH: xh, YH: yh}
	if g.GeoLon, err = required("geolon", cfg.GeoLon); err != nil {
		return nil, defaults, err
	}
	if g.GeoLat, err = required("geolat", cfg.GeoLat); err != nil {
		return nil, defaults, err
	}
	if g.Wet, err = read("wet", cfg.Wet); err != nil {
		return nil, defaults, err
	}
	if g.Wet == nil {
		g.Wet = domain.NewField(ny, nx)
		g.Wet.Fill(1)
		defaults.Wet = true
	}
	if g.Area, err = read("areacello", cfg.Area); err != nil {
		return nil, defaults, err
	}
	if g.Area == nil {
		g.Area = domain.NewField(ny, nx)
		g.Area.Fill(1)
		defaults.Area = true
	}
	if g.Depth, err = read("deptho", cfg.Depth); err != nil {
		return nil, defaults, err
	}
	return g, defaults, nil
}

// LoadBasinCodes reads an integer basin-code field shaped like the grid.
func LoadBasinCodes(path, varName string, g *domain.Grid) (*domain.Field, error) {
	var codes *domain.Field
	err := ncio.View(path, func(nc netcdf.Dataset) error {
		v, _, err := ncio.FindVar(nc, varName, "basin", "basin_code")
		if err != nil {
			return err
		}
		ny, nx := g.Shape()
		codes, err = ncio.Read2D(v, ny, nx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("basin codes in %s: %w", path, err)
	}
	return codes, nil
}
