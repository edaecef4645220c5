// Package climo writes monthly model, observed and difference
// climatologies to NetCDF.
package climo

import (
	"fmt"
	"os"
	"path/filepath"

	"go.ngs.io/mom6-diags/internal/adapter/store/ncio"
	"go.ngs.io/mom6-diags/internal/domain"
)

// Record is the climatology of one diagnosed field.
type Record struct {
	Case     string
	Field    string
	Units    string
	LongName string
	Model    *domain.Climatology
	Obs      *domain.Climatology // Nil when no observations were used.
	Diff     *domain.Climatology
}

// Path returns the file name used for a field.
func Path(dir, caseName, field string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_climo.nc", caseName, field))
}

// Write stores r as month x yh x xh variables "model", "obs" and "diff"
// plus the grid coordinates. Masked cells are written as NaN.
func Write(dir string, g *domain.Grid, r Record) (string, error) {
	if r.Model == nil {
		return "", fmt.Errorf("field %s has no model climatology", r.Field)
	}
	//nolint:gosec // G301: Output directory is meant to be shared.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := Path(dir, r.Case, r.Field)
	ny, nx := g.Shape()

	vars := map[string]*domain.Climatology{"model": r.Model}
	if r.Obs != nil {
		vars["obs"] = r.Obs
	}
	if r.Diff != nil {
		vars["diff"] = r.Diff
	}
	data := make(map[string][]float64, len(vars))
	for name, c := range vars {
		flat, err := flatten(c, ny, nx)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		data[name] = flat
	}
	months := make([]float64, 12)
	for m := range months {
		months[m] = float64(m + 1)
	}

	err := ncio.WriteFile(path, func(w *ncio.Writer) error {
		if err := w.AddDim("month", 12); err != nil {
			return err
		}
		if err := w.AddDim("yh", ny); err != nil {
			return err
		}
		if err := w.AddDim("xh", nx); err != nil {
			return err
		}

		if err := w.AddVar("month", []string{"month"}, "long_name", "calendar month"); err != nil {
			return err
		}
		if err := w.AddVar("xh", []string{"xh"}, "units", "degrees_east"); err != nil {
			return err
		}
		if err := w.AddVar("yh", []string{"yh"}, "units", "degrees_north"); err != nil {
			return err
		}
		if err := w.AddVar("geolon", []string{"yh", "xh"}, "units", "degrees_east"); err != nil {
			return err
		}
		if err := w.AddVar("geolat", []string{"yh", "xh"}, "units", "degrees_north"); err != nil {
			return err
		}
		for _, name := range []string{"model", "obs", "diff"} {
			if data[name] == nil {
				continue
			}
			long := fmt.Sprintf("%s (%s)", r.LongName, name)
			if err := w.AddVar(name, []string{"month", "yh", "xh"}, "long_name", long, "units", r.Units, "case", r.Case); err != nil {
				return err
			}
		}
		if err := w.EndDef(); err != nil {
			return err
		}

		for name, d := range map[string][]float64{
			"month": months, "xh": g.XH, "yh": g.YH,
			"geolon": g.GeoLon.Data, "geolat": g.GeoLat.Data,
		} {
			if err := w.Write(name, d); err != nil {
				return err
			}
		}
		for name, d := range data {
			if err := w.Write(name, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func flatten(c *domain.Climatology, ny, nx int) ([]float64, error) {
	out := make([]float64, 0, 12*ny*nx)
	for m, f := range c.Months {
		if f == nil || f.NY != ny || f.NX != nx {
			return nil, fmt.Errorf("month %d does not match grid [%d, %d]", m+1, ny, nx)
		}
		out = append(out, f.Data...)
	}
	return out, nil
}
