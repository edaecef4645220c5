package domain

import "fmt"

// Grid is the static horizontal grid of a MOM6 run. It is loaded once and
// shared read-only by every diagnostic.
type Grid struct {
	XH []float64 // Nominal longitude of cell centers.
	YH []float64 // Nominal latitude of cell centers.

	GeoLon *Field // True longitude of cell centers.
	GeoLat *Field // True latitude of cell centers.
	Wet    *Field // 1 over ocean, 0 over land.
	Area   *Field // Cell area (m2).
	Depth  *Field // Sea floor depth (m); nil when the static file has none.
}

// Shape returns (ny, nx).
func (g *Grid) Shape() (int, int) { return len(g.YH), len(g.XH) }

// Validate checks that every 2D field matches the nominal axes.
func (g *Grid) Validate() error {
	ny, nx := g.Shape()
	if ny == 0 || nx == 0 {
		return fmt.Errorf("grid has empty axes (yh=%d, xh=%d)", ny, nx)
	}
	for name, f := range map[string]*Field{
		"geolon": g.GeoLon, "geolat": g.GeoLat, "wet": g.Wet, "areacello": g.Area,
	} {
		if f == nil {
			return fmt.Errorf("grid is missing %s", name)
		}
		if f.NY != ny || f.NX != nx {
			return fmt.Errorf("%s has shape [%d, %d], expected [%d, %d]", name, f.NY, f.NX, ny, nx)
		}
	}
	if g.Depth != nil && (g.Depth.NY != ny || g.Depth.NX != nx) {
		return fmt.Errorf("deptho has shape [%d, %d], expected [%d, %d]", g.Depth.NY, g.Depth.NX, ny, nx)
	}
	return nil
}

// OceanWeights returns cell area over wet cells and zero over land, the
// weighting used for horizontal means.
func (g *Grid) OceanWeights() *Field {
	w := g.Area.Clone()
	for k, m := range g.Wet.Data {
		if m == 0 {
			w.Data[k] = 0
		}
	}
	return w
}
