// Package plot renders model/observation comparison maps and annual-cycle
// statistics as PNG files.
package plot

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"go.ngs.io/mom6-diags/internal/domain"
)

const (
	figWidth  = 15 * vg.Inch
	figHeight = 4.5 * vg.Inch
	barHeight = 0.9 * vg.Inch
	dpi       = 96
	colors    = 64
)

// Renderer writes figures into a directory. A disabled renderer writes
// nothing and returns empty paths.
type Renderer struct {
	dir     string
	enabled bool
	logger  *zap.Logger
}

// NewRenderer creates a renderer for dir.
func NewRenderer(dir string, enabled bool, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{dir: dir, enabled: enabled, logger: logger}
}

// Enabled reports whether figures are written.
func (r *Renderer) Enabled() bool { return r.enabled }

// FileName returns the image name for a field and averaging period.
func FileName(caseName, field, period string) string {
	return fmt.Sprintf("%s_%s_%s.png", caseName, field, period)
}

// MapFigure is a model/observation comparison for one averaging period.
type MapFigure struct {
	Case   string
	Label  string
	Field  string
	Long   string
	Units  string
	Period string
	Model  *domain.Field
	Obs    *domain.Field // Nil draws the model panel only.
	Diff   *domain.Field
}

// Maps renders fig on the nominal grid axes and returns the written path.
func (r *Renderer) Maps(fig MapFigure, g *domain.Grid) (string, error) {
	if !r.enabled {
		return "", nil
	}
	if fig.Model == nil {
		return "", fmt.Errorf("%s %s: no model field", fig.Field, fig.Period)
	}

	type panel struct {
		title string
		field *domain.Field
		cmap  palette.ColorMap
	}
	lo, hi := sharedRange(fig.Model, fig.Obs)
	panels := []panel{{title: "Model", field: fig.Model, cmap: sequential(lo, hi)}}
	if fig.Obs != nil {
		panels = append(panels, panel{title: "Observations", field: fig.Obs, cmap: sequential(lo, hi)})
	}
	if fig.Diff != nil {
		m := symmetricRange(fig.Diff)
		panels = append(panels, panel{title: "Model - Observations", field: fig.Diff, cmap: diverging(-m, m)})
	}

	maps := make([]*plot.Plot, len(panels))
	bars := make([]*plot.Plot, len(panels))
	for i, p := range panels {
		hm := plotter.NewHeatMap(gridXYZ{x: g.XH, y: g.YH, f: p.field}, p.cmap.Palette(colors))
		hm.Min, hm.Max = p.cmap.Min(), p.cmap.Max()

		mp := plot.New()
		mp.Title.Text = p.title
		mp.X.Label.Text = "Nominal longitude"
		mp.Y.Label.Text = "Nominal latitude"
		mp.Add(hm)
		maps[i] = mp

		bp := plot.New()
		bp.Add(&plotter.ColorBar{ColorMap: p.cmap})
		bp.HideY()
		bp.X.Padding = 0
		bp.X.Label.Text = fig.Units
		bars[i] = bp
	}

	img := vgimg.NewWith(vgimg.UseWH(figWidth, figHeight), vgimg.UseDPI(dpi))
	dc := draw.New(img)
	title := fmt.Sprintf("%s %s %s", fig.Case, fig.Long, fig.Period)
	if fig.Label != "" {
		title += " (" + fig.Label + ")"
	}
	dc.FillText(titleStyle(), vg.Point{X: dc.X(0.5), Y: dc.Max.Y - 0.15*vg.Inch}, title)

	tiles := draw.Tiles{Rows: 1, Cols: len(panels), PadX: vg.Millimeter * 4, PadTop: 0.35 * vg.Inch, PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2}
	top := draw.Crop(dc, 0, 0, barHeight, 0)
	for i, c := range plot.Align([][]*plot.Plot{maps}, tiles, top)[0] {
		maps[i].Draw(c)
	}
	barTiles := draw.Tiles{Rows: 1, Cols: len(panels), PadX: vg.Millimeter * 4, PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2}
	bottom := draw.Crop(dc, 0, 0, 0, barHeight-figHeight)
	for i, c := range plot.Align([][]*plot.Plot{bars}, barTiles, bottom)[0] {
		bars[i].Draw(c)
	}

	path := filepath.Join(r.dir, FileName(fig.Case, fig.Field, fig.Period))
	if err := r.writePNG(path, img); err != nil {
		return "", err
	}
	r.logger.Debug("Wrote figure", zap.String("path", path))
	return path, nil
}

// CycleFigure is the monthly bias and RMSE of one field.
type CycleFigure struct {
	Case  string
	Field string
	Units string
	Bias  [12]float64
	RMSE  [12]float64
}

// AnnualCycle plots bias and RMSE against calendar month. Months with NaN
// statistics are left out; if none remain nothing is written.
func (r *Renderer) AnnualCycle(fig CycleFigure) (string, error) {
	if !r.enabled {
		return "", nil
	}
	bias, rmse := monthXYs(fig.Bias), monthXYs(fig.RMSE)
	if len(bias) == 0 && len(rmse) == 0 {
		return "", nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s annual cycle", fig.Case, fig.Field)
	p.X.Label.Text = "Month"
	p.Y.Label.Text = fig.Units
	p.X.Min, p.X.Max = 0.5, 12.5
	p.X.Tick.Marker = plot.TickerFunc(monthTicks)
	p.Add(plotter.NewGrid())

	for i, s := range []struct {
		name string
		xys  plotter.XYs
	}{{"Bias", bias}, {"RMSE", rmse}} {
		if len(s.xys) == 0 {
			continue
		}
		l, pts, err := plotter.NewLinePoints(s.xys)
		if err != nil {
			return "", fmt.Errorf("%s %s: %w", fig.Field, s.name, err)
		}
		l.Color = plotutil.Color(i)
		pts.Color = l.Color
		pts.Shape = draw.CircleGlyph{}
		p.Add(l, pts)
		p.Legend.Add(s.name, l, pts)
	}
	p.Legend.Top = true

	//nolint:gosec // G301: Output directory is meant to be shared.
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", r.dir, err)
	}
	path := filepath.Join(r.dir, FileName(fig.Case, fig.Field, "cycle"))
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	return path, nil
}

func (r *Renderer) writePNG(path string, img *vgimg.Canvas) error {
	//nolint:gosec // G301: Output directory is meant to be shared.
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", r.dir, err)
	}
	//nolint:gosec // G304: Path is built from the configured output dir.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// gridXYZ adapts a field on nominal axes to plotter.GridXYZ.
type gridXYZ struct {
	x, y []float64
	f    *domain.Field
}

func (g gridXYZ) Dims() (c, r int) { return len(g.x), len(g.y) }
func (g gridXYZ) Z(c, r int) float64 { return g.f.At(r, c) }
func (g gridXYZ) X(c int) float64 { return g.x[c] }
func (g gridXYZ) Y(r int) float64 { return g.y[r] }

// sharedRange returns the finite range covering every given field.
func sharedRange(fields ...*domain.Field) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, f := range fields {
		if f == nil {
			continue
		}
		if l, h, ok := f.Range(); ok {
			lo, hi = math.Min(lo, l), math.Max(hi, h)
		}
	}
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// symmetricRange returns the largest absolute finite value, or 1.
func symmetricRange(f *domain.Field) float64 {
	finite := make([]float64, 0, len(f.Data))
	for _, v := range f.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, math.Abs(v))
		}
	}
	if len(finite) == 0 {
		return 1
	}
	if m := floats.Max(finite); m > 0 {
		return m
	}
	return 1
}

func sequential(lo, hi float64) palette.ColorMap {
	cm := moreland.ExtendedBlackBody()
	cm.SetMin(lo)
	cm.SetMax(hi)
	return cm
}

func diverging(lo, hi float64) palette.ColorMap {
	cm := moreland.SmoothBlueRed()
	cm.SetMin(lo)
	cm.SetMax(hi)
	return cm
}

func titleStyle() draw.TextStyle {
	sty := plot.New().Title.TextStyle
	sty.XAlign = draw.XCenter
	sty.YAlign = draw.YTop
	return sty
}

func monthXYs(vals [12]float64) plotter.XYs {
	var xys plotter.XYs
	for m, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(m + 1), Y: v})
	}
	return xys
}

var monthLabels = [12]string{"J", "F", "M", "A", "M", "J", "J", "A", "S", "O", "N", "D"}

func monthTicks(_, _ float64) []plot.Tick {
	ticks := make([]plot.Tick, 12)
	for m := range ticks {
		ticks[m] = plot.Tick{Value: float64(m + 1), Label: monthLabels[m]}
	}
	return ticks
}
