// Package usecase runs the surface-field diagnostics of a MOM6 case.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"go.ngs.io/mom6-diags/internal/adapter/plot"
	"go.ngs.io/mom6-diags/internal/adapter/store/climo"
	"go.ngs.io/mom6-diags/internal/adapter/store/grid"
	"go.ngs.io/mom6-diags/internal/adapter/store/history"
	"go.ngs.io/mom6-diags/internal/adapter/store/obs"
	"go.ngs.io/mom6-diags/internal/compute"
	"go.ngs.io/mom6-diags/internal/config"
	"go.ngs.io/mom6-diags/internal/domain"
)

// SurfaceDiagnostics compares monthly climatologies of surface fields with
// an observational climatology.
type SurfaceDiagnostics struct {
	logger *zap.Logger
}

// NewSurfaceDiagnostics creates the use case.
func NewSurfaceDiagnostics(logger *zap.Logger) *SurfaceDiagnostics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SurfaceDiagnostics{logger: logger}
}

// run carries the state shared by every field of one Run.
type run struct {
	cfg      *config.Config
	grid     *domain.Grid
	data     *domain.Dataset
	obs      *obs.Store
	weights  *domain.Field
	regions  []domain.Region
	renderer *plot.Renderer
	outDir   string
}

// Run executes the diagnostics described by cfg. The worker pool is torn
// down before Run returns, whatever the outcome. A field that cannot be
// diagnosed is logged and reported as skipped; errors that affect every
// field abort the run.
func (s *SurfaceDiagnostics) Run(ctx context.Context, cfg *config.Config) (*Summary, error) {
	cluster := compute.NewCluster(cfg.Compute.Workers, s.logger)
	defer cluster.Close()

	g, defaults, err := grid.Load(cfg.StaticPath())
	if err != nil {
		return nil, err
	}
	if defaults.Wet {
		s.logger.Warn("Static file has no wet mask; treating every cell as ocean")
	}
	if defaults.Area {
		s.logger.Warn("Static file has no cell area; using uniform weights")
	}
	ny, nx := g.Shape()
	s.logger.Info("Loaded grid", zap.String("path", cfg.StaticPath()), zap.Int("ny", ny), zap.Int("nx", nx))

	pattern := cfg.HistoryPattern()
	files, err := history.Files(pattern)
	if err != nil {
		return nil, err
	}
	full, err := history.NewReader(cluster, s.logger).OpenFiles(ctx, files, history.Request{
		Pattern:   pattern,
		Variables: cfg.Variables(),
		Reference: cfg.ReferenceVar,
	})
	if err != nil {
		return nil, err
	}

	start, end, err := cfg.Window()
	if err != nil {
		return nil, err
	}
	data := full.Select(start, end)
	if data.Len() == 0 {
		if full.Len() == 0 {
			return nil, fmt.Errorf("%w in %s", domain.ErrNoRecords, pattern)
		}
		first, last := full.Times[0], full.Times[full.Len()-1]
		return nil, fmt.Errorf("%w in [%s, %s); history spans %s to %s",
			domain.ErrNoRecords, start, end, first, last)
	}
	s.logger.Info("Selected averaging window",
		zap.Stringer("start", start),
		zap.Stringer("end", end),
		zap.Int("records", data.Len()),
		zap.Int("of", full.Len()))

	r := &run{
		cfg:      cfg,
		grid:     g,
		data:     data,
		weights:  g.OceanWeights(),
		renderer: plot.NewRenderer(cfg.OutputDir(), cfg.SaveFigures(), s.logger),
		outDir:   cfg.OutputDir(),
	}
	if cfg.Obs.Dataset != "" {
		catalog, err := obs.LoadCatalog(cfg.CatalogPath())
		if err != nil {
			return nil, err
		}
		if _, err := catalog.Lookup(cfg.Obs.Dataset); err != nil {
			return nil, err
		}
		r.obs = obs.NewStore(catalog, s.logger)
	} else {
		s.logger.Warn("No observational dataset configured; plotting model fields only")
	}
	if path := cfg.BasinsPath(); path != "" && len(cfg.Regions) > 0 {
		codes, err := grid.LoadBasinCodes(path, cfg.Fnames.BasinVar, g)
		if err != nil {
			return nil, err
		}
		r.regions = domain.RegionsFromCodes(codes, cfg.Regions)
	}

	summary := &Summary{
		Case:       cfg.Case.Name,
		Label:      cfg.Case.Label,
		Start:      start.String(),
		End:        end.String(),
		Calendar:   string(data.Calendar),
		Records:    data.Len(),
		Files:      len(files),
		Sources:    baseNames(files),
		Workers:    cluster.Workers(),
		ObsDataset: cfg.Obs.Dataset,
		Fields:     make([]FieldSummary, len(cfg.Fields)),
	}
	for name := range data.Placeholders {
		summary.Placeholders = append(summary.Placeholders, name)
	}
	sort.Strings(summary.Placeholders)

	err = cluster.Map(ctx, len(cfg.Fields), func(ctx context.Context, i int) error {
		fc := cfg.Fields[i]
		fs, err := s.field(ctx, r, fc)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("Skipping field", zap.String("field", fc.Name), zap.Error(err))
			fs = FieldSummary{Name: fc.Name, Var: fc.Var, Units: fc.Units, LongName: fc.LongName, Skipped: err.Error()}
		}
		fs.Placeholder = data.Placeholders[fc.Var]
		summary.Fields[i] = fs
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := WriteSummary(cfg.SummaryPath(), summary); err != nil {
		return nil, err
	}
	s.logger.Info("Diagnostics complete", zap.String("summary", cfg.SummaryPath()))
	return summary, nil
}

// field diagnoses one configured field.
func (s *SurfaceDiagnostics) field(ctx context.Context, r *run, fc config.FieldConfig) (FieldSummary, error) {
	fs := FieldSummary{Name: fc.Name, Var: fc.Var, Units: fc.Units, LongName: fc.LongName}
	log := s.logger.With(zap.String("field", fc.Name))

	series, err := r.data.Variable(fc.Var)
	if err != nil {
		return fs, err
	}
	masked := make([]*domain.Field, len(series))
	for t, f := range series {
		m := f.Clone()
		if fc.Scale != 1 {
			m.Scale(fc.Scale)
		}
		if err := m.ApplyMask(r.grid.Wet); err != nil {
			return fs, err
		}
		masked[t] = m
	}
	model, err := domain.MonthlyClimatology(r.data.Times, masked)
	if err != nil {
		return fs, err
	}

	var observed, diff *domain.Climatology
	if r.obs != nil {
		observed, fs.ObsVar, err = s.observed(r, fc)
		switch {
		case errors.Is(err, obs.ErrNoObsVariable):
			log.Warn("No observations for field; plotting model only", zap.Error(err))
		case err != nil:
			return fs, err
		default:
			if diff, err = diffClimatology(model, observed); err != nil {
				return fs, err
			}
		}
	}

	periods := make([]domain.Season, 0, 17)
	for m := 1; m <= 12; m++ {
		periods = append(periods, domain.MonthSeason(m))
	}
	periods = append(periods, domain.Seasons()...)

	var cycle plot.CycleFigure
	for i := range cycle.Bias {
		cycle.Bias[i], cycle.RMSE[i] = math.NaN(), math.NaN()
	}
	for i, period := range periods {
		if err := ctx.Err(); err != nil {
			return fs, err
		}
		// Observations are averaged over the same months the model covers.
		covered := coveredMonths(model, period)
		if len(covered.Months) == 0 {
			log.Debug("No records in period", zap.String("period", period.Name))
			continue
		}
		modelMean, err := model.Mean(covered)
		if err != nil {
			return fs, err
		}
		ps := PeriodStats{Period: period.Name, Months: len(covered.Months), Bias: Value(math.NaN()), RMSE: Value(math.NaN())}

		var obsMean, diffMean *domain.Field
		if observed != nil {
			if obsMean, err = observed.Mean(covered); err != nil {
				return fs, err
			}
			if diffMean, err = domain.Diff(modelMean, obsMean); err != nil {
				return fs, err
			}
			if err := r.stats(&ps, diffMean); err != nil {
				return fs, err
			}
			if i < 12 {
				cycle.Bias[i], cycle.RMSE[i] = float64(ps.Bias), float64(ps.RMSE)
			}
		}

		// Monthly maps are summarized by the annual-cycle figure.
		if i >= 12 {
			path, err := r.renderer.Maps(plot.MapFigure{
				Case:   r.cfg.Case.Name,
				Label:  r.cfg.Case.Label,
				Field:  fc.Name,
				Long:   fc.LongName,
				Units:  fc.Units,
				Period: period.Name,
				Model:  modelMean,
				Obs:    obsMean,
				Diff:   diffMean,
			}, r.grid)
			if err != nil {
				return fs, err
			}
			if path != "" {
				ps.Image = filepath.Base(path)
				fs.Images = append(fs.Images, ps.Image)
			}
		}
		fs.Periods = append(fs.Periods, ps)
	}

	if observed != nil {
		cycle.Case, cycle.Field, cycle.Units = r.cfg.Case.Name, fc.Name, fc.Units
		path, err := r.renderer.AnnualCycle(cycle)
		if err != nil {
			return fs, err
		}
		if path != "" {
			fs.Images = append(fs.Images, filepath.Base(path))
		}
	}

	if r.cfg.Output.WriteClimo {
		path, err := climo.Write(r.outDir, r.grid, climo.Record{
			Case:     r.cfg.Case.Name,
			Field:    fc.Name,
			Units:    fc.Units,
			LongName: fc.LongName,
			Model:    model,
			Obs:      observed,
			Diff:     diff,
		})
		if err != nil {
			return fs, err
		}
		fs.Climo = filepath.Base(path)
	}

	log.Info("Field done", zap.Int("periods", len(fs.Periods)), zap.Int("images", len(fs.Images)))
	return fs, nil
}

// observed returns the observational climatology on the model grid with
// land masked.
func (s *SurfaceDiagnostics) observed(r *run, fc config.FieldConfig) (*domain.Climatology, string, error) {
	id := r.cfg.Obs.Dataset
	variable, err := r.obs.VariableFor(id, fc.Name, fc.ObsVar)
	if err != nil {
		return nil, "", err
	}
	raw, err := r.obs.Climatology(id, variable, r.grid)
	if err != nil {
		return nil, variable, err
	}
	// The store caches raw; mask a copy.
	out := &domain.Climatology{Counts: raw.Counts}
	for m, f := range raw.Months {
		c := f.Clone()
		if err := c.ApplyMask(r.grid.Wet); err != nil {
			return nil, variable, err
		}
		out.Months[m] = c
	}
	return out, variable, nil
}

func (r *run) stats(ps *PeriodStats, diff *domain.Field) error {
	bias, err := domain.HorizontalMeanDiff(diff, r.weights)
	if err != nil {
		return err
	}
	rmse, err := domain.HorizontalMeanRMSE(diff, r.weights)
	if err != nil {
		return err
	}
	ps.Bias, ps.RMSE = Value(bias), Value(rmse)

	regional, err := domain.RegionalStats(diff, r.weights, r.regions)
	if err != nil {
		return err
	}
	for _, rs := range regional {
		ps.Regions = append(ps.Regions, RegionValue{Region: rs.Region, Bias: Value(rs.Bias), RMSE: Value(rs.RMSE)})
	}
	return nil
}

func diffClimatology(model, observed *domain.Climatology) (*domain.Climatology, error) {
	out := &domain.Climatology{}
	for m := range model.Months {
		d, err := domain.Diff(model.Months[m], observed.Months[m])
		if err != nil {
			return nil, fmt.Errorf("month %d: %w", m+1, err)
		}
		out.Months[m] = d
		out.Counts[m] = model.Counts[m]
	}
	return out, nil
}

// coveredMonths restricts s to the months that have records in c.
func coveredMonths(c *domain.Climatology, s domain.Season) domain.Season {
	out := domain.Season{Name: s.Name}
	for _, m := range s.Months {
		if c.Counts[m-1] > 0 {
			out.Months = append(out.Months, m)
		}
	}
	return out
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
