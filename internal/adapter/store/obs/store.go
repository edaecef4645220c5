package obs

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"
	"go.uber.org/zap"

	"go.ngs.io/mom6-diags/internal/adapter/interp"
	"go.ngs.io/mom6-diags/internal/adapter/store/ncio"
	"go.ngs.io/mom6-diags/internal/domain"
)

// ErrNoObsVariable is returned when a dataset has no variable for a field.
var ErrNoObsVariable = errors.New("dataset has no variable for field")

// Store reads observational climatologies and caches them per dataset,
// variable and target grid.
type Store struct {
	catalog *Catalog
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[cacheKey]*domain.Climatology
}

type cacheKey struct {
	id, variable string
	grid         *domain.Grid
}

// NewStore creates a store over a loaded catalog.
func NewStore(catalog *Catalog, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		catalog: catalog,
		logger:  logger,
		cache:   make(map[cacheKey]*domain.Climatology),
	}
}

// Catalog returns the underlying catalog.
func (s *Store) Catalog() *Catalog { return s.catalog }

// VariableFor returns the dataset variable for a field. override wins over
// the catalog mapping.
func (s *Store) VariableFor(id, field, override string) (string, error) {
	e, err := s.catalog.Lookup(id)
	if err != nil {
		return "", err
	}
	if override != "" {
		return override, nil
	}
	if v, ok := e.Variables[field]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w %s in %s", ErrNoObsVariable, field, id)
}

// Climatology returns the monthly climatology of a dataset variable
// interpolated onto the model grid. An annual-mean product is repeated for
// every month.
func (s *Store) Climatology(id, variable string, g *domain.Grid) (*domain.Climatology, error) {
	key := cacheKey{id: id, variable: variable, grid: g}
	s.mu.RLock()
	if c, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache[key]; ok {
		return c, nil
	}

	e, err := s.catalog.Lookup(id)
	if err != nil {
		return nil, err
	}
	grids, err := readGrids(e, variable)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", id, variable, err)
	}

	var clim *domain.Climatology
	if len(grids) == 1 {
		f, err := regrid(grids[0], g)
		if err != nil {
			return nil, err
		}
		clim = domain.Broadcast(f)
	} else {
		clim = &domain.Climatology{}
		for m, src := range grids {
			f, err := regrid(src, g)
			if err != nil {
				return nil, fmt.Errorf("month %d: %w", m+1, err)
			}
			clim.Months[m] = f
			clim.Counts[m] = 1
		}
	}
	s.logger.Debug("Loaded observational climatology",
		zap.String("dataset", id),
		zap.String("variable", variable),
		zap.Int("records", len(grids)))
	s.cache[key] = clim
	return clim, nil
}

// readGrids reads a [time, lat, lon] (or [lat, lon]) variable as one
// ascending-axis grid per record.
func readGrids(e Entry, variable string) ([]*interp.Grid2D, error) {
	var (
		lons, lats       []float64
		lonName, latName string
		data             []float64
		shape            ncio.Shape
	)
	err := ncio.View(e.Path, func(nc netcdf.Dataset) error {
		lonVar, name, err := ncio.FindVar(nc, e.Lon, "lon", "longitude", "x")
		if err != nil {
			return fmt.Errorf("longitude: %w", err)
		}
		lonName = name
		latVar, name, err := ncio.FindVar(nc, e.Lat, "lat", "latitude", "y")
		if err != nil {
			return fmt.Errorf("latitude: %w", err)
		}
		latName = name
		if lons, err = ncio.Read1D(lonVar); err != nil {
			return fmt.Errorf("longitude: %w", err)
		}
		if lats, err = ncio.Read1D(latVar); err != nil {
			return fmt.Errorf("latitude: %w", err)
		}
		v, err := nc.Var(variable)
		if err != nil {
			return fmt.Errorf("variable %s not found: %w", variable, err)
		}
		data, shape, err = ncio.ReadFloat64s(v)
		return err
	})
	if err != nil {
		return nil, err
	}

	records := 1
	dims, lens := shape.Names, shape.Lens
	switch len(lens) {
	case 2:
	case 3:
		records = lens[0]
		dims, lens = dims[1:], lens[1:]
	default:
		return nil, fmt.Errorf("expected [time,] lat, lon dimensions, got %v", shape.Names)
	}
	if records != 1 && records != 12 {
		return nil, fmt.Errorf("expected 1 or 12 climatology records, got %d", records)
	}

	nlat, nlon := len(lats), len(lons)
	var lonFirst bool
	switch {
	case lens[0] == nlat && lens[1] == nlon && dims[0] != lonName:
	case lens[0] == nlon && lens[1] == nlat && dims[1] != lonName:
		lonFirst = true
	default:
		return nil, fmt.Errorf("dims %v %v do not match %s[%d] and %s[%d]", dims, lens, latName, nlat, lonName, nlon)
	}

	size := nlat * nlon
	out := make([]*interp.Grid2D, records)
	for r := range out {
		rec := data[r*size : (r+1)*size]
		if lonFirst {
			rec = ncio.Transpose(rec, nlon, nlat)
		}
		out[r] = newGrid(lons, lats, rec)
		if err := out[r].Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// newGrid builds an ascending grid from [lat, lon] data, flipping a
// north-to-south latitude axis and wrapping a global longitude axis.
func newGrid(lons, lats, data []float64) *interp.Grid2D {
	nlat, nlon := len(lats), len(lons)
	flip := nlat > 1 && lats[0] > lats[nlat-1]

	g := &interp.Grid2D{
		X:      append([]float64(nil), lons...),
		Y:      make([]float64, nlat),
		Values: make([][]float64, nlat),
	}
	for i := 0; i < nlat; i++ {
		src := i
		if flip {
			src = nlat - 1 - i
		}
		g.Y[i] = lats[src]
		g.Values[i] = append([]float64(nil), data[src*nlon:(src+1)*nlon]...)
	}
	g.WrapPeriodic(360)
	return g
}

// regrid samples the observation grid at every model cell center.
func regrid(src *interp.Grid2D, g *domain.Grid) (*domain.Field, error) {
	ny, nx := g.Shape()
	xs := make([]float64, ny*nx)
	ys := make([]float64, ny*nx)
	for k := range xs {
		xs[k] = normalizeLonForAxis(src.X, g.GeoLon.Data[k])
		ys[k] = g.GeoLat.Data[k]
	}
	vals, err := src.SampleMany(xs, ys)
	if err != nil {
		return nil, err
	}
	return &domain.Field{Dims: []string{"yh", "xh"}, NY: ny, NX: nx, Data: vals}, nil
}

// normalizeLonForAxis shifts lon by whole turns into [X0, X0+360), so
// -180..180 model longitudes can sample a 0..360 product and vice versa.
func normalizeLonForAxis(axis []float64, lon float64) float64 {
	if len(axis) == 0 || math.IsNaN(lon) {
		return lon
	}
	lon = math.Mod(lon-axis[0], 360)
	if lon < 0 {
		lon += 360
	}
	return axis[0] + lon
}
