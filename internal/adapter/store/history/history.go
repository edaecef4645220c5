// Package history opens MOM6 history output spread over many files as a
// single time-ordered dataset.
package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fhs/go-netcdf/netcdf"
	"go.uber.org/zap"

	"go.ngs.io/mom6-diags/internal/adapter/store/ncio"
	"go.ngs.io/mom6-diags/internal/compute"
	"go.ngs.io/mom6-diags/internal/domain"
)

// ErrNoFiles is returned when the history pattern matches nothing.
var ErrNoFiles = errors.New("no history files match")

// Request selects files and variables.
type Request struct {
	Pattern   string   // Glob over history files.
	Variables []string // Variables to load; absent ones become zeros.
	// Reference shapes the zero placeholders. Empty means the first
	// requested variable present in each file.
	Reference string
}

// Reader opens history files in parallel on a compute cluster.
type Reader struct {
	cluster   *compute.Cluster
	logger    *zap.Logger
	timeNames []string
}

// NewReader creates a reader. A nil cluster reads serially.
func NewReader(cluster *compute.Cluster, logger *zap.Logger) *Reader {
	if cluster == nil {
		cluster = compute.NewCluster(1, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		cluster:   cluster,
		logger:    logger,
		timeNames: []string{"time", "Time", "t"},
	}
}

// Files returns the sorted list of files matching pattern.
func Files(pattern string) ([]string, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad history pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoFiles, pattern)
	}
	sort.Strings(files)
	return files, nil
}

// Open reads every file matching req.Pattern and concatenates them along
// time. Each file is completed independently: a requested variable missing
// from a file is replaced there by zeros shaped like the reference variable.
func (r *Reader) Open(ctx context.Context, req Request) (*domain.Dataset, error) {
	files, err := Files(req.Pattern)
	if err != nil {
		return nil, err
	}
	return r.OpenFiles(ctx, files, req)
}

// OpenFiles is Open over an explicit, time-ordered file list; req.Pattern
// is only used in messages. It fails with domain.ErrNoRecords when the
// files hold no time records at all.
func (r *Reader) OpenFiles(ctx context.Context, files []string, req Request) (*domain.Dataset, error) {
	if len(req.Variables) == 0 {
		return nil, errors.New("no variables requested")
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoFiles, req.Pattern)
	}
	r.logger.Info("Opening history",
		zap.String("pattern", req.Pattern),
		zap.Int("files", len(files)),
		zap.Strings("variables", req.Variables))

	parts := make([]*domain.Dataset, len(files))
	err := r.cluster.Map(ctx, len(files), func(_ context.Context, i int) error {
		ds, err := r.readFile(files[i], req)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(files[i]), err)
		}
		parts[i] = ds
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := checkShapes(parts, files); err != nil {
		return nil, err
	}
	ds, err := domain.Concat(parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to combine history files: %w", err)
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w in %d history files matching %s", domain.ErrNoRecords, len(files), req.Pattern)
	}
	if len(ds.Placeholders) > 0 {
		names := make([]string, 0, len(ds.Placeholders))
		for n := range ds.Placeholders {
			names = append(names, n)
		}
		sort.Strings(names)
		r.logger.Warn("Some variables were zero-filled in at least one file", zap.Strings("variables", names))
	}
	return ds, nil
}

func (r *Reader) readFile(path string, req Request) (*domain.Dataset, error) {
	var ds *domain.Dataset
	err := ncio.View(path, func(nc netcdf.Dataset) error {
		tVar, _, err := ncio.FindVar(nc, r.timeNames...)
		if err != nil {
			return fmt.Errorf("time axis: %w", err)
		}
		times, cal, err := decodeTime(tVar)
		if err != nil {
			return err
		}
		ds = domain.NewDataset(cal, times)

		for _, name := range req.Variables {
			if ds.Has(name) {
				continue
			}
			v, err := nc.Var(name)
			if err != nil {
				r.logger.Debug("Variable absent", zap.String("file", path), zap.String("variable", name))
				continue
			}
			fields, err := readRecords(v, len(times))
			if err != nil {
				return fmt.Errorf("variable %s: %w", name, err)
			}
			if err := ds.Add(name, fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ref := req.Reference
	if ref == "" || !ds.Has(ref) {
		ref = ""
		for _, name := range req.Variables {
			if ds.Has(name) {
				ref = name
				break
			}
		}
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: none of %v present", domain.ErrMissingReference, req.Variables)
	}
	for _, name := range req.Variables {
		if !ds.Has(name) {
			r.logger.Warn("Variable missing; using zeros",
				zap.String("file", filepath.Base(path)),
				zap.String("variable", name),
				zap.String("reference", ref))
		}
	}
	if err := ds.EnsureVariables(req.Variables, ref); err != nil {
		return nil, err
	}
	return ds, nil
}

func decodeTime(v netcdf.Var) ([]domain.Date, domain.Calendar, error) {
	units := ncio.TextAttr(v, "units")
	if units == "" {
		return nil, "", errors.New("time axis has no units attribute")
	}
	calName := ncio.TextAttr(v, "calendar")
	if calName == "" {
		calName = ncio.TextAttr(v, "calendar_type")
	}
	cal, err := domain.ParseCalendar(calName)
	if err != nil {
		return nil, "", err
	}
	offsets, err := ncio.Read1D(v)
	if err != nil {
		return nil, "", fmt.Errorf("time axis: %w", err)
	}
	times, err := domain.DecodeTimes(units, cal, offsets)
	if err != nil {
		return nil, "", err
	}
	return times, cal, nil
}

// readRecords splits a [time, y, x] variable into one field per record.
func readRecords(v netcdf.Var, nt int) ([]*domain.Field, error) {
	data, shape, err := ncio.ReadFloat64s(v)
	if err != nil {
		return nil, err
	}
	if len(shape.Lens) != 3 {
		return nil, fmt.Errorf("expected [time, y, x], got dims %v", shape.Names)
	}
	if shape.Lens[0] != nt {
		return nil, fmt.Errorf("has %d records, time axis has %d", shape.Lens[0], nt)
	}
	ny, nx := shape.Lens[1], shape.Lens[2]
	fields := make([]*domain.Field, nt)
	for t := range fields {
		f := domain.NewField(ny, nx, shape.Names[1:]...)
		copy(f.Data, data[t*ny*nx:(t+1)*ny*nx])
		fields[t] = f
	}
	return fields, nil
}

func checkShapes(parts []*domain.Dataset, files []string) error {
	if len(parts) == 0 {
		return nil
	}
	ref := make(map[string]*domain.Field)
	for i, p := range parts {
		for name, fields := range p.Vars {
			if len(fields) == 0 {
				continue
			}
			want, ok := ref[name]
			if !ok {
				ref[name] = fields[0]
				continue
			}
			if !want.SameShape(fields[0]) {
				return fmt.Errorf("%s: %s is [%d, %d], earlier files have [%d, %d]",
					filepath.Base(files[i]), name, fields[0].NY, fields[0].NX, want.NY, want.NX)
			}
		}
	}
	return nil
}
