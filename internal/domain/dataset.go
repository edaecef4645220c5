package domain

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrMissingReference is returned when the variable used to shape zero
// placeholders is itself absent.
var ErrMissingReference = errors.New("reference variable not present")

// Dataset is a time-indexed collection of 2D variables. Vars[name][t] is the
// field of variable name at Times[t]; every variable has one field per time.
type Dataset struct {
	Calendar Calendar
	Times    []Date
	Vars     map[string][]*Field

	// Placeholders names variables that were zero-filled because some
	// source file lacked them.
	Placeholders map[string]bool
}

// NewDataset returns an empty dataset on the calendar.
func NewDataset(cal Calendar, times []Date) *Dataset {
	return &Dataset{
		Calendar:     cal,
		Times:        times,
		Vars:         make(map[string][]*Field),
		Placeholders: make(map[string]bool),
	}
}

// Len returns the number of time records.
func (d *Dataset) Len() int { return len(d.Times) }

// Has reports whether the variable is present.
func (d *Dataset) Has(name string) bool {
	_, ok := d.Vars[name]
	return ok
}

// Names returns the variable names in sorted order.
func (d *Dataset) Names() []string {
	names := make([]string, 0, len(d.Vars))
	for n := range d.Vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Variable returns the time series of a variable.
func (d *Dataset) Variable(name string) ([]*Field, error) {
	v, ok := d.Vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %q not in dataset (have %v)", name, d.Names())
	}
	return v, nil
}

// Add stores a variable after checking it has one field per time record.
func (d *Dataset) Add(name string, fields []*Field) error {
	if len(fields) != len(d.Times) {
		return fmt.Errorf("variable %q has %d records, dataset has %d times", name, len(fields), len(d.Times))
	}
	d.Vars[name] = fields
	return nil
}

// EnsureVariables inserts a zero-filled placeholder, shaped like the
// reference variable at each time, for every name that is absent.
func (d *Dataset) EnsureVariables(names []string, reference string) error {
	ref, ok := d.Vars[reference]
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingReference, reference)
	}
	for _, name := range names {
		if d.Has(name) {
			continue
		}
		zeros := make([]*Field, len(ref))
		for t, f := range ref {
			zeros[t] = ZerosLike(f)
		}
		d.Vars[name] = zeros
		d.Placeholders[name] = true
	}
	return nil
}

// Select returns the records whose timestamps lie in [start, end). Fields
// are shared with d, not copied.
func (d *Dataset) Select(start, end Date) *Dataset {
	var keep []int
	for t, ts := range d.Times {
		if ts.InWindow(start, end) {
			keep = append(keep, t)
		}
	}
	return d.subset(keep)
}

func (d *Dataset) subset(idx []int) *Dataset {
	times := make([]Date, len(idx))
	for k, t := range idx {
		times[k] = d.Times[t]
	}
	out := NewDataset(d.Calendar, times)
	for name, fields := range d.Vars {
		sel := make([]*Field, len(idx))
		for k, t := range idx {
			sel[k] = fields[t]
		}
		out.Vars[name] = sel
	}
	for name := range d.Placeholders {
		out.Placeholders[name] = true
	}
	return out
}

// Concat joins datasets along time in argument order and then sorts the
// result by timestamp. All parts must share a calendar and variable set.
func Concat(parts ...*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return nil, errors.New("no datasets to concatenate")
	}
	first := parts[0]
	names := first.Names()

	var times []Date
	for i, p := range parts {
		if p.Calendar != first.Calendar {
			return nil, fmt.Errorf("part %d uses calendar %s, expected %s", i, p.Calendar, first.Calendar)
		}
		if !slices.Equal(p.Names(), names) {
			return nil, fmt.Errorf("part %d has variables %v, expected %v", i, p.Names(), names)
		}
		times = append(times, p.Times...)
	}

	out := NewDataset(first.Calendar, times)
	for _, name := range names {
		var all []*Field
		for _, p := range parts {
			all = append(all, p.Vars[name]...)
		}
		out.Vars[name] = all
	}
	for _, p := range parts {
		for name := range p.Placeholders {
			out.Placeholders[name] = true
		}
	}

	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return times[order[a]].Before(times[order[b]])
	})
	return out.subset(order), nil
}
