package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoRecords is returned when a statistic is requested over zero records.
var ErrNoRecords = errors.New("no records")

// Climatology holds the twelve monthly means of a field. Months[m] is the
// mean over every record falling in calendar month m+1; months without
// records are all-NaN with Counts[m] == 0.
type Climatology struct {
	Months [12]*Field
	Counts [12]int
}

// MonthlyClimatology averages records by calendar month, ignoring NaN cells
// per grid point.
func MonthlyClimatology(times []Date, fields []*Field) (*Climatology, error) {
	if len(times) != len(fields) {
		return nil, fmt.Errorf("got %d times for %d fields", len(times), len(fields))
	}
	if len(fields) == 0 {
		return nil, ErrNoRecords
	}
	ref := fields[0]

	var (
		sums [12][]float64
		ns   [12][]int
		clim Climatology
	)
	for t, f := range fields {
		if !ref.SameShape(f) {
			return nil, fmt.Errorf("record %d has shape [%d, %d], expected [%d, %d]", t, f.NY, f.NX, ref.NY, ref.NX)
		}
		m := times[t].Month - 1
		if m < 0 || m > 11 {
			return nil, fmt.Errorf("record %d has invalid month %d", t, times[t].Month)
		}
		if sums[m] == nil {
			sums[m] = make([]float64, len(f.Data))
			ns[m] = make([]int, len(f.Data))
		}
		for k, v := range f.Data {
			if math.IsNaN(v) {
				continue
			}
			sums[m][k] += v
			ns[m][k]++
		}
		clim.Counts[m]++
	}

	for m := range clim.Months {
		out := NaNField(ref.NY, ref.NX, ref.Dims...)
		if sums[m] != nil {
			for k, s := range sums[m] {
				if ns[m][k] > 0 {
					out.Data[k] = s / float64(ns[m][k])
				}
			}
		}
		clim.Months[m] = out
	}
	return &clim, nil
}

// Broadcast builds a climatology whose every month is f, used for
// observational products that only provide an annual mean.
func Broadcast(f *Field) *Climatology {
	var c Climatology
	for m := range c.Months {
		c.Months[m] = f.Clone()
		c.Counts[m] = 1
	}
	return &c
}

// Season is a named set of calendar months.
type Season struct {
	Name   string
	Months []int // 1-12.
}

// Standard averaging periods.
var (
	DJF    = Season{Name: "DJF", Months: []int{12, 1, 2}}
	MAM    = Season{Name: "MAM", Months: []int{3, 4, 5}}
	JJA    = Season{Name: "JJA", Months: []int{6, 7, 8}}
	SON    = Season{Name: "SON", Months: []int{9, 10, 11}}
	Annual = Season{Name: "ANN", Months: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}}
)

// Seasons lists the standard seasons followed by the annual mean.
func Seasons() []Season { return []Season{DJF, MAM, JJA, SON, Annual} }

// MonthSeason returns a single-month period named after the month.
func MonthSeason(month int) Season {
	return Season{Name: monthNames[month-1], Months: []int{month}}
}

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// Mean averages the climatology over the season, weighting each month by
// its record count so the result equals the mean over the underlying
// records. Returns ErrNoRecords when no month of the season has data.
func (c *Climatology) Mean(s Season) (*Field, error) {
	var (
		ref  *Field
		sums []float64
		wts  []float64
	)
	for _, month := range s.Months {
		if month < 1 || month > 12 {
			return nil, fmt.Errorf("season %s has invalid month %d", s.Name, month)
		}
		n := c.Counts[month-1]
		if n == 0 {
			continue
		}
		f := c.Months[month-1]
		if ref == nil {
			ref = f
			sums = make([]float64, len(f.Data))
			wts = make([]float64, len(f.Data))
		}
		for k, v := range f.Data {
			if math.IsNaN(v) {
				continue
			}
			sums[k] += float64(n) * v
			wts[k] += float64(n)
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("season %s: %w", s.Name, ErrNoRecords)
	}
	out := NaNField(ref.NY, ref.NX, ref.Dims...)
	for k, w := range wts {
		if w > 0 {
			out.Data[k] = sums[k] / w
		}
	}
	return out, nil
}
