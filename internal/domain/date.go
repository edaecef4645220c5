// Package domain holds the in-memory model of MOM6 surface diagnostics:
// model-calendar dates, gridded fields, time-indexed datasets and the
// climatology and statistics computed from them.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Date is a timestamp on a model calendar.
//
// MOM6 runs commonly use the noleap or 360_day calendars, which time.Time
// cannot represent, so dates are kept as calendar fields and compared
// field by field.
type Date struct {
	Year    int
	Month   int     // 1-12.
	Day     int     // 1-31.
	Seconds float64 // Seconds since midnight.
}

// NewDate returns a date at midnight.
func NewDate(year, month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to, or
// after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(d.Month - o.Month)
	case d.Day != o.Day:
		return sign(d.Day - o.Day)
	case d.Seconds < o.Seconds:
		return -1
	case d.Seconds > o.Seconds:
		return 1
	}
	return 0
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

// InWindow reports whether d lies in the half-open window [start, end).
func (d Date) InWindow(start, end Date) bool {
	return d.Compare(start) >= 0 && d.Compare(end) < 0
}

// String formats the date as YYYY-MM-DD, appending the time of day when it
// is not midnight.
func (d Date) String() string {
	s := fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	if d.Seconds == 0 {
		return s
	}
	secs := int(d.Seconds)
	return fmt.Sprintf("%s %02d:%02d:%02d", s, secs/3600, (secs%3600)/60, secs%60)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDate parses "Y-M-D", optionally followed by " hh:mm:ss" or
// "Thh:mm:ss". Years may have any number of digits ("1-1-1" is valid, as
// found in CF time units). The day is not checked against a calendar.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("empty date")
	}

	datePart, timePart := s, ""
	if i := strings.IndexAny(s, " T"); i >= 0 {
		datePart, timePart = s[:i], strings.TrimSpace(s[i+1:])
	}

	fields := strings.Split(datePart, "-")
	if len(fields) != 3 {
		return Date{}, fmt.Errorf("invalid date %q: expected Y-M-D", s)
	}
	var ymd [3]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		ymd[i] = n
	}
	if ymd[1] < 1 || ymd[1] > 12 {
		return Date{}, fmt.Errorf("invalid date %q: month out of range", s)
	}
	if ymd[2] < 1 || ymd[2] > 31 {
		return Date{}, fmt.Errorf("invalid date %q: day out of range", s)
	}

	d := Date{Year: ymd[0], Month: ymd[1], Day: ymd[2]}
	if timePart == "" {
		return d, nil
	}

	// Drop a trailing zone designator; model output is always UTC.
	timePart = strings.TrimSuffix(timePart, "Z")
	timePart = strings.TrimSuffix(timePart, " UTC")
	hms := strings.Split(timePart, ":")
	if len(hms) < 2 || len(hms) > 3 {
		return Date{}, fmt.Errorf("invalid time of day in %q", s)
	}
	var parts [3]float64
	for i, f := range hms {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Date{}, fmt.Errorf("invalid time of day in %q: %w", s, err)
		}
		parts[i] = v
	}
	d.Seconds = parts[0]*3600 + parts[1]*60 + parts[2]
	if d.Seconds < 0 || d.Seconds >= secondsPerDay {
		return Date{}, fmt.Errorf("invalid time of day in %q", s)
	}
	return d, nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
