package domain

import (
	"fmt"
	"math"
	"strings"
)

const secondsPerDay = 86400.0

// Calendar is a CF-conventions calendar.
type Calendar string

// Supported calendars.
const (
	NoLeap    Calendar = "noleap"
	AllLeap   Calendar = "all_leap"
	Day360    Calendar = "360_day"
	Gregorian Calendar = "proleptic_gregorian"
)

var calendarAliases = map[string]Calendar{
	"noleap":              NoLeap,
	"no_leap":             NoLeap,
	"365_day":             NoLeap,
	"all_leap":            AllLeap,
	"366_day":             AllLeap,
	"360_day":             Day360,
	"thirty_day_months":   Day360,
	"proleptic_gregorian": Gregorian,
	"gregorian":           Gregorian,
	"standard":            Gregorian,
	"":                    Gregorian,
}

// ParseCalendar maps a calendar attribute to a Calendar. Matching is case
// insensitive, so MOM6's calendar_type = "NOLEAP" is accepted. The
// standard/gregorian calendars are treated as proleptic Gregorian; dates
// before 1582-10-15 therefore differ from a mixed Julian/Gregorian decoder.
func ParseCalendar(name string) (Calendar, error) {
	c, ok := calendarAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unsupported calendar %q", name)
	}
	return c, nil
}

// DaysInMonth returns the length of month in year.
func (c Calendar) DaysInMonth(year, month int) int {
	switch c {
	case Day360:
		return 30
	case AllLeap:
		if month == 2 {
			return 29
		}
	case Gregorian:
		if month == 2 && isGregorianLeap(year) {
			return 29
		}
	}
	return noLeapMonthDays[month-1]
}

var noLeapMonthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func isGregorianLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// Valid reports whether d names a real day in the calendar.
func (c Calendar) Valid(d Date) bool {
	return d.Month >= 1 && d.Month <= 12 && d.Day >= 1 && d.Day <= c.DaysInMonth(d.Year, d.Month)
}

func (c Calendar) daysBeforeYear(y int) int64 {
	n := int64(y - 1)
	switch c {
	case NoLeap:
		return 365 * n
	case AllLeap:
		return 366 * n
	case Day360:
		return 360 * n
	default:
		return 365*n + floorDiv(n, 4) - floorDiv(n, 100) + floorDiv(n, 400)
	}
}

// dayNumber counts days from 0001-01-01 in the calendar.
func (c Calendar) dayNumber(d Date) int64 {
	n := c.daysBeforeYear(d.Year)
	for m := 1; m < d.Month; m++ {
		n += int64(c.DaysInMonth(d.Year, m))
	}
	return n + int64(d.Day-1)
}

func (c Calendar) fromDayNumber(n int64) Date {
	y := int(math.Floor(float64(n)/365.2425)) + 1
	for c.daysBeforeYear(y+1) <= n {
		y++
	}
	for c.daysBeforeYear(y) > n {
		y--
	}
	rem := int(n - c.daysBeforeYear(y))
	m := 1
	for ; m < 12; m++ {
		dim := c.DaysInMonth(y, m)
		if rem < dim {
			break
		}
		rem -= dim
	}
	return Date{Year: y, Month: m, Day: rem + 1}
}

// Add returns d shifted by the given number of seconds.
func (c Calendar) Add(d Date, seconds float64) Date {
	total := d.Seconds + seconds
	days := math.Floor(total / secondsPerDay)
	sec := total - days*secondsPerDay
	// Offsets stored as float32 days leave sub-microsecond noise.
	sec = math.Round(sec*1e6) / 1e6
	if sec >= secondsPerDay {
		days++
		sec -= secondsPerDay
	}
	out := c.fromDayNumber(c.dayNumber(d) + int64(days))
	out.Seconds = sec
	return out
}

var unitSeconds = map[string]float64{
	"seconds": 1, "second": 1, "secs": 1, "sec": 1, "s": 1,
	"minutes": 60, "minute": 60, "mins": 60, "min": 60,
	"hours": 3600, "hour": 3600, "hrs": 3600, "hr": 3600, "h": 3600,
	"days": secondsPerDay, "day": secondsPerDay, "d": secondsPerDay,
}

// DecodeTimes converts CF offsets ("days since 0001-01-01 00:00:00") to
// dates on the calendar.
func DecodeTimes(units string, cal Calendar, offsets []float64) ([]Date, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return nil, fmt.Errorf("invalid time units %q: expected \"<unit> since <date>\"", units)
	}
	scale, ok := unitSeconds[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return nil, fmt.Errorf("unsupported time unit %q", unit)
	}
	refDate, err := ParseDate(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid reference date in %q: %w", units, err)
	}
	if !cal.Valid(refDate) {
		return nil, fmt.Errorf("reference date %s does not exist in calendar %s", refDate, cal)
	}

	out := make([]Date, len(offsets))
	for i, v := range offsets {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid time offset at index %d: %v", i, v)
		}
		out[i] = cal.Add(refDate, v*scale)
	}
	return out, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
