package domain

import (
	"errors"
	"math"
	"testing"
)

func TestMonthlyClimatology(t *testing.T) {
	// Two years of monthly data where the value is month + 100*yearIndex.
	times := monthlyTimes(1, 24)
	fields := make([]*Field, len(times))
	for i, ts := range times {
		fields[i] = constField(2, 3, float64(ts.Month)+100*float64(i/12))
	}
	// Mask one cell in one record: the mean there uses the other year only.
	fields[0].Set(1, 2, math.NaN())

	clim, err := MonthlyClimatology(times, fields)
	if err != nil {
		t.Fatalf("MonthlyClimatology: %v", err)
	}
	for m := 0; m < 12; m++ {
		if clim.Counts[m] != 2 {
			t.Errorf("month %d: count %d, want 2", m+1, clim.Counts[m])
		}
		want := float64(m+1) + 50
		if got := clim.Months[m].At(0, 0); math.Abs(got-want) > 1e-12 {
			t.Errorf("month %d: got %v, want %v", m+1, got, want)
		}
	}
	if got := clim.Months[0].At(1, 2); got != 101 {
		t.Errorf("NaN-aware mean: got %v, want 101", got)
	}
}

func TestMonthlyClimatology_MissingMonthsAreNaN(t *testing.T) {
	times := []Date{NewDate(1, 3, 15)}
	clim, err := MonthlyClimatology(times, []*Field{constField(1, 1, 4)})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(clim.Months[0].At(0, 0)) || clim.Counts[0] != 0 {
		t.Error("January has no records and must be NaN")
	}
	if _, err := clim.Mean(DJF); !errors.Is(err, ErrNoRecords) {
		t.Errorf("DJF mean: expected ErrNoRecords, got %v", err)
	}
	mam, err := clim.Mean(MAM)
	if err != nil {
		t.Fatal(err)
	}
	if mam.At(0, 0) != 4 {
		t.Errorf("MAM: got %v, want 4", mam.At(0, 0))
	}
}

func TestMonthlyClimatology_Errors(t *testing.T) {
	if _, err := MonthlyClimatology(nil, nil); !errors.Is(err, ErrNoRecords) {
		t.Errorf("expected ErrNoRecords, got %v", err)
	}
	times := monthlyTimes(1, 2)
	if _, err := MonthlyClimatology(times, []*Field{constField(1, 1, 0), constField(2, 1, 0)}); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestClimatologyMean_WeightsByCount(t *testing.T) {
	// Jan has 2 records of 1, Feb has 1 record of 4: record mean is 2.
	times := []Date{NewDate(1, 1, 15), NewDate(2, 1, 15), NewDate(1, 2, 15)}
	fields := []*Field{constField(1, 1, 1), constField(1, 1, 1), constField(1, 1, 4)}
	clim, err := MonthlyClimatology(times, fields)
	if err != nil {
		t.Fatal(err)
	}
	got, err := clim.Mean(Annual)
	if err != nil {
		t.Fatal(err)
	}
	if got.At(0, 0) != 2 {
		t.Errorf("annual mean: got %v, want 2", got.At(0, 0))
	}
}

func TestBroadcastAndDiff(t *testing.T) {
	obs := Broadcast(constField(2, 2, 3))
	model := constField(2, 2, 5)
	model.Set(0, 0, math.NaN())
	for m := 0; m < 12; m++ {
		d, err := Diff(model, obs.Months[m])
		if err != nil {
			t.Fatal(err)
		}
		if d.At(1, 1) != 2 {
			t.Fatalf("month %d: diff %v, want 2", m+1, d.At(1, 1))
		}
		if !math.IsNaN(d.At(0, 0)) {
			t.Fatal("NaN must propagate through Diff")
		}
	}
	if _, err := Diff(model, constField(3, 2, 0)); err == nil {
		t.Error("expected shape mismatch")
	}
}
