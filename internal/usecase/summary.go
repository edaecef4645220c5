package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Summary is the machine-readable result of a diagnostics run.
type Summary struct {
	Case         string         `json:"case"`
	Label        string         `json:"label,omitempty"`
	Start        string         `json:"start"`
	End          string         `json:"end"`
	Calendar     string         `json:"calendar"`
	Records      int            `json:"records"`
	Files        int            `json:"files"`
	Sources      []string       `json:"sources"`
	Workers      int            `json:"workers"`
	ObsDataset   string         `json:"obs_dataset,omitempty"`
	Placeholders []string       `json:"placeholders,omitempty"`
	Fields       []FieldSummary `json:"fields"`
}

// FieldSummary holds the statistics and outputs of one field.
type FieldSummary struct {
	Name        string        `json:"name"`
	Var         string        `json:"var"`
	ObsVar      string        `json:"obs_var,omitempty"`
	Units       string        `json:"units,omitempty"`
	LongName    string        `json:"long_name,omitempty"`
	Placeholder bool          `json:"placeholder,omitempty"`
	Skipped     string        `json:"skipped,omitempty"`
	Periods     []PeriodStats `json:"periods,omitempty"`
	Images      []string      `json:"images,omitempty"`
	Climo       string        `json:"climo,omitempty"`
}

// PeriodStats is the model-minus-observation bias and RMSE over one
// averaging period.
type PeriodStats struct {
	Period  string        `json:"period"`
	Months  int           `json:"months"` // Months of the period with records.
	Bias    Value         `json:"bias"`
	RMSE    Value         `json:"rmse"`
	Regions []RegionValue `json:"regions,omitempty"`
	Image   string        `json:"image,omitempty"`
}

// RegionValue is PeriodStats restricted to a basin region.
type RegionValue struct {
	Region string `json:"region"`
	Bias   Value  `json:"bias"`
	RMSE   Value  `json:"rmse"`
}

// Field returns the summary of a named field.
func (s *Summary) Field(name string) (*FieldSummary, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Period returns the statistics of a named period.
func (f *FieldSummary) Period(name string) (*PeriodStats, bool) {
	for i := range f.Periods {
		if f.Periods[i].Period == name {
			return &f.Periods[i], true
		}
	}
	return nil, false
}

// Value is a float64 that encodes NaN and infinities as JSON null.
type Value float64

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*v = Value(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid statistic %s: %w", b, err)
	}
	*v = Value(f)
	return nil
}

// WriteSummary stores s as indented JSON.
func WriteSummary(path string, s *Summary) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	//nolint:gosec // G301: Output directory is meant to be shared.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (*Summary, error) {
	//nolint:gosec // G304: Path comes from the served output directory.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary %s: %w", path, err)
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse summary %s: %w", path, err)
	}
	return &s, nil
}
