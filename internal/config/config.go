// Package config loads the YAML description of a MOM6 case and the
// diagnostics to run on it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"go.ngs.io/mom6-diags/internal/domain"
)

// ErrMissingCaseName is returned when case.name is not set. Plot titles and
// output file names depend on it.
var ErrMissingCaseName = errors.New("case.name is required")

// Config holds the whole diagnostics configuration. It is loaded once and
// treated as read-only afterwards.
type Config struct {
	Case    CaseConfig    `yaml:"case"`
	Avg     AvgConfig     `yaml:"avg"`
	Fnames  FnamesConfig  `yaml:"fnames"`
	Obs     ObsConfig     `yaml:"obs"`
	Output  OutputConfig  `yaml:"output"`
	Compute ComputeConfig `yaml:"compute"`

	// Fields to diagnose. Defaults to MLD, BLD and SSH.
	Fields []FieldConfig `yaml:"fields"`

	// ReferenceVar shapes zero placeholders for absent variables. Empty
	// means the first configured variable present in each file.
	ReferenceVar string `yaml:"reference_var"`

	// Regions maps a region name to basin codes in fnames.basins.
	Regions map[string][]int `yaml:"regions"`

	// baseDir is the directory of the loaded file; relative run_dir and
	// obs.catalog paths resolve against it.
	baseDir string
}

// CaseConfig identifies the run.
type CaseConfig struct {
	Name   string `yaml:"name"`
	RunDir string `yaml:"run_dir"`
	Label  string `yaml:"label"` // Appended to plot titles.
}

// AvgConfig is the averaging window [StartDate, EndDate).
type AvgConfig struct {
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
}

// FnamesConfig holds file names relative to case.run_dir.
type FnamesConfig struct {
	Static  string `yaml:"static"`
	History string `yaml:"history"` // Glob; "{case}" expands to case.name.
	Basins  string `yaml:"basins"`
	// BasinVar is the basin-code variable inside Basins.
	BasinVar string `yaml:"basin_var"`
}

// ObsConfig selects the observational climatology.
type ObsConfig struct {
	Catalog string `yaml:"catalog"`
	Dataset string `yaml:"dataset"`
}

// OutputConfig controls what is written.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	SaveFigs   *bool  `yaml:"save_figs"`
	WriteClimo bool   `yaml:"write_climo"`
	Summary    string `yaml:"summary"`
}

// ComputeConfig sizes the worker pool.
type ComputeConfig struct {
	Workers int `yaml:"workers"`
}

// FieldConfig describes one diagnosed surface field.
type FieldConfig struct {
	Name     string  `yaml:"name"`      // Short name, e.g. "MLD".
	Var      string  `yaml:"var"`       // Model variable, e.g. "mlotst".
	ObsVar   string  `yaml:"obs_var"`   // Overrides the catalog mapping.
	Units    string  `yaml:"units"`     // For plot labels.
	LongName string  `yaml:"long_name"` // For plot titles.
	Scale    float64 `yaml:"scale"`     // Multiplies model values; 0 means 1.
}

// DefaultFields are the surface fields diagnosed when none are configured.
func DefaultFields() []FieldConfig {
	return []FieldConfig{
		{Name: "MLD", Var: "mlotst", Units: "m", LongName: "Mixed Layer Depth"},
		{Name: "BLD", Var: "oml", Units: "m", LongName: "Boundary Layer Depth"},
		{Name: "SSH", Var: "SSH", Units: "m", LongName: "Sea Surface Height"},
	}
}

// Default returns a configuration with every optional key at its default.
func Default() *Config {
	saveFigs := true
	return &Config{
		Fnames: FnamesConfig{
			Static:   "ocean.mom6.static.nc",
			History:  "{case}.mom6.hm_*.nc",
			BasinVar: "basin",
		},
		Output: OutputConfig{
			Dir:      "PNG",
			SaveFigs: &saveFigs,
			Summary:  "summary.json",
		},
		Compute: ComputeConfig{Workers: 1},
		Fields:  DefaultFields(),
	}
}

// Load reads a YAML file, applies defaults and validates the result.
// Unknown keys are rejected so typos surface immediately.
func Load(path string) (*Config, error) {
	//nolint:gosec // G304: Path comes from the command line.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.baseDir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	cfg.Fields = nil

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if len(c.Fields) == 0 {
		c.Fields = DefaultFields()
	}
	for i := range c.Fields {
		if c.Fields[i].Scale == 0 {
			c.Fields[i].Scale = 1
		}
		if c.Fields[i].LongName == "" {
			c.Fields[i].LongName = c.Fields[i].Name
		}
	}
	if c.Output.SaveFigs == nil {
		c.Output.SaveFigs = def.Output.SaveFigs
	}
	if c.Output.Dir == "" {
		c.Output.Dir = def.Output.Dir
	}
	if c.Output.Summary == "" {
		c.Output.Summary = def.Output.Summary
	}
	if c.Fnames.Static == "" {
		c.Fnames.Static = def.Fnames.Static
	}
	if c.Fnames.BasinVar == "" {
		c.Fnames.BasinVar = def.Fnames.BasinVar
	}
	if c.Compute.Workers == 0 {
		c.Compute.Workers = 1
	}
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Case.Name) == "" {
		return ErrMissingCaseName
	}
	if c.Fnames.History == "" {
		return errors.New("fnames.history is required")
	}
	start, end, err := c.Window()
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("avg.start_date %s must be before avg.end_date %s", start, end)
	}
	if c.Obs.Dataset != "" && c.Obs.Catalog == "" {
		return errors.New("obs.catalog is required when obs.dataset is set")
	}
	if c.Compute.Workers < 0 {
		return fmt.Errorf("compute.workers must be >= 0, got %d", c.Compute.Workers)
	}
	if len(c.Regions) > 0 && c.Fnames.Basins == "" {
		return errors.New("regions require fnames.basins")
	}

	seen := make(map[string]bool, len(c.Fields))
	for i, f := range c.Fields {
		if f.Name == "" || f.Var == "" {
			return fmt.Errorf("fields[%d]: name and var are required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("fields[%d]: duplicate field %s", i, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Window returns the parsed averaging window.
func (c *Config) Window() (domain.Date, domain.Date, error) {
	start, err := domain.ParseDate(c.Avg.StartDate)
	if err != nil {
		return domain.Date{}, domain.Date{}, fmt.Errorf("avg.start_date: %w", err)
	}
	end, err := domain.ParseDate(c.Avg.EndDate)
	if err != nil {
		return domain.Date{}, domain.Date{}, fmt.Errorf("avg.end_date: %w", err)
	}
	return start, end, nil
}

// Variables returns the model variables of all configured fields.
func (c *Config) Variables() []string {
	vars := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		vars = append(vars, f.Var)
	}
	return vars
}

// SaveFigures reports whether PNGs should be written.
func (c *Config) SaveFigures() bool {
	return c.Output.SaveFigs == nil || *c.Output.SaveFigs
}

// StaticPath returns the static grid file path.
func (c *Config) StaticPath() string {
	return c.resolve(c.Fnames.Static)
}

// HistoryPattern returns the history glob with {case} expanded.
func (c *Config) HistoryPattern() string {
	return c.resolve(strings.ReplaceAll(c.Fnames.History, "{case}", c.Case.Name))
}

// BasinsPath returns the basin-code file path, or "".
func (c *Config) BasinsPath() string {
	if c.Fnames.Basins == "" {
		return ""
	}
	return c.resolve(c.Fnames.Basins)
}

// CatalogPath returns the observational catalog path.
func (c *Config) CatalogPath() string {
	return c.fromBase(c.Obs.Catalog)
}

// OutputDir returns the directory receiving figures, climatologies and
// the summary. A relative output.dir resolves against the config file.
func (c *Config) OutputDir() string {
	return c.fromBase(c.Output.Dir)
}

// SummaryPath returns the summary JSON path inside OutputDir.
func (c *Config) SummaryPath() string {
	if filepath.IsAbs(c.Output.Summary) {
		return c.Output.Summary
	}
	return filepath.Join(c.OutputDir(), c.Output.Summary)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if c.Case.RunDir == "" {
		return c.fromBase(name)
	}
	return filepath.Join(c.fromBase(c.Case.RunDir), name)
}

func (c *Config) fromBase(p string) string {
	if p == "" || filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
