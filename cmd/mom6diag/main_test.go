package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/mom6-diags/internal/config"
)

const configYAML = `
case:
  name: from-config
  label: config label
avg:
  start_date: "0002-01-01"
  end_date: "0004-01-01"
output:
  dir: PNG
compute:
  workers: 2
`

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "cfgdir")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	path := filepath.Join(dir, "diag_config.yml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func parseRunFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestApplyOverrides_NoFlagsKeepsConfig(t *testing.T) {
	cfg := loadConfig(t)
	require.NoError(t, applyOverrides(parseRunFlags(t), cfg))

	assert.Equal(t, "from-config", cfg.Case.Name)
	assert.Equal(t, "config label", cfg.Case.Label)
	assert.Equal(t, "0002-01-01", cfg.Avg.StartDate)
	assert.Equal(t, 2, cfg.Compute.Workers)
	assert.Equal(t, "PNG", cfg.Output.Dir)
}

func TestApplyOverrides_CaseAndWindow(t *testing.T) {
	cfg := loadConfig(t)
	cmd := parseRunFlags(t, "--case", "other", "--start", "0010-01-01", "--end", "0020-01-01", "--workers", "4")
	require.NoError(t, applyOverrides(cmd, cfg))

	assert.Equal(t, "other", cfg.Case.Name)
	assert.Contains(t, cfg.HistoryPattern(), "other.mom6.hm_")
	start, end, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, 10, start.Year)
	assert.Equal(t, 20, end.Year)
	assert.Equal(t, 4, cfg.Compute.Workers)
}

func TestApplyOverrides_RejectsInvalidWindow(t *testing.T) {
	cfg := loadConfig(t)
	err := applyOverrides(parseRunFlags(t, "--start", "0030-01-01"), cfg)
	assert.Error(t, err, "start after the configured end")

	cfg = loadConfig(t)
	err = applyOverrides(parseRunFlags(t, "--case", " "), cfg)
	assert.ErrorIs(t, err, config.ErrMissingCaseName)

	cfg = loadConfig(t)
	err = applyOverrides(parseRunFlags(t, "--workers", "-1"), cfg)
	assert.Error(t, err)
}

func TestApplyOverrides_OutIsRelativeToWorkingDirectory(t *testing.T) {
	cfg := loadConfig(t)
	require.NoError(t, applyOverrides(parseRunFlags(t, "--out", "results"), cfg))

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "results"), cfg.OutputDir())
	assert.NotContains(t, cfg.OutputDir(), "cfgdir")
}
