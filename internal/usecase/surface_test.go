package usecase

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"go.ngs.io/mom6-diags/internal/adapter/store/obs"
	"go.ngs.io/mom6-diags/internal/config"
	"go.ngs.io/mom6-diags/internal/domain"
	"go.ngs.io/mom6-diags/internal/synth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const mldBias = 5.0

// writeSyntheticCase lays out three model years with oml missing from the
// second year, a monthly observational climatology and its catalog.
func writeSyntheticCase(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	c, err := synth.WriteCase(dir, synth.CaseOptions{
		Name:     "synth",
		Years:    3,
		DropVars: map[int][]string{1: {"oml"}},
		Bias:     mldBias,
	})
	require.NoError(t, err)

	catalog := &obs.Catalog{Datasets: map[string]obs.Entry{
		"synth-obs": {
			Path:        filepath.Base(c.Obs),
			Description: "synthetic surface climatology",
			Variables:   map[string]string{"MLD": "mld", "SSH": "ssh"},
		},
	}}
	require.NoError(t, catalog.Save(filepath.Join(dir, "catalog.yml")))
	return dir
}

func writeConfig(t *testing.T, dir, extra string) *config.Config {
	t.Helper()
	doc := `
case:
  name: synth
  label: unit test
avg:
  start_date: "0002-01-01"
  end_date: "0004-01-01"
fnames:
  basins: ocean.mom6.static.nc
obs:
  catalog: catalog.yml
  dataset: synth-obs
output:
  dir: out
  write_climo: true
compute:
  workers: 2
regions:
  South: [1]
  North: [2]
` + extra
	path := filepath.Join(dir, "diag_config.yml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	dir := writeSyntheticCase(t)
	cfg := writeConfig(t, dir, "")

	summary, err := NewSurfaceDiagnostics(zaptest.NewLogger(t)).Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "synth", summary.Case)
	assert.Equal(t, "noleap", summary.Calendar)
	assert.Equal(t, 24, summary.Records)
	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, []string{"synth.mom6.hm_0001.nc", "synth.mom6.hm_0002.nc", "synth.mom6.hm_0003.nc"}, summary.Sources)
	assert.Equal(t, 2, summary.Workers)
	assert.Equal(t, []string{"oml"}, summary.Placeholders)
	require.Len(t, summary.Fields, 3)

	mld, ok := summary.Field("MLD")
	require.True(t, ok)
	assert.Empty(t, mld.Skipped)
	assert.Equal(t, "mld", mld.ObsVar)
	assert.False(t, mld.Placeholder)
	require.Len(t, mld.Periods, 17)
	for _, ps := range mld.Periods {
		assert.InDelta(t, mldBias, float64(ps.Bias), 1e-3, ps.Period)
		assert.InDelta(t, mldBias, float64(ps.RMSE), 1e-3, ps.Period)
		require.Len(t, ps.Regions, 2, ps.Period)
		assert.Equal(t, "North", ps.Regions[0].Region)
		assert.InDelta(t, mldBias, float64(ps.Regions[0].Bias), 1e-3)
	}
	ann, ok := mld.Period("ANN")
	require.True(t, ok)
	assert.Equal(t, 12, ann.Months)
	assert.Equal(t, "synth_MLD_ANN.png", ann.Image)
	assert.Contains(t, mld.Images, "synth_MLD_cycle.png")
	assert.Len(t, mld.Images, 6)
	assert.Equal(t, "synth_MLD_climo.nc", mld.Climo)

	bld, ok := summary.Field("BLD")
	require.True(t, ok)
	assert.True(t, bld.Placeholder)
	assert.Empty(t, bld.ObsVar)
	djf, ok := bld.Period("DJF")
	require.True(t, ok)
	assert.True(t, math.IsNaN(float64(djf.Bias)))
	assert.Len(t, bld.Images, 5)

	ssh, ok := summary.Field("SSH")
	require.True(t, ok)
	annSSH, ok := ssh.Period("ANN")
	require.True(t, ok)
	assert.InDelta(t, 0, float64(annSSH.Bias), 0.02)

	outDir := filepath.Join(dir, "out")
	for _, f := range summary.Fields {
		for _, img := range f.Images {
			assert.FileExists(t, filepath.Join(outDir, img))
		}
	}

	again, err := ReadSummary(filepath.Join(outDir, "summary.json"))
	require.NoError(t, err)
	assert.Equal(t, summary.Records, again.Records)
	bldAgain, ok := again.Field("BLD")
	require.True(t, ok)
	djfAgain, ok := bldAgain.Period("DJF")
	require.True(t, ok)
	assert.True(t, math.IsNaN(float64(djfAgain.Bias)))
}

func TestRun_ImagesAreReproducible(t *testing.T) {
	dir := writeSyntheticCase(t)
	first := writeConfig(t, dir, "")
	_, err := NewSurfaceDiagnostics(nil).Run(context.Background(), first)
	require.NoError(t, err)

	first.Output.Dir = "out2"
	first.Compute.Workers = 1
	_, err = NewSurfaceDiagnostics(nil).Run(context.Background(), first)
	require.NoError(t, err)

	for _, name := range []string{"synth_MLD_ANN.png", "synth_SSH_DJF.png", "synth_MLD_cycle.png"} {
		a, err := os.ReadFile(filepath.Join(dir, "out", name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dir, "out2", name))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(a, b), name)
	}
}

func TestRun_SaveFigsFalseWritesNoImages(t *testing.T) {
	dir := writeSyntheticCase(t)
	cfg := writeConfig(t, dir, "")
	off := false
	cfg.Output.SaveFigs = &off
	cfg.Output.WriteClimo = false

	summary, err := NewSurfaceDiagnostics(nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	for _, f := range summary.Fields {
		assert.Empty(t, f.Images, f.Name)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "out", "*.png"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.FileExists(t, filepath.Join(dir, "out", "summary.json"))
}

func TestRun_WindowWithoutRecords(t *testing.T) {
	dir := writeSyntheticCase(t)
	cfg := writeConfig(t, dir, "")
	cfg.Avg.StartDate, cfg.Avg.EndDate = "0100-01-01", "0101-01-01"

	_, err := NewSurfaceDiagnostics(nil).Run(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrNoRecords)
}

func TestRun_HistoryWithoutRecords(t *testing.T) {
	dir := writeSyntheticCase(t)
	cfg := writeConfig(t, dir, "")
	cfg.Case.Name = "empty"
	require.NoError(t, synth.WriteHistory(filepath.Join(dir, "empty.mom6.hm_0001.nc"), synth.DefaultGrid(), synth.History{
		Units:    "days since 0001-01-01 00:00:00",
		Calendar: "noleap",
		Vars: map[string]synth.FieldFunc{
			"mlotst": synth.MixedLayerDepth,
		},
	}))

	_, err := NewSurfaceDiagnostics(zaptest.NewLogger(t)).Run(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrNoRecords)
}

// Four workers read history files and write climatology files concurrently;
// the result must match a serial run.
func TestRun_FourWorkersMatchSerial(t *testing.T) {
	dir := writeSyntheticCase(t)
	serialCfg := writeConfig(t, dir, "")
	serialCfg.Compute.Workers = 1
	serialCfg.Output.Dir = filepath.Join(dir, "serial")
	serial, err := NewSurfaceDiagnostics(nil).Run(context.Background(), serialCfg)
	require.NoError(t, err)

	cfg := writeConfig(t, dir, "")
	cfg.Compute.Workers = 4
	cfg.Output.Dir = filepath.Join(dir, "parallel")
	parallel, err := NewSurfaceDiagnostics(zaptest.NewLogger(t)).Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, parallel.Workers)
	assert.Equal(t, serial.Records, parallel.Records)
	assert.Equal(t, serial.Sources, parallel.Sources)
	require.Len(t, parallel.Fields, len(serial.Fields))
	for i, want := range serial.Fields {
		got := parallel.Fields[i]
		assert.Equal(t, want.Name, got.Name)
		require.Len(t, got.Periods, len(want.Periods), want.Name)
		for k, wp := range want.Periods {
			gp := got.Periods[k]
			assertSameValue(t, wp.Bias, gp.Bias, "%s %s bias", want.Name, wp.Period)
			assertSameValue(t, wp.RMSE, gp.RMSE, "%s %s rmse", want.Name, wp.Period)
		}
		if want.Climo != "" {
			assert.FileExists(t, filepath.Join(dir, "parallel", got.Climo))
		}
	}
}

// assertSameValue treats two NaNs as equal.
func assertSameValue(t *testing.T, want, got Value, msgAndArgs ...interface{}) {
	t.Helper()
	if math.IsNaN(float64(want)) {
		assert.True(t, math.IsNaN(float64(got)), msgAndArgs...)
		return
	}
	assert.Equal(t, want, got, msgAndArgs...)
}

func TestRun_UnknownObsDataset(t *testing.T) {
	dir := writeSyntheticCase(t)
	cfg := writeConfig(t, dir, "")
	cfg.Obs.Dataset = "woa18"

	_, err := NewSurfaceDiagnostics(nil).Run(context.Background(), cfg)
	require.ErrorIs(t, err, obs.ErrUnknownDataset)
}

func TestRun_MissingFieldIsSkipped(t *testing.T) {
	dir := writeSyntheticCase(t)
	cfg := writeConfig(t, dir, "fields:\n  - {name: MLD, var: mlotst}\n  - {name: SST, var: tos}\n")

	summary, err := NewSurfaceDiagnostics(nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	// tos is in no file: it is zero-filled like mlotst, then has no obs.
	sst, ok := summary.Field("SST")
	require.True(t, ok)
	assert.True(t, sst.Placeholder)
	assert.Empty(t, sst.Skipped)
	ann, ok := sst.Period("ANN")
	require.True(t, ok)
	assert.True(t, math.IsNaN(float64(ann.Bias)))
}

func TestRun_CancelledContext(t *testing.T) {
	dir := writeSyntheticCase(t)
	cfg := writeConfig(t, dir, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSurfaceDiagnostics(nil).Run(ctx, cfg)
	require.ErrorIs(t, err, context.Canceled)
}

func TestValue_JSON(t *testing.T) {
	for _, tc := range []struct {
		in   Value
		want string
	}{
		{Value(1.5), "1.5"},
		{Value(math.NaN()), "null"},
		{Value(math.Inf(1)), "null"},
		{Value(-2e-7), "-2e-07"},
	} {
		t.Run(fmt.Sprint(float64(tc.in)), func(t *testing.T) {
			raw, err := tc.in.MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(raw))

			var back Value
			require.NoError(t, back.UnmarshalJSON(raw))
			if math.IsNaN(float64(tc.in)) || math.IsInf(float64(tc.in), 0) {
				assert.True(t, math.IsNaN(float64(back)))
				return
			}
			assert.Equal(t, tc.in, back)
		})
	}
}
