package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/seltree"
)

const description = `
year: "2018"
syst: tesup
calib: calib/2018.yaml
golden: /data/golden.json
defaulttree: true
muptcuts: [50, 60]
variables:
  - {name: lead_pt, expr: "len(Muon_pt) > 0 ? Muon_pt[0] : -1.0", kind: float, position: ""}
  - {name: x2, expr: "x * 2", position: "0"}
cuts:
  - {expr: "lead_pt > 50", parent: ""}
  - {expr: "x2 > 1", parent: "0"}
histograms:
  - {name: hlead, bins: 10, lo: 0, hi: 100, value: lead_pt, weight: w, position: ""}
store: ["lead_pt", "x.*"]
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lfv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(description), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2018", f.Year)
	assert.Equal(t, "tesup", f.Syst)
	assert.Equal(t, filepath.Join(dir, "calib", "2018.yaml"), f.Calib)
	assert.Equal(t, "/data/golden.json", f.Golden)
	assert.True(t, f.DefaultTree)
	assert.Equal(t, []float64{50, 60}, f.MuonPtCuts)
	assert.Len(t, f.Variables, 2)

	_, err = Load(filepath.Join(dir, "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadUnknownKey(t *testing.T) {
	_, err := Read([]byte("cutz: []\n"))
	assert.Error(t, err)
}

// The registry built from the file matches one built by hand.
func TestApply(t *testing.T) {
	f, err := Read([]byte(description))
	require.NoError(t, err)
	got := seltree.NewRegistry()
	require.NoError(t, f.Apply(got))

	want := seltree.NewRegistry()
	require.NoError(t, want.AddVariable("lead_pt", frame.CodeAs(frame.Float, "len(Muon_pt) > 0 ? Muon_pt[0] : -1.0"), ""))
	require.NoError(t, want.AddVariable("x2", frame.Code("x * 2"), "0"))
	require.NoError(t, want.AddCut(frame.Code("lead_pt > 50"), ""))
	require.NoError(t, want.AddCut(frame.Code("x2 > 1"), "0"))
	require.NoError(t, want.Add1DHistogram(frame.HistModel{Name: "hlead", Title: "hlead", Bins: 10, Lo: 0, Hi: 100}, "lead_pt", "w", ""))
	require.NoError(t, want.AddVarToStore("lead_pt"))
	require.NoError(t, want.AddVarToStore("x.*"))

	assert.Equal(t, want.Variables(), got.Variables())
	assert.Equal(t, want.Cuts(), got.Cuts())
	assert.Equal(t, want.Histograms(), got.Histograms())
	require.Len(t, got.StorePatterns(), 2)
	for i, p := range want.StorePatterns() {
		assert.Equal(t, p.Pattern, got.StorePatterns()[i].Pattern)
	}
}

func TestApplyErrors(t *testing.T) {
	f, err := Read([]byte(`
variables:
  - {name: a, expr: "1", kind: complex}
  - {name: b, position: ""}
cuts:
  - {expr: "a > 1", parent: "0?"}
histograms:
  - {name: h, bins: 0, lo: 0, hi: 1, value: a}
store: ["("]
`))
	require.NoError(t, err)
	err = f.Apply(seltree.NewRegistry())
	require.Error(t, err)

	var ce *seltree.ConfigError
	assert.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "unknown kind")
	assert.Contains(t, err.Error(), "empty expression")
}

func TestParseKind(t *testing.T) {
	for _, k := range []frame.Kind{frame.Float, frame.Int, frame.Bool, frame.Floats, frame.Ints, frame.Bools, frame.FloatsVec} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("double")
	assert.Error(t, err)
}
