package calib

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rhist"
	"go-hep.org/x/hep/hbook"
)

func TestFindBin(t *testing.T) {
	tbl := &Table1D{Edges: []float64{0, 1, 2}, Values: []float64{10, 20}}
	require.NoError(t, tbl.Validate())
	for _, tc := range []struct {
		x    float64
		want int
	}{
		{-1, 0}, {0, 0}, {0.999, 0}, {1, 1}, {1.5, 1}, {2, 1}, {50, 1}, {math.NaN(), 0},
	} {
		assert.Equal(t, tc.want, tbl.Bin(tc.x), "x=%v", tc.x)
	}
	assert.Equal(t, 20.0, tbl.Value(7))
}

func TestTableValidate(t *testing.T) {
	assert.Error(t, (&Table1D{Edges: []float64{0}}).Validate())
	assert.Error(t, (&Table1D{Edges: []float64{0, 1}, Values: []float64{1, 2}}).Validate())
	assert.Error(t, (&Table1D{Edges: []float64{1, 0}, Values: []float64{1}}).Validate())
	assert.Error(t, (&Table2D{XEdges: []float64{0, 1}, YEdges: []float64{0, 1}, Values: [][]float64{{1, 2}}}).Validate())
}

func TestFromH1D(t *testing.T) {
	h := hbook.NewH1D(2, 0, 2)
	h.Fill(0.5, 2)
	h.Fill(0.5, 1)
	h.Fill(1.5, 3)

	tbl := FromH1D(h)
	assert.Equal(t, []float64{0, 1, 2}, tbl.Edges)
	assert.Equal(t, []float64{3, 3}, tbl.Values)
	v, err := tbl.Lookup(0.2)
	assert.Equal(t, 3.0, v)
	assert.InDelta(t, math.Sqrt(5), err, 1e-12)
}

func TestFromH2D(t *testing.T) {
	h := hbook.NewH2D(2, 0, 2, 3, 0, 3)
	h.Fill(1.5, 0.5, 4)
	h.Fill(0.5, 2.5, 1)

	tbl := FromH2D(h)
	require.NoError(t, tbl.Validate())
	assert.Equal(t, []float64{0, 1, 2}, tbl.XEdges)
	assert.Equal(t, []float64{0, 1, 2, 3}, tbl.YEdges)
	v, _ := tbl.Lookup(1.2, 0.1)
	assert.Equal(t, 4.0, v)
	v, _ = tbl.Lookup(-3, 9)
	assert.Equal(t, 1.0, v, "overflow clamps to the edge bins")
}

func TestReadH1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pu.root")
	f, err := groot.Create(path)
	require.NoError(t, err)
	h := hbook.NewH1D(3, 0, 3)
	h.Fill(1.5, 2)
	require.NoError(t, f.Put("pu_mc", rhist.NewH1DFrom(h)))
	require.NoError(t, f.Close())

	tbl, err := ReadH1(path, "pu_mc")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 0}, tbl.Values)

	_, err = ReadH1(path, "pileup")
	assert.ErrorIs(t, err, ErrCalibrationMissing)

	_, err = ReadH1(filepath.Join(t.TempDir(), "absent.root"), "pu_mc")
	assert.ErrorIs(t, err, ErrCalibrationMissing)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Path, "absent.root")
}

func profile(v ...float64) *Table1D {
	edges := make([]float64, len(v)+1)
	for i := range edges {
		edges[i] = float64(10 * i)
	}
	return &Table1D{Edges: edges, Values: v}
}

func TestPileup(t *testing.T) {
	pu, err := NewPileup(profile(1, 1, 2, 0), profile(1, 2, 1, 1), profile(0, 2, 2, 1), profile(2, 1, 1, 1))
	require.NoError(t, err)

	for _, tc := range []struct {
		nTrueInt float64
		want     []float64
	}{
		{15, []float64{1.6, 1.6, 0.8}},
		{-5, []float64{0.8, 0, 1.6}},
		{100, []float64{1, 1, 1}}, // no simulated events
	} {
		w := pu.Weights(tc.nTrueInt)
		assert.InDeltaSlice(t, tc.want, w[:], 1e-12, "nTrueInt=%v", tc.nTrueInt)
	}

	_, err = NewPileup(profile(1, 1), profile(1), profile(1), profile(1))
	assert.Error(t, err)
}

func TestEfficiencySF(t *testing.T) {
	sf, err := NewEfficiencySF(&Table2D{
		XEdges: []float64{0, 1.2, 2.4},
		YEdges: []float64{20, 50, 1000},
		Values: [][]float64{{0.9, 0.95}, {0.8, 0.85}},
		Errors: [][]float64{{0.01, 0.02}, {0.03, 0.04}},
	})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0.85, 0.89, 0.81}, sf.Variations([]float64{60}, []float64{-1.5}), 1e-12)
	assert.Equal(t, []float64{1, 1, 1}, sf.Variations([]float64{60, 70}, []float64{0, 0}))
	assert.Equal(t, []float64{1, 1, 1}, sf.Variations(nil, nil))
}

func TestFormula(t *testing.T) {
	f, err := CompileFormula("TMath::Log(x)*2")
	require.NoError(t, err)
	v, err := f.Eval(math.E)
	require.NoError(t, err)
	assert.InDelta(t, 2, v, 1e-12)

	f, err = CompileFormula("pow(x, 2.0) + sqrt(x)")
	require.NoError(t, err)
	v, err = f.Eval(4)
	require.NoError(t, err)
	assert.InDelta(t, 18, v, 1e-12)

	_, err = CompileFormula("x +")
	assert.Error(t, err)
}

func TestTauVsJet(t *testing.T) {
	var s TauVsJet
	var err error
	s.Nom, err = CompileFormula("0.9")
	require.NoError(t, err)
	s.Up, err = CompileFormula("0.9 + x/1000")
	require.NoError(t, err)
	s.Down, err = CompileFormula("0.85")
	require.NoError(t, err)

	out, err := s.Variations([]float64{50, 40}, []int64{GenMatchTauHadronic, GenMatchElectron})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.9, 0.95, 0.85}, out[0], 1e-12)
	assert.Equal(t, []float64{1, 1, 1}, out[1])
}

func TestTauVsLepton(t *testing.T) {
	tbl := &Table1D{Edges: []float64{0, 1.5, 2.3}, Values: []float64{1.2, 1.4}, Errors: []float64{0.1, 0.2}}
	vse, err := NewTauVsElectron(tbl)
	require.NoError(t, err)
	vsmu, err := NewTauVsMuon(tbl)
	require.NoError(t, err)

	eta := []float64{-2, 0.3}
	gm := []int64{GenMatchTauElectron, GenMatchMuon}
	e := vse.Variations(eta, gm)
	assert.InDeltaSlice(t, []float64{1.4, 1.6, 1.2}, e[0], 1e-12)
	assert.Equal(t, []float64{1, 1, 1}, e[1])
	m := vsmu.Variations(eta, gm)
	assert.Equal(t, []float64{1, 1, 1}, m[0])
	assert.InDeltaSlice(t, []float64{1.2, 1.3, 1.1}, m[1], 1e-12)
}

func TestTauES(t *testing.T) {
	edges := []float64{-0.5, 0.5, 1.5, 9.5, 10.5}
	tes, err := NewTauES(
		&Table1D{Edges: edges, Values: []float64{1, 1.01, 1, 0.98}, Errors: []float64{0.01, 0.02, 0, 0.03}},
		&Table1D{Edges: edges, Values: []float64{1, 1, 1, 1}, Errors: []float64{0.03, 0.04, 0, 0.05}},
	)
	require.NoError(t, err)

	out := tes.Variations(
		[]float64{30, 102, 200, 50, 50, 50},
		[]int64{0, 0, 1, 10, 2, 0},
		[]int64{5, 5, 5, 5, 5, 6},
	)
	assert.InDeltaSlice(t, []float64{1.01, 0.99}, out[0], 1e-12)
	assert.InDeltaSlice(t, []float64{1.02, 0.98}, out[1], 1e-12, "halfway between low and high pt")
	assert.InDeltaSlice(t, []float64{1.05, 0.97}, out[2], 1e-12)
	assert.InDelta(t, 0.98+0.03+0.02*(16./136), out[3][0], 1e-12)
	assert.Equal(t, []float64{1, 1}, out[4], "decay mode 2 is not corrected")
	assert.Equal(t, []float64{1, 1}, out[5], "fakes are not corrected")

	assert.Equal(t, []float64{1, 1.01, 0.98, 1}, tes.Nominal([]int64{0, 1, 10, 1}, []int64{5, 5, 5, 2}))
}

func TestTauFES(t *testing.T) {
	fes := &TauFES{
		Barrel: map[int64][3]float64{0: {0.99, 1, 1.01}},
		Endcap: map[int64][3]float64{1: {0.97, 1, 1.04}},
	}
	out := fes.Variations(
		[]float64{0.5, 2, 2, 0.5},
		[]int64{0, 0, 1, 0},
		[]int64{GenMatchElectron, GenMatchTauElectron, GenMatchElectron, GenMatchTauHadronic},
	)
	assert.Equal(t, [][]float64{{1.01, 0.99}, {1, 1}, {1.04, 0.97}, {1, 1}}, out)
	assert.Equal(t, []float64{1, 1, 1, 1}, fes.Nominal([]float64{0.5, 2, 2, 0.5}, []int64{0, 0, 1, 0}, []int64{1, 3, 1, 5}))
}

const btagCSV = `OperatingPoint, measurementType, sysType, jetFlavor, etaMin, etaMax, ptMin, ptMax, discrMin, discrMax, formula
3, iterativefit, central, 0, 0, 2.5, 20, 1000, 0, 1, "1.1"
3, iterativefit, up_hf, 0, 0, 2.5, 20, 1000, 0, 1, "1.2"
3, iterativefit, central, 1, 0, 2.5, 20, 1000, 0, 1, "1.0"
3, iterativefit, up_cferr1, 1, 0, 2.5, 20, 1000, 0, 1, "1.5"
3, iterativefit, central, 2, 0, 2.5, 20, 1000, 0, 1, "0.9+x"
3, iterativefit, up_hf, 2, 0, 2.5, 20, 1000, 0, 1, "0.9"
1, comb, central, 0, 0, 2.5, 20, 1000, 0, 1, "bad formula +"
`

func TestBTagReshape(t *testing.T) {
	b, err := ReadBTagCSV(strings.NewReader(btagCSV), OpReshaping, "iterativefit")
	require.NoError(t, err)

	sf, err := b.EvalAutoBounds("central", FlavorUDSG, -1, 45, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, sf, 1e-12, "reshaping formulas take the discriminant")

	sf, err = b.EvalAutoBounds("central", FlavorB, 3, 45, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sf, "outside eta range")

	sf, err = b.EvalAutoBounds("up_hf", FlavorB, 0.5, 2000, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.3, sf, 1e-12, "out of pt range doubles the deviation")

	pt := []float64{50, 60, 30, 45}
	eta := []float64{0.5, -1, 0.3, 1}
	discr := []float64{0.8, 0.2, 0.5, 0.05}
	flav := []int64{5, 4, 0, 0}
	w, err := b.ReshapeWeights([]string{"central", "up_hf", "up_cferr1"}, pt, eta, discr, flav)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.1 * 0.95, 1.2 * 0.9, 1.5}, w, 1e-12)

	jes := [][]float64{{1, 0.5}, {1, 0.5}, {1.5, 1}, {1, 1}}
	w, err = b.ReshapeWeightsJES([]string{"central", "up_hf"}, pt, eta, discr, flav, jes)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.1 * 1.0 * 1.4 * 0.95, 0.9}, w, 1e-12)

	_, err = b.Eval("down_lf", FlavorB, 0, 50, 0.5)
	assert.Error(t, err)
}

func TestBTagCSVErrors(t *testing.T) {
	_, err := ReadBTagCSV(strings.NewReader(btagCSV), OpMedium, "comb")
	assert.Error(t, err, "formula does not compile")

	_, err = LoadBTagCSV(filepath.Join(t.TempDir(), "absent.csv"), OpReshaping, "iterativefit")
	assert.ErrorIs(t, err, ErrCalibrationMissing)
}

func TestVariations(t *testing.T) {
	vars := JESVariations("2016post")
	assert.Contains(t, vars, "up_jesAbsolute_2016")
	assert.Contains(t, vars, "down_jesRelativeSample_2016")

	idx, err := JESIndex("down_jesEC2", vars)
	require.NoError(t, err)
	assert.Equal(t, 5, idx)
	idx, err = JESIndex("jerup", vars)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
	_, err = JESIndex("up_jesUnknown", vars)
	assert.Error(t, err)

	assert.Equal(t, 1, JERIndex("jerup"))
	assert.Equal(t, 2, JERIndex("jerdown"))
	assert.Equal(t, 0, JERIndex("tesup"))
	assert.Equal(t, 0, JERIndex(""))
	assert.Equal(t, 0, TESIndex("tesup"))
	assert.Equal(t, 1, TESIndex("tesdown"))
	assert.Equal(t, -1, TESIndex("jerup"))

	factors := [][]float64{{1.1, 1.2}, {math.NaN(), -1}, {math.Inf(1)}}
	assert.Equal(t, []float64{1.2, 1, 1}, Select(factors, 1))
	assert.Equal(t, []float64{1.1, 1, 1}, Select(factors, 0))
	assert.Equal(t, []float64{1, 1, 1}, Select(factors, -1))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "btag.csv"), []byte(btagCSV), 0o644))
	cfg := `
pileup:
  mc:   {edges: [0, 10, 20], values: [1, 1]}
  data: {edges: [0, 10, 20], values: [1, 3]}
  up:   {edges: [0, 10, 20], values: [1, 1]}
  down: {edges: [0, 10, 20], values: [3, 1]}
muon:
  id:
    xedges: [0, 2.4]
    yedges: [20, 1000]
    values: [[0.98]]
    errors: [[0.01]]
  iso: {root: absent.root, name: NUM_TightRelIso_DEN_TightIDandIPCut}
tau:
  vsjet: {nom: "0.9", up: "0.95", down: "0.85"}
  fes:
    barrel: {0: [0.99, 1.0, 1.01]}
    endcap: {}
btag:
  csv: btag.csv
`
	path := filepath.Join(dir, "calib.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	set, err := Load(path, nil)
	require.NoError(t, err)
	require.NotNil(t, set.Pileup)
	assert.InDelta(t, 1.5, set.Pileup.Weights(15)[0], 1e-12)
	require.NotNil(t, set.MuonID)
	assert.InDeltaSlice(t, []float64{0.98, 0.99, 0.97}, set.MuonID.Variations([]float64{60}, []float64{1}), 1e-12)
	assert.Nil(t, set.MuonIso, "missing file is skipped")
	assert.Nil(t, set.MuonTrigger)
	require.NotNil(t, set.TauVsJet)
	assert.Equal(t, [3]float64{0.99, 1, 1.01}, set.TauFES.Barrel[0])
	require.NotNil(t, set.BTag)
	assert.Nil(t, set.BTagJES)

	_, err = Load(filepath.Join(dir, "absent.yaml"), nil)
	assert.ErrorIs(t, err, ErrCalibrationMissing)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("muon:\n  id: {xedges: [0], yedges: [0, 1], values: []}\n"), 0o644))
	_, err = Load(bad, nil)
	assert.Error(t, err)
}
