package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rhist"
	"go-hep.org/x/hep/groot/rtree"
	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hbook/rootcnv"

	"github.com/decibelcooper/nanoaodframe/analysis"
	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/seltree"
)

func TestLeafName(t *testing.T) {
	for _, tc := range []struct {
		base, pos string
		n         int
		want      string
	}{
		{"out.root", "", 1, "out.root"},
		{"out.root", "0", 1, "out.root"},
		{"out.root", "01", 3, "out_01.root"},
		{"dir.v2/out.root", "a", 2, "dir.v2/out_a.root"},
		{"out", "1", 2, "out_1"},
	} {
		assert.Equal(t, tc.want, LeafName(tc.base, tc.pos, tc.n), "%+v", tc)
	}
}

func muonFrame(t *testing.T) *frame.Frame {
	t.Helper()
	tbl := frame.NewTable(
		frame.Column{Name: "run", Kind: frame.Int},
		frame.Column{Name: "pt", Kind: frame.Float},
		frame.Column{Name: "genWeight", Kind: frame.Float},
		frame.Column{Name: "Muon_pt", Kind: frame.Floats},
	)
	rows := []struct {
		pt, w float64
		mu    []float64
	}{
		{10, 1, []float64{11}},
		{30, 2, []float64{31, 5}},
		{60, 1, nil},
		{90, 0.5, []float64{95}},
	}
	for _, r := range rows {
		require.NoError(t, tbl.Append(1, r.pt, r.w, r.mu))
	}
	return frame.New(tbl)
}

func branchingTree(t *testing.T, fr *frame.Frame) (*seltree.Tree, *seltree.Registry) {
	t.Helper()
	r := seltree.NewRegistry()
	require.NoError(t, r.AddVariable("nmu", frame.Size("Muon_pt"), ""))
	require.NoError(t, r.AddCut(frame.Code("pt > 20"), ""))
	require.NoError(t, r.AddCut(frame.Code("pt < 50"), ""))
	require.NoError(t, r.AddCut(frame.Code("pt > 50"), "0"))
	require.NoError(t, r.Add1DHistogram(frame.HistModel{Name: "hpt", Title: "pt", Bins: 10, Lo: 0, Hi: 100}, "pt", "genWeight", ""))
	require.NoError(t, r.Add1DHistogram(frame.HistModel{Name: "hmu", Bins: 10, Lo: 0, Hi: 100}, "Muon_pt", "", "0"))
	require.NoError(t, r.AddVarToStore("pt"))
	require.NoError(t, r.AddVarToStore("Muon_.*"))
	require.NoError(t, r.AddVarToStore("nmu"))

	tr := seltree.New(fr.Root())
	require.NoError(t, tr.Book(r))
	return tr, r
}

func readStream(t *testing.T, path string) *Stream {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	s, err := ReadStream(f)
	require.NoError(t, err)
	return s
}

func histNames(s *Stream) []string {
	var out []string
	for _, h := range s.Hists {
		out = append(out, h.Name)
	}
	return out
}

func TestMaterializeSingleLeafKeepsBase(t *testing.T) {
	fr := muonFrame(t)
	r := seltree.NewRegistry()
	require.NoError(t, r.AddVarToStore("pt"))
	tr := seltree.New(fr.Root())
	require.NoError(t, tr.Book(r))

	base := filepath.Join(t.TempDir(), "out.msgpack")
	res, err := NewMaterializer(base, MsgpackSink{}).Run(context.Background(), tr, r.StorePatterns())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, base, res[0].Dest)
	assert.EqualValues(t, 4, res[0].Rows)

	s := readStream(t, base)
	assert.Equal(t, []ColumnMeta{{Name: "pt", Kind: "float"}}, s.Columns)
	require.Len(t, s.Rows, 4)
	v, err := frame.Convert(s.Rows[2][0], frame.Float)
	require.NoError(t, err)
	assert.Equal(t, 60.0, v)
}

func TestMaterializeLeaves(t *testing.T) {
	fr := muonFrame(t)
	tr, r := branchingTree(t, fr)

	extra := hbook.NewH1D(3, 0, 3)
	extra.Annotation()["name"] = "LHEPdfWeightSum"

	base := filepath.Join(t.TempDir(), "out.msgpack")
	m := NewMaterializer(base, MsgpackSink{}, WithCutflow("genWeight"), WithHistograms(extra))
	res, err := m.Run(context.Background(), tr, r.StorePatterns())
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 1, fr.Loops(), "all leaves in one event loop")

	dir := filepath.Dir(base)
	assert.Equal(t, "00", res[0].Position)
	assert.Equal(t, filepath.Join(dir, "out_00.msgpack"), res[0].Dest)
	assert.EqualValues(t, 2, res[0].Rows)
	assert.Equal(t, "1", res[1].Position)
	assert.Equal(t, filepath.Join(dir, "out_1.msgpack"), res[1].Dest)
	assert.EqualValues(t, 2, res[1].Rows)

	s00 := readStream(t, res[0].Dest)
	assert.Equal(t, []string{"pt", "Muon_pt", "nmu"}, []string{s00.Columns[0].Name, s00.Columns[1].Name, s00.Columns[2].Name})
	assert.Equal(t, []string{"hpt", "hpt_S1", "hmu_S1", "hpt_S2", "hmu_S2", CutflowName, "LHEPdfWeightSum"}, histNames(s00))

	cut := s00.Hist(CutflowName)
	require.NotNil(t, cut)
	assert.Equal(t, []float64{4.5, 3.5, 1.5}, cut.SumW)

	hmu := s00.Hist("hmu_S2")
	require.NotNil(t, hmu)
	assert.EqualValues(t, 1, hmu.Entries, "one muon in events with pt > 50")

	s1 := readStream(t, res[1].Dest)
	assert.Equal(t, []string{"hpt", "hpt_S1", CutflowName, "LHEPdfWeightSum"}, histNames(s1))
	assert.Equal(t, "pt_S1", s1.Hist("hpt_S1").Title)
}

func TestMaterializeSaveAll(t *testing.T) {
	fr := muonFrame(t)
	tr, r := branchingTree(t, fr)

	base := filepath.Join(t.TempDir(), "out.msgpack")
	res, err := NewMaterializer(base, MsgpackSink{}, SaveAll(true)).Run(context.Background(), tr, r.StorePatterns())
	require.NoError(t, err)
	for _, lr := range res {
		assert.Equal(t, []string{"run", "pt", "genWeight", "Muon_pt", "nmu"}, lr.Columns)
	}
}

func TestMaterializeRequiresBookedTree(t *testing.T) {
	tr := seltree.New(muonFrame(t).Root())
	_, err := NewMaterializer("out.msgpack", MsgpackSink{}).Run(context.Background(), tr, nil)
	assert.Error(t, err)
}

func TestROOTSink(t *testing.T) {
	fr := muonFrame(t)
	tr, r := branchingTree(t, fr)

	base := filepath.Join(t.TempDir(), "out.root")
	res, err := NewMaterializer(base, ROOTSink{Tree: "Events"}).Run(context.Background(), tr, r.StorePatterns())
	require.NoError(t, err)

	f, err := groot.Open(res[0].Dest)
	require.NoError(t, err)
	defer f.Close()

	obj, err := f.Get("Events")
	require.NoError(t, err)
	tree, ok := obj.(rtree.Tree)
	require.True(t, ok)
	assert.EqualValues(t, 2, tree.Entries())
	assert.NotNil(t, tree.Branch("nMuon_pt"))

	obj, err = f.Get("hpt_S2")
	require.NoError(t, err)
	h := rootcnv.H1D(obj.(rhist.H1))
	assert.InDelta(t, 1.5, h.SumW(), 1e-12)
}

func TestROOTSinkUnsupportedKind(t *testing.T) {
	_, err := ROOTSink{}.Create(filepath.Join(t.TempDir(), "x.root"), []frame.Column{{Name: "jets", Kind: frame.Invalid}})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func tauFrame(t *testing.T) *frame.Frame {
	t.Helper()
	tbl := frame.NewTable(
		frame.Column{Name: "Tau_pt", Kind: frame.Floats},
		frame.Column{Name: "Tau_pt_unc", Kind: frame.FloatsVec},
		frame.Column{Name: "tauWeightIdVsJet", Kind: frame.FloatsVec},
		frame.Column{Name: "eventWeight", Kind: frame.Float},
	)
	require.NoError(t, tbl.Append(
		[]float64{45, 60},
		[][]float64{{1.01, 0.99}, {1.02, 0.98}},
		[][]float64{{0.9, 1, 0.8}, {0.95, 1.05, 0.85}},
		0.5,
	))
	require.NoError(t, tbl.Append([]float64{}, [][]float64{}, [][]float64{}, 1.0))
	return frame.New(tbl)
}

func TestROOTSinkDefaultStore(t *testing.T) {
	fr := tauFrame(t)
	r := seltree.NewRegistry()
	for _, p := range analysis.StoredColumns {
		require.NoError(t, r.AddVarToStore(p))
	}
	tr := seltree.New(fr.Root())
	require.NoError(t, tr.Book(r))

	base := filepath.Join(t.TempDir(), "out.root")
	res, err := NewMaterializer(base, ROOTSink{}).Run(context.Background(), tr, r.StorePatterns())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, []string{"Tau_pt", "Tau_pt_unc", "tauWeightIdVsJet", "eventWeight"}, res[0].Columns)

	f, err := groot.Open(res[0].Dest)
	require.NoError(t, err)
	defer f.Close()
	obj, err := f.Get("Events")
	require.NoError(t, err)
	tree := obj.(rtree.Tree)
	assert.EqualValues(t, 2, tree.Entries())

	var (
		n      int32
		stride int32
		flat   []float64
		got    [][]float64
		steps  []int32
	)
	rd, err := rtree.NewReader(tree, []rtree.ReadVar{
		{Name: "ntauWeightIdVsJet", Value: &n},
		{Name: "tauWeightIdVsJet_stride", Value: &stride},
		{Name: "tauWeightIdVsJet", Value: &flat},
	})
	require.NoError(t, err)
	defer rd.Close()
	require.NoError(t, rd.Read(func(rtree.RCtx) error {
		steps = append(steps, stride)
		got = append(got, append([]float64(nil), flat...))
		return nil
	}))
	assert.Equal(t, []int32{3, 0}, steps)
	assert.Equal(t, []float64{0.9, 1, 0.8, 0.95, 1.05, 0.85}, got[0])
	assert.Empty(t, got[1])
}

func TestROOTSinkRaggedFloatsVec(t *testing.T) {
	w, err := ROOTSink{}.Create(filepath.Join(t.TempDir(), "x.root"), []frame.Column{{Name: "w", Kind: frame.FloatsVec}})
	require.NoError(t, err)
	defer w.Close()
	assert.Error(t, w.WriteRow([]any{[][]float64{{1, 2}, {3}}}))
}
