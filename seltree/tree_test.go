package seltree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decibelcooper/nanoaodframe/frame"
)

func events(t *testing.T) *frame.Frame {
	t.Helper()
	tbl := frame.NewTable(
		frame.Column{Name: "pt", Kind: frame.Float},
		frame.Column{Name: "eta", Kind: frame.Float},
		frame.Column{Name: "Muon_pt", Kind: frame.Floats},
		frame.Column{Name: "Muon_eta", Kind: frame.Floats},
		frame.Column{Name: "genWeight", Kind: frame.Float},
	)
	for _, ev := range []struct {
		pt, eta float64
		mpt     []float64
		w       float64
	}{
		{10, 0.5, []float64{12}, 1},
		{40, -1.0, []float64{45, 8}, 1},
		{60, 2.8, nil, 2},
		{80, 0.1, []float64{90}, 0.5},
		{25, -2.6, []float64{30, 31, 32}, 1},
	} {
		require.NoError(t, tbl.Append(ev.pt, ev.eta, ev.mpt, make([]float64, len(ev.mpt)), ev.w))
	}
	return frame.New(tbl)
}

func positions(tr *Tree) []string {
	var out []string
	_ = tr.Walk(func(n *Node) error {
		out = append(out, n.Position())
		return nil
	})
	return out
}

func leafPositions(tr *Tree) []string {
	var out []string
	for _, l := range tr.Leaves() {
		out = append(out, l.Position())
	}
	return out
}

func TestRootOnlyTree(t *testing.T) {
	tr := New(events(t).Root())
	require.NoError(t, tr.Book(NewRegistry()))
	assert.Equal(t, []string{""}, leafPositions(tr))
	assert.True(t, tr.Frozen())
}

func TestAddChildPositions(t *testing.T) {
	tr := New(events(t).Root())

	a, err := tr.AddChild(Root, frame.Code("pt > 20"))
	require.NoError(t, err)
	b, err := tr.AddChild(Root, frame.Code("abs(eta) < 2.4"))
	require.NoError(t, err)
	c, err := tr.AddChild("0", frame.Code("pt > 50"))
	require.NoError(t, err)

	assert.Equal(t, "0", a.Position())
	assert.Equal(t, "1", b.Position())
	assert.Equal(t, "00", c.Position())
	assert.Same(t, a, c.Parent())
	assert.Equal(t, []*Node{a, b}, tr.Root().Children())
	assert.Equal(t, []string{"00", "1"}, leafPositions(tr))
	assert.Equal(t, []*Node{tr.Root(), a, c}, Lineage(c))

	got, err := tr.Node("00")
	require.NoError(t, err)
	assert.Same(t, c, got)

	_, err = tr.Node("01")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = tr.AddChild("7", frame.Code("pt > 1"))
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = tr.AddChild(Root, frame.Code("pt >"))
	assert.ErrorIs(t, err, frame.ErrInvalidExpression)
	assert.Len(t, tr.Root().Children(), 2, "failed cut must not add a child")
}

func TestTooManyChildren(t *testing.T) {
	tr := New(events(t).Root())
	for i := 0; i < MaxChildren; i++ {
		n, err := tr.AddChild(Root, frame.Code(fmt.Sprintf("pt > %d", i)))
		require.NoError(t, err)
		if i == 10 {
			assert.Equal(t, "a", n.Position())
		}
	}
	_, err := tr.AddChild(Root, frame.Code("pt > 100"))
	assert.ErrorIs(t, err, ErrTooManyChildren)
}

func TestLeavesMatchUnusedParents(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddCut(frame.Code("pt > 20"), ""))       // 0
	require.NoError(t, r.AddCut(frame.Code("pt > 30"), ""))       // 1
	require.NoError(t, r.AddCut(frame.Code("eta > 0"), "0"))      // 00
	require.NoError(t, r.AddCut(frame.Code("eta < 0"), "0"))      // 01
	require.NoError(t, r.AddCut(frame.Code("pt > 70"), "01"))     // 010
	require.NoError(t, r.AddCut(frame.Code("abs(eta) < 1"), "1")) // 10

	tr := New(events(t).Root())
	require.NoError(t, tr.Book(r))

	parents := map[string]bool{}
	for _, c := range r.Cuts() {
		parents[c.Parent] = true
	}
	var want []string
	for _, pos := range positions(tr) {
		if !parents[pos] {
			want = append(want, pos)
		}
	}
	assert.Equal(t, []string{"00", "010", "10"}, want)
	assert.Equal(t, want, leafPositions(tr))
}

func branchingRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.AddVariable("one", frame.Const(1.0), ""))
	require.NoError(t, r.AddCut(frame.Code("pt > 20"), ""))
	require.NoError(t, r.AddCut(frame.Code("abs(eta) < 2.4"), ""))
	require.NoError(t, r.AddCut(frame.Code("pt > 50"), "0"))
	require.NoError(t, r.AddVariable("nmu", frame.Size("Muon_pt"), "0"))
	require.NoError(t, r.AddVariable("ptsum", frame.Sum("Muon_pt"), "00"))
	require.NoError(t, r.Add1DHistogram(frame.HistModel{Name: "hpt", Title: "pt", Bins: 10, Lo: 0, Hi: 100}, "pt", "genWeight", ""))
	require.NoError(t, r.Add1DHistogram(frame.HistModel{Name: "hnmu", Bins: 5, Lo: 0, Hi: 5}, "nmu", "", "0"))
	require.NoError(t, r.AddVarToStore("Muon_.*"))
	require.NoError(t, r.AddVarToStore("Muon_pt"))
	require.NoError(t, r.AddVarToStore("nmu"))
	require.NoError(t, r.AddVarToStore("ptsum"))
	return r
}

func TestVariableActivationIsExact(t *testing.T) {
	tr := New(events(t).Root())
	require.NoError(t, tr.Book(branchingRegistry(t)))

	n0, _ := tr.Node("0")
	n1, _ := tr.Node("1")
	n00, _ := tr.Node("00")

	for _, n := range []*Node{tr.Root(), n0, n1, n00} {
		assert.True(t, n.View().Has("one"), "root variable at %q", n.Position())
	}
	assert.True(t, n0.View().Has("nmu"))
	assert.True(t, n00.View().Has("nmu"), "inherited by descendant")
	assert.False(t, n1.View().Has("nmu"), "sibling branch")
	assert.False(t, tr.Root().View().Has("nmu"))
	assert.True(t, n00.View().Has("ptsum"))
	assert.False(t, n0.View().Has("ptsum"))
}

func histNames(n *Node) []string {
	var out []string
	for _, h := range n.Histograms() {
		out = append(out, h.Model().Name)
	}
	return out
}

func TestHistogramActivationIsPrefix(t *testing.T) {
	tr := New(events(t).Root())
	require.NoError(t, tr.Book(branchingRegistry(t)))

	n0, _ := tr.Node("0")
	n1, _ := tr.Node("1")
	n00, _ := tr.Node("00")

	assert.Equal(t, []string{"hpt"}, histNames(tr.Root()))
	assert.Equal(t, []string{"hpt_S1", "hnmu_S1"}, histNames(n0))
	assert.Equal(t, []string{"hpt_S1"}, histNames(n1))
	assert.Equal(t, []string{"hpt_S2", "hnmu_S2"}, histNames(n00))

	// Names are unique within one lineage.
	for _, leaf := range tr.Leaves() {
		seen := map[string]bool{}
		for _, n := range Lineage(leaf) {
			for _, name := range histNames(n) {
				assert.False(t, seen[name], "duplicate %s in lineage of %q", name, leaf.Position())
				seen[name] = true
			}
		}
	}
}

func TestHistogramsFill(t *testing.T) {
	fr := events(t)
	tr := New(fr.Root())
	require.NoError(t, tr.Book(branchingRegistry(t)))

	ctx := context.Background()
	n00, _ := tr.Node("00")
	h, err := n00.Histograms()[0].Result(ctx)
	require.NoError(t, err)
	// pt > 20 and pt > 50: events with pt 60 (w=2) and 80 (w=0.5).
	assert.EqualValues(t, 2, h.Entries())
	assert.InDelta(t, 2.5, h.SumW(), 1e-12)

	root, err := tr.Root().Histograms()[0].Result(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 5.5, root.SumW(), 1e-12)
	assert.Equal(t, 1, fr.Loops(), "every histogram filled in one event loop")
}

func TestBookIsIdempotent(t *testing.T) {
	snapshot := func() map[string][]string {
		tr := New(events(t).Root())
		require.NoError(t, tr.Book(branchingRegistry(t)))
		out := map[string][]string{}
		_ = tr.Walk(func(n *Node) error {
			out[n.Position()] = n.View().ColumnNames()
			return nil
		})
		return out
	}
	assert.Equal(t, snapshot(), snapshot())
}

func TestUnknownParentAbortsBooking(t *testing.T) {
	fr := events(t)
	r := branchingRegistry(t)
	require.NoError(t, r.AddCut(frame.Code("pt > 1"), "99"))

	tr := New(fr.Root())
	err := tr.Book(r)

	var ce *ConfigError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "99", ce.Position)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.False(t, tr.Frozen())
	assert.Equal(t, 0, fr.Loops(), "no histogram filled")

	assert.ErrorIs(t, tr.Book(r), ErrBroken, "a failed tree is not booked twice")
	_, err = tr.AddChild(Root, frame.Code("pt > 1"))
	assert.ErrorIs(t, err, ErrBroken)
}

func TestDuplicateVariableInLineage(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddVariable("x", frame.Const(1.0), ""))
	require.NoError(t, r.AddCut(frame.Code("pt > 20"), ""))
	require.NoError(t, r.AddVariable("x", frame.Const(2.0), "0"))

	err := New(events(t).Root()).Book(r)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "define", ce.Op)
	assert.Equal(t, "0", ce.Position)
	assert.ErrorIs(t, err, frame.ErrColumnExists)
}

func TestSameVariableOnSiblingBranches(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddCut(frame.Code("pt > 20"), ""))
	require.NoError(t, r.AddCut(frame.Code("pt <= 20"), ""))
	require.NoError(t, r.AddVariable("x", frame.Const(1.0), "0"))
	require.NoError(t, r.AddVariable("x", frame.Const(2.0), "1"))
	assert.NoError(t, New(events(t).Root()).Book(r))
}

func TestFrozen(t *testing.T) {
	tr := New(events(t).Root())
	require.NoError(t, tr.Book(NewRegistry()))
	_, err := tr.AddChild(Root, frame.Code("pt > 1"))
	assert.ErrorIs(t, err, ErrFrozen)
	assert.ErrorIs(t, tr.Book(NewRegistry()), ErrFrozen)
}

func TestUnmatchedActivationIsNotAnError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddCut(frame.Code("pt > 20"), ""))
	require.NoError(t, r.AddVariable("late", frame.Const(1.0), "05"))
	require.NoError(t, r.Add1DHistogram(frame.HistModel{Name: "h", Bins: 1, Lo: 0, Hi: 1}, "pt", "", "3"))

	var buf bytes.Buffer
	tr := New(events(t).Root(), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, tr.Book(r))
	for _, leaf := range tr.Leaves() {
		assert.Empty(t, leaf.Histograms())
		assert.False(t, leaf.View().Has("late"))
	}

	logs := buf.String()
	assert.Contains(t, logs, `level=WARN msg="variable never activated" name=late position=05`)
	assert.Contains(t, logs, `level=WARN msg="histogram never booked" name=h position=3`)
}

func TestRegistryShape(t *testing.T) {
	r := NewRegistry()
	var ce *ConfigError

	assert.True(t, errors.As(r.AddVariable("", frame.Const(1.0), ""), &ce))
	assert.True(t, errors.As(r.AddVariable("x", frame.Const(1.0), "0-1"), &ce))
	assert.True(t, errors.As(r.AddCut(nil, ""), &ce))
	assert.True(t, errors.As(r.Add1DHistogram(frame.HistModel{Name: "h", Bins: 0, Lo: 0, Hi: 1}, "pt", "", ""), &ce))
	assert.True(t, errors.As(r.Add1DHistogram(frame.HistModel{Name: "h", Bins: 4, Lo: 2, Hi: 1}, "pt", "", ""), &ce))
	assert.True(t, errors.As(r.Add1DHistogram(frame.HistModel{Name: "h", Bins: 4, Lo: 0, Hi: 1}, "", "", ""), &ce))
	assert.True(t, errors.As(r.AddVarToStore("Muon_("), &ce))

	assert.Empty(t, r.Variables())
	assert.Empty(t, r.Cuts())
	assert.Empty(t, r.Histograms())
	assert.Empty(t, r.StorePatterns())

	// Positions are not resolved at registration.
	assert.NoError(t, r.AddCut(frame.Code("pt > 1"), "zz"))
}

func TestResolveStore(t *testing.T) {
	tr := New(events(t).Root())
	require.NoError(t, tr.Book(branchingRegistry(t)))

	got := map[string]LeafColumns{}
	for _, lc := range tr.ResolveStore(branchingRegistry(t).StorePatterns()) {
		got[lc.Leaf.Position()] = lc
	}
	require.Len(t, got, 2)

	assert.Equal(t, []string{"Muon_pt", "Muon_eta", "nmu", "ptsum"}, got["00"].Columns)
	assert.Empty(t, got["00"].Missing)

	assert.Equal(t, []string{"Muon_pt", "Muon_eta"}, got["1"].Columns)
	assert.Equal(t, []string{"nmu", "ptsum"}, got["1"].Missing)
}

func TestCutflow(t *testing.T) {
	tr := New(events(t).Root())
	require.NoError(t, tr.Book(branchingRegistry(t)))
	cf, err := tr.Cutflow("genWeight")
	require.NoError(t, err)

	stages, err := cf.Stages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Stage{
		{Position: "", Entries: 5, SumW: 5.5},
		{Position: "0", Entries: 4, SumW: 4.5},
		{Position: "00", Entries: 2, SumW: 2.5},
		{Position: "1", Entries: 3, SumW: 2.5},
	}, stages)

	n00, _ := tr.Node("00")
	h, err := cf.Histogram(context.Background(), "hcutflow", Lineage(n00))
	require.NoError(t, err)
	assert.Equal(t, 3, h.Len())
	_, y := h.XY(2)
	assert.InDelta(t, 2.5, y, 1e-12)
}

func TestPrint(t *testing.T) {
	tr := New(events(t).Root())
	require.NoError(t, tr.Book(branchingRegistry(t)))
	var buf bytes.Buffer
	require.NoError(t, tr.Print(&buf))
	assert.Contains(t, buf.String(), "(root)")
	assert.Contains(t, buf.String(), "\n    00  ")
}

func TestHistName(t *testing.T) {
	assert.Equal(t, "h", HistName("h", ""))
	assert.Equal(t, "h_S1", HistName("h", "0"))
	assert.Equal(t, "h_S1", HistName("h", "1"))
	assert.Equal(t, "h_S3", HistName("h", "01a"))
	assert.Equal(t, "01", ParentOf("01a"))
	assert.True(t, ValidPosition("09az"))
	assert.False(t, ValidPosition("0A"))
}
