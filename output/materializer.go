package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go-hep.org/x/hep/hbook"

	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/seltree"
)

// Result summarizes what was written for one leaf.
type Result struct {
	Position string
	Dest     string
	Columns  []string
	Rows     int64
	Hists    int
}

// Materializer writes every leaf of a frozen tree to its own destination.
type Materializer struct {
	base    string
	sink    Sink
	saveAll bool
	cutflow bool
	weight  string
	extra   []*hbook.H1D
	log     *slog.Logger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) { m.log = l }
}

// SaveAll writes every column visible at each leaf instead of the columns
// selected by the store patterns.
func SaveAll(all bool) Option {
	return func(m *Materializer) { m.saveAll = all }
}

// WithHistograms adds run-level histograms written to every destination
// after the lineage histograms.
func WithHistograms(hs ...*hbook.H1D) Option {
	return func(m *Materializer) { m.extra = append(m.extra, hs...) }
}

// WithCutflow writes, for each leaf, a histogram with the weighted yield of
// every stage of its lineage, weighted by the given column where visible.
func WithCutflow(weight string) Option {
	return func(m *Materializer) {
		m.cutflow = true
		m.weight = weight
	}
}

// CutflowName is the name of the per-leaf cutflow histogram.
const CutflowName = "hcutflow"

// NewMaterializer returns a materializer writing to sink, deriving one
// destination per leaf from base.
func NewMaterializer(base string, sink Sink, opts ...Option) *Materializer {
	m := &Materializer{base: base, sink: sink}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m
}

type leafOutput struct {
	leaf *seltree.Node
	dest string
	cols []string
	w    Writer
	snap *frame.Snapshot
}

// Run snapshots the columns of every leaf and writes the histograms of its
// lineage. All leaves are filled by a single event loop.
func (m *Materializer) Run(ctx context.Context, t *seltree.Tree, patterns []seltree.StorePattern) (res []Result, err error) {
	if !t.Frozen() {
		return nil, errors.New("output: tree is not booked")
	}

	var cf *seltree.Cutflow
	if m.cutflow {
		if cf, err = t.Cutflow(m.weight); err != nil {
			return nil, fmt.Errorf("output: booking cutflow: %w", err)
		}
	}

	resolved := t.ResolveStore(patterns)
	outs := make([]*leafOutput, 0, len(resolved))
	defer func() {
		if err == nil {
			return
		}
		for _, o := range outs {
			if o.w != nil {
				o.w.Close()
			}
		}
	}()

	for _, lc := range resolved {
		view := lc.Leaf.View()
		o := &leafOutput{
			leaf: lc.Leaf,
			dest: LeafName(m.base, lc.Leaf.Position(), len(resolved)),
			cols: lc.Columns,
		}
		if m.saveAll {
			o.cols = view.ColumnNames()
		}
		var cols []frame.Column
		if len(o.cols) > 0 {
			if cols, err = view.Columns(o.cols...); err != nil {
				return nil, err
			}
		}
		if o.w, err = m.sink.Create(o.dest, cols); err != nil {
			return nil, err
		}
		outs = append(outs, o)
		if o.snap, err = view.Snapshot(o.w, o.cols); err != nil {
			return nil, err
		}
		m.log.Info("leaf output", "position", lc.Leaf.Position(), "dest", o.dest, "columns", len(o.cols))
	}

	if err := t.Root().View().Frame().Run(ctx); err != nil {
		return nil, err
	}

	for _, o := range outs {
		r, err := m.finish(ctx, o, cf)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}

// finish writes the histograms of one leaf and closes its writer.
func (m *Materializer) finish(ctx context.Context, o *leafOutput, cf *seltree.Cutflow) (Result, error) {
	r := Result{Position: o.leaf.Position(), Dest: o.dest, Columns: o.cols}

	rows, err := o.snap.Rows(ctx)
	if err != nil {
		return r, err
	}
	r.Rows = rows

	lineage := seltree.Lineage(o.leaf)
	var hists []*hbook.H1D
	for _, n := range lineage {
		for _, h := range n.Histograms() {
			hh, err := h.Result(ctx)
			if err != nil {
				return r, err
			}
			hists = append(hists, hh)
		}
	}
	if cf != nil {
		h, err := cf.Histogram(ctx, CutflowName, lineage)
		if err != nil {
			return r, err
		}
		hists = append(hists, h)
	}
	hists = append(hists, m.extra...)

	for _, h := range hists {
		if err := o.w.WriteHist(h); err != nil {
			return r, fmt.Errorf("output: writing %s to %s: %w", h.Name(), o.dest, err)
		}
	}
	r.Hists = len(hists)

	err = o.w.Close()
	o.w = nil
	if err != nil {
		return r, fmt.Errorf("output: closing %s: %w", o.dest, err)
	}
	m.log.Info("leaf written", "dest", o.dest, "rows", r.Rows, "histograms", r.Hists)
	return r, nil
}
