package frame

import (
	"context"
	"fmt"

	"go-hep.org/x/hep/hbook"
)

type action interface {
	exec(ev *event) error
	finish()
}

// HistModel describes the binning of a 1-D histogram.
type HistModel struct {
	Name  string
	Title string
	Bins  int
	Lo    float64
	Hi    float64
}

// Validate checks the model's shape.
func (m HistModel) Validate() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("histogram: empty name")
	case m.Bins <= 0:
		return fmt.Errorf("histogram %q: %d bins", m.Name, m.Bins)
	case !(m.Lo < m.Hi):
		return fmt.Errorf("histogram %q: invalid range [%g, %g)", m.Name, m.Lo, m.Hi)
	}
	return nil
}

// Hist1D is a lazily filled weighted 1-D histogram.
type Hist1D struct {
	n      *Node
	model  HistModel
	value  *colRef
	weight *colRef
	h      *hbook.H1D
	done   bool
}

// Histo1D books a histogram of the value column weighted by the weight
// column (unit weights when weight is empty). Array values fill one entry
// per object; an array weight must then have the same length.
func (n *Node) Histo1D(m HistModel, value, weight string) (*Hist1D, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	v, err := n.column(value)
	if err != nil {
		return nil, err
	}
	if !v.kind.IsNumeric() {
		return nil, fmt.Errorf("frame: histogram %q: %w: value %q is %v", m.Name, ErrKindMismatch, value, v.kind)
	}
	h := &Hist1D{n: n, model: m, value: v}
	if weight != "" {
		w, err := n.column(weight)
		if err != nil {
			return nil, err
		}
		if !w.kind.IsNumeric() || (w.kind.IsArray() && !v.kind.IsArray()) {
			return nil, fmt.Errorf("frame: histogram %q: %w: weight %q is %v for value of kind %v", m.Name, ErrKindMismatch, weight, w.kind, v.kind)
		}
		h.weight = w
	}

	h.h = hbook.NewH1D(m.Bins, m.Lo, m.Hi)
	if h.h.Ann == nil {
		h.h.Ann = make(hbook.Annotation)
	}
	h.h.Ann["name"] = m.Name
	h.h.Ann["title"] = m.Title
	n.f.book(h)
	return h, nil
}

// Model returns the histogram's binning description.
func (h *Hist1D) Model() HistModel { return h.model }

// Node returns the node the histogram is filled at.
func (h *Hist1D) Node() *Node { return h.n }

// Result returns the filled histogram, running the event loop if needed.
func (h *Hist1D) Result(ctx context.Context) (*hbook.H1D, error) {
	if !h.done {
		if err := h.n.f.Run(ctx); err != nil {
			return nil, err
		}
	}
	return h.h, nil
}

func (h *Hist1D) exec(ev *event) error {
	ok, err := h.n.pass(ev)
	if err != nil || !ok {
		return err
	}
	raw, err := ev.get(h.value)
	if err != nil {
		return err
	}
	val := Args{raw}

	if h.weight == nil {
		if h.value.kind.IsArray() {
			for _, x := range val.Floats(0) {
				h.h.Fill(x, 1)
			}
			return nil
		}
		h.h.Fill(val.Float(0), 1)
		return nil
	}

	rw, err := ev.get(h.weight)
	if err != nil {
		return err
	}
	w := Args{rw}
	switch {
	case !h.value.kind.IsArray():
		h.h.Fill(val.Float(0), w.Float(0))
	case !h.weight.kind.IsArray():
		for _, x := range val.Floats(0) {
			h.h.Fill(x, w.Float(0))
		}
	default:
		xs, ws := val.Floats(0), w.Floats(0)
		if len(xs) != len(ws) {
			return &EvalError{
				Node:  h.n.label,
				Expr:  h.model.Name,
				Entry: ev.entry,
				Err:   fmt.Errorf("value %q has %d entries, weight %q has %d", h.value.name, len(xs), h.weight.name, len(ws)),
			}
		}
		for i, x := range xs {
			h.h.Fill(x, ws[i])
		}
	}
	return nil
}

func (h *Hist1D) finish() { h.done = true }

// Count is a lazily evaluated number of events reaching a node.
type Count struct {
	n       *Node
	weight  *colRef
	entries int64
	sumw    float64
	done    bool
}

// Count books the number of entries reaching n and their summed weight.
// With an empty weight the sum equals the number of entries.
func (n *Node) Count(weight string) (*Count, error) {
	c := &Count{n: n}
	if weight != "" {
		w, err := n.column(weight)
		if err != nil {
			return nil, err
		}
		if w.kind.IsArray() || !w.kind.IsNumeric() {
			return nil, fmt.Errorf("frame: count: %w: weight %q is %v", ErrKindMismatch, weight, w.kind)
		}
		c.weight = w
	}
	n.f.book(c)
	return c, nil
}

// Node returns the counted node.
func (c *Count) Node() *Node { return c.n }

// Result returns the entry count and the weight sum.
func (c *Count) Result(ctx context.Context) (int64, float64, error) {
	if !c.done {
		if err := c.n.f.Run(ctx); err != nil {
			return 0, 0, err
		}
	}
	return c.entries, c.sumw, nil
}

func (c *Count) exec(ev *event) error {
	ok, err := c.n.pass(ev)
	if err != nil || !ok {
		return err
	}
	c.entries++
	if c.weight == nil {
		c.sumw++
		return nil
	}
	w, err := ev.get(c.weight)
	if err != nil {
		return err
	}
	c.sumw += Args{w}.Float(0)
	return nil
}

func (c *Count) finish() { c.done = true }

// RowWriter receives the selected columns of each event written by a
// snapshot, in the order the columns were requested.
type RowWriter interface {
	WriteRow(row []any) error
}

// Snapshot is a lazily executed projection of a node into a RowWriter.
type Snapshot struct {
	n    *Node
	w    RowWriter
	cols []*colRef
	row  []any
	rows int64
	done bool
}

// Snapshot books writing the named columns of every event reaching n.
func (n *Node) Snapshot(w RowWriter, cols []string) (*Snapshot, error) {
	s := &Snapshot{n: n, w: w, row: make([]any, len(cols))}
	for _, name := range cols {
		ref, err := n.column(name)
		if err != nil {
			return nil, err
		}
		s.cols = append(s.cols, ref)
	}
	n.f.book(s)
	return s, nil
}

// Rows returns the number of rows written, running the event loop if needed.
func (s *Snapshot) Rows(ctx context.Context) (int64, error) {
	if !s.done {
		if err := s.n.f.Run(ctx); err != nil {
			return 0, err
		}
	}
	return s.rows, nil
}

func (s *Snapshot) exec(ev *event) error {
	ok, err := s.n.pass(ev)
	if err != nil || !ok {
		return err
	}
	for i, ref := range s.cols {
		v, err := ev.get(ref)
		if err != nil {
			return err
		}
		s.row[i] = v
	}
	if err := s.w.WriteRow(s.row); err != nil {
		return fmt.Errorf("frame: snapshot at %s: %w", s.n.label, err)
	}
	s.rows++
	return nil
}

func (s *Snapshot) finish() { s.done = true }
