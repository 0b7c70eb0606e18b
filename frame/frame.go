// Package frame is a small lazy columnar engine over event records.
//
// A Frame wraps a Source. Its root Node sees the source columns; Define,
// Redefine and Filter return new nodes that inherit every column and filter of
// their parent. Histograms, counts and snapshots booked on nodes are filled by
// a single pass over the source when Run is called, evaluating each derived
// column at most once per event and only for events that reach it.
package frame

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Source provides event records column by column.
type Source interface {
	// Columns lists the columns of every row, in row order.
	Columns() []Column
	// Len returns the number of entries, or -1 when unknown.
	Len() int64
	// Scan calls fn for each entry in [begin, end). A negative end means
	// until the last entry. Row values are in canonical form (see Kind) and
	// must not be modified.
	Scan(ctx context.Context, begin, end int64, fn func(entry int64, row []any) error) error
}

// Frame owns the graph of nodes built over one source and the actions
// waiting for the next event loop.
type Frame struct {
	src     Source
	log     *slog.Logger
	root    *Node
	nodes   []*Node
	pending []action
	loops   int
}

// Option configures a Frame.
type Option func(*Frame)

// WithLogger sets the structured logger used to report event loops.
func WithLogger(l *slog.Logger) Option {
	return func(f *Frame) {
		f.log = l
	}
}

// New creates a frame whose root node exposes the columns of src.
func New(src Source, opts ...Option) *Frame {
	f := &Frame{src: src}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	root := &Node{f: f, op: opRoot, label: "root", cols: make(map[string]*colRef)}
	for i, c := range src.Columns() {
		root.cols[c.Name] = &colRef{name: c.Name, kind: c.Kind, src: i}
		root.names = append(root.names, c.Name)
	}
	f.add(root)
	f.root = root
	return f
}

// Root returns the node with every source column and no filter.
func (f *Frame) Root() *Node { return f.root }

// Source returns the source the frame reads.
func (f *Frame) Source() Source { return f.src }

// Loops returns the number of event loops run so far.
func (f *Frame) Loops() int { return f.loops }

func (f *Frame) add(n *Node) {
	n.id = len(f.nodes)
	f.nodes = append(f.nodes, n)
}

func (f *Frame) book(a action) {
	f.pending = append(f.pending, a)
}

// checkEvery is the number of entries between context checks.
const checkEvery = 1024

// Run fills every pending histogram, count and snapshot in one pass over
// the source. It is a no-op when nothing is pending.
func (f *Frame) Run(ctx context.Context) error {
	acts := f.pending
	if len(acts) == 0 {
		return nil
	}
	f.pending = nil

	f.log.Info("starting event loop", "actions", len(acts), "nodes", len(f.nodes))
	ev := newEvent(len(f.nodes))
	var n int64
	err := f.src.Scan(ctx, 0, -1, func(entry int64, row []any) error {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		n++
		ev.reset(entry, row)
		for _, a := range acts {
			if err := a.exec(ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("frame: event loop: %w", err)
	}
	for _, a := range acts {
		a.finish()
	}
	f.loops++
	f.log.Info("event loop done", "entries", n)
	return nil
}
