package seltree

import (
	"context"

	"go-hep.org/x/hep/hbook"

	"github.com/decibelcooper/nanoaodframe/frame"
)

// Stage is the event yield at one node.
type Stage struct {
	Position string
	Entries  int64
	SumW     float64
}

// Cutflow holds lazy event counts for every node of a tree.
type Cutflow struct {
	counts []*frame.Count
	pos    []string
}

// Cutflow books a count at every node, in walk order. Counts are weighted
// by the weight column wherever it is visible; elsewhere they are unweighted.
func (t *Tree) Cutflow(weight string) (*Cutflow, error) {
	cf := &Cutflow{}
	err := t.Walk(func(n *Node) error {
		w := weight
		if w != "" && !n.view.Has(w) {
			w = ""
		}
		c, err := n.view.Count(w)
		if err != nil {
			return err
		}
		cf.counts = append(cf.counts, c)
		cf.pos = append(cf.pos, n.pos)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cf, nil
}

// Stages returns the yield of every node, running the event loop if needed.
func (cf *Cutflow) Stages(ctx context.Context) ([]Stage, error) {
	out := make([]Stage, len(cf.counts))
	for i, c := range cf.counts {
		n, w, err := c.Result(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = Stage{Position: cf.pos[i], Entries: n, SumW: w}
	}
	return out, nil
}

// Histogram returns the weighted yields of the given lineage as a
// histogram with one bin per stage, root first.
func (cf *Cutflow) Histogram(ctx context.Context, name string, lineage []*Node) (*hbook.H1D, error) {
	stages, err := cf.Stages(ctx)
	if err != nil {
		return nil, err
	}
	byPos := make(map[string]Stage, len(stages))
	for _, s := range stages {
		byPos[s.Position] = s
	}

	h := hbook.NewH1D(len(lineage), 0, float64(len(lineage)))
	if h.Ann == nil {
		h.Ann = make(hbook.Annotation)
	}
	h.Ann["name"] = name
	h.Ann["title"] = name
	for i, n := range lineage {
		h.Fill(float64(i)+0.5, byPos[n.pos].SumW)
	}
	return h, nil
}
