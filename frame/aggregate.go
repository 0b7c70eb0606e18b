package frame

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Aggregate eagerly folds the input columns of every event reaching n into
// an accumulator. The entry range is split into one chunk per worker; each
// chunk folds into its own accumulator from init and the partial results are
// combined in chunk order with merge, which must be associative.
//
// Sources of unknown length are processed by a single worker.
func Aggregate[A any](
	ctx context.Context,
	n *Node,
	workers int,
	init func() A,
	fold func(acc A, a Args) (A, error),
	merge func(a, b A) A,
	inputs ...string,
) (A, error) {
	var zero A
	refs := make([]*colRef, len(inputs))
	for i, in := range inputs {
		ref, err := n.column(in)
		if err != nil {
			return zero, err
		}
		refs[i] = ref
	}

	total := n.f.src.Len()
	if workers < 1 || total < 0 {
		workers = 1
	}
	if total >= 0 && int64(workers) > total {
		workers = max(int(total), 1)
	}

	type span struct{ begin, end int64 }
	spans := make([]span, workers)
	if workers == 1 {
		spans[0] = span{0, -1}
	} else {
		size := (total + int64(workers) - 1) / int64(workers)
		for i := range spans {
			b := int64(i) * size
			spans[i] = span{min(b, total), min(b+size, total)}
		}
	}

	parts := make([]A, workers)
	g, ctx := errgroup.WithContext(ctx)
	for i, sp := range spans {
		i, sp := i, sp
		g.Go(func() error {
			acc := init()
			ev := newEvent(len(n.f.nodes))
			var seen int64
			err := n.f.src.Scan(ctx, sp.begin, sp.end, func(entry int64, row []any) error {
				if seen%checkEvery == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				seen++
				ev.reset(entry, row)
				ok, err := n.pass(ev)
				if err != nil || !ok {
					return err
				}
				a := make(Args, len(refs))
				for j, ref := range refs {
					if a[j], err = ev.get(ref); err != nil {
						return err
					}
				}
				acc, err = fold(acc, a)
				return err
			})
			parts[i] = acc
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return zero, fmt.Errorf("frame: aggregate: %w", err)
	}

	out := parts[0]
	for _, p := range parts[1:] {
		out = merge(out, p)
	}
	return out, nil
}
