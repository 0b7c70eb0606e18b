package seltree

// LeafColumns is the list of columns to write for one leaf.
type LeafColumns struct {
	Leaf    *Node
	Columns []string
	// Missing holds the patterns that matched no column at the leaf.
	Missing []string
}

// ResolveStore matches the store patterns against the columns visible at
// each leaf. Columns are taken pattern by pattern, in column order, and a
// column matched by several patterns is kept once, at its first match.
// Patterns matching nothing are logged and reported, never fatal.
func (t *Tree) ResolveStore(patterns []StorePattern) []LeafColumns {
	leaves := t.Leaves()
	out := make([]LeafColumns, 0, len(leaves))
	for _, leaf := range leaves {
		lc := LeafColumns{Leaf: leaf}
		names := leaf.view.ColumnNames()
		used := make(map[string]bool, len(names))
		for _, p := range patterns {
			found := false
			for _, name := range names {
				if !p.Match(name) {
					continue
				}
				found = true
				if !used[name] {
					used[name] = true
					lc.Columns = append(lc.Columns, name)
				}
			}
			if !found {
				t.log.Warn("store pattern not found", "pattern", p.Pattern, "leaf", leaf.pos)
				lc.Missing = append(lc.Missing, p.Pattern)
			}
		}
		out = append(out, lc)
	}
	return out
}
