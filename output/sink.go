// Package output writes the leaves of a booked selection tree: one
// destination per leaf holding the leaf's selected columns and every
// histogram booked along its lineage.
package output

import (
	"errors"
	"path/filepath"
	"strings"

	"go-hep.org/x/hep/hbook"

	"github.com/decibelcooper/nanoaodframe/frame"
)

// ErrUnsupportedKind is returned by sinks that cannot store a column kind.
var ErrUnsupportedKind = errors.New("output: unsupported column kind")

// Sink creates one writer per destination.
type Sink interface {
	Create(dest string, cols []frame.Column) (Writer, error)
}

// Writer receives the rows and histograms of one destination. Rows come in
// the column order given to Create.
type Writer interface {
	frame.RowWriter
	WriteHist(h *hbook.H1D) error
	Close() error
}

// LeafName derives the destination of the leaf at pos. A tree with a single
// leaf keeps base; otherwise "_<pos>" goes before the extension of base.
func LeafName(base, pos string, nLeaves int) string {
	if nLeaves <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_" + pos + ext
}
