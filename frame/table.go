package frame

import (
	"context"
	"fmt"
)

// Table is an in-memory Source.
type Table struct {
	cols []Column
	rows [][]any
}

// NewTable returns an empty table with the given columns.
func NewTable(cols ...Column) *Table {
	return &Table{cols: cols}
}

// Append adds one row. Values are converted to the canonical form of the
// column kinds.
func (t *Table) Append(vals ...any) error {
	if len(vals) != len(t.cols) {
		return fmt.Errorf("frame: table row has %d values, want %d", len(vals), len(t.cols))
	}
	row := make([]any, len(vals))
	for i, v := range vals {
		cv, err := convert(v, t.cols[i].Kind)
		if err != nil {
			return fmt.Errorf("frame: table column %q: %w", t.cols[i].Name, err)
		}
		row[i] = cv
	}
	t.rows = append(t.rows, row)
	return nil
}

func (t *Table) Columns() []Column { return t.cols }

func (t *Table) Len() int64 { return int64(len(t.rows)) }

func (t *Table) Scan(ctx context.Context, begin, end int64, fn func(int64, []any) error) error {
	if end < 0 || end > int64(len(t.rows)) {
		end = int64(len(t.rows))
	}
	for i := begin; i < end; i++ {
		if err := fn(i, t.rows[i]); err != nil {
			return err
		}
	}
	return nil
}
