package scrape

import (
	"fmt"
	"slices"
)

// Table is the ordered set of rows for one run. Rows are identified by
// position; the slice length never changes once a run starts.
type Table struct {
	// Columns is the input header in file order. It must contain ColumnURL.
	Columns []string
	Rows    []Row
}

// NewTable builds a table from a header and pending rows.
func NewTable(columns []string, rows []Row) *Table {
	return &Table{Columns: columns, Rows: rows}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the input header contains name.
func (t *Table) HasColumn(name string) bool {
	return t != nil && slices.Contains(t.Columns, name)
}

// Validate rejects tables that cannot be dispatched.
func (t *Table) Validate() error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: table is nil", ErrInvalidInput)
	case !t.HasColumn(ColumnURL):
		return fmt.Errorf("%w: missing required column %q", ErrInvalidInput, ColumnURL)
	case len(t.Rows) == 0:
		return fmt.Errorf("%w: table has no rows", ErrInvalidInput)
	}
	return nil
}

// OutputColumns returns the input header followed by any outcome column the
// input did not already carry.
func (t *Table) OutputColumns() []string {
	out := slices.Clone(t.Columns)
	for _, col := range OutcomeColumns {
		if !slices.Contains(out, col) {
			out = append(out, col)
		}
	}
	return out
}

// Counts tallies rows by status.
func (t *Table) Counts() map[Status]int {
	counts := map[Status]int{
		StatusPending: 0,
		StatusSuccess: 0,
		StatusError:   0,
	}
	if t == nil {
		return counts
	}
	for _, row := range t.Rows {
		counts[row.Status]++
	}
	return counts
}

// PendingIn returns the absolute indices inside span that are still pending.
func (t *Table) PendingIn(span Span) []int {
	var pending []int
	for i := span.Start; i < span.End && i < len(t.Rows); i++ {
		if !t.Rows[i].Status.Terminal() {
			pending = append(pending, i)
		}
	}
	return pending
}

// View returns the exclusive handle over span. The handle's backing slice is
// capped at span.End so rows beyond the span are unreachable through it.
func (t *Table) View(span Span) (*View, error) {
	if span.Start < 0 || span.Start > span.End || span.End > t.Len() {
		return nil, fmt.Errorf("span %s out of range for %d rows", span, t.Len())
	}
	return &View{
		span: span,
		rows: t.Rows[span.Start:span.End:span.End],
	}, nil
}

// Views builds one View per span. It fails if any span is out of range or if
// two spans overlap.
func (t *Table) Views(spans []Span) ([]*View, error) {
	if err := checkDisjoint(spans); err != nil {
		return nil, err
	}
	views := make([]*View, 0, len(spans))
	for _, span := range spans {
		v, err := t.View(span)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// View is a worker's exclusive window onto a contiguous run of rows.
type View struct {
	span Span
	rows []Row
}

// Span returns the absolute range covered by the view.
func (v *View) Span() Span {
	return v.span
}

// Len returns the number of rows in the view.
func (v *View) Len() int {
	return len(v.rows)
}

// Row returns the row at offset k (0 ≤ k < Len) for in-place mutation.
func (v *View) Row(k int) *Row {
	return &v.rows[k]
}

// Index converts an offset within the view into the table position.
func (v *View) Index(k int) int {
	return v.span.Start + k
}
