// Package table holds the small immutable, column-named table that both
// dashboard views are computed from. Every operation returns a new table; rows
// are never modified after construction, so derived tables may share them.
package table

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Row is one record. A nil cell is a null.
type Row []any

// Table is an ordered set of named columns over rows of typed cells.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// ErrShape reports a row whose width does not match the header, or a bad header.
var ErrShape = errors.New("table shape")

// CellError identifies the cell a conversion failed on. Row is 1-based over data rows.
type CellError struct {
	Row    int
	Column string
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("row %d, column %q: %v", e.Row, e.Column, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// New validates the header and row widths and builds a table.
func New(columns []string, rows []Row) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrShape, c)
		}
		index[c] = i
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrShape, i+1, len(r), len(columns))
		}
	}
	return &Table{columns: append([]string(nil), columns...), index: index, rows: rows}, nil
}

// Empty returns a table with the given header and no rows.
func Empty(columns ...string) *Table {
	t, err := New(columns, nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Columns returns a copy of the header.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len is the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Has reports whether col is a column.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Row returns row i. Callers must not modify it.
func (t *Table) Row(i int) Row { return t.rows[i] }

// Get returns the cell at row i, column col; nil when the column is absent.
func (t *Table) Get(i int, col string) any {
	j, ok := t.index[col]
	if !ok {
		return nil
	}
	return t.rows[i][j]
}

// Records returns every row as a column->cell map, in row order.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.rows))
	for _, r := range t.rows {
		rec := make(map[string]any, len(t.columns))
		for j, c := range t.columns {
			rec[c] = r[j]
		}
		out = append(out, rec)
	}
	return out
}

// Filter keeps the rows for which keep returns true, preserving order.
func (t *Table) Filter(keep func(i int) bool) *Table {
	rows := make([]Row, 0, len(t.rows))
	for i, r := range t.rows {
		if keep(i) {
			rows = append(rows, r)
		}
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// Where keeps the rows whose col cell satisfies pred. A missing column keeps nothing.
func (t *Table) Where(col string, pred func(v any) bool) *Table {
	j, ok := t.index[col]
	if !ok {
		return t.Filter(func(int) bool { return false })
	}
	return t.Filter(func(i int) bool { return pred(t.rows[i][j]) })
}

// Select projects onto cols. Columns the table lacks come back as all-null.
func (t *Table) Select(cols ...string) *Table {
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out := make(Row, len(cols))
		for k, c := range cols {
			if j, ok := t.index[c]; ok {
				out[k] = r[j]
			}
		}
		rows[i] = out
	}
	index := make(map[string]int, len(cols))
	for k, c := range cols {
		index[c] = k
	}
	return &Table{columns: append([]string(nil), cols...), index: index, rows: rows}
}

// Convert rewrites every cell of col through fn. The first failure is returned
// as a *CellError.
func (t *Table) Convert(col string, fn func(v any) (any, error)) (*Table, error) {
	j, ok := t.index[col]
	if !ok {
		return nil, fmt.Errorf("%w: no column %q", ErrShape, col)
	}
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		v, err := fn(r[j])
		if err != nil {
			return nil, &CellError{Row: i + 1, Column: col, Err: err}
		}
		out := append(Row(nil), r...)
		out[j] = v
		rows[i] = out
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}, nil
}

// Derive sets col to fn(row) on every row, replacing col in place if it exists
// and appending it otherwise.
func (t *Table) Derive(col string, fn func(r Row) any) *Table {
	columns, index := t.columns, t.index
	j, ok := index[col]
	if !ok {
		columns = append(append([]string(nil), t.columns...), col)
		index = make(map[string]int, len(columns))
		for k, c := range columns {
			index[c] = k
		}
		j = len(columns) - 1
	}
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out := make(Row, len(columns))
		copy(out, r)
		out[j] = fn(r)
		rows[i] = out
	}
	return &Table{columns: columns, index: index, rows: rows}
}

// Distinct returns the non-null values of col in first-seen order.
func (t *Table) Distinct(col string) []any {
	j, ok := t.index[col]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []any
	for _, r := range t.rows {
		v := r[j]
		if v == nil {
			continue
		}
		key := Format(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// Count is the number of rows holding one value of a column.
type Count struct {
	Label string `json:"label"`
	Value any    `json:"value"`
	N     int    `json:"count"`
}

// ValueCounts counts rows per non-null value of col, largest first. Ties keep
// first-seen order.
func (t *Table) ValueCounts(col string) []Count {
	j, ok := t.index[col]
	if !ok {
		return []Count{}
	}
	pos := make(map[string]int)
	out := make([]Count, 0)
	for _, r := range t.rows {
		v := r[j]
		if v == nil {
			continue
		}
		label := Format(v)
		if k, seen := pos[label]; seen {
			out[k].N++
			continue
		}
		pos[label] = len(out)
		out = append(out, Count{Label: label, Value: v, N: 1})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].N > out[b].N })
	return out
}

// Head returns at most n counts.
func Head(counts []Count, n int) []Count {
	if len(counts) > n {
		return counts[:n]
	}
	return counts
}

// GroupStat is the mean of a numeric column over one group.
type GroupStat struct {
	Label string  `json:"label"`
	Value any     `json:"value"`
	Mean  float64 `json:"mean"`
	N     int     `json:"count"`
}

// GroupMean averages the numeric cells of valueCol per non-null value of
// groupCol. Null, non-numeric and non-finite cells are skipped; groups left with no numbers
// are omitted. Groups are ordered by label.
func (t *Table) GroupMean(groupCol, valueCol string) []GroupStat {
	g, okG := t.index[groupCol]
	v, okV := t.index[valueCol]
	if !okG || !okV {
		return []GroupStat{}
	}
	pos := make(map[string]int)
	sums := make([]float64, 0)
	out := make([]GroupStat, 0)
	for _, r := range t.rows {
		if r[g] == nil {
			continue
		}
		x, ok := Number(r[v])
		if !ok || math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		label := Format(r[g])
		k, seen := pos[label]
		if !seen {
			k = len(out)
			pos[label] = k
			out = append(out, GroupStat{Label: label, Value: r[g]})
			sums = append(sums, 0)
		}
		sums[k] += x
		out[k].N++
	}
	for k := range out {
		out[k].Mean = sums[k] / float64(out[k].N)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Label < out[b].Label })
	return out
}

// Number reports v as a float64 when it is numeric.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
