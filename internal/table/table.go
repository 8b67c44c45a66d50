// Package table encodes drained batches into the two-row table a polling
// host consumes.
//
// Axis convention: a table has exactly two rows and one column per drained
// topic. Row 0 holds topic keys, row 1 holds values, and column c is the
// c-th topic of the batch:
//
//	        col 0     col 1    ...
//	row 0   key[0]    key[1]
//	row 1   val[0]    val[1]
//
// Hosts that describe arrays by dimension see dimension 1 as the rows
// (2 elements) and dimension 2 as the columns (N elements). In memory the
// leftmost index varies fastest, so ColumnMajor yields key0, val0, key1, ...
package table

import (
	"fmt"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
)

// Row indices.
const (
	RowKeys   = 0
	RowValues = 1

	// Rows is the fixed row count.
	Rows = 2
)

// Table is an immutable 2 x N grid of values. Cells are stored row-major.
type Table struct {
	cols  int
	cells []ir.Value
}

// Bound describes one dimension in host order.
type Bound struct {
	Lower    int32
	Elements int32
}

// Rows returns 2.
func (t *Table) Rows() int {
	return Rows
}

// Cols returns the number of topics.
func (t *Table) Cols() int {
	return t.cols
}

// At returns the cell at (row, col).
func (t *Table) At(row, col int) (ir.Value, error) {
	if row < 0 || row >= Rows || col < 0 || col >= t.cols {
		return nil, fmt.Errorf("cell (%d, %d) outside %dx%d table", row, col, Rows, t.cols)
	}
	return t.cells[row*t.cols+col], nil
}

// Key returns the topic key in column col.
func (t *Table) Key(col int) (int32, error) {
	v, err := t.At(RowKeys, col)
	if err != nil {
		return 0, err
	}
	k, ok := v.(ir.Int)
	if !ok {
		return 0, fmt.Errorf("column %d key is %s, not int", col, v.Kind())
	}
	return int32(k), nil
}

// Bounds returns the dimensions in host order: rows first, then columns.
func (t *Table) Bounds() []Bound {
	return []Bound{
		{Lower: 0, Elements: Rows},
		{Lower: 0, Elements: int32(t.cols)},
	}
}

// UBound returns the upper index bound of a 1-based dimension, as hosts
// query it. Dimension 1 is rows, dimension 2 is columns.
func (t *Table) UBound(dim int) (int32, error) {
	b := t.Bounds()
	if dim < 1 || dim > len(b) {
		return 0, fmt.Errorf("dimension %d out of range [1, %d]", dim, len(b))
	}
	return b[dim-1].Lower + b[dim-1].Elements - 1, nil
}

// RowMajor returns a copy of the cells, all keys first then all values.
func (t *Table) RowMajor() []ir.Value {
	return append([]ir.Value(nil), t.cells...)
}

// ColumnMajor returns the cells with the row index varying fastest:
// key0, val0, key1, val1, ...
func (t *Table) ColumnMajor() []ir.Value {
	out := make([]ir.Value, 0, len(t.cells))
	for c := 0; c < t.cols; c++ {
		out = append(out, t.cells[RowKeys*t.cols+c], t.cells[RowValues*t.cols+c])
	}
	return out
}

// Entries decodes the table back into key/value pairs in column order.
func (t *Table) Entries() ([]engine.Entry, error) {
	out := make([]engine.Entry, t.cols)
	for c := 0; c < t.cols; c++ {
		k, err := t.Key(c)
		if err != nil {
			return nil, err
		}
		out[c] = engine.Entry{Key: k, Value: t.cells[RowValues*t.cols+c]}
	}
	return out, nil
}

// Canonical returns the table as {"rows": [[keys...], [values...]]} for
// canonical JSON encoding.
func (t *Table) Canonical() map[string]any {
	rows := make([]any, Rows)
	for r := 0; r < Rows; r++ {
		row := make([]any, t.cols)
		for c := 0; c < t.cols; c++ {
			row[c] = t.cells[r*t.cols+c]
		}
		rows[r] = row
	}
	return map[string]any{"rows": rows}
}

// MarshalJSON encodes the table canonically.
func (t *Table) MarshalJSON() ([]byte, error) {
	return ir.MarshalCanonical(t.Canonical())
}

// Digest returns a content digest of the table.
func (t *Table) Digest() (string, error) {
	return ir.Digest(ir.DomainTable, t.Canonical())
}

// DefaultMaxColumns bounds a single table allocation.
const DefaultMaxColumns = 1 << 20

// Encoder converts batches into tables.
type Encoder struct {
	// MaxColumns is the largest batch that will be encoded. Zero means
	// DefaultMaxColumns.
	MaxColumns int
}

// Encode builds the table for b. An empty batch yields a nil table and no
// error. A batch wider than MaxColumns yields a resource exhausted error;
// the batch has already been drained, so those updates are not re-queued.
func (enc Encoder) Encode(b engine.Batch) (*Table, error) {
	n := b.Len()
	if n == 0 {
		return nil, nil
	}

	limit := enc.MaxColumns
	if limit <= 0 {
		limit = DefaultMaxColumns
	}
	if n > limit {
		return nil, engine.NewResourceExhaustedError("table columns", n, limit)
	}

	t := &Table{
		cols:  n,
		cells: make([]ir.Value, Rows*n),
	}
	for c, e := range b {
		t.cells[RowKeys*n+c] = ir.Int(e.Key)
		v := e.Value
		if v == nil {
			v = ir.Absent{}
		}
		t.cells[RowValues*n+c] = v
	}
	return t, nil
}

// Encode builds a table with the default encoder.
func Encode(b engine.Batch) (*Table, error) {
	return Encoder{}.Encode(b)
}
