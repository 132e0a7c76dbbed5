// Package dataset holds the in-memory table: ordered named columns and
// ordered rows of heterogeneous cells.
package dataset

import (
	"github.com/cockroachdb/errors"
)

type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]Value
}

func New(name string, columns []string) *Dataset {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Dataset{Name: name, Columns: cols}
}

func (d *Dataset) Len() int { return len(d.Rows) }

// ColumnIndex returns the position of name or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// AppendRow adds a row, padding with Null or truncating to the column count.
func (d *Dataset) AppendRow(row []Value) {
	r := make([]Value, len(d.Columns))
	copy(r, row)
	d.Rows = append(d.Rows, r)
}

// Column returns a copy of the named column's cells.
func (d *Dataset) Column(name string) ([]Value, error) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, missingColumn(name, d.Columns)
	}
	out := make([]Value, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r[idx]
	}
	return out, nil
}

// SetColumn overwrites an existing column or appends a new one at the end.
func (d *Dataset) SetColumn(name string, values []Value) error {
	if len(values) != len(d.Rows) {
		return errors.Wrapf(ErrLengthMismatch, "column %q: %d values for %d rows", name, len(values), len(d.Rows))
	}
	idx := d.ColumnIndex(name)
	if idx < 0 {
		d.Columns = append(d.Columns, name)
		for i := range d.Rows {
			d.Rows[i] = append(d.Rows[i], values[i])
		}
		return nil
	}
	for i := range d.Rows {
		d.Rows[i][idx] = values[i]
	}
	return nil
}

// Head returns a copy of the first n rows (all rows when n <= 0 or n >= Len).
func (d *Dataset) Head(n int) *Dataset {
	if n <= 0 || n > len(d.Rows) {
		n = len(d.Rows)
	}
	out := New(d.Name, d.Columns)
	for _, r := range d.Rows[:n] {
		out.AppendRow(r)
	}
	return out
}

// Slice returns rows [offset, offset+limit) clipped to the table bounds.
// The returned rows share storage with d.
func (d *Dataset) Slice(offset, limit int) [][]Value {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(d.Rows) {
		return nil
	}
	end := len(d.Rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return d.Rows[offset:end]
}

// Clone deep-copies the table so the copy can be augmented independently.
func (d *Dataset) Clone() *Dataset {
	out := New(d.Name, d.Columns)
	out.Rows = make([][]Value, 0, len(d.Rows))
	for _, r := range d.Rows {
		out.AppendRow(r)
	}
	return out
}

// Records converts rows to column-keyed maps, e.g. for JSON responses.
func Records(columns []string, rows [][]Value) []map[string]Value {
	out := make([]map[string]Value, 0, len(rows))
	for _, r := range rows {
		m := make(map[string]Value, len(columns))
		for i, c := range columns {
			if i < len(r) {
				m[c] = r[i]
			}
		}
		out = append(out, m)
	}
	return out
}
