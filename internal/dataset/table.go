// Package dataset provides the in-memory tables behind the integration step and
// the dashboard: CSV parsing and writing, column selection, key-based left joins
// and duplicate accounting.
//
// Cells are kept as the exact text read from disk. Only key comparison and
// numeric detection interpret them, so a table written back out reproduces the
// source values.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Table is a named rectangular set of string cells.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string

	index map[string]int
}

// NewTable builds a table; every row must have len(headers) cells.
func NewTable(name string, headers []string, rows [][]string) *Table {
	t := &Table{Name: name, Headers: headers, Rows: rows}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Headers))
	for i, h := range t.Headers {
		if _, exists := t.index[h]; !exists {
			t.index[h] = i
		}
	}
}

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) {
	return len(t.Rows), len(t.Headers)
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	if t.index == nil {
		t.reindex()
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether every named column exists.
func (t *Table) Has(names ...string) bool {
	for _, n := range names {
		if t.Index(n) < 0 {
			return false
		}
	}
	return true
}

// Column returns the cells of one column.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found in %s", name, t.Name)
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Floats returns a column parsed as numbers; empty or non-numeric cells become NaN.
func (t *Table) Floats(name string) ([]float64, error) {
	cells, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		out[i] = parseFloat(c)
	}
	return out, nil
}

// Select returns a new table with the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = t.Index(n)
		if idx[i] < 0 {
			return nil, fmt.Errorf("column %q not found in %s", n, t.Name)
		}
	}

	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]string, len(idx))
		for i, j := range idx {
			out[i] = row[j]
		}
		rows[r] = out
	}
	headers := append([]string(nil), names...)
	return NewTable(t.Name, headers, rows), nil
}

// Head returns the first n rows as a new table sharing the row slices.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	if n < 0 {
		n = 0
	}
	return NewTable(t.Name, t.Headers, t.Rows[:n])
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(row []string) bool) *Table {
	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if keep(row) {
			rows = append(rows, row)
		}
	}
	return NewTable(t.Name, t.Headers, rows)
}

// Rename returns a table with columns renamed by the mapping.
func (t *Table) Rename(mapping map[string]string) *Table {
	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		if n, ok := mapping[h]; ok {
			headers[i] = n
		} else {
			headers[i] = h
		}
	}
	return NewTable(t.Name, headers, t.Rows)
}

// Derive sets a column computed from each existing row. An existing column of
// that name is overwritten in place, otherwise the column is appended. Rows and
// header are reallocated so tables sharing them through Head or Filter are left
// untouched.
func (t *Table) Derive(name string, value func(row []string) string) {
	if at := t.Index(name); at >= 0 {
		for i, row := range t.Rows {
			out := make([]string, len(row))
			copy(out, row)
			out[at] = value(row)
			t.Rows[i] = out
		}
		return
	}
	for i, row := range t.Rows {
		t.Rows[i] = append(row[:len(row):len(row)], value(row))
	}
	t.Headers = append(t.Headers[:len(t.Headers):len(t.Headers)], name)
	t.reindex()
}

// AddConstant sets a column holding the same value on every row.
func (t *Table) AddConstant(name, value string) {
	t.Derive(name, func([]string) string { return value })
}

// Records returns the header followed by every row.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Headers)
	out = append(out, t.Rows...)
	return out
}

// NumericColumns lists the columns whose non-empty cells all parse as numbers,
// skipping columns that are entirely empty.
func (t *Table) NumericColumns() []string {
	var out []string
	for i, h := range t.Headers {
		seen := false
		numeric := true
		for _, row := range t.Rows {
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				numeric = false
				break
			}
		}
		if seen && numeric {
			out = append(out, h)
		}
	}
	return out
}

func parseFloat(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
