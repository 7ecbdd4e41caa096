// Package inspect renders compiled layouts and live struct views as tables.
package inspect

import (
	"fmt"
	"io"
	"strings"

	"memlayout/coloransi"
)

// FormatFunc is a callback to format/colorize cell values
type FormatFunc func(value string) string

// ColumnSpec defines a column's properties
type ColumnSpec struct {
	Header     string
	BlankValue string     // shown for empty cells, default "-"
	FormatFunc FormatFunc // optional colorizer, applied at render time
	MinWidth   int
}

type row struct {
	cells     []string
	separator bool
}

// Table is a column-aligned text table. Cells may carry ANSI colour.
type Table struct {
	columns   []ColumnSpec
	rows      []row
	widths    []int
	separator string
}

// NewTable creates a new table with the given column specifications
func NewTable(cols ...ColumnSpec) *Table {
	t := &Table{
		columns:   cols,
		widths:    make([]int, len(cols)),
		separator: "-",
	}
	for i := range t.columns {
		if t.columns[i].BlankValue == "" {
			t.columns[i].BlankValue = "-"
		}
		t.widths[i] = max(t.columns[i].MinWidth, len(t.columns[i].Header))
	}
	return t
}

// AddRow adds a row of data; missing and empty cells take the column's blank value.
func (t *Table) AddRow(data ...string) {
	cells := make([]string, len(t.columns))
	for i := range cells {
		if i < len(data) && data[i] != "" {
			cells[i] = data[i]
		} else {
			cells[i] = t.columns[i].BlankValue
		}
		if n := coloransi.VisibleLen(cells[i]); n > t.widths[i] {
			t.widths[i] = n
		}
	}
	t.rows = append(t.rows, row{cells: cells})
}

// AddSeparator adds a separator line
func (t *Table) AddSeparator() {
	t.rows = append(t.rows, row{separator: true})
}

// SetSeparatorChar sets the character used for separator lines
func (t *Table) SetSeparatorChar(char string) {
	t.separator = char
}

// Len is the number of rows added, separators included.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to the given writer
func (t *Table) Render(w io.Writer) error {
	headers := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = pad(col.Header, t.widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(headers, " "), " ")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, t.rule("-")); err != nil {
		return err
	}

	for _, r := range t.rows {
		if r.separator {
			if _, err := fmt.Fprintln(w, t.rule(t.separator)); err != nil {
				return err
			}
			continue
		}
		formatted := make([]string, len(r.cells))
		for i, val := range r.cells {
			if fn := t.columns[i].FormatFunc; fn != nil && val != t.columns[i].BlankValue {
				val = fn(val)
			}
			formatted[i] = pad(val, t.widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(formatted, " "), " ")); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) rule(char string) string {
	parts := make([]string, len(t.widths))
	for i, width := range t.widths {
		parts[i] = strings.Repeat(char, width)
	}
	return strings.Join(parts, " ")
}

// pad pads a string to the given visible width
func pad(s string, width int) string {
	n := coloransi.VisibleLen(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
