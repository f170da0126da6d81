package db

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/nickyhof/TenantDB/core"
)

// Table renders rows of text as a boxed grid.
type Table struct {
	w       io.Writer
	headers []string
	rows    [][]string
}

// NewTable creates a table writing to w.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{w: w, headers: headers}
}

// Row adds a row.
func (t *Table) Row(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render writes the table. An empty table writes nothing.
func (t *Table) Render() error {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return nil
	}
	widths := t.widths()
	sep := separator(widths)

	var b strings.Builder
	b.WriteString(sep)
	if len(t.headers) > 0 {
		b.WriteString(formatCells(t.headers, widths))
		b.WriteString(sep)
	}
	for _, row := range t.rows {
		b.WriteString(formatCells(row, widths))
	}
	b.WriteString(sep)
	_, err := io.WriteString(t.w, b.String())
	return err
}

func (t *Table) widths() []int {
	n := len(t.headers)
	for _, row := range t.rows {
		n = max(n, len(row))
	}
	widths := make([]int, n)
	measure := func(cells []string) {
		for i, c := range cells {
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}
	for i := range widths {
		widths[i] = max(widths[i], 1)
	}
	return widths
}

func separator(widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("-", w+2)
	}
	return "+" + strings.Join(parts, "+") + "+\n"
}

func formatCells(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		var c string
		if i < len(cells) {
			c = cells[i]
		}
		parts[i] = " " + c + strings.Repeat(" ", w-utf8.RuneCountInString(c)+1)
	}
	return "|" + strings.Join(parts, "|") + "|\n"
}

// RenderNodes writes nodes as a table with one column per field. Nodes
// read through a relation get a trailing parent column.
func RenderNodes(w io.Writer, nodes core.ManyNodes) error {
	headers := append([]string(nil), nodes.FieldNames...)
	withParent := len(nodes.Nodes) > 0 && nodes.Nodes[0].ParentID != nil
	if withParent {
		headers = append(headers, "parent")
	}
	t := NewTable(w, headers...)
	for _, n := range nodes.Nodes {
		cells := make([]string, 0, len(headers))
		for _, v := range n.Values {
			cells = append(cells, cellText(v))
		}
		if withParent && n.ParentID != nil {
			cells = append(cells, n.ParentID.String())
		}
		t.Row(cells...)
	}
	return t.Render()
}

func cellText(v core.Value) string {
	if v == nil || core.IsNull(v) {
		return "NULL"
	}
	if l, ok := v.(core.ListValue); ok {
		parts := make([]string, len(l))
		for i, e := range l {
			parts[i] = cellText(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}
