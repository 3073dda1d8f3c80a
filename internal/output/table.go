package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table is a header row plus body rows. Every row must have one cell per
// header.
type Table struct {
	Headers []string
	Rows    [][]string
}

func NewTable(headers ...string) Table {
	return Table{Headers: headers}
}

// NewFieldTable starts a vertical FIELD/VALUE table, used for single records
// such as a decoded frame or a database summary.
func NewFieldTable() Table {
	return NewTable("FIELD", "VALUE")
}

func (t *Table) Add(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t Table) Write(w io.Writer) error {
	return WriteTable(w, t.Headers, t.Rows)
}

func WriteTable(w io.Writer, headers []string, rows [][]string) error {
	for i, row := range rows {
		if len(headers) > 0 && len(row) != len(headers) {
			return fmt.Errorf("table row %d has %d columns, expected %d", i, len(row), len(headers))
		}
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(headers) > 0 {
		if _, err := fmt.Fprintln(tw, strings.Join(headers, "\t")); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
