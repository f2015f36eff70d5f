// Package export renders schedule tables as downloadable documents.
package export

import "fmt"

// Table is an ordered tabular document ready for rendering. Every row
// must carry exactly one cell per column.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("table has no columns")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Columns))
		}
	}
	return nil
}
