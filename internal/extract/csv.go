package extract

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Table is an ordered set of named-field rows parsed from a tabular file.
// Column names are taken verbatim from the header row.
type Table struct {
	Columns []string
	Rows    [][]string
}

// CSV parses a CSV document into a Table. The first row is treated as the
// header. A malformed file fails the whole document; there is no partial
// result.
func CSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return Table{}, fmt.Errorf("reading csv header: %w", err)
	}

	table := Table{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("reading csv record: %w", err)
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}
