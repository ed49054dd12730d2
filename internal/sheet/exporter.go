// Package sheet exports record grids to a Google Sheet range.
package sheet

import (
	"context"
	"fmt"

	"google.golang.org/api/sheets/v4"
)

// Exporter writes rectangular grids into a fixed spreadsheet. It holds no
// credential state: the sheets service handle arrives already authorized.
type Exporter struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewExporter creates an Exporter for the given spreadsheet.
func NewExporter(svc *sheets.Service, spreadsheetID string) *Exporter {
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
	}
}

// Export overwrites the target range with the given grid. The first row is
// expected to hold the column headers. Prior contents of the range are
// replaced, not merged; repeated exports to the same range replace each
// other. Returns the number of updated cells.
func (e *Exporter) Export(ctx context.Context, values [][]interface{}, rangeSpec string) (int64, error) {
	body := &sheets.ValueRange{Values: values}
	resp, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rangeSpec, body).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("updating sheet range %s: %w", rangeSpec, err)
	}
	return resp.UpdatedCells, nil
}
