// Package parse extracts monetary line items from extracted document text
// and tabular rows. It is a best-effort tokenizer: lines that do not look
// like financial entries are skipped, never reported as errors.
package parse

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mselway/bookpipe/internal/currency"
	"github.com/mselway/bookpipe/internal/extract"
)

// Line is one monetary entry extracted from a document. The currency is
// always the caller-supplied hint; the parser does not infer currency from
// glyphs in the text.
type Line struct {
	Description string
	Amount      decimal.Decimal
	Currency    currency.Code
}

// glyphReplacer strips thousands separators and the currency glyphs that
// commonly appear attached to amounts on statements. Euro signs are left
// alone; see DESIGN.md.
var glyphReplacer = strings.NewReplacer(",", "", "¥", "", "$", "")

// amountFrom parses a token as a decimal amount after stripping separators
// and known glyphs.
func amountFrom(token string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(glyphReplacer.Replace(token))
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return amount, true
}

// Lines scans free text line by line. A line is a financial entry when it
// splits into at least two whitespace-separated tokens and the final token
// parses as a decimal amount. The description is every token but the last,
// joined by single spaces. Non-matching lines are skipped.
func Lines(text string, hint currency.Code) []Line {
	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		tokens := strings.Fields(raw)
		if len(tokens) < 2 {
			continue
		}
		amount, ok := amountFrom(tokens[len(tokens)-1])
		if !ok {
			continue
		}
		lines = append(lines, Line{
			Description: strings.Join(tokens[:len(tokens)-1], " "),
			Amount:      amount,
			Currency:    hint,
		})
	}
	return lines
}

// AmountColumn returns the index of the table's amount column, matched
// case-insensitively, or -1 when the table has none.
func AmountColumn(table extract.Table) int {
	for i, column := range table.Columns {
		if strings.EqualFold(strings.TrimSpace(column), "amount") {
			return i
		}
	}
	return -1
}

// TableAmounts extracts one Line per table row whose amount column holds a
// parseable value. Rows without a usable amount are skipped.
func TableAmounts(table extract.Table, hint currency.Code) []Line {
	idx := AmountColumn(table)
	if idx < 0 {
		return nil
	}

	var lines []Line
	for _, row := range table.Rows {
		if line, ok := RowAmount(row, idx, hint); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// RowAmount extracts a Line from a single table row given the index of the
// amount column. The other fields of the row, in column order, become the
// description.
func RowAmount(row []string, idx int, hint currency.Code) (Line, bool) {
	if idx < 0 || idx >= len(row) {
		return Line{}, false
	}
	amount, ok := amountFrom(row[idx])
	if !ok {
		return Line{}, false
	}

	var fields []string
	for i, value := range row {
		if i == idx {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			fields = append(fields, value)
		}
	}
	return Line{
		Description: strings.Join(fields, " "),
		Amount:      amount,
		Currency:    hint,
	}, true
}
