package document

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mselway/bookpipe/internal/currency"
	"github.com/mselway/bookpipe/internal/extract"
	"github.com/mselway/bookpipe/internal/ledger"
	"github.com/mselway/bookpipe/internal/parse"
)

// Converter performs one rate lookup per call.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to currency.Code) currency.Conversion
}

// Ledger submits invoices to the accounting service.
type Ledger interface {
	CreateInvoice(ctx context.Context, inv ledger.Invoice, defaults ledger.Defaults) (*ledger.InvoiceResult, error)
}

// Exporter overwrites a spreadsheet range with a grid of values.
type Exporter interface {
	Export(ctx context.Context, values [][]interface{}, rangeSpec string) (int64, error)
}

// Config carries the pipeline settings handed to every run.
type Config struct {
	// TargetCurrency is the base currency all records are converted to.
	TargetCurrency currency.Code
	// SheetRange is the spreadsheet range exports overwrite.
	SheetRange string
	// InvoiceDefaults fill customer id and date when a document supplies
	// neither.
	InvoiceDefaults ledger.Defaults
}

// Service runs the document-to-ledger pipeline: extract, parse, convert,
// normalize, then submit and export. One linear run per user action; no
// state survives a run.
type Service struct {
	ocr       extract.Recognizer
	converter Converter
	ledger    Ledger
	exporter  Exporter
	cfg       Config
}

// NewService wires the pipeline components together.
func NewService(ocr extract.Recognizer, converter Converter, led Ledger, exporter Exporter, cfg Config) *Service {
	if cfg.TargetCurrency == "" {
		cfg.TargetCurrency = currency.USD
	}
	if cfg.SheetRange == "" {
		cfg.SheetRange = "Sheet1!A1"
	}
	return &Service{
		ocr:       ocr,
		converter: converter,
		ledger:    led,
		exporter:  exporter,
		cfg:       cfg,
	}
}

// InvoiceRequest is one uploaded invoice or receipt.
type InvoiceRequest struct {
	Filename    string
	Data        []byte
	ContentType string
	Currency    currency.Code
	// Amount overrides the parsed line items with a single manually
	// entered amount, the way the original form allowed.
	Amount     *decimal.Decimal
	CustomerID int64
	Date       string
}

// InvoiceOutcome is the result of one invoice pipeline run.
type InvoiceOutcome struct {
	Text         string       `json:"text"`
	Records      []Record     `json:"records"`
	Submissions  []Submission `json:"submissions"`
	UpdatedCells int64        `json:"updated_cells"`
}

// StatementOutcome is the result of one bank statement pipeline run.
type StatementOutcome struct {
	Text         string   `json:"text"`
	Records      []Record `json:"records"`
	UpdatedCells int64    `json:"updated_cells"`
}

// TableOutcome is the result of one CSV pipeline run. Columns and Rows hold
// the augmented table that was exported.
type TableOutcome struct {
	Columns      []string   `json:"columns"`
	Rows         [][]string `json:"rows"`
	Records      []Record   `json:"records"`
	UpdatedCells int64      `json:"updated_cells"`
}

// ErrNoAmountColumn is returned when a CSV upload has no amount column to
// work with.
var ErrNoAmountColumn = fmt.Errorf("csv has no amount column")

// ProcessInvoice extracts an uploaded invoice or receipt, converts its
// amounts to the target currency, creates one invoice per record, and
// exports the records to the spreadsheet. The sheet export runs even when
// individual submissions fail; there is no transactional boundary between
// the two sinks.
func (s *Service) ProcessInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceOutcome, error) {
	text, err := s.extractText(ctx, req.Data, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("extracting document text: %w", err)
	}

	var lines []parse.Line
	if req.Amount != nil {
		lines = []parse.Line{{
			Description: clip(text, 50),
			Amount:      *req.Amount,
			Currency:    req.Currency,
		}}
	} else {
		lines = parse.Lines(text, req.Currency)
	}

	records := s.convertLines(ctx, lines)

	submissions := make([]Submission, 0, len(records))
	for _, rec := range records {
		inv := ledger.Invoice{
			CustomerID: req.CustomerID,
			Date:       req.Date,
			Name:       rec.Description,
			Amount:     rec.Amount,
			Currency:   string(rec.Currency),
		}
		result, err := s.ledger.CreateInvoice(ctx, inv, s.cfg.InvoiceDefaults)
		if err != nil {
			slog.Error("Failed to create invoice", "description", rec.Description, "error", err)
			submissions = append(submissions, Submission{Error: err.Error()})
			continue
		}
		submissions = append(submissions, Submission{
			InvoiceID:     result.ID,
			InvoiceNumber: result.InvoiceNumber,
		})
	}

	cells, err := s.exporter.Export(ctx, recordGrid(records), s.cfg.SheetRange)
	if err != nil {
		return nil, fmt.Errorf("exporting records to sheet: %w", err)
	}

	return &InvoiceOutcome{
		Text:         text,
		Records:      records,
		Submissions:  submissions,
		UpdatedCells: cells,
	}, nil
}

// ProcessStatement extracts a bank statement PDF, parses its entry lines,
// converts the amounts, and exports the records to the spreadsheet. No
// invoices are created for statements.
func (s *Service) ProcessStatement(ctx context.Context, data []byte, hint currency.Code) (*StatementOutcome, error) {
	text, err := extract.PDF(data)
	if err != nil {
		return nil, fmt.Errorf("extracting statement text: %w", err)
	}

	records := s.convertLines(ctx, parse.Lines(text, hint))

	cells, err := s.exporter.Export(ctx, recordGrid(records), s.cfg.SheetRange)
	if err != nil {
		return nil, fmt.Errorf("exporting records to sheet: %w", err)
	}

	return &StatementOutcome{
		Text:         text,
		Records:      records,
		UpdatedCells: cells,
	}, nil
}

// ProcessTable parses a CSV upload, converts each row's amount to the
// target currency, appends converted_amount and currency columns, and
// exports the augmented table, overwriting the spreadsheet range.
func (s *Service) ProcessTable(ctx context.Context, r io.Reader, hint currency.Code) (*TableOutcome, error) {
	table, err := extract.CSV(r)
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}

	idx := parse.AmountColumn(table)
	if idx < 0 {
		return nil, ErrNoAmountColumn
	}

	columns := append(append([]string{}, table.Columns...), "converted_amount", "currency")
	rows := make([][]string, 0, len(table.Rows))
	var records []Record

	for _, row := range table.Rows {
		augmented := append([]string{}, row...)
		line, ok := parse.RowAmount(row, idx, hint)
		if !ok {
			augmented = append(augmented, "", "")
			rows = append(rows, augmented)
			continue
		}

		rec := s.convertLine(ctx, line)
		records = append(records, rec)
		augmented = append(augmented, rec.Amount.String(), string(rec.Currency))
		rows = append(rows, augmented)
	}

	cells, err := s.exporter.Export(ctx, tableGrid(columns, rows), s.cfg.SheetRange)
	if err != nil {
		return nil, fmt.Errorf("exporting table to sheet: %w", err)
	}

	return &TableOutcome{
		Columns:      columns,
		Rows:         rows,
		Records:      records,
		UpdatedCells: cells,
	}, nil
}

// extractText picks the extraction path for an invoice upload: embedded PDF
// text for PDFs, OCR for images.
func (s *Service) extractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if strings.EqualFold(strings.TrimSpace(contentType), "application/pdf") {
		return extract.PDF(data)
	}
	return s.ocr.RecognizeText(ctx, data, contentType)
}

// convertLine runs one line through the currency converter and assembles
// the normalized record. A failed conversion keeps the original amount and
// source currency and is logged; the record carries the flag.
func (s *Service) convertLine(ctx context.Context, line parse.Line) Record {
	conv := s.converter.Convert(ctx, line.Amount, line.Currency, s.cfg.TargetCurrency)
	if !conv.Converted {
		slog.Warn("Currency conversion failed, keeping original amount",
			"description", line.Description,
			"currency", line.Currency,
			"error", conv.Err,
		)
	}
	return Record{
		Description: line.Description,
		Amount:      conv.Amount,
		Currency:    conv.Currency,
		Converted:   conv.Converted,
	}
}

func (s *Service) convertLines(ctx context.Context, lines []parse.Line) []Record {
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		records = append(records, s.convertLine(ctx, line))
	}
	return records
}

// recordGrid serializes records for sheet export: a header row followed by
// one row per record, in a fixed column order. The untruncated description
// is exported.
func recordGrid(records []Record) [][]interface{} {
	grid := [][]interface{}{
		{"description", "amount", "currency", "converted"},
	}
	for _, rec := range records {
		grid = append(grid, []interface{}{
			rec.Description,
			rec.Amount.String(),
			string(rec.Currency),
			rec.Converted,
		})
	}
	return grid
}

func tableGrid(columns []string, rows [][]string) [][]interface{} {
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	grid := [][]interface{}{header}
	for _, row := range rows {
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		grid = append(grid, values)
	}
	return grid
}

func clip(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
