package document

import (
	"github.com/shopspring/decimal"

	"github.com/mselway/bookpipe/internal/currency"
)

// Record is a normalized financial entry ready for ledger submission and
// sheet export. Converted reports whether the amount was actually converted
// to the target currency; when false, Currency still names the source
// currency so an unconverted value is never mislabeled.
type Record struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    currency.Code   `json:"currency"`
	Converted   bool            `json:"converted"`
}

// Submission reports the outcome of one invoice creation.
type Submission struct {
	InvoiceID     int64  `json:"invoice_id,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Error         string `json:"error,omitempty"`
}
