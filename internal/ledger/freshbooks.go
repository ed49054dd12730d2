// Package ledger submits normalized records to a FreshBooks-style
// accounting service as single-line-item invoices.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// nameMaxLen caps the invoice line item name. The full description is kept
// elsewhere; only the ledger copy is truncated.
const nameMaxLen = 50

// Invoice describes one record to submit. Zero CustomerID and empty Date
// fall back to the configured defaults.
type Invoice struct {
	CustomerID int64
	Date       string // YYYY-MM-DD
	Name       string
	Amount     decimal.Decimal
	Currency   string
}

// Defaults fill optional invoice fields the document did not provide.
type Defaults struct {
	CustomerID int64
	Date       string
}

// InvoiceResult identifies the created invoice.
type InvoiceResult struct {
	ID            int64  `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
}

// SubmissionError reports a failed invoice creation: either a transport
// level failure or an error embedded in an otherwise successful response
// body. The accounting API reports logical failures inside a 200 response,
// so the body is always inspected.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("invoice submission failed (status %d): %s", e.StatusCode, e.Message)
}

// Config holds accounting service credentials. The bearer token and
// business id are passed in explicitly.
type Config struct {
	BaseURL    string
	Token      string
	BusinessID string
	Client     *http.Client
}

// Client submits invoices to the accounting service.
type Client struct {
	baseURL    string
	token      string
	businessID string
	client     *http.Client
}

// NewClient creates a ledger Client from the given config.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.freshbooks.com"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		businessID: cfg.BusinessID,
		client:     client,
	}
}

type unitCost struct {
	Amount string `json:"amount"`
	Code   string `json:"code"`
}

type invoiceLine struct {
	Name     string   `json:"name"`
	Qty      int      `json:"qty"`
	UnitCost unitCost `json:"unit_cost"`
}

type invoiceBody struct {
	CustomerID int64         `json:"customerid"`
	CreateDate string        `json:"create_date"`
	Lines      []invoiceLine `json:"lines"`
}

type invoicePayload struct {
	Invoice invoiceBody `json:"invoice"`
}

type invoiceResponse struct {
	Response struct {
		Errors []struct {
			ErrNo   int    `json:"errno"`
			Message string `json:"message"`
		} `json:"errors"`
		Result struct {
			Invoice InvoiceResult `json:"invoice"`
		} `json:"result"`
	} `json:"response"`
}

// CreateInvoice posts a single-line-item invoice with quantity 1 and a unit
// cost of the record's amount in the record's currency.
func (c *Client) CreateInvoice(ctx context.Context, inv Invoice, defaults Defaults) (*InvoiceResult, error) {
	if inv.CustomerID == 0 {
		inv.CustomerID = defaults.CustomerID
	}
	if inv.Date == "" {
		inv.Date = defaults.Date
	}

	payload := invoicePayload{
		Invoice: invoiceBody{
			CustomerID: inv.CustomerID,
			CreateDate: inv.Date,
			Lines: []invoiceLine{
				{
					Name: truncateName(inv.Name),
					Qty:  1,
					UnitCost: unitCost{
						Amount: inv.Amount.String(),
						Code:   inv.Currency,
					},
				},
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling invoice: %w", err)
	}

	url := fmt.Sprintf("%s/accounting/account/%s/invoices/invoices", c.baseURL, c.businessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Version", "alpha")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling accounting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &SubmissionError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var invResp invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&invResp); err != nil {
		return nil, fmt.Errorf("decoding invoice response: %w", err)
	}

	// The API embeds logical failures in a transport-level success.
	if len(invResp.Response.Errors) > 0 {
		return nil, &SubmissionError{
			StatusCode: resp.StatusCode,
			Message:    invResp.Response.Errors[0].Message,
		}
	}

	result := invResp.Response.Result.Invoice
	return &result, nil
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= nameMaxLen {
		return name
	}
	return string(runes[:nameMaxLen])
}
