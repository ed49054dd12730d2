package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Code is an ISO-4217-style three letter currency code. The UI offers a
// fixed set, but the converter accepts any code the rate service knows.
type Code string

const (
	USD Code = "USD"
	CNY Code = "CNY"
	EUR Code = "EUR"
	GBP Code = "GBP"
	JPY Code = "JPY"
)

// UICodes is the closed set of currencies offered by the upload forms.
var UICodes = []Code{USD, CNY, EUR, GBP, JPY}

// Conversion is the outcome of a rate lookup. When the lookup fails for any
// reason, Amount holds the original value, Currency stays the source
// currency and Converted is false, so callers can never mistake an
// unconverted amount for one expressed in the target currency.
type Conversion struct {
	Amount    decimal.Decimal
	Currency  Code
	Converted bool
	Err       error
}

// Config holds the rate service settings. The API key is passed in
// explicitly; the converter reads no ambient state.
type Config struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// Converter looks up exchange rates against an exchangerate-api style
// /pair endpoint. One request per call, no caching.
type Converter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewConverter creates a Converter from the given config.
func NewConverter(cfg Config) *Converter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://v6.exchangerate-api.com/v6"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Converter{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  client,
	}
}

// pairResponse is the subset of the rate service response we care about.
// conversion_result arrives as a JSON number; json.Number keeps the exact
// decimal representation.
type pairResponse struct {
	ConversionResult json.Number `json:"conversion_result"`
}

// Convert converts amount from one currency to another. A request is issued
// even when from == to; the service returns a 1.0 rate in that case.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to Code) Conversion {
	fallback := func(err error) Conversion {
		return Conversion{Amount: amount, Currency: from, Err: err}
	}

	url := fmt.Sprintf("%s/%s/pair/%s/%s/%s", c.baseURL, c.apiKey, from, to, amount.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fallback(fmt.Errorf("creating rate request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fallback(fmt.Errorf("calling rate service: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallback(fmt.Errorf("rate service returned status %d", resp.StatusCode))
	}

	var body pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fallback(fmt.Errorf("decoding rate response: %w", err))
	}
	if body.ConversionResult == "" {
		return fallback(fmt.Errorf("rate response missing conversion_result"))
	}

	result, err := decimal.NewFromString(body.ConversionResult.String())
	if err != nil {
		return fallback(fmt.Errorf("parsing conversion_result %q: %w", body.ConversionResult, err))
	}

	return Conversion{Amount: result, Currency: to, Converted: true}
}
