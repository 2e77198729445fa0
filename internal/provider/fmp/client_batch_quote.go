package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	"quoteprovider/internal/retry"
)

// Record is one raw row from the FMP batch quote endpoint. Pointer
// fields keep "absent" distinguishable from zero; records without a
// numeric price are expected and dropped downstream.
type Record struct {
	Symbol            string   `json:"symbol"`
	Price             *float64 `json:"price"`
	Change            *float64 `json:"change"`
	ChangesPercentage *float64 `json:"changesPercentage"`
	Volume            *int64   `json:"volume"`
	DayHigh           *float64 `json:"dayHigh"`
	DayLow            *float64 `json:"dayLow"`
	Open              *float64 `json:"open"`
	PreviousClose     *float64 `json:"previousClose"`
	YearHigh          *float64 `json:"yearHigh"`
	YearLow           *float64 `json:"yearLow"`
}

// BatchQuote retrieves quotes for all symbols in a single call. Symbols
// must already be in the provider's spelling. Non-2xx responses come
// back as *retry.HTTPError so the executor can classify them.
func (c *FMPAPIClient) BatchQuote(ctx context.Context, symbols []string, opts ...FMPAPIClientOption) ([]Record, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols requested")
	}
	var override = &FMPAPIClient{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      c.query,
	}
	for _, opt := range opts {
		opt(override)
	}

	query := maps.Clone(override.query)
	url := fmt.Sprintf("%s/quote/%s?%s", override.baseURL, strings.Join(symbols, ","), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return nil, &retry.HTTPError{Status: res.StatusCode, Body: string(b)}
	}

	var records []Record
	if err := json.NewDecoder(res.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding quote response: %w", err)
	}
	return records, nil
}
