package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"quoteprovider/internal/fanout"
	"quoteprovider/internal/httpx"
	"quoteprovider/internal/quote"
	"quoteprovider/internal/retry"
	"quoteprovider/internal/symbols"
)

// Config controls the Yahoo chart provider behavior.
type Config struct {
	Name       string
	Hosts      []string          // mirror hosts tried in order per symbol
	Headers    map[string]string // optional extra headers
	Retry      retry.Policy      // per host/attempt budget
	BatchSize  int               // concurrent symbols per chunk
	BatchDelay time.Duration     // pause between chunks
}

// Provider fetches one symbol per call against the unauthenticated chart
// endpoint, trying each mirror host in sequence before giving up on that
// symbol. The full list is driven through the chunked fan-out runner so
// peak upstream concurrency stays at BatchSize.
type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Yahoo"
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []string{
			"https://query1.finance.yahoo.com",
			"https://query2.finance.yahoo.com",
		}
	}
	if cfg.Retry.Timeout <= 0 {
		cfg.Retry.Timeout = 8 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

type outcome struct {
	q   *quote.Quote
	err error
}

func (p *Provider) Fetch(ctx context.Context, syms []string) ([]quote.Quote, error) {
	if len(syms) == 0 {
		return nil, nil
	}
	results := fanout.RunChunked(ctx, syms, p.fetchSymbol, p.cfg.BatchSize, p.cfg.BatchDelay)

	out := make([]quote.Quote, 0, len(results))
	var lastErr error
	for _, r := range results {
		if r.q != nil {
			out = append(out, *r.q)
			continue
		}
		if r.err != nil && (lastErr == nil || retry.Timeout(r.err)) {
			lastErr = r.err
		}
	}
	if len(out) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if lastErr != nil {
			return nil, fmt.Errorf("%s: %w", p.cfg.Name, lastErr)
		}
		return nil, fmt.Errorf("%s: no symbols resolved", p.cfg.Name)
	}
	return out, nil
}

// fetchSymbol resolves one symbol, walking the mirror hosts in order.
// Every failure is folded into an absence marker; a single symbol never
// fails the batch.
func (p *Provider) fetchSymbol(ctx context.Context, sym string) outcome {
	var lastErr error
	for _, host := range p.cfg.Hosts {
		u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d",
			host, url.PathEscape(symbols.ToProvider(sym, symbols.KindChart)))
		q, err := retry.Do(ctx, p.cfg.Retry, func(ctx context.Context) (*quote.Quote, error) {
			return p.fetchChart(ctx, u, sym)
		})
		if err == nil && q != nil {
			return outcome{q: q}
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return outcome{err: lastErr}
}

func (p *Provider) fetchChart(ctx context.Context, u, sym string) (*quote.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, &retry.HTTPError{Status: resp.StatusCode, Body: string(b)}
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(body.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty chart result for %s", sym)
	}
	meta := body.Chart.Result[0].Meta

	prev := meta.ChartPreviousClose
	if prev == nil {
		prev = meta.PreviousClose
	}
	if meta.RegularMarketPrice == nil || prev == nil || *prev == 0 {
		return nil, fmt.Errorf("no usable price for %s", sym)
	}

	raw := quote.Raw{
		Symbol:           sym,
		Price:            meta.RegularMarketPrice,
		Volume:           meta.RegularMarketVolume,
		High:             meta.RegularMarketDayHigh,
		Low:              meta.RegularMarketDayLow,
		Open:             meta.RegularMarketOpen,
		PrevClose:        prev,
		FiftyTwoWeekHigh: meta.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  meta.FiftyTwoWeekLow,
		Source:           quote.SourceSecondary,
	}
	q, ok := raw.Normalize()
	if !ok {
		return nil, fmt.Errorf("no usable price for %s", sym)
	}
	return &q, nil
}

// Response model based on the v8 chart payload; only meta is consumed.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta chartMeta `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

type chartMeta struct {
	Symbol               string   `json:"symbol"`
	RegularMarketPrice   *float64 `json:"regularMarketPrice"`
	ChartPreviousClose   *float64 `json:"chartPreviousClose"`
	PreviousClose        *float64 `json:"previousClose"`
	RegularMarketVolume  *int64   `json:"regularMarketVolume"`
	RegularMarketDayHigh *float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow  *float64 `json:"regularMarketDayLow"`
	RegularMarketOpen    *float64 `json:"regularMarketOpen"`
	FiftyTwoWeekHigh     *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow      *float64 `json:"fiftyTwoWeekLow"`
}
