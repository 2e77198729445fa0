package fmpadapter

import (
	"context"
	"time"

	"quoteprovider/internal/provider/fmp"
	"quoteprovider/internal/quote"
	"quoteprovider/internal/retry"
	"quoteprovider/internal/symbols"
)

// Config controls the FMP batch adapter.
type Config struct {
	Name  string       // display name, default: FMP
	Retry retry.Policy // per-call deadline and attempt budget
}

// Adapter answers a whole symbol list with one batch call against the
// FMP quote endpoint. It owns the canonical<->provider spelling mapping;
// callers always see canonical symbols.
type Adapter struct {
	cfg    Config
	client *fmp.FMPAPIClient
}

func New(cfg Config, client *fmp.FMPAPIClient) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "FMP"
	}
	if cfg.Retry.Timeout <= 0 {
		cfg.Retry.Timeout = 8 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Fetch(ctx context.Context, syms []string) ([]quote.Quote, error) {
	providerSyms := make([]string, len(syms))
	canonical := make(map[string]string, len(syms)) // provider spelling -> canonical
	for i, s := range syms {
		ps := symbols.ToProvider(s, symbols.KindBatch)
		providerSyms[i] = ps
		canonical[ps] = s
	}

	records, err := retry.Do(ctx, a.cfg.Retry, func(ctx context.Context) ([]fmp.Record, error) {
		return a.client.BatchQuote(ctx, providerSyms)
	})
	if err != nil {
		return nil, err
	}

	out := make([]quote.Quote, 0, len(records))
	for _, rec := range records {
		sym := rec.Symbol
		if c, ok := canonical[sym]; ok {
			sym = c
		}
		raw := quote.Raw{
			Symbol:           sym,
			Price:            rec.Price,
			Change:           rec.Change,
			ChangePercent:    rec.ChangesPercentage,
			Volume:           rec.Volume,
			High:             rec.DayHigh,
			Low:              rec.DayLow,
			Open:             rec.Open,
			PrevClose:        rec.PreviousClose,
			FiftyTwoWeekHigh: rec.YearHigh,
			FiftyTwoWeekLow:  rec.YearLow,
			Source:           quote.SourcePrimary,
		}
		// Records without a numeric price are normal partial data.
		if q, ok := raw.Normalize(); ok {
			out = append(out, q)
		}
	}
	return out, nil
}
