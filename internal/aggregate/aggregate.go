package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"quoteprovider/internal/cache"
	"quoteprovider/internal/provider"
	"quoteprovider/internal/quote"
	"quoteprovider/internal/retry"
)

// Status values reported alongside a result set.
const (
	StatusLive  = "live"
	StatusCache = "cache"
	StatusStale = "stale"
)

var (
	// ErrNoData means every provider and the stale cache came up empty.
	ErrNoData = errors.New("no valid stock data received")
	// ErrTimeout means the exhaustion was caused by timeouts across
	// providers, reported distinctly from generic upstream failure.
	ErrTimeout = errors.New("request timeout across providers")
)

// Result is one aggregation outcome.
type Result struct {
	Quotes []quote.Quote
	Status string // live | cache | stale
	Source string // primary | secondary | mixed
}

// Aggregator merges a batch (primary) provider and a per-symbol
// (secondary) provider behind a TTL/stale snapshot cache.
//
// Policy: serve fresh cache; else call the primary with the full list and
// accept its answer when it covers at least AcceptRatio of the request;
// else fill only the gap through the secondary and merge; else serve a
// stale snapshot; else fail. Every success overwrites the cache entry.
//
// Concurrent requests for the same key are coalesced through a
// singleflight group, tightening the original behavior of issuing
// redundant upstream calls on simultaneous misses.
type Aggregator struct {
	Primary   provider.Provider // optional; nil when the batch tier is disabled
	Secondary provider.Provider // optional
	Cache     cache.Store

	// AcceptRatio is the fraction of requested symbols the primary must
	// resolve for its result to be accepted without a secondary fill.
	// Zero means the documented default of 0.5.
	AcceptRatio float64
	FreshTTL    time.Duration // default 90s
	StaleTTL    time.Duration // default 5m

	group singleflight.Group
}

func (a *Aggregator) Fetch(ctx context.Context, syms []string) (Result, error) {
	if len(syms) == 0 {
		return Result{}, fmt.Errorf("no symbols requested")
	}
	key := cache.Key(syms)
	if data, ok := a.Cache.Get(ctx, key, a.freshTTL()); ok {
		return Result{Quotes: data, Status: StatusCache, Source: sourceOf(data)}, nil
	}
	v, err, _ := a.group.Do(key, func() (any, error) {
		return a.refresh(ctx, key, syms)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (a *Aggregator) refresh(ctx context.Context, key string, syms []string) (Result, error) {
	var primary []quote.Quote
	var lastErr error
	if a.Primary != nil {
		qs, err := a.Primary.Fetch(ctx, syms)
		if err != nil {
			lastErr = err
		} else {
			primary = qs
		}
	}

	// Complete enough: accept the batch answer as-is.
	if a.Primary != nil && len(primary) > 0 &&
		float64(len(primary)) >= float64(len(syms))*a.acceptRatio() {
		a.Cache.Put(ctx, key, primary)
		return Result{Quotes: primary, Status: StatusLive, Source: quote.SourcePrimary}, nil
	}

	// Fetch only the gap set from the per-symbol provider.
	bySym := make(map[string]quote.Quote, len(syms))
	for _, q := range primary {
		bySym[q.Symbol] = q
	}
	missing := make([]string, 0, len(syms))
	for _, s := range syms {
		if _, ok := bySym[s]; !ok {
			missing = append(missing, s)
		}
	}
	if a.Secondary != nil && len(missing) > 0 {
		qs, err := a.Secondary.Fetch(ctx, missing)
		if err != nil {
			lastErr = err
		}
		for _, q := range qs {
			if _, dup := bySym[q.Symbol]; !dup {
				bySym[q.Symbol] = q
			}
		}
	}

	merged := make([]quote.Quote, 0, len(bySym))
	for _, s := range syms {
		if q, ok := bySym[s]; ok {
			merged = append(merged, q)
		}
	}

	if len(merged) == 0 {
		if data, ok := a.Cache.Get(ctx, key, a.staleTTL()); ok {
			return Result{Quotes: data, Status: StatusStale, Source: sourceOf(data)}, nil
		}
		if lastErr != nil {
			if retry.Timeout(lastErr) {
				return Result{}, fmt.Errorf("%w: %v", ErrTimeout, lastErr)
			}
			return Result{}, fmt.Errorf("%w: %v", ErrNoData, lastErr)
		}
		return Result{}, ErrNoData
	}

	source := quote.SourceMixed
	if len(primary) == 0 {
		source = quote.SourceSecondary
	}
	a.Cache.Put(ctx, key, merged)
	return Result{Quotes: merged, Status: StatusLive, Source: source}, nil
}

func (a *Aggregator) acceptRatio() float64 {
	if a.AcceptRatio <= 0 {
		return 0.5
	}
	return a.AcceptRatio
}

func (a *Aggregator) freshTTL() time.Duration {
	if a.FreshTTL <= 0 {
		return 90 * time.Second
	}
	return a.FreshTTL
}

func (a *Aggregator) staleTTL() time.Duration {
	if a.StaleTTL <= 0 {
		return 5 * time.Minute
	}
	return a.StaleTTL
}

// sourceOf recovers the source tag for cached data from its quotes.
func sourceOf(qs []quote.Quote) string {
	if len(qs) == 0 {
		return quote.SourceMixed
	}
	first := qs[0].Source
	for _, q := range qs[1:] {
		if q.Source != first {
			return quote.SourceMixed
		}
	}
	return first
}
