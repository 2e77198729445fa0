package aggregate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"quoteprovider/internal/cache"
	"quoteprovider/internal/quote"
)

type fakeProvider struct {
	name   string
	quotes map[string]quote.Quote
	err    error
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(_ context.Context, syms []string) ([]quote.Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]quote.Quote, 0, len(syms))
	for _, s := range syms {
		if q, ok := f.quotes[s]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func q(sym string, price float64, source string) quote.Quote {
	return quote.Quote{Symbol: sym, Price: price, Source: source}
}

func quotesFor(source string, syms ...string) map[string]quote.Quote {
	m := make(map[string]quote.Quote, len(syms))
	for i, s := range syms {
		m[s] = q(s, float64(100+i), source)
	}
	return m
}

func TestFetch_PrimaryCompleteEnough(t *testing.T) {
	primary := &fakeProvider{name: "fmp", quotes: quotesFor(quote.SourcePrimary, "AAPL", "MSFT")}
	secondary := &fakeProvider{name: "yahoo", quotes: quotesFor(quote.SourceSecondary, "AAPL", "MSFT")}
	a := &Aggregator{Primary: primary, Secondary: secondary, Cache: cache.NewMemory()}

	res, err := a.Fetch(context.Background(), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusLive || res.Source != quote.SourcePrimary {
		t.Fatalf("status/source = %s/%s", res.Status, res.Source)
	}
	if len(res.Quotes) != 2 {
		t.Fatalf("got %d quotes", len(res.Quotes))
	}
	if secondary.calls != 0 {
		t.Fatal("secondary must not be called when the primary is complete")
	}
}

func TestFetch_PartialPrimaryFillsGapFromSecondary(t *testing.T) {
	// Primary resolves 1 of 4: under the 50% threshold.
	primary := &fakeProvider{name: "fmp", quotes: quotesFor(quote.SourcePrimary, "AAPL")}
	secondary := &fakeProvider{name: "yahoo", quotes: quotesFor(quote.SourceSecondary, "MSFT", "GOOGL")}
	a := &Aggregator{Primary: primary, Secondary: secondary, Cache: cache.NewMemory()}

	res, err := a.Fetch(context.Background(), []string{"AAPL", "MSFT", "GOOGL", "AMZN"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != quote.SourceMixed {
		t.Fatalf("source = %s, want mixed", res.Source)
	}
	if len(res.Quotes) != 3 {
		t.Fatalf("got %d quotes: %+v", len(res.Quotes), res.Quotes)
	}
	// Ordered by request, carrying each side's tag.
	if res.Quotes[0].Symbol != "AAPL" || res.Quotes[0].Source != quote.SourcePrimary {
		t.Fatalf("quote 0: %+v", res.Quotes[0])
	}
	if res.Quotes[1].Symbol != "MSFT" || res.Quotes[1].Source != quote.SourceSecondary {
		t.Fatalf("quote 1: %+v", res.Quotes[1])
	}
}

func TestFetch_HalfCoverageAcceptedWithoutFallback(t *testing.T) {
	// Exactly 50% of 4 meets the threshold.
	primary := &fakeProvider{name: "fmp", quotes: quotesFor(quote.SourcePrimary, "AAPL", "MSFT")}
	secondary := &fakeProvider{name: "yahoo", quotes: quotesFor(quote.SourceSecondary, "GOOGL", "AMZN")}
	a := &Aggregator{Primary: primary, Secondary: secondary, Cache: cache.NewMemory()}

	res, err := a.Fetch(context.Background(), []string{"AAPL", "MSFT", "GOOGL", "AMZN"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != quote.SourcePrimary || secondary.calls != 0 {
		t.Fatalf("threshold boundary: source=%s secondary calls=%d", res.Source, secondary.calls)
	}
}

func TestFetch_NoPrimaryFallsThroughToSecondary(t *testing.T) {
	secondary := &fakeProvider{name: "yahoo", quotes: quotesFor(quote.SourceSecondary, "AAPL")}
	a := &Aggregator{Secondary: secondary, Cache: cache.NewMemory()}

	res, err := a.Fetch(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != quote.SourceSecondary {
		t.Fatalf("source = %s", res.Source)
	}
}

func TestFetch_PrimaryErrorDoesNotPoisonSecondary(t *testing.T) {
	primary := &fakeProvider{name: "fmp", err: errors.New("quota exhausted")}
	secondary := &fakeProvider{name: "yahoo", quotes: quotesFor(quote.SourceSecondary, "AAPL")}
	a := &Aggregator{Primary: primary, Secondary: secondary, Cache: cache.NewMemory()}

	res, err := a.Fetch(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Quotes) != 1 || res.Source != quote.SourceSecondary {
		t.Fatalf("got %+v", res)
	}
}

func TestFetch_FreshCacheHitSkipsProviders(t *testing.T) {
	primary := &fakeProvider{name: "fmp", quotes: quotesFor(quote.SourcePrimary, "AAPL")}
	a := &Aggregator{Primary: primary, Cache: cache.NewMemory()}

	if _, err := a.Fetch(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	res, err := a.Fetch(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusCache {
		t.Fatalf("status = %s", res.Status)
	}
	if primary.calls != 1 {
		t.Fatalf("primary calls = %d, want 1", primary.calls)
	}
}

func TestFetch_StaleServedWhenProvidersFail(t *testing.T) {
	store := cache.NewMemory()
	good := &fakeProvider{name: "fmp", quotes: quotesFor(quote.SourcePrimary, "AAPL")}
	a := &Aggregator{Primary: good, Cache: store, FreshTTL: time.Nanosecond, StaleTTL: 5 * time.Minute}

	if _, err := a.Fetch(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	// Entry is now older than the (tiny) fresh TTL and both providers fail.
	time.Sleep(time.Millisecond)
	a.Primary = &fakeProvider{name: "fmp", err: errors.New("down")}
	a.Secondary = &fakeProvider{name: "yahoo", err: errors.New("down")}

	res, err := a.Fetch(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("stale fallback failed: %v", err)
	}
	if res.Status != StatusStale {
		t.Fatalf("status = %s, want stale", res.Status)
	}
	if len(res.Quotes) != 1 || res.Quotes[0].Symbol != "AAPL" {
		t.Fatalf("got %+v", res.Quotes)
	}
}

func TestFetch_TotalFailureWithoutCache(t *testing.T) {
	a := &Aggregator{
		Primary:   &fakeProvider{name: "fmp", err: errors.New("down")},
		Secondary: &fakeProvider{name: "yahoo", err: errors.New("down")},
		Cache:     cache.Nop{},
	}
	_, err := a.Fetch(context.Background(), []string{"AAPL"})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestFetch_TimeoutExhaustionReportedDistinctly(t *testing.T) {
	a := &Aggregator{
		Primary:   &fakeProvider{name: "fmp", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded)},
		Secondary: &fakeProvider{name: "yahoo", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded)},
		Cache:     cache.Nop{},
	}
	_, err := a.Fetch(context.Background(), []string{"AAPL"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestFetch_SuccessOverwritesCacheEntry(t *testing.T) {
	store := cache.NewMemory()
	a := &Aggregator{
		Primary: &fakeProvider{name: "fmp", quotes: quotesFor(quote.SourcePrimary, "AAPL")},
		Cache:   store,
	}
	if _, err := a.Fetch(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := store.Get(context.Background(), cache.Key([]string{"AAPL"}), time.Minute); !ok {
		t.Fatal("cache entry missing after success")
	}
}
