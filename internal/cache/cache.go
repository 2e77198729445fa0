package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	"quoteprovider/internal/quote"
)

// Store is a snapshot cache for whole aggregation results, keyed by the
// request's symbol list. A read passes the maximum acceptable age: the
// fresh TTL on the happy path, the longer stale TTL on the error path.
// Entries are only ever overwritten, never deleted; expiry is purely an
// age check at read time.
type Store interface {
	Get(ctx context.Context, key string, maxAge time.Duration) ([]quote.Quote, bool)
	Put(ctx context.Context, key string, quotes []quote.Quote)
}

// Key builds the cache key for a canonical symbol list: sorted and
// comma-joined, so request order does not fragment the cache.
func Key(syms []string) string {
	sorted := make([]string, len(syms))
	copy(sorted, syms)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Nop disables caching entirely for deterministic test runs.
type Nop struct{}

func (Nop) Get(context.Context, string, time.Duration) ([]quote.Quote, bool) { return nil, false }
func (Nop) Put(context.Context, string, []quote.Quote)                       {}
