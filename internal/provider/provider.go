package provider

import (
	"context"

	"quoteprovider/internal/quote"
)

// Provider fetches normalized quotes for a list of canonical symbols.
// A short result with a nil error is normal partial success; a non-nil
// error means the provider was unusable for this request and the caller
// should move on to the next fallback.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]quote.Quote, error)
}
