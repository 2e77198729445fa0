package symbols

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects a provider's ticker spelling.
type Kind int

const (
	// KindCanonical is the spelling used throughout the aggregator (BRK-B).
	KindCanonical Kind = iota
	// KindBatch is the batch provider spelling: the first hyphen becomes
	// a dot (BRK-B -> BRK.B).
	KindBatch
	// KindChart is the per-symbol chart provider spelling, identical to
	// the canonical one.
	KindChart
)

var (
	// ErrInvalidFormat means a symbol failed the strict character check.
	ErrInvalidFormat = errors.New("invalid symbols format")
	// ErrTooMany means the request exceeded the endpoint's symbol limit.
	ErrTooMany = errors.New("too many symbols")
)

// Options controls Parse behavior per endpoint tier.
type Options struct {
	Max     int      // maximum symbols per request; <= 0 means unlimited
	Strict  bool     // enforce the allowed character set
	Default []string // substituted when the raw input is empty
}

// Parse splits a comma-separated ticker list, trims and upper-cases each
// entry, drops empties and duplicates preserving order, and validates the
// result against opts. An empty input yields opts.Default untouched.
func Parse(raw string, opts Options) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return opts.Default, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		s := strings.ToUpper(strings.TrimSpace(p))
		if s == "" {
			continue
		}
		if opts.Strict && !wellFormed(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if opts.Max > 0 && len(out) > opts.Max {
		return nil, fmt.Errorf("%w (max %d)", ErrTooMany, opts.Max)
	}
	return out, nil
}

// wellFormed checks a single upper-cased ticker against the allowed set
// [A-Z0-9.=^-].
func wellFormed(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '=' || c == '^' || c == '-':
		default:
			return false
		}
	}
	return len(s) > 0
}

// ToProvider converts a canonical ticker to the spelling kind expects.
func ToProvider(canonical string, k Kind) string {
	if k == KindBatch {
		return strings.Replace(canonical, "-", ".", 1)
	}
	return canonical
}

// ToCanonical is the inverse of ToProvider. For the symbols accepted by
// Parse the two form a bijection, so batch responses can be mapped back
// regardless of response order.
func ToCanonical(sym string, k Kind) string {
	if k == KindBatch {
		return strings.Replace(sym, ".", "-", 1)
	}
	return sym
}
