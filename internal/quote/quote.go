package quote

import "math"

// Source values identify which provider path produced a quote.
const (
	SourcePrimary   = "primary"
	SourceSecondary = "secondary"
	SourceMixed     = "mixed"
)

// Quote is the normalized market snapshot for one ticker, the shape
// returned by all providers and served to clients.
type Quote struct {
	Symbol           string   `json:"symbol"`
	Price            float64  `json:"price"`
	Change           float64  `json:"change"`
	ChangePercent    float64  `json:"changePercent"`
	Volume           int64    `json:"volume"`
	High             float64  `json:"high"`
	Low              float64  `json:"low"`
	Open             float64  `json:"open"`
	PrevClose        float64  `json:"prevClose"`
	FiftyTwoWeekHigh *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow  *float64 `json:"fiftyTwoWeekLow"`
	Source           string   `json:"source"`
}

// Raw carries one provider record before defaults are applied. Pointer
// fields distinguish absent values from zeros, so the merge logic never
// has to guess whether 0 means "missing".
type Raw struct {
	Symbol           string
	Price            *float64
	Change           *float64
	ChangePercent    *float64
	Volume           *int64
	High             *float64
	Low              *float64
	Open             *float64
	PrevClose        *float64
	FiftyTwoWeekHigh *float64
	FiftyTwoWeekLow  *float64
	Source           string
}

// Normalize applies the default-fill rules and reports whether the record
// is emittable. A record without a symbol or without a finite numeric
// price yields false; that is normal partial data, not an error.
//
// Defaults: change and changePercent derive from prevClose when absent
// (0 when prevClose is zero or missing), volume defaults to 0, high and
// low default to price, open to prevClose then price, prevClose to price.
func (r Raw) Normalize() (Quote, bool) {
	if r.Symbol == "" || r.Price == nil || !isFinite(*r.Price) {
		return Quote{}, false
	}
	price := *r.Price
	q := Quote{Symbol: r.Symbol, Price: price, Source: r.Source}

	if r.PrevClose != nil && isFinite(*r.PrevClose) {
		q.PrevClose = *r.PrevClose
	} else {
		q.PrevClose = price
	}
	if r.Change != nil && isFinite(*r.Change) {
		q.Change = *r.Change
	} else if r.PrevClose != nil && isFinite(*r.PrevClose) {
		q.Change = price - *r.PrevClose
	}
	if r.ChangePercent != nil && isFinite(*r.ChangePercent) {
		q.ChangePercent = *r.ChangePercent
	} else if r.PrevClose != nil {
		q.ChangePercent = ChangePercent(price, *r.PrevClose)
	}
	if r.Volume != nil && *r.Volume > 0 {
		q.Volume = *r.Volume
	}
	if r.High != nil && isFinite(*r.High) {
		q.High = *r.High
	} else {
		q.High = price
	}
	if r.Low != nil && isFinite(*r.Low) {
		q.Low = *r.Low
	} else {
		q.Low = price
	}
	if r.Open != nil && isFinite(*r.Open) {
		q.Open = *r.Open
	} else {
		q.Open = q.PrevClose
	}
	q.FiftyTwoWeekHigh = finiteOrNil(r.FiftyTwoWeekHigh)
	q.FiftyTwoWeekLow = finiteOrNil(r.FiftyTwoWeekLow)
	return q, true
}

// ChangePercent computes the percent move from prevClose with a division
// guard: a zero or non-finite prevClose always yields 0.
func ChangePercent(price, prevClose float64) float64 {
	if prevClose == 0 || !isFinite(prevClose) || !isFinite(price) {
		return 0
	}
	return (price - prevClose) / prevClose * 100
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	return v
}
