package model

// PriceTier is one row of a provider's price/availability table for a
// service+country pair.
type PriceTier struct {
	Price     int64 // centavos
	Available int
}

type SelectionStrategy string

const (
	// SelectCheapest picks the lowest tier under the cap with enough stock.
	SelectCheapest SelectionStrategy = "cheapest"
	// SelectNearestFromAbove picks the highest tier still under the
	// secondary cap with stock above the strict threshold. Anti-stockout
	// rule for providers whose cheapest tier is chronically sold out.
	SelectNearestFromAbove SelectionStrategy = "nearest_from_above"
)

// SelectionRule carries operator-tuned price discovery parameters. None of
// the thresholds are hard-coded anywhere; they all come from config.
type SelectionRule struct {
	Strategy           SelectionStrategy
	PriceCap           int64
	MinAvailable       int
	SecondaryCap       int64 // used by nearest_from_above; falls back to PriceCap when 0
	StrictMinAvailable int   // used by nearest_from_above; falls back to MinAvailable when 0
}
