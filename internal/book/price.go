// Package book implements the per-symbol priced-level order book: ordered
// bid/ask maps with O(log N) mutation and O(log N) best-of-side lookup.
package book

import "github.com/shopspring/decimal"

// Side identifies which half of the book a price level belongs to.
type Side int

const (
	// Bid is the buy side, sorted descending by price (best = highest).
	Bid Side = iota
	// Ask is the sell side, sorted ascending by price (best = lowest).
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// PriceLevel is a single resting price and its aggregated size. A size of
// zero in an incremental update means "remove this price"; it is never
// stored as a level.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}
