// Package statemachine drives a per-symbol Book from decoded stream events,
// applying snapshot/update semantics and enforcing sequence/crossed-book
// invariants.
package statemachine

import "fmt"

// MalformedEvent is returned when a decoded event fails schema validation —
// a negative size, an unrecognised side, or a missing field.
type MalformedEvent struct {
	Symbol string
	Reason string
}

func (e *MalformedEvent) Error() string {
	return fmt.Sprintf("malformed event for %s: %s", e.Symbol, e.Reason)
}

// SequenceGap is returned when an update's sequence number is not exactly
// one greater than the book's current sequence (a skip, repeat or rewind),
// or when an update arrives while the book is not Live. The caller
// resubscribes; the exchange resends a fresh snapshot.
type SequenceGap struct {
	Symbol  string
	Current int64
	Got     int64
}

func (e *SequenceGap) Error() string {
	return fmt.Sprintf("sequence gap on %s: current=%d got=%d", e.Symbol, e.Current, e.Got)
}

// CrossedBook is returned when best_bid >= best_ask after an apply batch.
// Treated as an upstream bug: the symbol drops to Uninitialized.
type CrossedBook struct {
	Symbol   string
	BestBid  string
	BestAsk  string
}

func (e *CrossedBook) Error() string {
	return fmt.Sprintf("crossed book on %s: best_bid=%s best_ask=%s", e.Symbol, e.BestBid, e.BestAsk)
}
