package statemachine

import (
	"time"

	"github.com/shopspring/decimal"

	"lobstream/internal/book"
)

// BookStateMachine drives one symbol's Book from decoded Events. It is
// single-owned by the StreamClient worker that receives those events, so it
// keeps no internal locking.
type BookStateMachine struct {
	symbol string
	mode   Mode
	state  State
	book   *Book
}

// New returns a state machine for symbol in the Uninitialized state. It
// produces no Book until the first OnSnapshot.
func New(symbol string, mode Mode) *BookStateMachine {
	return &BookStateMachine{symbol: symbol, mode: mode, state: Uninitialized}
}

// State reports the current lifecycle stage.
func (m *BookStateMachine) State() State { return m.state }

// Book returns the current reconstructed book: nil before the first
// OnSnapshot and after Close. After a SequenceGap or CrossedBook the last
// book is still returned while State reports Uninitialized.
func (m *BookStateMachine) Book() *Book { return m.book }

// OnSnapshot reinitializes the book from evt, discarding any prior state.
// Fails with MalformedEvent if any contained level has a negative size, and
// leaves the machine's state and current book unchanged in that case.
func (m *BookStateMachine) OnSnapshot(evt Event) error {
	fresh := newBook(m.symbol, m.mode)
	for _, lvl := range evt.Updates {
		if lvl.Side != SideBid && lvl.Side != SideOffer {
			return &MalformedEvent{Symbol: m.symbol, Reason: "unrecognized side: " + string(lvl.Side)}
		}
		price, size, err := parseLevel(lvl)
		if err != nil {
			return &MalformedEvent{Symbol: m.symbol, Reason: err.Error()}
		}
		if size.IsNegative() {
			return &MalformedEvent{Symbol: m.symbol, Reason: "negative size in snapshot level"}
		}
		if size.IsZero() {
			continue
		}
		fresh.Sides.Apply(sideOf(lvl.Side), price, size)
	}
	fresh.Sequence = evt.Sequence
	fresh.Timestamp = evtTimestamp(evt)

	m.book = fresh
	m.state = Live
	return m.checkCrossed()
}

// OnUpdate applies an incremental update. evt.Sequence must be exactly one
// greater than the book's current sequence; any gap (a skip as well as a
// repeat or rewind) fails with SequenceGap and the machine drops to
// Uninitialized so the caller can resubscribe. Fails with MalformedEvent on
// an unparseable level, without changing state.
func (m *BookStateMachine) OnUpdate(evt Event) error {
	if m.state != Live || m.book == nil {
		return &SequenceGap{Symbol: m.symbol, Current: 0, Got: evt.Sequence}
	}
	if evt.Sequence != m.book.Sequence+1 {
		m.state = Uninitialized
		return &SequenceGap{Symbol: m.symbol, Current: m.book.Sequence, Got: evt.Sequence}
	}

	for _, lvl := range evt.Updates {
		if lvl.Side != SideBid && lvl.Side != SideOffer {
			return &MalformedEvent{Symbol: m.symbol, Reason: "unrecognized side: " + string(lvl.Side)}
		}
		price, size, err := parseLevel(lvl)
		if err != nil {
			return &MalformedEvent{Symbol: m.symbol, Reason: err.Error()}
		}
		if size.IsNegative() {
			return &MalformedEvent{Symbol: m.symbol, Reason: "negative size in update level"}
		}
		m.book.Sides.Apply(sideOf(lvl.Side), price, size)
	}
	m.book.Sequence = evt.Sequence
	m.book.Timestamp = evtTimestamp(evt)

	if err := m.checkCrossed(); err != nil {
		return err
	}
	return nil
}

// Close transitions the machine to its terminal state. No further events
// may be applied.
func (m *BookStateMachine) Close() {
	m.state = Closed
	m.book = nil
}

// checkCrossed drops the book to Uninitialized and returns CrossedBook when
// best_bid >= best_ask after an apply batch.
func (m *BookStateMachine) checkCrossed() error {
	bestBid, hasBid := m.book.Sides.Best(book.Bid)
	bestAsk, hasAsk := m.book.Sides.Best(book.Ask)
	if !hasBid || !hasAsk {
		return nil
	}
	if bestBid.Price.GreaterThanOrEqual(bestAsk.Price) {
		crossed := &CrossedBook{
			Symbol:  m.symbol,
			BestBid: bestBid.Price.String(),
			BestAsk: bestAsk.Price.String(),
		}
		m.state = Uninitialized
		return crossed
	}
	return nil
}

func sideOf(s Side) book.Side {
	if s == SideBid {
		return book.Bid
	}
	return book.Ask
}

func parseLevel(lvl LevelChange) (price, size decimal.Decimal, err error) {
	price, err = decimal.NewFromString(lvl.Price)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	size, err = decimal.NewFromString(lvl.NewSize)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return price, size, nil
}

func evtTimestamp(evt Event) time.Time {
	if evt.ReceivedAt.IsZero() {
		return time.Now().UTC()
	}
	return evt.ReceivedAt
}
