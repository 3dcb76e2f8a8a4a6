package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lobstream/internal/book"
	"lobstream/internal/statemachine"
)

func buildTestBook(t *testing.T) *statemachine.Book {
	t.Helper()
	sides := book.NewOrderedBook()
	sides.Apply(book.Bid, decimal.RequireFromString("100"), decimal.RequireFromString("1.5"))
	sides.Apply(book.Bid, decimal.RequireFromString("99.5"), decimal.RequireFromString("2"))
	sides.Apply(book.Ask, decimal.RequireFromString("100.5"), decimal.RequireFromString("3"))
	sides.Apply(book.Ask, decimal.RequireFromString("101"), decimal.RequireFromString("0.25"))

	return &statemachine.Book{
		Symbol:    "BTC-USD",
		Sequence:  42,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Sides:     sides,
		Mode:      statemachine.Full,
	}
}

func assertBooksEqual(t *testing.T, want, got *statemachine.Book) {
	t.Helper()
	assert.Equal(t, want.Symbol, got.Symbol)
	assert.Equal(t, want.Sequence, got.Sequence)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, want.Sides.Snapshot(book.Bid), got.Sides.Snapshot(book.Bid))
	assert.Equal(t, want.Sides.Snapshot(book.Ask), got.Sides.Snapshot(book.Ask))
}

func TestLoadSnapshotRoundTripsFullRecord(t *testing.T) {
	dir := t.TempDir()
	original := buildTestBook(t)

	w := New(dir, "order_book", original.Symbol, time.Unix(0, 0), time.Second, zap.NewNop())
	wrote, err := w.MaybeWrite(time.Unix(0, 0), func() any { return BuildFullRecord(original) })
	require.NoError(t, err)
	require.True(t, wrote)
	require.NoError(t, w.Close())

	path := filepath.Join(dir, FileName("order_book", original.Symbol, time.Unix(0, 0)))
	reloaded, err := LoadSnapshot(path)
	require.NoError(t, err)

	assertBooksEqual(t, original, reloaded)
}

func TestLoadSnapshotReadsMostRecentOfMultipleFlushes(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "order_book", "ETH-USD", time.Unix(0, 0), time.Second, zap.NewNop())

	first := &statemachine.Book{
		Symbol: "ETH-USD", Sequence: 1, Timestamp: time.Unix(1000, 0).UTC(), Sides: book.NewOrderedBook(),
	}
	first.Sides.Apply(book.Bid, decimal.RequireFromString("10"), decimal.RequireFromString("1"))

	second := &statemachine.Book{
		Symbol: "ETH-USD", Sequence: 2, Timestamp: time.Unix(2000, 0).UTC(), Sides: book.NewOrderedBook(),
	}
	second.Sides.Apply(book.Bid, decimal.RequireFromString("11"), decimal.RequireFromString("5"))

	_, err := w.MaybeWrite(time.Unix(0, 0), func() any { return BuildFullRecord(first) })
	require.NoError(t, err)
	_, err = w.MaybeWrite(time.Unix(0, 0).Add(time.Second), func() any { return BuildFullRecord(second) })
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := filepath.Join(dir, FileName("order_book", "ETH-USD", time.Unix(0, 0)))
	reloaded, err := LoadSnapshot(path)
	require.NoError(t, err)

	assert.EqualValues(t, 2, reloaded.Sequence)
	bestBid, ok := reloaded.Sides.Best(book.Bid)
	require.True(t, ok)
	assert.Equal(t, "11", bestBid.Price.String())
}

func TestLoadSnapshotErrorsOnMissingFile(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "nonexistent.jsonl.gz"))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
}
