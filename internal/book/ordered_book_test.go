package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestOrderedBookBestOfSide(t *testing.T) {
	ob := NewOrderedBook()
	ob.Apply(Bid, d("100"), d("1"))
	ob.Apply(Bid, d("99"), d("2"))
	ob.Apply(Ask, d("101"), d("3"))
	ob.Apply(Ask, d("102"), d("4"))

	bestBid, ok := ob.Best(Bid)
	require.True(t, ok)
	assert.True(t, bestBid.Price.Equal(d("100")))

	bestAsk, ok := ob.Best(Ask)
	require.True(t, ok)
	assert.True(t, bestAsk.Price.Equal(d("101")))
}

func TestOrderedBookDeleteViaZeroSize(t *testing.T) {
	ob := NewOrderedBook()
	ob.Apply(Bid, d("100"), d("1"))
	ob.Apply(Bid, d("99"), d("2"))

	ob.Apply(Bid, d("100"), d("0"))
	best, ok := ob.Best(Bid)
	require.True(t, ok)
	assert.True(t, best.Price.Equal(d("99")))

	// idempotent: deleting again is a no-op, not an error
	ob.Apply(Bid, d("100"), d("0"))
	assert.Equal(t, 1, ob.Len(Bid))
}

func TestOrderedBookUpsertOverwrites(t *testing.T) {
	ob := NewOrderedBook()
	ob.Apply(Bid, d("100"), d("1"))
	ob.Apply(Bid, d("100"), d("5"))

	best, ok := ob.Best(Bid)
	require.True(t, ok)
	assert.True(t, best.Size.Equal(d("5")))
	assert.Equal(t, 1, ob.Len(Bid))
}

func TestOrderedBookSortOrder(t *testing.T) {
	ob := NewOrderedBook()
	for _, p := range []string{"98", "100", "99", "97"} {
		ob.Apply(Bid, d(p), d("1"))
	}
	top := ob.TopN(Bid, 10)
	want := []string{"100", "99", "98", "97"}
	require.Len(t, top, len(want))
	for i, p := range want {
		assert.Truef(t, top[i].Price.Equal(d(p)), "index %d: got %s want %s", i, top[i].Price, p)
	}

	ob2 := NewOrderedBook()
	for _, p := range []string{"103", "101", "102"} {
		ob2.Apply(Ask, d(p), d("1"))
	}
	topAsk := ob2.TopN(Ask, 10)
	wantAsk := []string{"101", "102", "103"}
	require.Len(t, topAsk, len(wantAsk))
	for i, p := range wantAsk {
		assert.Truef(t, topAsk[i].Price.Equal(d(p)), "index %d: got %s want %s", i, topAsk[i].Price, p)
	}
}

func TestOrderedBookSumVolumeMonotonic(t *testing.T) {
	ob := NewOrderedBook()
	for _, p := range []string{"100", "99", "98", "97", "96"} {
		ob.Apply(Bid, d(p), d("1"))
	}

	prev := decimal.Zero
	for n := 1; n <= 5; n++ {
		sum := ob.SumVolume(Bid, n)
		assert.True(t, sum.GreaterThanOrEqual(prev))
		prev = sum
	}
	assert.True(t, ob.SumVolume(Bid, 5).Equal(d("5")))
	assert.True(t, ob.SumVolume(Bid, 100).Equal(d("5")))
}

func TestOrderedBookIter(t *testing.T) {
	ob := NewOrderedBook()
	ob.Apply(Ask, d("101"), d("1"))
	ob.Apply(Ask, d("102"), d("2"))

	next := ob.Iter(Ask)
	level, ok := next()
	require.True(t, ok)
	assert.True(t, level.Price.Equal(d("101")))

	level, ok = next()
	require.True(t, ok)
	assert.True(t, level.Price.Equal(d("102")))

	_, ok = next()
	assert.False(t, ok)
}
