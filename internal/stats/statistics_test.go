package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobstream/internal/book"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputeSnapshotScenario(t *testing.T) {
	ob := book.NewOrderedBook()
	ob.Apply(book.Bid, dec("100"), dec("1"))
	ob.Apply(book.Bid, dec("99"), dec("2"))
	ob.Apply(book.Ask, dec("101"), dec("3"))
	ob.Apply(book.Ask, dec("102"), dec("4"))

	s := Compute(ob, "BTC-USD", time.Unix(0, 0), 2)
	require.True(t, s.HasBid && s.HasAsk)
	assert.True(t, s.BestBid.Equal(dec("100")))
	assert.True(t, s.BestAsk.Equal(dec("101")))
	assert.True(t, s.Spread.Equal(dec("1")))
	assert.True(t, s.MidPrice.Equal(dec("100.5")))
	assert.True(t, s.ImbalanceTopN.Equal(dec("0.3").Round(8)), "got %s", s.ImbalanceTopN)
}

func TestComputeDeleteViaZeroSizeScenario(t *testing.T) {
	ob := book.NewOrderedBook()
	ob.Apply(book.Bid, dec("100"), dec("1"))
	ob.Apply(book.Bid, dec("99"), dec("2"))
	ob.Apply(book.Ask, dec("101"), dec("3"))
	ob.Apply(book.Ask, dec("102"), dec("4"))

	ob.Apply(book.Bid, dec("100"), dec("0"))

	s := Compute(ob, "BTC-USD", time.Unix(0, 0), 2)
	assert.True(t, s.BestBid.Equal(dec("99")))
	assert.True(t, s.Spread.Equal(dec("2")))
	assert.True(t, s.MidPrice.Equal(dec("100")))
}

func TestComputeImbalanceUndefinedWhenEmpty(t *testing.T) {
	ob := book.NewOrderedBook()
	s := Compute(ob, "BTC-USD", time.Unix(0, 0), 10)
	assert.False(t, s.HasImbalance)
	assert.False(t, s.HasBid)
	assert.False(t, s.HasSpread)
}

func TestDetectWallScenario(t *testing.T) {
	ob := book.NewOrderedBook()
	ob.Apply(book.Bid, dec("100"), dec("1"))
	ob.Apply(book.Ask, dec("101"), dec("1"))
	ob.Apply(book.Ask, dec("102"), dec("1"))
	ob.Apply(book.Ask, dec("103"), dec("50"))
	ob.Apply(book.Ask, dec("104"), dec("1"))

	wall, found := DetectWall(ob, book.Ask, dec("0.05"), dec("3"), dec("1"))
	require.True(t, found)
	assert.True(t, wall.Price.Equal(dec("103")), "got %s", wall.Price)
	assert.True(t, wall.CumulativeSize.Equal(dec("52")), "got %s", wall.CumulativeSize)
}

func TestDetectWallNoneWhenBookOneSided(t *testing.T) {
	ob := book.NewOrderedBook()
	ob.Apply(book.Bid, dec("100"), dec("1"))
	_, found := DetectWall(ob, book.Bid, dec("0.05"), dec("3"), dec("1"))
	assert.False(t, found)
}
