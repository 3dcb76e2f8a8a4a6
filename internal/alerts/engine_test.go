package alerts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobstream/internal/book"
	"lobstream/internal/stats"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func findKind(alertsList []AlertContext, kind Kind) (AlertContext, bool) {
	for _, a := range alertsList {
		if a.Kind == kind {
			return a, true
		}
	}
	return AlertContext{}, false
}

func TestWallEvaporationFiresOnHalving(t *testing.T) {
	e := New(nil, DefaultThresholds())
	ob := book.NewOrderedBook()
	ob.Apply(book.Bid, dec("100"), dec("10"))
	ob.Apply(book.Ask, dec("101"), dec("10"))

	s1 := stats.Compute(ob, "X", time.Unix(0, 0), 10)
	fired := e.Update("X", ob, s1)
	assert.Empty(t, fired)

	ob.Apply(book.Bid, dec("100"), dec("4"))
	s2 := stats.Compute(ob, "X", time.Unix(1, 0), 10)
	fired = e.Update("X", ob, s2)

	alert, ok := findKind(fired, WallEvaporated)
	require.True(t, ok)
	payload := alert.Payload.(WallEvaporatedPayload)
	assert.True(t, payload.PrevSize.Equal(dec("10")))
	assert.True(t, payload.CurrSize.Equal(dec("4")))
}

func TestWallEvaporationNoFalsePositiveWhenPriorZero(t *testing.T) {
	e := New(nil, DefaultThresholds())
	ob := book.NewOrderedBook()
	ob.Apply(book.Bid, dec("100"), dec("1"))
	ob.Apply(book.Ask, dec("101"), dec("1"))
	s1 := stats.Compute(ob, "X", time.Unix(0, 0), 10)
	e.Update("X", ob, s1)

	// price 99 never rested; it cannot "evaporate"
	ob.Apply(book.Bid, dec("99"), dec("5"))
	s2 := stats.Compute(ob, "X", time.Unix(1, 0), 10)
	fired := e.Update("X", ob, s2)
	_, ok := findKind(fired, WallEvaporated)
	assert.False(t, ok)
}

func TestImbalanceAlertEdgeTrigger(t *testing.T) {
	e := New(nil, DefaultThresholds())
	ob := book.NewOrderedBook()
	ob.Apply(book.Bid, dec("100"), dec("91"))
	ob.Apply(book.Ask, dec("101"), dec("9"))

	s1 := stats.Compute(ob, "X", time.Unix(0, 0), 10)
	fired := e.Update("X", ob, s1)
	_, ok := findKind(fired, StrongBuyImbalance)
	assert.True(t, ok)

	// ratio stays > 0.9 on the next update; edge-trigger semantics mean no refire
	ob.Apply(book.Bid, dec("100"), dec("92"))
	s2 := stats.Compute(ob, "X", time.Unix(1, 0), 10)
	fired = e.Update("X", ob, s2)
	_, ok = findKind(fired, StrongBuyImbalance)
	assert.False(t, ok)
}

func TestSpreadWideFires(t *testing.T) {
	e := New(nil, DefaultThresholds())
	ob := book.NewOrderedBook()
	ob.Apply(book.Bid, dec("100"), dec("1"))
	ob.Apply(book.Ask, dec("110"), dec("1"))

	s := stats.Compute(ob, "X", time.Unix(0, 0), 10)
	fired := e.Update("X", ob, s)
	_, ok := findKind(fired, SpreadWide)
	assert.True(t, ok)
}
