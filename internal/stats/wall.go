package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"lobstream/internal/book"
)

// Wall is the nearest price bucket whose cumulative size dominates the
// surrounding liquidity on one side, per spec §4.3's band/bucket/threshold
// algorithm.
type Wall struct {
	Side           book.Side
	Price          decimal.Decimal
	CumulativeSize decimal.Decimal
}

type bucket struct {
	price    decimal.Decimal
	size     decimal.Decimal
	distance decimal.Decimal
}

// DetectWall finds a wall on side using the mid-price derived from b.
// priceWindow is the fractional band width (0,1], wallFactor is the
// cumulative-size-over-average threshold multiplier (>= 1), tickGroup is
// the bucket width (> 0). Returns (Wall{}, false) when both sides aren't
// present, or when no bucket clears the threshold.
func DetectWall(b *book.OrderedBook, side book.Side, priceWindow, wallFactor, tickGroup decimal.Decimal) (Wall, bool) {
	bestBid, hasBid := b.Best(book.Bid)
	bestAsk, hasAsk := b.Best(book.Ask)
	if !hasBid || !hasAsk {
		return Wall{}, false
	}
	mid := bestBid.Price.Add(bestAsk.Price).Div(decimal.NewFromInt(2))

	var lo, hi decimal.Decimal
	if side == book.Bid {
		lo = mid.Mul(decimal.NewFromInt(1).Sub(priceWindow))
		hi = mid
	} else {
		lo = mid
		hi = mid.Mul(decimal.NewFromInt(1).Add(priceWindow))
	}

	levels := b.Snapshot(side)
	buckets := map[string]*bucket{}
	order := make([]string, 0)
	for _, lvl := range levels {
		if side == book.Bid {
			if lvl.Price.LessThan(lo) || !lvl.Price.LessThan(hi) {
				continue
			}
		} else {
			if !lvl.Price.GreaterThan(lo) || lvl.Price.GreaterThan(hi) {
				continue
			}
		}
		bucketPrice := roundToTick(lvl.Price, tickGroup)
		key := bucketPrice.String()
		bk, ok := buckets[key]
		if !ok {
			bk = &bucket{price: bucketPrice, distance: bucketPrice.Sub(mid).Abs()}
			buckets[key] = bk
			order = append(order, key)
		}
		bk.size = bk.size.Add(lvl.Size)
	}

	if len(order) == 0 {
		return Wall{}, false
	}

	sort.Slice(order, func(i, j int) bool {
		return buckets[order[i]].distance.LessThan(buckets[order[j]].distance)
	})

	total := decimal.Zero
	for _, k := range order {
		total = total.Add(buckets[k].size)
	}
	average := total.DivRound(decimal.NewFromInt(int64(len(order))), 8)
	threshold := wallFactor.Mul(average)

	cumulative := decimal.Zero
	for _, k := range order {
		cumulative = cumulative.Add(buckets[k].size)
		if cumulative.GreaterThanOrEqual(threshold) {
			return Wall{Side: side, Price: buckets[k].price, CumulativeSize: cumulative}, true
		}
	}
	return Wall{}, false
}

func roundToTick(price, tickGroup decimal.Decimal) decimal.Decimal {
	units := price.DivRound(tickGroup, 16).Round(0)
	return units.Mul(tickGroup)
}
