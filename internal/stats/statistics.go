// Package stats computes pure microstructure statistics over a
// reconstructed order book: best bid/ask, spread, mid-price, depth-weighted
// imbalance, and wall detection. Every computation stays in decimal
// arithmetic; float conversion only happens at the display/metrics edge.
package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"lobstream/internal/book"
)

// Statistics is a snapshot-in-time record derived from a Book at a given
// depth.
type Statistics struct {
	Timestamp     time.Time
	Symbol        string
	BestBid       decimal.Decimal
	BestBidSize   decimal.Decimal
	BestAsk       decimal.Decimal
	BestAskSize   decimal.Decimal
	HasBid        bool
	HasAsk        bool
	Spread        decimal.Decimal
	HasSpread     bool
	MidPrice      decimal.Decimal
	HasMid        bool
	ImbalanceTopN decimal.Decimal
	HasImbalance  bool
	BidVolumeTopN decimal.Decimal
	AskVolumeTopN decimal.Decimal
	DepthLevels   int
}

// Compute derives the Statistics record for b at the given depth (top N
// levels per side). depthLevels must be >= 1.
func Compute(b *book.OrderedBook, symbol string, at time.Time, depthLevels int) Statistics {
	s := Statistics{
		Timestamp:   at,
		Symbol:      symbol,
		DepthLevels: depthLevels,
	}

	if bid, ok := b.Best(book.Bid); ok {
		s.BestBid, s.BestBidSize, s.HasBid = bid.Price, bid.Size, true
	}
	if ask, ok := b.Best(book.Ask); ok {
		s.BestAsk, s.BestAskSize, s.HasAsk = ask.Price, ask.Size, true
	}
	if s.HasBid && s.HasAsk {
		s.Spread = s.BestAsk.Sub(s.BestBid)
		s.HasSpread = true
		s.MidPrice = s.BestBid.Add(s.BestAsk).Div(decimal.NewFromInt(2))
		s.HasMid = true
	}

	s.BidVolumeTopN = b.SumVolume(book.Bid, depthLevels)
	s.AskVolumeTopN = b.SumVolume(book.Ask, depthLevels)

	denom := s.BidVolumeTopN.Add(s.AskVolumeTopN)
	if denom.IsPositive() {
		s.ImbalanceTopN = s.BidVolumeTopN.DivRound(denom, 8)
		s.HasImbalance = true
	}

	return s
}
