package alerts

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"lobstream/internal/book"
	"lobstream/internal/stats"
)

const midRingSize = 20
const minVolatilitySamples = 10

type symbolState struct {
	hasPrev  bool
	prevBids []book.PriceLevel
	prevAsks []book.PriceLevel

	midRing    [midRingSize]decimal.Decimal
	ringLen    int
	ringNext   int

	imbalanceHighLatched bool
	imbalanceLowLatched  bool
	spreadLatched        bool
}

// Engine runs the four detectors over successive book states for every
// symbol it has seen, holding only its own rolling state — never the Book
// itself (spec.md §9's cyclic-ownership guidance).
type Engine struct {
	thresholds map[string]Thresholds
	defaults   Thresholds
	state      map[string]*symbolState
}

// New returns an Engine using defaults for any symbol without an explicit
// entry in perSymbol.
func New(perSymbol map[string]Thresholds, defaults Thresholds) *Engine {
	if perSymbol == nil {
		perSymbol = map[string]Thresholds{}
	}
	return &Engine{
		thresholds: perSymbol,
		defaults:   defaults,
		state:      map[string]*symbolState{},
	}
}

func (e *Engine) thresholdsFor(symbol string) Thresholds {
	if t, ok := e.thresholds[symbol]; ok {
		return t
	}
	return e.defaults
}

// Update runs all detectors for symbol against the current book/statistics
// and returns every alert fired this call, in detector order. It then
// rotates internal rolling state to current.
func (e *Engine) Update(symbol string, b *book.OrderedBook, s stats.Statistics) []AlertContext {
	th := e.thresholdsFor(symbol)
	st, ok := e.state[symbol]
	if !ok {
		st = &symbolState{}
		e.state[symbol] = st
	}

	var alerts []AlertContext

	if st.hasPrev {
		alerts = append(alerts, e.checkWallEvaporation(symbol, book.Bid, st.prevBids, b, s.Timestamp, th)...)
		alerts = append(alerts, e.checkWallEvaporation(symbol, book.Ask, st.prevAsks, b, s.Timestamp, th)...)
	}

	if s.HasImbalance {
		alerts = append(alerts, e.checkImbalance(symbol, s, th, st)...)
	}

	if s.HasSpread {
		alerts = append(alerts, e.checkSpread(symbol, s, th, st)...)
	}

	if s.HasMid {
		st.midRing[st.ringNext] = s.MidPrice
		st.ringNext = (st.ringNext + 1) % midRingSize
		if st.ringLen < midRingSize {
			st.ringLen++
		}
		if st.ringLen >= minVolatilitySamples {
			if alert, fired := e.checkVolatility(symbol, s.Timestamp, th, st); fired {
				alerts = append(alerts, alert)
			}
		}
	}

	st.prevBids = b.Snapshot(book.Bid)
	st.prevAsks = b.Snapshot(book.Ask)
	st.hasPrev = true

	return alerts
}

// checkWallEvaporation emits WallEvaporated for each of the top-D previous
// prices on side whose current size fell below half the previous size.
// Prices that no longer rest on the book at all count as size 0 — fully
// evaporated.
func (e *Engine) checkWallEvaporation(symbol string, side book.Side, prevLevels []book.PriceLevel, b *book.OrderedBook, at time.Time, th Thresholds) []AlertContext {
	var out []AlertContext
	half := decimal.NewFromFloat(0.5)
	limit := th.TopD
	if limit > len(prevLevels) {
		limit = len(prevLevels)
	}

	current := make(map[string]decimal.Decimal, b.Len(side))
	for _, lvl := range b.Snapshot(side) {
		current[lvl.Price.String()] = lvl.Size
	}

	for i := 0; i < limit; i++ {
		prev := prevLevels[i]
		if prev.Size.IsZero() {
			continue
		}
		curr, stillResting := current[prev.Price.String()]
		if !stillResting {
			curr = decimal.Zero
		}
		if curr.LessThan(prev.Size.Mul(half)) {
			out = append(out, newAlert(WallEvaporated, symbol, at, WallEvaporatedPayload{
				Side:     side.String(),
				Price:    prev.Price,
				PrevSize: prev.Size,
				CurrSize: curr,
			}))
		}
	}
	return out
}

// checkImbalance fires on the rising edge of each threshold crossing, so a
// sustained extreme imbalance alerts once rather than on every update.
func (e *Engine) checkImbalance(symbol string, s stats.Statistics, th Thresholds, st *symbolState) []AlertContext {
	var out []AlertContext
	high := s.ImbalanceTopN.GreaterThan(th.ImbalanceHigh)
	low := s.ImbalanceTopN.LessThan(th.ImbalanceLow)

	if high && !st.imbalanceHighLatched {
		out = append(out, newAlert(StrongBuyImbalance, symbol, s.Timestamp, ImbalancePayload{
			ImbalanceTopN: s.ImbalanceTopN,
			DepthLevels:   s.DepthLevels,
		}))
	}
	if low && !st.imbalanceLowLatched {
		out = append(out, newAlert(StrongSellImbalance, symbol, s.Timestamp, ImbalancePayload{
			ImbalanceTopN: s.ImbalanceTopN,
			DepthLevels:   s.DepthLevels,
		}))
	}
	st.imbalanceHighLatched = high
	st.imbalanceLowLatched = low
	return out
}

func (e *Engine) checkSpread(symbol string, s stats.Statistics, th Thresholds, st *symbolState) []AlertContext {
	var out []AlertContext
	wide := s.Spread.GreaterThan(th.SpreadWide)
	if wide && !st.spreadLatched {
		out = append(out, newAlert(SpreadWide, symbol, s.Timestamp, SpreadPayload{
			Spread:    s.Spread,
			Threshold: th.SpreadWide,
		}))
	}
	st.spreadLatched = wide
	return out
}

// checkVolatility computes the sample standard deviation over the mid-price
// ring and fires when it exceeds the symbol's threshold. The square root is
// taken in float64 — shopspring/decimal has no exact Sqrt — purely for this
// comparison; the book and statistics layers remain decimal throughout.
func (e *Engine) checkVolatility(symbol string, at time.Time, th Thresholds, st *symbolState) (AlertContext, bool) {
	n := st.ringLen
	mean := decimal.Zero
	for i := 0; i < n; i++ {
		mean = mean.Add(st.midRing[i])
	}
	mean = mean.DivRound(decimal.NewFromInt(int64(n)), 12)

	sumSq := decimal.Zero
	for i := 0; i < n; i++ {
		diff := st.midRing[i].Sub(mean)
		sumSq = sumSq.Add(diff.Mul(diff))
	}
	variance := sumSq.DivRound(decimal.NewFromInt(int64(n-1)), 12)
	stdDevFloat := math.Sqrt(variance.InexactFloat64())
	stdDev := decimal.NewFromFloat(stdDevFloat)

	if stdDev.GreaterThan(th.Volatility) {
		return newAlert(VolatilitySpike, symbol, at, VolatilityPayload{
			StdDev:    stdDev,
			Threshold: th.Volatility,
			Samples:   n,
		}), true
	}
	return AlertContext{}, false
}
