// Package alerts implements the stateful detectors that watch successive
// book states for anomalous transitions: wall evaporation, imbalance
// extremes, spread widening, and mid-price volatility.
package alerts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind tags the detector that produced an AlertContext.
type Kind string

const (
	WallEvaporated      Kind = "wall_evaporated"
	StrongBuyImbalance  Kind = "strong_buy_imbalance"
	StrongSellImbalance Kind = "strong_sell_imbalance"
	SpreadWide          Kind = "spread_wide"
	VolatilitySpike     Kind = "volatility_spike"
)

// AlertContext is one emitted alert, carrying a kind-specific payload and a
// correlation ID for downstream dedupe.
type AlertContext struct {
	ID        string
	Kind      Kind
	Symbol    string
	Timestamp time.Time
	Payload   any
}

func newAlert(kind Kind, symbol string, at time.Time, payload any) AlertContext {
	return AlertContext{
		ID:        uuid.NewString(),
		Kind:      kind,
		Symbol:    symbol,
		Timestamp: at,
		Payload:   payload,
	}
}

// WallEvaporatedPayload reports that a previously-resting level shrank by
// more than half.
type WallEvaporatedPayload struct {
	Side     string
	Price    decimal.Decimal
	PrevSize decimal.Decimal
	CurrSize decimal.Decimal
}

// ImbalancePayload carries the depth-weighted imbalance that crossed a
// threshold.
type ImbalancePayload struct {
	ImbalanceTopN decimal.Decimal
	DepthLevels   int
}

// SpreadPayload carries the spread that exceeded its symbol threshold.
type SpreadPayload struct {
	Spread    decimal.Decimal
	Threshold decimal.Decimal
}

// VolatilityPayload carries the mid-price sample standard deviation that
// exceeded its symbol threshold.
type VolatilityPayload struct {
	StdDev    decimal.Decimal
	Threshold decimal.Decimal
	Samples   int
}
