package alerts

import "github.com/shopspring/decimal"

// Thresholds are the per-symbol configurable gates for each detector.
type Thresholds struct {
	// TopD is the number of top previous price levels per side that wall
	// evaporation checks. Imbalance is not limited by it: it uses the
	// ImbalanceTopN the Statistics were computed with, at their own depth.
	TopD int
	// ImbalanceHigh fires StrongBuyImbalance when imbalance_top_D exceeds it.
	ImbalanceHigh decimal.Decimal
	// ImbalanceLow fires StrongSellImbalance when imbalance_top_D falls below it.
	ImbalanceLow decimal.Decimal
	// SpreadWide fires SpreadWide when spread exceeds it.
	SpreadWide decimal.Decimal
	// Volatility fires VolatilitySpike when the mid-price sample std-dev
	// exceeds it.
	Volatility decimal.Decimal
}

// DefaultThresholds mirrors the concrete values spec.md's examples use.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TopD:          10,
		ImbalanceHigh: decimal.NewFromFloat(0.9),
		ImbalanceLow:  decimal.NewFromFloat(0.1),
		SpreadWide:    decimal.NewFromInt(5),
		Volatility:    decimal.NewFromInt(10),
	}
}
