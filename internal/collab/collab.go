// Package collab defines the opaque external collaborators the core calls
// out to. Their implementations (REST trading surface, email/Telegram
// transports) are out of scope; only the interfaces the core depends on
// live here.
package collab

import "context"

// BrokerClient is queried once by the CLI entrypoint at startup when the
// operator does not supply an explicit symbol list.
type BrokerClient interface {
	ListTradePairs(ctx context.Context, fiat string) ([]string, error)
}

// Notifier delivers an urgent price-change callout. Implementations must be
// side-effect only; the core swallows and logs any error rather than
// propagating it into the ingestion path.
type Notifier interface {
	Send(ctx context.Context, symbol string, times []string, prices []float64) error
}
