package config

import (
	"time"

	"github.com/shopspring/decimal"

	"lobstream/internal/statemachine"
)

// Config is the complete, typed configuration for a lobstream process:
// which exchanges/symbols to stream, where to persist snapshots, and how to
// report health.
type Config struct {
	Exchanges  []ExchangeConfig        `yaml:"exchanges" mapstructure:"exchanges"`
	Symbols    map[string]SymbolConfig `yaml:"symbols" mapstructure:"symbols"`
	Telemetry  TelemetryConfig         `yaml:"telemetry" mapstructure:"telemetry"`
	Monitoring MonitoringConfig        `yaml:"monitoring" mapstructure:"monitoring"`
	Output     OutputConfig            `yaml:"output" mapstructure:"output"`
}

// ExchangeConfig describes one WebSocket endpoint and its reconnect policy.
type ExchangeConfig struct {
	Name                 string        `yaml:"name" mapstructure:"name"`
	WebSocketURL         string        `yaml:"websocket_url" mapstructure:"websocket_url"`
	Channel              string        `yaml:"channel" mapstructure:"channel"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	PongDeadline         time.Duration `yaml:"pong_deadline" mapstructure:"pong_deadline"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay" mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay" mapstructure:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" mapstructure:"max_reconnect_attempts"`
	MaxPerWS             int           `yaml:"max_per_ws" mapstructure:"max_per_ws"`
}

// SymbolConfig holds the per-symbol tunables: book reconstruction mode,
// statistics depth, wall detection, alert thresholds, and price-history
// sampling gates.
type SymbolConfig struct {
	Mode         string           `yaml:"mode" mapstructure:"mode"`
	DepthLevels  int              `yaml:"depth_levels" mapstructure:"depth_levels"`
	Wall         WallConfig       `yaml:"wall" mapstructure:"wall"`
	Alerts       AlertConfig      `yaml:"alerts" mapstructure:"alerts"`
	PriceHistory PriceHistoryYAML `yaml:"price_history" mapstructure:"price_history"`
}

// WallConfig parametrizes DetectWall.
type WallConfig struct {
	PriceWindow string `yaml:"price_window" mapstructure:"price_window"`
	WallFactor  string `yaml:"wall_factor" mapstructure:"wall_factor"`
	TickGroup   string `yaml:"tick_group" mapstructure:"tick_group"`
}

// AlertConfig mirrors alerts.Thresholds in YAML-friendly form.
type AlertConfig struct {
	TopD          int     `yaml:"top_d" mapstructure:"top_d"`
	ImbalanceHigh float64 `yaml:"imbalance_high" mapstructure:"imbalance_high"`
	ImbalanceLow  float64 `yaml:"imbalance_low" mapstructure:"imbalance_low"`
	SpreadWide    float64 `yaml:"spread_wide" mapstructure:"spread_wide"`
	Volatility    float64 `yaml:"volatility" mapstructure:"volatility"`
}

// PriceHistoryYAML mirrors pricehistory.Config in YAML-friendly form
// (durations and plain floats instead of decimal.Decimal).
type PriceHistoryYAML struct {
	MinTimeInterval time.Duration `yaml:"min_time_interval" mapstructure:"min_time_interval"`
	MinChangePct    float64       `yaml:"min_change_pct" mapstructure:"min_change_pct"`
	MinChangeAbs    float64       `yaml:"min_change_abs" mapstructure:"min_change_abs"`
	BigChangePct    float64       `yaml:"big_change_pct" mapstructure:"big_change_pct"`
	MaxSize         int           `yaml:"max_size" mapstructure:"max_size"`
	WriteInterval   time.Duration `yaml:"write_interval" mapstructure:"write_interval"`
}

// TelemetryConfig controls the optional best-effort Redis mirror.
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisAddress   string        `yaml:"redis_address" mapstructure:"redis_address"`
	RedisPassword  string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB        int           `yaml:"redis_db" mapstructure:"redis_db"`
	ThrottlePerSec int           `yaml:"throttle_per_sec" mapstructure:"throttle_per_sec"`
	DialTimeout    time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

// MonitoringConfig controls the Prometheus HTTP server.
type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Port    string `yaml:"port" mapstructure:"port"`
}

// OutputConfig controls where snapshot/price-history files land.
type OutputConfig struct {
	Dir           string        `yaml:"dir" mapstructure:"dir"`
	WriteInterval time.Duration `yaml:"write_interval" mapstructure:"write_interval"`
}

// BookMode parses the YAML mode string into statemachine.Mode, defaulting
// to Full when unset or unrecognized.
func (s SymbolConfig) BookMode() statemachine.Mode {
	if s.Mode == "light" {
		return statemachine.Light
	}
	return statemachine.Full
}

// decimalOrZero parses a decimal string, returning zero on empty/invalid
// input rather than erroring, since wall detection parameters are optional
// per symbol and fall back to sane defaults.
func decimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PriceWindowOrDefault returns the configured wall price window, or a 0.05 default.
func (w WallConfig) PriceWindowOrDefault() decimal.Decimal {
	d := decimalOrZero(w.PriceWindow)
	if d.IsZero() {
		return decimal.NewFromFloat(0.05)
	}
	return d
}

// WallFactorOrDefault returns the configured wall factor, or 3 by default.
func (w WallConfig) WallFactorOrDefault() decimal.Decimal {
	d := decimalOrZero(w.WallFactor)
	if d.IsZero() {
		return decimal.NewFromInt(3)
	}
	return d
}

// TickGroupOrDefault returns the configured tick-group size, or 1 by default.
func (w WallConfig) TickGroupOrDefault() decimal.Decimal {
	d := decimalOrZero(w.TickGroup)
	if d.IsZero() {
		return decimal.NewFromInt(1)
	}
	return d
}
