package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"lobstream/internal/alerts"
	"lobstream/internal/pricehistory"
)

// FatalConfig signals a configuration error severe enough that the process
// cannot start: missing or unreadable file, malformed YAML, or an empty
// exchange list.
type FatalConfig struct {
	Path   string
	Reason string
	Err    error
}

func (e *FatalConfig) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal config %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("fatal config %s: %s", e.Path, e.Reason)
}

func (e *FatalConfig) Unwrap() error { return e.Err }

// Flags are the CLI overrides bound over the YAML file; flags win when set.
type Flags struct {
	ConfigPath  string
	Symbols     []string
	Special     []string
	OutDir      string
	MetricsPort string
}

// BindFlags registers the CLI surface onto fs, returning a Flags view bound
// to it. Call after fs.Parse to read the resolved values.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "config.yaml", "path to the YAML config file")
	fs.StringSliceVar(&f.Symbols, "symbols", nil, "comma-separated symbols to stream, overrides config")
	fs.StringSliceVar(&f.Special, "special", nil, "comma-separated symbols to force into full-book mode")
	fs.StringVar(&f.OutDir, "out", "", "snapshot output directory, overrides config")
	fs.StringVar(&f.MetricsPort, "metrics-port", "", "Prometheus metrics port, overrides config")
	return f
}

// Load reads path via viper, applies CLI flag overrides (flags win over
// file values), and returns the typed Config.
func Load(path string, flags *Flags) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &FatalConfig{Path: path, Reason: "failed to read config file", Err: err}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &FatalConfig{Path: path, Reason: "failed to unmarshal config", Err: err}
	}

	applyOverrides(&cfg, flags)

	if len(cfg.Exchanges) == 0 {
		return nil, &FatalConfig{Path: path, Reason: "no exchanges configured"}
	}
	// Symbols may legitimately be empty here: the CLI entrypoint falls back
	// to the BrokerClient collaborator to discover a symbol list at startup.

	return &cfg, nil
}

func applyOverrides(cfg *Config, flags *Flags) {
	if flags == nil {
		return
	}
	if flags.OutDir != "" {
		cfg.Output.Dir = flags.OutDir
	}
	if flags.MetricsPort != "" {
		cfg.Monitoring.Port = flags.MetricsPort
	}
	if len(flags.Symbols) > 0 {
		filtered := make(map[string]SymbolConfig, len(flags.Symbols))
		for _, sym := range flags.Symbols {
			if sc, ok := cfg.Symbols[sym]; ok {
				filtered[sym] = sc
			} else {
				filtered[sym] = SymbolConfig{Mode: "full", DepthLevels: 10}
			}
		}
		cfg.Symbols = filtered
	}
	for _, sym := range flags.Special {
		if sc, ok := cfg.Symbols[sym]; ok {
			sc.Mode = "full"
			cfg.Symbols[sym] = sc
		}
	}
}

// Thresholds converts a SymbolConfig's alert settings into alerts.Thresholds,
// falling back to DefaultThresholds for any zero-valued field.
func (s SymbolConfig) Thresholds() alerts.Thresholds {
	d := alerts.DefaultThresholds()
	t := d
	if s.Alerts.TopD > 0 {
		t.TopD = s.Alerts.TopD
	}
	if s.Alerts.ImbalanceHigh > 0 {
		t.ImbalanceHigh = decimal.NewFromFloat(s.Alerts.ImbalanceHigh)
	}
	if s.Alerts.ImbalanceLow > 0 {
		t.ImbalanceLow = decimal.NewFromFloat(s.Alerts.ImbalanceLow)
	}
	if s.Alerts.SpreadWide > 0 {
		t.SpreadWide = decimal.NewFromFloat(s.Alerts.SpreadWide)
	}
	if s.Alerts.Volatility > 0 {
		t.Volatility = decimal.NewFromFloat(s.Alerts.Volatility)
	}
	return t
}

// PriceHistoryConfig converts the YAML-friendly PriceHistoryYAML into
// pricehistory.Config.
func (s SymbolConfig) PriceHistoryConfig() pricehistory.Config {
	ph := s.PriceHistory
	return pricehistory.Config{
		MinTimeInterval: ph.MinTimeInterval,
		MinChangePct:    ph.MinChangePct,
		MinChangeAbs:    ph.MinChangeAbs,
		BigChangePct:    ph.BigChangePct,
		MaxSize:         ph.MaxSize,
		WriteInterval:   ph.WriteInterval,
	}
}
