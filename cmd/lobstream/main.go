// Command lobstream streams L2 order book updates for a batch of symbols,
// reconstructs each symbol's book, computes microstructure statistics,
// fires alerts, and persists gzip-compressed snapshot/price-history logs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lobstream/internal/collab"
	"lobstream/internal/config"
	"lobstream/internal/metrics"
	"lobstream/internal/pricehistory"
	"lobstream/internal/stream"
	"lobstream/internal/supervisor"
	"lobstream/internal/telemetry"
)

// app bundles lobstream's top-level components, following the teacher's
// initialize/start/waitForShutdown/shutdown lifecycle.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	metrics    *metrics.PrometheusMetrics
	telemetry  *telemetry.Publisher
	supervisor *supervisor.Supervisor

	// broker is the opaque BrokerClient collaborator (spec.md §6): no
	// concrete implementation ships with this module, so it stays nil and
	// resolveSymbols requires an explicit --symbols/config list instead.
	broker collab.BrokerClient

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	fs := pflag.NewFlagSet("lobstream", pflag.ExitOnError)
	flags := config.BindFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	a := &app{}
	if err := a.initialize(flags); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize lobstream: %v\n", err)
		os.Exit(1)
	}

	if err := a.start(); err != nil {
		a.log.Error("failed to start lobstream", zap.Error(err))
		os.Exit(1)
	}

	a.waitForShutdown()

	if err := a.shutdown(); err != nil {
		a.log.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}
}

func (a *app) initialize(flags *config.Flags) error {
	var err error
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.log, err = newLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}

	a.cfg, err = config.Load(flags.ConfigPath, flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.cfg.Symbols == nil {
		a.cfg.Symbols = make(map[string]config.SymbolConfig)
	}
	a.log.Info("configuration loaded",
		zap.Int("exchanges", len(a.cfg.Exchanges)),
		zap.Int("symbols", len(a.cfg.Symbols)))

	a.supervisor = supervisor.NewSupervisor(a.log)

	if a.cfg.Monitoring.Enabled {
		a.metrics = metrics.New(a.log.Named("metrics"))
		a.metrics.RegisterWorkerStatusProvider(a.supervisor)
		if err := a.metrics.Start(a.cfg.Monitoring.Port); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if a.cfg.Telemetry.Enabled {
		a.telemetry = telemetry.New(telemetry.Config{
			Address:        a.cfg.Telemetry.RedisAddress,
			Password:       a.cfg.Telemetry.RedisPassword,
			DB:             a.cfg.Telemetry.RedisDB,
			DialTimeout:    a.cfg.Telemetry.DialTimeout,
			ThrottlePerSec: a.cfg.Telemetry.ThrottlePerSec,
		}, a.log)
	}

	return nil
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.OutputPaths = []string{"stdout"}
	return cfg.Build()
}

// start registers one Supervisor worker per batch of ≤ max_per_ws symbols
// and starts the Supervisor.
func (a *app) start() error {
	a.log.Info("starting lobstream")

	symbols := make([]string, 0, len(a.cfg.Symbols))
	for symbol := range a.cfg.Symbols {
		symbols = append(symbols, symbol)
	}

	if len(symbols) == 0 {
		discovered, err := resolveSymbols(a.ctx, a.broker, nil, "USD")
		if err != nil {
			return fmt.Errorf("failed to resolve symbols: %w", err)
		}
		symbols = discovered
		for _, symbol := range symbols {
			a.cfg.Symbols[symbol] = config.SymbolConfig{Mode: "full", DepthLevels: 10}
		}
	}

	maxPerWS := supervisor.MaxPerBatch
	if len(a.cfg.Exchanges) > 0 && a.cfg.Exchanges[0].MaxPerWS > 0 {
		maxPerWS = a.cfg.Exchanges[0].MaxPerWS
	}

	sessionStart := time.Now()
	batches := supervisor.ChunkSymbols(symbols, maxPerWS)
	for i, batch := range batches {
		batchCfg := a.buildBatchConfig(batch, sessionStart)
		workerName := fmt.Sprintf("batch-%d", i)

		if err := a.supervisor.AddWorker(supervisor.WorkerConfig{
			Name:           workerName,
			MaxRetries:     10,
			InitialBackoff: 5 * time.Second,
			MaxBackoff:     60 * time.Second,
			BackoffFactor:  2.0,
		}, supervisor.BatchWorker(batchCfg, a.log)); err != nil {
			return fmt.Errorf("failed to register %s: %w", workerName, err)
		}
		a.log.Info("registered batch worker", zap.String("worker", workerName), zap.Int("symbols", len(batch)))
	}

	if err := a.supervisor.Start(); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	a.log.Info("lobstream started", zap.Int("batches", len(batches)), zap.Int("symbols", len(symbols)))
	return nil
}

func (a *app) buildBatchConfig(batch []string, sessionStart time.Time) supervisor.BatchConfig {
	exch := a.cfg.Exchanges[0]

	symCfgs := make(map[string]supervisor.SymbolConfig, len(batch))
	for _, symbol := range batch {
		sc := a.cfg.Symbols[symbol]
		symCfgs[symbol] = supervisor.SymbolConfig{
			Mode:         sc.BookMode(),
			DepthLevels:  depthOrDefault(sc.DepthLevels),
			Thresholds:   sc.Thresholds(),
			PriceHistory: priceHistoryOrDefault(sc.PriceHistoryConfig()),
		}
	}

	var notifier supervisor.NotifierFunc = func(ctx context.Context, symbol string, times []string, prices []float64) error {
		return nil
	}

	cfg := supervisor.BatchConfig{
		Stream: stream.Config{
			URL:                exch.WebSocketURL,
			Channel:            exch.Channel,
			Symbols:            batch,
			HeartbeatInterval:  exch.HeartbeatInterval,
			PongDeadline:       exch.PongDeadline,
			ReconnectBaseDelay: exch.ReconnectBaseDelay,
			ReconnectMaxDelay:  exch.ReconnectMaxDelay,
			ReconnectAttempts:  exch.MaxReconnectAttempts,
		},
		Symbols:       symCfgs,
		OutputDir:     a.cfg.Output.Dir,
		SessionStart:  sessionStart,
		WriteInterval: a.cfg.Output.WriteInterval,
		Notifier:      notifier,
	}

	// Assign only when non-nil: a nil *telemetry.Publisher or
	// *metrics.PrometheusMetrics boxed into an interface is a non-nil
	// interface whose methods panic on the receiver's nil fields.
	if a.telemetry != nil {
		cfg.Telemetry = a.telemetry
	}
	if a.metrics != nil {
		cfg.Metrics = a.metrics
	}
	return cfg
}

func depthOrDefault(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

func priceHistoryOrDefault(c pricehistory.Config) pricehistory.Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 500
	}
	if c.WriteInterval <= 0 {
		c.WriteInterval = 60 * time.Second
	}
	return c
}

func (a *app) waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	a.log.Info("received shutdown signal", zap.String("signal", sig.String()))
}

func (a *app) shutdown() error {
	a.log.Info("shutting down lobstream")
	a.cancel()

	if err := a.supervisor.Stop(); err != nil {
		a.log.Error("error stopping supervisor", zap.Error(err))
	}
	if a.metrics != nil {
		if err := a.metrics.Stop(); err != nil {
			a.log.Error("error stopping metrics server", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Close(); err != nil {
			a.log.Error("error closing telemetry publisher", zap.Error(err))
		}
	}

	a.log.Info("lobstream shutdown complete")
	return nil
}

// resolveSymbols falls back to the BrokerClient collaborator when the
// operator supplies no explicit --symbols list.
func resolveSymbols(ctx context.Context, broker collab.BrokerClient, explicit []string, fiat string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	if broker == nil {
		return nil, fmt.Errorf("no symbols configured and no broker client available")
	}
	return broker.ListTradePairs(ctx, fiat)
}
