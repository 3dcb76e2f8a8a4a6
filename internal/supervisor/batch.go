package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lobstream/internal/alerts"
	"lobstream/internal/pricehistory"
	"lobstream/internal/snapshot"
	"lobstream/internal/statemachine"
	"lobstream/internal/stats"
	"lobstream/internal/stream"
)

// MaxPerBatch is the default ceiling on symbols per StreamClient, matching
// spec.md §4.8's max_per_ws.
const MaxPerBatch = 20

// Metrics is the observability surface a batch worker reports through, a
// superset of what the StreamClient itself needs.
type Metrics interface {
	stream.Metrics
	IncAlertsFired(kind, symbol string)
	IncSnapshotWrites(symbol string)
	IncSnapshotFailures(symbol string)
}

// SymbolConfig carries the per-symbol tunables a batch worker needs beyond
// the shared stream/exchange config.
type SymbolConfig struct {
	Mode            statemachine.Mode
	DepthLevels     int
	Thresholds      alerts.Thresholds
	PriceHistory    pricehistory.Config
}

// BatchConfig parametrizes one StreamClient + its symbols' book-reconstruction
// pipeline.
type BatchConfig struct {
	Stream        stream.Config
	Symbols       map[string]SymbolConfig
	OutputDir     string
	SessionStart  time.Time
	WriteInterval time.Duration
	Notifier      NotifierFunc
	Telemetry     TelemetryPublisher
	Metrics       Metrics
}

// NotifierFunc adapts collab.Notifier into the signature PriceHistory needs
// without importing collab directly from this package's call sites.
type NotifierFunc func(ctx context.Context, symbol string, times []string, prices []float64) error

func (f NotifierFunc) Send(ctx context.Context, symbol string, times []string, prices []float64) error {
	return f(ctx, symbol, times, prices)
}

// TelemetryPublisher is the optional best-effort mirror to Redis; nil
// disables it entirely.
type TelemetryPublisher interface {
	PublishStatistics(symbol string, s stats.Statistics)
	PublishAlert(symbol string, a alerts.AlertContext)
}

type symbolPipeline struct {
	machine      *statemachine.BookStateMachine
	cfg          SymbolConfig
	history      *pricehistory.PriceHistory
	bookWriter   *snapshot.Writer
	priceWriter  *snapshot.Writer
}

// ChunkSymbols partitions symbols into batches of at most maxPerBatch,
// preserving input order.
func ChunkSymbols(symbols []string, maxPerBatch int) [][]string {
	if maxPerBatch <= 0 {
		maxPerBatch = MaxPerBatch
	}
	var batches [][]string
	for len(symbols) > 0 {
		n := maxPerBatch
		if n > len(symbols) {
			n = len(symbols)
		}
		batches = append(batches, symbols[:n])
		symbols = symbols[n:]
	}
	return batches
}

// BatchWorker builds a WorkerFunc that runs one StreamClient for cfg's
// symbols, dispatching decoded events to each symbol's BookStateMachine in
// receive order (the single-threaded-cooperative model spec.md §5
// requires), computing Statistics, running the AlertEngine, sampling
// PriceHistory, and flushing both book and price-history snapshots.
func BatchWorker(cfg BatchConfig, log *zap.Logger) WorkerFunc {
	return func(ctx context.Context) error {
		client := stream.New(cfg.Stream, log, cfg.Metrics)
		perSymbol := make(map[string]alerts.Thresholds, len(cfg.Symbols))
		for symbol, symCfg := range cfg.Symbols {
			perSymbol[symbol] = symCfg.Thresholds
		}
		engine := alerts.New(perSymbol, alerts.DefaultThresholds())

		pipelines := make(map[string]*symbolPipeline, len(cfg.Symbols))
		for symbol, symCfg := range cfg.Symbols {
			ph := pricehistory.New(symbol, symCfg.PriceHistory, cfg.Notifier, log)
			pipelines[symbol] = &symbolPipeline{
				machine:     statemachine.New(symbol, symCfg.Mode),
				cfg:         symCfg,
				history:     ph,
				bookWriter:  snapshot.New(cfg.OutputDir, "order_book", symbol, cfg.SessionStart, cfg.WriteInterval, log),
				priceWriter: snapshot.New(cfg.OutputDir, "price_history", symbol, cfg.SessionStart, cfg.WriteInterval, log),
			}
		}
		defer func() {
			for _, p := range pipelines {
				p.bookWriter.Close()
				p.priceWriter.Close()
			}
		}()

		errCh := make(chan error, 1)
		go func() { errCh <- client.Run(ctx) }()

		for {
			select {
			case <-ctx.Done():
				client.Shutdown()
				<-errCh
				return nil
			case err := <-errCh:
				return err
			case evt, ok := <-client.Events():
				if !ok {
					return nil
				}
				dispatch(ctx, evt, pipelines[evt.Symbol], engine, client, log, cfg.Metrics, cfg.Telemetry)
			}
		}
	}
}

func dispatch(ctx context.Context, evt statemachine.Event, p *symbolPipeline, engine *alerts.Engine, client *stream.Client, log *zap.Logger, metrics Metrics, telemetry TelemetryPublisher) {
	if p == nil {
		return
	}

	var err error
	switch evt.Type {
	case statemachine.EventSnapshot:
		err = p.machine.OnSnapshot(evt)
	case statemachine.EventUpdate:
		err = p.machine.OnUpdate(evt)
	default:
		return
	}

	if err != nil {
		handleBookError(err, evt.Symbol, client, log, metrics)
		return
	}

	b := p.machine.Book()
	if b == nil {
		return
	}

	s := stats.Compute(b.Sides, evt.Symbol, b.Timestamp, p.cfg.DepthLevels)
	fired := engine.Update(evt.Symbol, b.Sides, s)
	for _, a := range fired {
		if metrics != nil {
			metrics.IncAlertsFired(string(a.Kind), evt.Symbol)
		}
		if telemetry != nil {
			telemetry.PublishAlert(evt.Symbol, a)
		}
	}

	if s.HasMid {
		midFloat, _ := s.MidPrice.Float64()
		p.history.Record(ctx, b.Timestamp, midFloat, true)
	}
	if _, err := p.history.FlushIfDue(b.Timestamp, p.priceWriter); err != nil && metrics != nil {
		metrics.IncSnapshotFailures(evt.Symbol)
	}

	wrote, err := p.bookWriter.MaybeWrite(b.Timestamp, func() any {
		if b.Mode == statemachine.Full {
			return snapshot.BuildFullRecord(b)
		}
		return snapshot.BuildLightRecord(b, s)
	})
	if err != nil && metrics != nil {
		metrics.IncSnapshotFailures(evt.Symbol)
	}
	if wrote && metrics != nil {
		metrics.IncSnapshotWrites(evt.Symbol)
	}

	if telemetry != nil {
		telemetry.PublishStatistics(evt.Symbol, s)
	}
}

func handleBookError(err error, symbol string, client *stream.Client, log *zap.Logger, metrics Metrics) {
	switch err.(type) {
	case *statemachine.MalformedEvent:
		log.Warn("malformed event", zap.String("symbol", symbol), zap.Error(err))
	case *statemachine.SequenceGap:
		log.Warn("sequence gap, resubscribing", zap.String("symbol", symbol), zap.Error(err))
		if metrics != nil {
			metrics.IncGapsDetected(symbol)
		}
		if rErr := client.Resubscribe([]string{symbol}); rErr != nil {
			log.Warn("resubscribe failed", zap.String("symbol", symbol), zap.Error(rErr))
		}
	case *statemachine.CrossedBook:
		log.Error("crossed book, resubscribing", zap.String("symbol", symbol), zap.Error(err))
		if rErr := client.Resubscribe([]string{symbol}); rErr != nil {
			log.Warn("resubscribe failed", zap.String("symbol", symbol), zap.Error(rErr))
		}
	default:
		log.Error("unexpected book error", zap.String("symbol", symbol), zap.Error(err))
	}
}
