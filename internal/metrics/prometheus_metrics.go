package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lobstream/internal/supervisor"
)

// WorkerStatusProvider is the narrow surface the metrics server's /workers
// debug endpoints read from; satisfied structurally by *supervisor.Supervisor.
type WorkerStatusProvider interface {
	GetSupervisorStats() supervisor.SupervisorStats
	RestartWorker(name string) error
}

// PrometheusMetrics implements stream.Metrics and supervisor.Metrics on top
// of client_golang, exposing the ingestion pipeline's health on /metrics.
type PrometheusMetrics struct {
	GapsDetected      *prometheus.CounterVec
	MessagesProcessed *prometheus.CounterVec
	ExchangeStatus    *prometheus.GaugeVec
	Reconnects        *prometheus.CounterVec
	AlertsFired       *prometheus.CounterVec
	SnapshotWrites    *prometheus.CounterVec
	SnapshotFailures  *prometheus.CounterVec

	log     *zap.Logger
	server  *http.Server
	workers WorkerStatusProvider
}

// New creates and registers the lobstream metric families against the
// default Prometheus registry.
func New(log *zap.Logger) *PrometheusMetrics {
	m := &PrometheusMetrics{
		log: log,

		GapsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobstream_gaps_detected_total",
				Help: "Total number of sequence gaps detected per symbol",
			},
			[]string{"symbol"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobstream_messages_processed_total",
				Help: "Total number of stream events processed",
			},
			[]string{"symbol"},
		),

		ExchangeStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lobstream_exchange_connected",
				Help: "Exchange connection status (1=connected, 0=disconnected)",
			},
			[]string{"exchange"},
		),

		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobstream_reconnects_total",
				Help: "Total number of WebSocket reconnect attempts",
			},
			[]string{"exchange"},
		),

		AlertsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobstream_alerts_fired_total",
				Help: "Total number of alerts fired, by kind",
			},
			[]string{"kind", "symbol"},
		),

		SnapshotWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobstream_snapshot_writes_total",
				Help: "Total number of snapshot lines flushed to disk",
			},
			[]string{"symbol"},
		),

		SnapshotFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobstream_snapshot_failures_total",
				Help: "Total number of snapshot persistence failures",
			},
			[]string{"symbol"},
		),
	}

	prometheus.MustRegister(
		m.GapsDetected,
		m.MessagesProcessed,
		m.ExchangeStatus,
		m.Reconnects,
		m.AlertsFired,
		m.SnapshotWrites,
		m.SnapshotFailures,
	)

	return m
}

// RegisterWorkerStatusProvider wires the Supervisor's status/restart API
// into the /workers debug endpoints. Must be called before Start; a nil
// provider leaves those endpoints reporting 503.
func (m *PrometheusMetrics) RegisterWorkerStatusProvider(p WorkerStatusProvider) {
	m.workers = p
}

// Start serves /metrics, /health, and (once a WorkerStatusProvider is
// registered) the /workers debug endpoints on port.
func (m *PrometheusMetrics) Start(port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/workers", m.handleWorkers)
	mux.HandleFunc("/workers/restart", m.handleRestartWorker)

	m.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	m.log.Info("starting metrics server", zap.String("port", port))

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Error("metrics server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the metrics server down.
func (m *PrometheusMetrics) Stop() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}

// handleWorkers reports the Supervisor's current worker roster and counts.
func (m *PrometheusMetrics) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if m.workers == nil {
		http.Error(w, "no worker status provider registered", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.workers.GetSupervisorStats()); err != nil {
		m.log.Warn("failed to encode worker stats", zap.Error(err))
	}
}

// handleRestartWorker restarts the named worker, resetting its retry count
// and interrupting its current attempt. Expects ?name=<worker>.
func (m *PrometheusMetrics) handleRestartWorker(w http.ResponseWriter, r *http.Request) {
	if m.workers == nil {
		http.Error(w, "no worker status provider registered", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name query parameter", http.StatusBadRequest)
		return
	}
	if err := m.workers.RestartWorker(name); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *PrometheusMetrics) IncGapsDetected(symbol string) {
	m.GapsDetected.WithLabelValues(symbol).Inc()
}

func (m *PrometheusMetrics) IncMessagesProcessed(symbol string) {
	m.MessagesProcessed.WithLabelValues(symbol).Inc()
}

func (m *PrometheusMetrics) SetExchangeConnected(exchange string, connected bool) {
	status := 0.0
	if connected {
		status = 1.0
	}
	m.ExchangeStatus.WithLabelValues(exchange).Set(status)
}

func (m *PrometheusMetrics) IncReconnects(exchange string) {
	m.Reconnects.WithLabelValues(exchange).Inc()
}

func (m *PrometheusMetrics) IncAlertsFired(kind, symbol string) {
	m.AlertsFired.WithLabelValues(kind, symbol).Inc()
}

func (m *PrometheusMetrics) IncSnapshotWrites(symbol string) {
	m.SnapshotWrites.WithLabelValues(symbol).Inc()
}

func (m *PrometheusMetrics) IncSnapshotFailures(symbol string) {
	m.SnapshotFailures.WithLabelValues(symbol).Inc()
}
