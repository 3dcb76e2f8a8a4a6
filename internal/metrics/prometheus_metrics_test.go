package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lobstream/internal/supervisor"
)

// newCounterVec/newGaugeVec build unregistered vecs so each test gets an
// isolated set of series instead of colliding on the default registry.
func newCounterVec(name string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labels)
}

func newGaugeVec(name string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labels)
}

func newTestMetrics(t *testing.T) *PrometheusMetrics {
	t.Helper()
	m := &PrometheusMetrics{
		log:               zap.NewNop(),
		GapsDetected:      newCounterVec("t_gaps", "symbol"),
		MessagesProcessed: newCounterVec("t_messages", "symbol"),
		Reconnects:        newCounterVec("t_reconnects", "exchange"),
		AlertsFired:       newCounterVec("t_alerts", "kind", "symbol"),
		SnapshotWrites:    newCounterVec("t_writes", "symbol"),
		SnapshotFailures:  newCounterVec("t_failures", "symbol"),
		ExchangeStatus:    newGaugeVec("t_status", "exchange"),
	}
	return m
}

func TestIncGapsDetected(t *testing.T) {
	m := newTestMetrics(t)
	m.IncGapsDetected("BTC-USD")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GapsDetected.WithLabelValues("BTC-USD")))
}

func TestSetExchangeConnectedTogglesGauge(t *testing.T) {
	m := newTestMetrics(t)
	m.SetExchangeConnected("coinbase", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExchangeStatus.WithLabelValues("coinbase")))
	m.SetExchangeConnected("coinbase", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ExchangeStatus.WithLabelValues("coinbase")))
}

func TestIncAlertsFiredLabelsByKindAndSymbol(t *testing.T) {
	m := newTestMetrics(t)
	m.IncAlertsFired("wall_evaporated", "ETH-USD")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AlertsFired.WithLabelValues("wall_evaporated", "ETH-USD")))
}

// fakeWorkerStatusProvider lets the /workers handlers be tested without a
// live Supervisor.
type fakeWorkerStatusProvider struct {
	stats       supervisor.SupervisorStats
	restartErr  error
	restartName string
}

func (f *fakeWorkerStatusProvider) GetSupervisorStats() supervisor.SupervisorStats { return f.stats }

func (f *fakeWorkerStatusProvider) RestartWorker(name string) error {
	f.restartName = name
	return f.restartErr
}

func TestHandleWorkersReturns503WithoutProvider(t *testing.T) {
	m := newTestMetrics(t)
	rr := httptest.NewRecorder()
	m.handleWorkers(rr, httptest.NewRequest(http.MethodGet, "/workers", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandleWorkersEncodesSupervisorStats(t *testing.T) {
	m := newTestMetrics(t)
	m.RegisterWorkerStatusProvider(&fakeWorkerStatusProvider{
		stats: supervisor.SupervisorStats{
			TotalWorkers:   2,
			RunningWorkers: 1,
			Workers: map[string]supervisor.WorkerStats{
				"batch-0": {Name: "batch-0", Status: supervisor.StatusRunning},
			},
		},
	})

	rr := httptest.NewRecorder()
	m.handleWorkers(rr, httptest.NewRequest(http.MethodGet, "/workers", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got supervisor.SupervisorStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 2, got.TotalWorkers)
	assert.Equal(t, supervisor.StatusRunning, got.Workers["batch-0"].Status)
}

func TestHandleRestartWorkerRequiresPostAndName(t *testing.T) {
	m := newTestMetrics(t)
	provider := &fakeWorkerStatusProvider{}
	m.RegisterWorkerStatusProvider(provider)

	rr := httptest.NewRecorder()
	m.handleRestartWorker(rr, httptest.NewRequest(http.MethodGet, "/workers/restart?name=batch-0", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	m.handleRestartWorker(rr, httptest.NewRequest(http.MethodPost, "/workers/restart", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	m.handleRestartWorker(rr, httptest.NewRequest(http.MethodPost, "/workers/restart?name=batch-0", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "batch-0", provider.restartName)
}

func TestHandleRestartWorkerReturns404OnUnknownWorker(t *testing.T) {
	m := newTestMetrics(t)
	m.RegisterWorkerStatusProvider(&fakeWorkerStatusProvider{restartErr: errors.New("worker missing not found")})

	rr := httptest.NewRecorder()
	m.handleRestartWorker(rr, httptest.NewRequest(http.MethodPost, "/workers/restart?name=missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
