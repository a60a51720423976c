package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors. Each instance owns its
// registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
	WSWatching    prometheus.Gauge

	// Bus metrics
	BusDrops *prometheus.CounterVec

	// RPC metrics
	RPCRequests *prometheus.CounterVec

	// Input metrics
	InputRejected *prometheus.CounterVec
	InputErrors   *prometheus.CounterVec

	// Remote metrics
	RemotesActive      prometheus.Gauge
	BreakerTransitions *prometheus.CounterVec
	StateUpdates       *prometheus.CounterVec

	startTime time.Time

	// current values for the JSON health endpoint
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveConnections int64   `json:"active_connections"`
	DroppedUpdates    int64   `json:"dropped_updates"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavesrv_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wavesrv_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wavesrv_ws_connections",
				Help: "Number of open websocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavesrv_ws_messages_total",
				Help: "Websocket frames by direction and type",
			},
			[]string{"direction", "type"},
		),
		WSWatching: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wavesrv_ws_watching",
				Help: "Connections currently watching a screen",
			},
		),

		BusDrops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavesrv_bus_dropped_total",
				Help: "Updates dropped because a subscriber channel was full",
			},
			[]string{"bus"},
		),

		RPCRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavesrv_rpc_requests_total",
				Help: "User input requests by outcome",
			},
			[]string{"outcome"},
		),

		InputRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavesrv_input_rejected_total",
				Help: "Input frames rejected before delivery",
			},
			[]string{"reason"},
		),
		InputErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavesrv_input_errors_total",
				Help: "Input frames that failed during delivery",
			},
			[]string{"type"},
		),

		RemotesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wavesrv_remotes_active",
				Help: "Number of registered remotes",
			},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavesrv_input_breaker_transitions_total",
				Help: "Remote input circuit breaker transitions by target state",
			},
			[]string{"to"},
		),
		StateUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavesrv_state_updates_total",
				Help: "Shell state updates by kind and result",
			},
			[]string{"kind", "result"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "wavesrv_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry every collector is registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordWSMessage records a websocket frame; direction is "in" or "out".
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

func (m *Metrics) SetWatching(watching bool) {
	if watching {
		m.WSWatching.Inc()
	} else {
		m.WSWatching.Dec()
	}
}

func (m *Metrics) RecordDrop(bus string) {
	m.BusDrops.WithLabelValues(bus).Inc()
	m.mu.Lock()
	m.snapshot.DroppedUpdates++
	m.mu.Unlock()
}

func (m *Metrics) RecordRPC(outcome string) {
	m.RPCRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordInputRejected(reason string) {
	m.InputRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordInputError(pkType string) {
	m.InputErrors.WithLabelValues(pkType).Inc()
}

func (m *Metrics) SetRemotesActive(count int) {
	m.RemotesActive.Set(float64(count))
}

func (m *Metrics) RecordBreakerTransition(to string) {
	m.BreakerTransitions.WithLabelValues(to).Inc()
}

// RecordStateUpdate counts a shell state update; kind is "full" or "diff".
func (m *Metrics) RecordStateUpdate(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StateUpdates.WithLabelValues(kind, result).Inc()
}

// Snapshot returns the current values for the JSON health endpoint.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rtn := m.snapshot
	rtn.UptimeSeconds = time.Since(m.startTime).Seconds()
	return rtn
}
