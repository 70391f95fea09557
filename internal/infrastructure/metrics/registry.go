package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry encapsulates all metrics and provides a clean interface
// for recording metrics without global state.
type Registry struct {
	registry *prometheus.Registry

	// Pipeline metrics
	messagesTotal   *prometheus.CounterVec
	messagesDropped *prometheus.CounterVec
	readingsSkipped prometheus.Counter
	cacheWrites     *prometheus.CounterVec
	alertsBuffered  prometheus.Counter

	// Broker metrics
	brokerConnected *prometheus.GaugeVec

	// Fan-out metrics
	fanoutDelivered prometheus.Counter
	fanoutDropped   prometheus.Counter
	wsClients       prometheus.Gauge

	// Correlator metrics
	correlatorReconnects prometheus.Counter
	correlatorEvents     *prometheus.CounterVec

	// Sink metrics
	sinkWrites *prometheus.CounterVec

	// System metrics
	systemInfo *prometheus.GaugeVec
	startTime  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics initialized.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		// Pipeline metrics
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantpulse_messages_total",
				Help: "Total number of routed telemetry messages",
			},
			[]string{"kind", "status"}, // status: processed, error
		),

		messagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantpulse_messages_dropped_total",
				Help: "Total number of messages dropped before dispatch",
			},
			[]string{"reason"}, // reason: topic, payload
		),

		readingsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "plantpulse_readings_skipped_total",
				Help: "Total number of malformed readings skipped inside data messages",
			},
		),

		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantpulse_cache_writes_total",
				Help: "Total number of latest-state cache writes",
			},
			[]string{"status"}, // status: success, error
		),

		alertsBuffered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "plantpulse_alerts_buffered_total",
				Help: "Total number of alerts appended to entity buffers",
			},
		),

		// Broker metrics
		brokerConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plantpulse_broker_connected",
				Help: "Broker session connectivity (1 connected, 0 not)",
			},
			[]string{"session"}, // session: primary, correlator
		),

		// Fan-out metrics
		fanoutDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "plantpulse_fanout_delivered_total",
				Help: "Total number of events delivered to recipients",
			},
		),

		fanoutDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "plantpulse_fanout_dropped_total",
				Help: "Total number of events dropped on saturated recipients",
			},
		),

		wsClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plantpulse_ws_clients",
				Help: "Number of connected WebSocket clients",
			},
		),

		// Correlator metrics
		correlatorReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "plantpulse_correlator_reconnects_total",
				Help: "Total number of correlator reconnect attempts",
			},
		),

		correlatorEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantpulse_correlator_events_total",
				Help: "Total number of classified lifecycle events",
			},
			[]string{"category"},
		),

		// Sink metrics
		sinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantpulse_sink_writes_total",
				Help: "Total number of time-series sink writes",
			},
			[]string{"status"}, // status: success, error
		),

		// System metrics
		systemInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plantpulse_system_info",
				Help: "System information (value is always 1, labels contain info)",
			},
			[]string{"version"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plantpulse_start_time_seconds",
				Help: "Unix timestamp when the application started",
			},
		),
	}

	// add default Go metrics (memory, GC, goroutines, etc.)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Register application metrics
	registry.MustRegister(
		r.messagesTotal,
		r.messagesDropped,
		r.readingsSkipped,
		r.cacheWrites,
		r.alertsBuffered,
		r.brokerConnected,
		r.fanoutDelivered,
		r.fanoutDropped,
		r.wsClients,
		r.correlatorReconnects,
		r.correlatorEvents,
		r.sinkWrites,
		r.systemInfo,
		r.startTime,
	)

	// Set start time
	r.startTime.SetToCurrentTime()

	return r
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// RecordMessage records a routed message outcome for a kind.
func (r *Registry) RecordMessage(kind string, err error) {
	status := "processed"
	if err != nil {
		status = "error"
	}
	r.messagesTotal.WithLabelValues(kind, status).Inc()
}

// RecordDrop records a message dropped before dispatch.
// Reason is "topic" for unroutable topics and "payload" for undecodable JSON.
func (r *Registry) RecordDrop(reason string) {
	r.messagesDropped.WithLabelValues(reason).Inc()
}

// RecordReadingSkipped records a malformed reading skipped inside a data message.
func (r *Registry) RecordReadingSkipped() {
	r.readingsSkipped.Inc()
}

// RecordCacheWrite records a latest-state cache write outcome.
func (r *Registry) RecordCacheWrite(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.cacheWrites.WithLabelValues(status).Inc()
}

// RecordAlertBuffered records an alert appended to an entity buffer.
func (r *Registry) RecordAlertBuffered() {
	r.alertsBuffered.Inc()
}

// SetBrokerConnected updates the connectivity gauge for a broker session.
func (r *Registry) SetBrokerConnected(session string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	r.brokerConnected.WithLabelValues(session).Set(v)
}

// RecordFanout records the outcome of one emission to a set of recipients.
func (r *Registry) RecordFanout(delivered, dropped int) {
	if delivered > 0 {
		r.fanoutDelivered.Add(float64(delivered))
	}
	if dropped > 0 {
		r.fanoutDropped.Add(float64(dropped))
	}
}

// WSClientConnected increments the connected WebSocket client gauge.
func (r *Registry) WSClientConnected() {
	r.wsClients.Inc()
}

// WSClientDisconnected decrements the connected WebSocket client gauge.
func (r *Registry) WSClientDisconnected() {
	r.wsClients.Dec()
}

// RecordCorrelatorReconnect records one correlator connect attempt after a failure.
func (r *Registry) RecordCorrelatorReconnect() {
	r.correlatorReconnects.Inc()
}

// RecordCorrelatorEvent records a classified lifecycle event.
func (r *Registry) RecordCorrelatorEvent(category string) {
	r.correlatorEvents.WithLabelValues(category).Inc()
}

// RecordSinkWrite records a time-series sink write outcome.
func (r *Registry) RecordSinkWrite(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.sinkWrites.WithLabelValues(status).Inc()
}

// SetSystemInfo sets system information metrics.
func (r *Registry) SetSystemInfo(version string) {
	r.systemInfo.WithLabelValues(version).Set(1)
}
