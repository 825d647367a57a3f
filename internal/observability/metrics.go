package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Mjumbe.
// Uses a custom registry, no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Connection lifecycle.
	ConnectsTotal     *prometheus.CounterVec
	ReconnectsTotal   *prometheus.CounterVec
	HandshakeDuration *prometheus.HistogramVec

	// Frame traffic.
	FramesTotal *prometheus.CounterVec

	// Event fan-out.
	EventsDispatchedTotal *prometheus.CounterVec
	SinkPanicsTotal       *prometheus.CounterVec

	// Command dispatch.
	CommandsDroppedTotal *prometheus.CounterVec

	// Session health.
	HeartbeatLatency *prometheus.GaugeVec
	ShardState       *prometheus.GaugeVec
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ConnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mjumbe",
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Total connection attempts by outcome.",
		}, []string{"shard", "outcome"}),

		ReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mjumbe",
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Total reconnect decisions by close classification.",
		}, []string{"shard", "reason"}),

		HandshakeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mjumbe",
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Time from dial to ready/resumed acknowledgment.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"shard"}),

		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mjumbe",
			Subsystem: "gateway",
			Name:      "frames_total",
			Help:      "Total frames by opcode and direction.",
		}, []string{"shard", "op", "direction"}),

		EventsDispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mjumbe",
			Subsystem: "gateway",
			Name:      "events_dispatched_total",
			Help:      "Total dispatch events handed to the sink.",
		}, []string{"shard", "kind"}),

		SinkPanicsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mjumbe",
			Subsystem: "gateway",
			Name:      "sink_panics_total",
			Help:      "Total panics recovered at the fan-out boundary.",
		}, []string{"shard"}),

		CommandsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mjumbe",
			Subsystem: "session",
			Name:      "commands_dropped_total",
			Help:      "Outbound commands discarded because the connection died first.",
		}, []string{"shard", "command"}),

		HeartbeatLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mjumbe",
			Subsystem: "session",
			Name:      "heartbeat_latency_seconds",
			Help:      "Most recent beat/ack round trip.",
		}, []string{"shard"}),

		ShardState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mjumbe",
			Subsystem: "session",
			Name:      "shard_state",
			Help:      "Current connection state as an enum value.",
		}, []string{"shard"}),
	}

	reg.MustRegister(
		m.ConnectsTotal,
		m.ReconnectsTotal,
		m.HandshakeDuration,
		m.FramesTotal,
		m.EventsDispatchedTotal,
		m.SinkPanicsTotal,
		m.CommandsDroppedTotal,
		m.HeartbeatLatency,
		m.ShardState,
	)

	return m
}
