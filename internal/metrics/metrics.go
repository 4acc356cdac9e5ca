// Package metrics provides the Prometheus collectors the cell runtime
// exposes: FSM transition counts and durations, broker queue depth and
// drop counts, and RPC request counts by error code. Grounded on the
// teacher's internal/metrics/metrics.go singleton-via-sync.Once pattern
// and promauto registration style, scoped down to this runtime's domain.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds every Prometheus collector the runtime registers.
type Metrics struct {
	FSMTransitionsTotal  *prometheus.CounterVec
	FSMTransitionErrors  *prometheus.CounterVec
	FSMStateDuration     *prometheus.HistogramVec
	FSMInstancesGauge    *prometheus.GaugeVec

	BrokerQueueDepth   *prometheus.GaugeVec
	BrokerMessagesTotal *prometheus.CounterVec
	BrokerDroppedTotal *prometheus.CounterVec

	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec
}

// Get returns the process-wide Metrics instance, registering every
// collector with the default Prometheus registry on first call.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.FSMTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cellrt",
			Subsystem: "fsm",
			Name:      "transitions_total",
			Help:      "Total number of committed state transitions by machine and trigger.",
		},
		[]string{"machine", "trigger", "destination"},
	)

	m.FSMTransitionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cellrt",
			Subsystem: "fsm",
			Name:      "transition_errors_total",
			Help:      "Total number of rejected triggers by machine and reason.",
		},
		[]string{"machine", "trigger", "reason"},
	)

	m.FSMStateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cellrt",
			Subsystem: "fsm",
			Name:      "state_duration_seconds",
			Help:      "Time spent in a state before exiting it.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"machine", "state"},
	)

	m.FSMInstancesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cellrt",
			Subsystem: "fsm",
			Name:      "instances",
			Help:      "Number of live instances per machine definition.",
		},
		[]string{"machine"},
	)

	m.BrokerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cellrt",
			Subsystem: "broker",
			Name:      "subscriber_queue_depth",
			Help:      "Current buffered message count for a subscriber queue.",
		},
		[]string{"topic"},
	)

	m.BrokerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cellrt",
			Subsystem: "broker",
			Name:      "messages_total",
			Help:      "Total number of messages published to a topic.",
		},
		[]string{"topic"},
	)

	m.BrokerDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cellrt",
			Subsystem: "broker",
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped by the latest-wins policy.",
		},
		[]string{"topic"},
	)

	m.RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cellrt",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of RPC requests by method and result code.",
		},
		[]string{"method", "code"},
	)

	m.RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cellrt",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "RPC request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	return m
}
