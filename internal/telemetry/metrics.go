// Package telemetry exposes the optional Prometheus metrics sink for queue
// operations, adapted from the teacher's pkg/observability/prometheus
// (same promauto-registered-metrics-struct pattern, trimmed from HTTP/DB/
// EventBus counters down to the ones a Publisher/Subscriber can actually
// emit).
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultRegistry is the default Prometheus registry for queue metrics.
var DefaultRegistry = prometheus.NewRegistry()

// DefaultRegisterer namespaces every metric under service="mqueue".
var DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "mqueue"}, DefaultRegistry)

// Metrics holds the Prometheus collectors a Publisher/Subscriber pair
// reports against.
type Metrics struct {
	PushTotal       prometheus.Counter
	PushBytesTotal  prometheus.Counter
	PullTotal       prometheus.Counter
	PullBytesTotal  prometheus.Counter
	SegmentRolls    prometheus.Counter
	WindowRemaps    *prometheus.CounterVec // label: mode=writer|reader
	CommittedOffset prometheus.Gauge
	PullTimeouts    prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Get returns the process-wide Metrics instance, creating it against
// DefaultRegisterer on first use.
func Get() *Metrics {
	once.Do(func() {
		metrics = New(DefaultRegisterer)
	})
	return metrics
}

// New creates a fresh Metrics collection against the given registerer,
// mainly for tests that want an isolated registry.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	return &Metrics{
		PushTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "mqueue_push_total",
			Help: "Total number of records pushed by the publisher.",
		}),
		PushBytesTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "mqueue_push_bytes_total",
			Help: "Total payload bytes pushed by the publisher.",
		}),
		PullTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "mqueue_pull_total",
			Help: "Total number of records delivered to subscriber handlers.",
		}),
		PullBytesTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "mqueue_pull_bytes_total",
			Help: "Total payload bytes delivered to subscriber handlers.",
		}),
		SegmentRolls: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "mqueue_segment_rolls_total",
			Help: "Total number of segment rolls performed by the publisher.",
		}),
		WindowRemaps: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "mqueue_window_remaps_total",
			Help: "Total number of mmap window remaps, by mode.",
		}, []string{"mode"}),
		CommittedOffset: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "mqueue_committed_offset",
			Help: "The publisher's last committed logical offset.",
		}),
		PullTimeouts: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "mqueue_pull_timeouts_total",
			Help: "Total number of Pull calls that returned due to timeout.",
		}),
	}
}
