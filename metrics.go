package nessi

// metrics.go holds the Prometheus instrumentation of the event
// engine.  Metrics are labelled by the entity type whose handler
// ran, which keeps the label cardinality bounded by the model code.

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimMetrics instruments the event engine.
type SimMetrics struct {
	eventsExecuted  *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	queueLength     prometheus.Gauge
	simTime         prometheus.Gauge
}

// CreateSimMetrics is a constructor.  The metrics are registered on
// the given registerer.
func CreateSimMetrics(reg prometheus.Registerer) *SimMetrics {
	m := &SimMetrics{
		eventsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nessi",
			Name:      "events_executed_total",
			Help:      "Number of executed events, by entity type.",
		}, []string{"entity"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nessi",
			Name:      "handler_duration_seconds",
			Help:      "Wall clock time spent in event handlers, by entity type.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 10, 8),
		}, []string{"entity"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nessi",
			Name:      "event_queue_length",
			Help:      "Number of pending events in the queue.",
		}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nessi",
			Name:      "simulation_time_seconds",
			Help:      "Current simulated time.",
		}),
	}
	reg.MustRegister(m.eventsExecuted, m.handlerDuration, m.queueLength, m.simTime)
	return m
}

// entityLabel names the entity type an event ran for.
func entityLabel(context any) string {
	if context == nil {
		return "none"
	}
	label := fmt.Sprintf("%T", context)
	label = strings.TrimPrefix(label, "*")
	if idx := strings.LastIndex(label, "."); idx >= 0 {
		label = label[idx+1:]
	}
	return label
}

func (m *SimMetrics) observeEvent(context any, d time.Duration, queueLen int, simTime float64) {
	entity := entityLabel(context)
	m.eventsExecuted.WithLabelValues(entity).Inc()
	m.handlerDuration.WithLabelValues(entity).Observe(d.Seconds())
	m.queueLength.Set(float64(queueLen))
	m.simTime.Set(simTime)
}
