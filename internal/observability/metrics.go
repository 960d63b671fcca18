package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics counts booking outcomes. A nil *BookingMetrics is a no-op.
type BookingMetrics struct {
	operationsTotal  *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	slotsReleased    prometheus.Counter
	slotsInserted    prometheus.Counter
	outboxPublished  *prometheus.CounterVec
	outboxBacklog    prometheus.Gauge
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by name and outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "slotbook",
			Subsystem: "booking",
			Name:      "operation_duration_seconds",
			Help:      "Latency of booking operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		slotsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "booking",
			Name:      "slots_released_total",
			Help:      "Slots returned to the free pool by cancellations",
		}),
		slotsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "booking",
			Name:      "slots_inserted_total",
			Help:      "Slots published by providers",
		}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events written to Kafka",
		}, []string{"event_type"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slotbook",
			Subsystem: "outbox",
			Name:      "pending_events",
			Help:      "Outbox events not yet written to Kafka",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.slotsReleased, m.slotsInserted, m.outboxPublished, m.outboxBacklog)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *BookingMetrics) AddSlotsReleased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.slotsReleased.Add(float64(n))
}

func (m *BookingMetrics) AddSlotsInserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.slotsInserted.Add(float64(n))
}

func (m *BookingMetrics) ObserveOutboxPublished(eventType string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(eventType).Inc()
}

func (m *BookingMetrics) SetOutboxBacklog(n int) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(n))
}
