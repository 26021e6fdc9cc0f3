package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the booking, cancellation and sync flows.
type BookingMetrics struct {
	reserveTotal       *prometheus.CounterVec
	cancelTotal        *prometheus.CounterVec
	syncWritesTotal    *prometheus.CounterVec
	syncFailuresTotal  prometheus.Counter
	patientEnsureFails prometheus.Counter
	housekeepingTotal  prometheus.Counter
	reserveLatency     *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reserveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "reserve_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		cancelTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "cancel_total",
			Help:      "Cancellation attempts by outcome",
		}, []string{"outcome"}),
		syncWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "sync",
			Name:      "writes_total",
			Help:      "Documents written by delta sync",
		}, []string{"kind"}),
		syncFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "sync",
			Name:      "partial_failures_total",
			Help:      "Delta sync runs that stopped part way through",
		}),
		patientEnsureFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "patient_ensure_failures_total",
			Help:      "Best-effort patient record writes that failed after a booking",
		}),
		housekeepingTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "housekeeping",
			Name:      "deactivated_total",
			Help:      "Past available slots deactivated by housekeeping",
		}),
		reserveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "reserve_latency_seconds",
			Help:      "Latency of the reservation transaction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.reserveTotal,
		m.cancelTotal,
		m.syncWritesTotal,
		m.syncFailuresTotal,
		m.patientEnsureFails,
		m.housekeepingTotal,
		m.reserveLatency,
	)
	return m
}

func (m *BookingMetrics) ObserveReserve(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.reserveTotal.WithLabelValues(outcome).Inc()
	m.reserveLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObserveCancel(outcome string) {
	if m == nil {
		return
	}
	m.cancelTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveSync(upserts, removals int, failed bool) {
	if m == nil {
		return
	}
	m.syncWritesTotal.WithLabelValues("upsert").Add(float64(upserts))
	m.syncWritesTotal.WithLabelValues("deactivate").Add(float64(removals))
	if failed {
		m.syncFailuresTotal.Inc()
	}
}

func (m *BookingMetrics) PatientEnsureFailed() {
	if m == nil {
		return
	}
	m.patientEnsureFails.Inc()
}

func (m *BookingMetrics) ObserveHousekeeping(deactivated int) {
	if m == nil {
		return
	}
	m.housekeepingTotal.Add(float64(deactivated))
}
