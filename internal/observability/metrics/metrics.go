package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReservationMetrics exposes counters/histograms for the reservation flows.
type ReservationMetrics struct {
	holdsTotal         *prometheus.CounterVec
	confirmationsTotal *prometheus.CounterVec
	reschedulesTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
}

func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	m := &ReservationMetrics{
		holdsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reservation",
			Name:      "hold_attempts_total",
			Help:      "Hold acquisitions by outcome",
		}, []string{"outcome"}),
		confirmationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reservation",
			Name:      "confirmations_total",
			Help:      "Booking confirmations by outcome",
		}, []string{"outcome"}),
		reschedulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reservation",
			Name:      "reschedules_total",
			Help:      "Booking reschedules by outcome",
		}, []string{"outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reservation",
			Name:      "notifications_total",
			Help:      "Booking notifications by template and delivery status",
		}, []string{"template", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.holdsTotal, m.confirmationsTotal, m.reschedulesTotal, m.notificationsTotal, m.requestLatency)
	return m
}

func (m *ReservationMetrics) ObserveHold(outcome string) {
	if m == nil {
		return
	}
	m.holdsTotal.WithLabelValues(outcome).Inc()
}

func (m *ReservationMetrics) ObserveConfirm(outcome string) {
	if m == nil {
		return
	}
	m.confirmationsTotal.WithLabelValues(outcome).Inc()
}

func (m *ReservationMetrics) ObserveReschedule(outcome string) {
	if m == nil {
		return
	}
	m.reschedulesTotal.WithLabelValues(outcome).Inc()
}

func (m *ReservationMetrics) ObserveNotification(templateID, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(templateID, status).Inc()
}

func (m *ReservationMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(method, route, status).Observe(seconds)
}
