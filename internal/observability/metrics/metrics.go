package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for the emergency call flow.
type CallMetrics struct {
	callsPlaced    *prometheus.CounterVec
	intakeSteps    *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		callsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthmatch",
			Subsystem: "emergency",
			Name:      "calls_placed_total",
			Help:      "Total outbound emergency call placement attempts",
		}, []string{"outcome"}),
		intakeSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthmatch",
			Subsystem: "emergency",
			Name:      "intake_steps_total",
			Help:      "Total intake step handler invocations",
		}, []string{"step", "result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthmatch",
			Subsystem: "emergency",
			Name:      "status_webhook_events_total",
			Help:      "Total provider status webhook events",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthmatch",
			Subsystem: "emergency",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of provider webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsPlaced, m.intakeSteps, m.webhookEvents, m.webhookLatency)
	return m
}

func (m *CallMetrics) ObserveCallPlaced(outcome string) {
	if m == nil {
		return
	}
	m.callsPlaced.WithLabelValues(outcome).Inc()
}

func (m *CallMetrics) ObserveIntakeStep(step, result string) {
	if m == nil {
		return
	}
	m.intakeSteps.WithLabelValues(step, result).Inc()
}

func (m *CallMetrics) ObserveWebhookEvent(status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(status).Inc()
}

func (m *CallMetrics) ObserveWebhookLatency(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(endpoint).Observe(seconds)
}
