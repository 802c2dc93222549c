package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the conversational intake
// pipeline. A nil receiver is a no-op so wiring stays optional.
type IntakeMetrics struct {
	turnsTotal     *prometheus.CounterVec
	llmFallbacks   prometheus.Counter
	bookingsTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total processed dialogue turns",
		}, []string{"flow", "intent"}),
		llmFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "dialogue",
			Name:      "llm_fallbacks_total",
			Help:      "Turns where the primary language model failed over",
		}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Appointment booking attempts by outcome",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.llmFallbacks, m.bookingsTotal, m.webhookLatency)
	return m
}

func (m *IntakeMetrics) ObserveTurn(flow, intent string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(flow, intent).Inc()
}

func (m *IntakeMetrics) ObserveLLMFallback() {
	if m == nil {
		return
	}
	m.llmFallbacks.Inc()
}

func (m *IntakeMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveWebhookLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(status).Observe(seconds)
}
