package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts checkout session attempts and provider
// notifications per provider.
type PaymentMetrics struct {
	sessions      *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_sessions_total",
		Help: "Payment sessions started, by provider and outcome.",
	}, []string{"provider", "outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_notifications_total",
		Help: "Payment provider notifications received, by provider and outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(sessions, notifications)
	return &PaymentMetrics{sessions: sessions, notifications: notifications}
}

func (p *PaymentMetrics) IncSession(provider, outcome string) {
	if p == nil || p.sessions == nil {
		return
	}
	p.sessions.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (p *PaymentMetrics) IncNotification(provider, outcome string) {
	if p == nil || p.notifications == nil {
		return
	}
	p.notifications.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
