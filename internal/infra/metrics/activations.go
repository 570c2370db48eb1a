package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		purchasesTotal,
		activationOutcomes,
		codesDelivered,
		refundsTotal,
	)
}

var (
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numbers_purchased_total",
			Help: "Numbers purchased, by provider and service key.",
		},
		[]string{"provider", "service"},
	)

	activationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activation_outcomes_total",
			Help: "Terminal activation outcomes (delivered/user_cancelled/provider_cancelled/timed_out).",
		},
		[]string{"outcome"},
	)

	codesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_codes_delivered_total",
			Help: "SMS codes recorded per provider (duplicates excluded).",
		},
		[]string{"provider"},
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refunds issued, by activation outcome.",
		},
		[]string{"outcome"},
	)
)

func IncPurchase(provider, service string) {
	purchasesTotal.WithLabelValues(norm(provider), norm(service)).Inc()
}

func IncActivationOutcome(outcome string) {
	activationOutcomes.WithLabelValues(norm(outcome)).Inc()
}

func IncCodeDelivered(provider string) {
	codesDelivered.WithLabelValues(norm(provider)).Inc()
}

func IncRefund(outcome string) {
	refundsTotal.WithLabelValues(norm(outcome)).Inc()
}
