package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		ledgerOpsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment events by status (initiated/approved/pending/rejected).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_revenue_centavos_total",
			Help: "Sum of approved payment amounts in centavos.",
		},
	)

	ledgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Committed ledger operations by kind (debit/credit).",
		},
		[]string{"kind"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(amount int64) {
	paymentsRevenueTotal.Add(float64(amount))
}

func IncLedgerOp(kind string) {
	ledgerOpsTotal.WithLabelValues(norm(kind)).Inc()
}
