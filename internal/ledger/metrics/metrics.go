package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AccountsCreated     prometheus.Counter
	CreditsGranted      prometheus.Counter
	CreditsDeducted     prometheus.Counter
	InsufficientCredits prometheus.Counter
	CorruptionDetected  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spendgate_ledger_accounts_created_total",
			Help: "Total credit accounts created with the signup grant",
		}),
		CreditsGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spendgate_ledger_credits_granted_total",
			Help: "Total credits added across all accounts",
		}),
		CreditsDeducted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spendgate_ledger_credits_deducted_total",
			Help: "Total credits consumed across all accounts",
		}),
		InsufficientCredits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spendgate_ledger_insufficient_credits_total",
			Help: "Total deducts refused for insufficient balance",
		}),
		CorruptionDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spendgate_ledger_corruption_detected_total",
			Help: "Total ledger invariant violations detected; should stay zero",
		}),
	}
}
