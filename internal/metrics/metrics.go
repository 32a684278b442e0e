// Package metrics exposes the Prometheus collectors of the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LedgerPostings counts ledger postings by transaction type and outcome
	LedgerPostings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Subsystem: "ledger",
		Name:      "postings_total",
		Help:      "Ledger postings by type and outcome.",
	}, []string{"type", "outcome"})

	// Referrals counts attribution attempts by outcome
	Referrals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Subsystem: "referral",
		Name:      "attributions_total",
		Help:      "Referral attributions by outcome.",
	}, []string{"outcome"})

	// Completions counts campaign completion attempts by outcome
	Completions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Subsystem: "campaign",
		Name:      "completions_total",
		Help:      "Campaign completions by outcome.",
	}, []string{"outcome"})

	// Events counts dispatched inbound events by kind and outcome
	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Subsystem: "events",
		Name:      "dispatched_total",
		Help:      "Inbound events by kind and outcome.",
	}, []string{"kind", "outcome"})

	// Notifications counts outbound messages by outcome
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Subsystem: "gateway",
		Name:      "notifications_total",
		Help:      "Outbound notifications by outcome.",
	}, []string{"outcome"})

	// SecurityEvents counts recorded security events by type
	SecurityEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Subsystem: "security",
		Name:      "events_total",
		Help:      "Security events by type.",
	}, []string{"type"})
)

// Registry holds every collector above
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(LedgerPostings, Referrals, Completions, Events, Notifications, SecurityEvents)
}

// Outcome maps an error to a low-cardinality label value
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
