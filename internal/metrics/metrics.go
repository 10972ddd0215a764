// Package metrics holds the domain counters for gift sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	sessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gift_sessions_created_total",
			Help: "Total number of gift sessions created",
		},
	)

	sessionsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gift_sessions_deleted_total",
			Help: "Total number of gift sessions deleted by organizers",
		},
	)

	contributionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gift_contributions_total",
			Help: "Total number of participant contributions accepted",
		},
	)

	contributionAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gift_contribution_amount_total",
			Help: "Sum of accepted participant contributions",
		},
	)

	participantsRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gift_participants_removed_total",
			Help: "Total number of participants removed by organizers",
		},
	)

	// Completion transitions, labelled "completed" or "reopened"
	completionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gift_session_completion_transitions_total",
			Help: "Sessions crossing the funding target in either direction",
		},
		[]string{"direction"},
	)

	refundAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gift_refund_amount_total",
			Help: "Sum of refunds assigned when sessions complete",
		},
	)

	operationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gift_operation_errors_total",
			Help: "Rejected or failed session operations",
		},
		[]string{"operation", "kind"},
	)
)

func RecordSessionCreated() {
	sessionsCreatedTotal.Inc()
}

func RecordSessionDeleted() {
	sessionsDeletedTotal.Inc()
}

func RecordContribution(amount decimal.Decimal) {
	contributionsTotal.Inc()
	contributionAmountTotal.Add(amount.InexactFloat64())
}

func RecordParticipantRemoved() {
	participantsRemovedTotal.Inc()
}

// RecordCompleted records a session reaching its target and the refunds assigned.
func RecordCompleted(refunded decimal.Decimal) {
	completionTransitionsTotal.WithLabelValues("completed").Inc()
	refundAmountTotal.Add(refunded.InexactFloat64())
}

func RecordReopened() {
	completionTransitionsTotal.WithLabelValues("reopened").Inc()
}

func RecordOperationError(operation, kind string) {
	operationErrorsTotal.WithLabelValues(operation, kind).Inc()
}
