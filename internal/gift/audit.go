package gift

import (
	"fmt"

	"github.com/epikoding/giftpool/internal/model"
)

// Issue is one invariant a stored session violates.
type Issue struct {
	SessionID     string `json:"sessionId"`
	ParticipantID int64  `json:"participantId,omitempty"`
	Type          string `json:"type"`
	Details       string `json:"details"`
}

const (
	IssueOrganizerCount     = "organizer_count"
	IssueOrganizerMismatch  = "organizer_contribution_mismatch"
	IssueRefundRange        = "refund_out_of_range"
	IssueRefundWhileOpen    = "refund_while_incomplete"
	IssueCompletionMismatch = "completion_mismatch"
	IssueRefundBalance      = "refund_balance"
)

// Check reports every invariant s violates under policy. The legacy policy
// tolerates sessions that stayed complete after their total dropped.
func Check(s *model.Session, policy Policy) []Issue {
	var issues []Issue
	add := func(participantID int64, kind, format string, args ...interface{}) {
		issues = append(issues, Issue{
			SessionID:     s.SessionID,
			ParticipantID: participantID,
			Type:          kind,
			Details:       fmt.Sprintf(format, args...),
		})
	}

	organizers := 0
	for _, p := range s.Participants {
		if p.IsOrganizer {
			organizers++
			if !p.Contribution.Equal(s.OrganizerContribution) {
				add(p.ID, IssueOrganizerMismatch, "organizer pledged %s but participant record holds %s",
					s.OrganizerContribution.StringFixed(2), p.Contribution.StringFixed(2))
			}
		}
		if p.RefundAmount.IsNegative() || p.RefundAmount.GreaterThan(p.Contribution) {
			add(p.ID, IssueRefundRange, "refund %s outside [0, %s]",
				p.RefundAmount.StringFixed(2), p.Contribution.StringFixed(2))
		}
		if !s.IsComplete && !p.RefundAmount.IsZero() {
			add(p.ID, IssueRefundWhileOpen, "refund %s on an incomplete session", p.RefundAmount.StringFixed(2))
		}
	}
	if organizers != 1 {
		add(0, IssueOrganizerCount, "expected exactly one organizer, found %d", organizers)
	}

	total := s.Total()
	funded := total.GreaterThanOrEqual(s.GiftPrice)
	if funded != s.IsComplete && !(policy == PolicyLegacy && s.IsComplete) {
		add(0, IssueCompletionMismatch, "isComplete=%t but total %s against price %s",
			s.IsComplete, total.StringFixed(2), s.GiftPrice.StringFixed(2))
	}

	if s.IsComplete && policy != PolicyLegacy {
		kept := total.Sub(s.TotalRefunded())
		if !kept.Equal(s.GiftPrice) {
			add(0, IssueRefundBalance, "contributions minus refunds is %s, price is %s",
				kept.StringFixed(2), s.GiftPrice.StringFixed(2))
		}
	}

	return issues
}
