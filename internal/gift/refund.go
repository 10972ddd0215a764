package gift

import (
	"fmt"
	"sort"

	"github.com/epikoding/giftpool/internal/model"
	"github.com/shopspring/decimal"
)

// Policy selects how completion is re-derived after a mutation.
type Policy string

const (
	// PolicyRecompute clears every refund and re-derives completion and
	// refunds from the current participant set on every call.
	PolicyRecompute Policy = "recompute"
	// PolicyLegacy only distributes refunds on the incomplete to complete
	// transition and never reopens a session.
	PolicyLegacy Policy = "legacy"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyRecompute, "":
		return PolicyRecompute, nil
	case PolicyLegacy:
		return PolicyLegacy, nil
	default:
		return "", fmt.Errorf("unknown completion policy %q", s)
	}
}

// Transition describes how a recompute changed the completion flag.
type Transition struct {
	Completed bool
	Reopened  bool
	Refunded  decimal.Decimal
}

// Recompute re-derives IsComplete and every RefundAmount of s in place.
// Participants must be in arrival order. Calling it twice on the same
// participant set yields the same result.
func Recompute(s *model.Session, policy Policy) Transition {
	wasComplete := s.IsComplete

	if policy == PolicyLegacy {
		recomputeOnce(s)
	} else {
		recomputeFromScratch(s)
	}

	return Transition{
		Completed: !wasComplete && s.IsComplete,
		Reopened:  wasComplete && !s.IsComplete,
		Refunded:  s.TotalRefunded(),
	}
}

func recomputeFromScratch(s *model.Session) {
	for i := range s.Participants {
		s.Participants[i].RefundAmount = decimal.Zero
	}

	total := s.Total()
	if total.LessThan(s.GiftPrice) {
		s.IsComplete = false
		return
	}

	s.IsComplete = true
	distribute(s.Participants, total.Sub(s.GiftPrice))
}

func recomputeOnce(s *model.Session) {
	if s.IsComplete {
		return
	}

	total := s.Total()
	if total.LessThan(s.GiftPrice) {
		return
	}

	s.IsComplete = true
	distribute(s.Participants, total.Sub(s.GiftPrice))
}

// distribute hands the excess back to the largest contributors first.
// Equal contributions keep arrival order. Each refund is capped at the
// participant's own contribution, so the refunds always sum to excess.
func distribute(participants []model.Participant, excess decimal.Decimal) {
	if !excess.IsPositive() {
		return
	}

	order := make([]int, len(participants))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return participants[order[a]].Contribution.GreaterThan(participants[order[b]].Contribution)
	})

	remaining := excess
	for _, idx := range order {
		if !remaining.IsPositive() {
			break
		}
		refund := decimal.Min(participants[idx].Contribution, remaining)
		participants[idx].RefundAmount = refund
		remaining = remaining.Sub(refund)
	}
}
