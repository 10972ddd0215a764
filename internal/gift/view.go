package gift

import (
	"github.com/epikoding/giftpool/internal/model"
	"github.com/shopspring/decimal"
)

// SessionView is the read model handed to the presentation layer. The
// embedded session never serializes its organizer secret.
type SessionView struct {
	*model.Session
	TotalContributed      decimal.Decimal `json:"totalContributed"`
	Remaining             decimal.Decimal `json:"remaining"`
	Progress              int             `json:"progress"`
	SuggestedContribution Suggestion      `json:"suggestedContribution"`
}

// Suggestion is an advisory contribution range; nothing enforces it.
type Suggestion struct {
	Min         decimal.Decimal `json:"min"`
	Recommended decimal.Decimal `json:"recommended"`
	Max         decimal.Decimal `json:"max"`
}

var (
	hundred    = decimal.NewFromInt(100)
	halfFactor = decimal.RequireFromString("0.5")
	maxFactor  = decimal.RequireFromString("1.5")
)

func newView(s *model.Session) *SessionView {
	redacted := s.Clone()
	redacted.OrganizerSecret = ""

	total := s.Total()
	remaining := s.GiftPrice.Sub(total)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return &SessionView{
		Session:               redacted,
		TotalContributed:      total,
		Remaining:             remaining,
		Progress:              Progress(total, s.GiftPrice),
		SuggestedContribution: Suggest(s.GiftPrice, s.ExpectedParticipants),
	}
}

// Progress returns collected/target as a whole percentage capped at 100.
func Progress(collected, target decimal.Decimal) int {
	if !target.IsPositive() {
		return 0
	}
	pct := collected.Div(target).Mul(hundred).Round(0).IntPart()
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return int(pct)
}

// Suggest splits the price evenly across the expected participants and
// brackets it at half and one and a half times the even share.
func Suggest(price decimal.Decimal, expectedParticipants int) Suggestion {
	if expectedParticipants < 1 {
		expectedParticipants = 1
	}
	share := price.Div(decimal.NewFromInt(int64(expectedParticipants)))
	return Suggestion{
		Min:         share.Mul(halfFactor).Round(2),
		Recommended: share.Round(2),
		Max:         share.Mul(maxFactor).Round(2),
	}
}
