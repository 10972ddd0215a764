package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Session struct {
	ID                    int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID             string          `gorm:"size:20;not null;uniqueIndex" json:"sessionId"`
	GiftName              string          `gorm:"size:255;not null" json:"giftName"`
	GiftLink              *string         `gorm:"type:text" json:"giftLink"`
	GiftPrice             decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"giftPrice"`
	OrganizerName         string          `gorm:"size:100;not null" json:"organizerName"`
	OrganizerSecret       string          `gorm:"size:100;not null" json:"-"`
	OrganizerContribution decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"organizerContribution"`
	ExpectedParticipants  int             `gorm:"not null" json:"expectedParticipants"`
	IsComplete            bool            `gorm:"not null;default:false" json:"isComplete"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
	Participants          []Participant   `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnDelete:CASCADE" json:"participants"`
}

func (Session) TableName() string {
	return "sessions"
}

// Participants are kept in arrival order; ID order is arrival order.
type Participant struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID    string          `gorm:"size:20;not null;index" json:"sessionId"`
	Name         string          `gorm:"size:100;not null" json:"name"`
	Contribution decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"contribution"`
	IsOrganizer  bool            `gorm:"not null;default:false" json:"isOrganizer"`
	RefundAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"refundAmount"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (Participant) TableName() string {
	return "participants"
}

// Total returns the sum of all contributions, the authoritative amount raised.
func (s *Session) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Participants {
		total = total.Add(p.Contribution)
	}
	return total
}

// TotalRefunded returns the sum of all refund amounts.
func (s *Session) TotalRefunded() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Participants {
		total = total.Add(p.RefundAmount)
	}
	return total
}

// Organizer returns the organizer participant, or nil if none is present.
func (s *Session) Organizer() *Participant {
	for i := range s.Participants {
		if s.Participants[i].IsOrganizer {
			return &s.Participants[i]
		}
	}
	return nil
}

// Participant returns the participant with the given id, or nil.
func (s *Session) Participant(id int64) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// RemoveParticipant drops the participant with the given id and reports
// whether it was present.
func (s *Session) RemoveParticipant(id int64) bool {
	for i, p := range s.Participants {
		if p.ID == id {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (s *Session) Clone() *Session {
	c := *s
	if s.GiftLink != nil {
		link := *s.GiftLink
		c.GiftLink = &link
	}
	c.Participants = make([]Participant, len(s.Participants))
	copy(c.Participants, s.Participants)
	return &c
}
