// Package gift coordinates group-gift sessions: organizer lifecycle,
// one-time contributions, participant removal and refund distribution.
//
// Every mutation for a session id runs under that id's lock: the existence
// check, the write and the completion recompute happen as one unit.
package gift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/epikoding/giftpool/internal/keylock"
	"github.com/epikoding/giftpool/internal/metrics"
	"github.com/epikoding/giftpool/internal/model"
	"github.com/epikoding/giftpool/internal/store"
	"github.com/google/logger"
	"github.com/shopspring/decimal"
)

const maxIDAttempts = 5

// ViewCache stores serialized session views. Failures are logged and
// otherwise ignored; the store stays authoritative.
type ViewCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	Policy Policy
	// FoldNames makes participant names match case-insensitively for both
	// the duplicate check and ParticipantExists.
	FoldNames bool
	Cache     ViewCache
}

type Service struct {
	store     store.SessionStore
	locks     *keylock.Locker
	policy    Policy
	foldNames bool
	cache     ViewCache
	newID     func() (string, error)
}

func NewService(st store.SessionStore, opts Options) *Service {
	policy := opts.Policy
	if policy == "" {
		policy = PolicyRecompute
	}
	return &Service{
		store:     st,
		locks:     keylock.New(),
		policy:    policy,
		foldNames: opts.FoldNames,
		cache:     opts.Cache,
		newID:     NewSessionID,
	}
}

type CreateSessionInput struct {
	OrganizerName         string
	GiftName              string
	GiftLink              string
	GiftPrice             decimal.Decimal
	OrganizerContribution decimal.Decimal
	ExpectedParticipants  int
	OrganizerSecret       string
}

// UpdateSessionInput carries the organizer-editable fields; nil means unchanged.
// An empty GiftLink clears the link.
type UpdateSessionInput struct {
	GiftName              *string
	GiftLink              *string
	GiftPrice             *decimal.Decimal
	OrganizerContribution *decimal.Decimal
}

func (s *Service) fail(operation string, err error) error {
	metrics.RecordOperationError(operation, errorKind(err))
	return err
}

// report records a completion transition once its write has committed.
func (s *Service) report(sessionID string, t Transition) {
	switch {
	case t.Completed:
		metrics.RecordCompleted(t.Refunded)
		logger.Infof("[Gift] Session %s reached its target, refunds %s", sessionID, t.Refunded.StringFixed(2))
	case t.Reopened:
		metrics.RecordReopened()
		logger.Infof("[Gift] Session %s fell below its target and reopened", sessionID)
	}
}

func (s *Service) sameName(a, b string) bool {
	if s.foldNames {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func (s *Service) hasParticipant(sess *model.Session, name string) bool {
	for _, p := range sess.Participants {
		if s.sameName(p.Name, name) {
			return true
		}
	}
	return false
}

func cacheKey(sessionID string) string {
	return "session:" + sessionID
}

func (s *Service) invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(sessionID)); err != nil {
		logger.Warningf("[Gift] Failed to invalidate cached session %s: %v", sessionID, err)
	}
}

func translate(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateSession stores a new session with the organizer as its first
// participant and returns the session id.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (string, error) {
	organizerName, err := checkName("organizerName", in.OrganizerName, maxNameLength)
	if err != nil {
		return "", s.fail("create", err)
	}
	giftName, err := checkName("giftName", in.GiftName, maxGiftNameLength)
	if err != nil {
		return "", s.fail("create", err)
	}
	link, err := checkLink(in.GiftLink)
	if err != nil {
		return "", s.fail("create", err)
	}
	if err := checkAmount("giftPrice", in.GiftPrice, false); err != nil {
		return "", s.fail("create", err)
	}
	if err := checkAmount("organizerContribution", in.OrganizerContribution, true); err != nil {
		return "", s.fail("create", err)
	}
	if in.ExpectedParticipants < 1 {
		return "", s.fail("create", invalid("expectedParticipants", "must be a positive integer"))
	}
	if err := checkSecret(in.OrganizerSecret); err != nil {
		return "", s.fail("create", err)
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return "", s.fail("create", fmt.Errorf("generate session id: %w", err))
		}

		sess := &model.Session{
			SessionID:             id,
			GiftName:              giftName,
			GiftLink:              link,
			GiftPrice:             in.GiftPrice,
			OrganizerName:         organizerName,
			OrganizerSecret:       in.OrganizerSecret,
			OrganizerContribution: in.OrganizerContribution,
			ExpectedParticipants:  in.ExpectedParticipants,
			Participants: []model.Participant{{
				SessionID:    id,
				Name:         organizerName,
				Contribution: in.OrganizerContribution,
				IsOrganizer:  true,
			}},
		}
		// The organizer alone may already cover the price.
		t := Recompute(sess, s.policy)

		err = s.store.Create(ctx, sess)
		if errors.Is(err, store.ErrExists) {
			logger.Warningf("[Gift] Session id collision on %s, retrying", id)
			continue
		}
		if err != nil {
			return "", s.fail("create", fmt.Errorf("create session: %w", err))
		}

		metrics.RecordSessionCreated()
		logger.Infof("[Gift] Created session %s for %q", id, giftName)
		s.report(id, t)
		return id, nil
	}

	return "", s.fail("create", errors.New("could not allocate a unique session id"))
}

// GetSession returns the public view of a session, secret redacted.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey(sessionID)); err == nil {
			var view SessionView
			if err := json.Unmarshal(data, &view); err == nil && view.Session != nil {
				return &view, nil
			}
		}

		// Holding the lock keeps a concurrent mutation from invalidating
		// between our read and our Set.
		unlock := s.locks.Lock(sessionID)
		defer unlock()
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, translate(err)
	}
	view := newView(sess)

	if s.cache != nil {
		if data, err := json.Marshal(view); err == nil {
			if err := s.cache.Set(ctx, cacheKey(sessionID), data); err != nil {
				logger.Warningf("[Gift] Failed to cache session %s: %v", sessionID, err)
			}
		}
	}
	return view, nil
}

// ValidateOrganizer reports whether secret matches the session's organizer
// secret. An unknown session is reported as false, not as an error.
func (s *Service) ValidateOrganizer(ctx context.Context, sessionID, secret string) (bool, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return secret != "" && secretMatches(sess.OrganizerSecret, secret), nil
}

// UpdateSession applies the supplied gift fields, keeps the organizer's
// participant contribution in step with OrganizerContribution and re-derives
// completion, since the price or total may have moved across the target.
func (s *Service) UpdateSession(ctx context.Context, sessionID, secret string, in UpdateSessionInput) error {
	var (
		giftName string
		link     *string
		err      error
	)
	if in.GiftName != nil {
		if giftName, err = checkName("giftName", *in.GiftName, maxGiftNameLength); err != nil {
			return s.fail("update", err)
		}
	}
	if in.GiftLink != nil {
		if link, err = checkLink(*in.GiftLink); err != nil {
			return s.fail("update", err)
		}
	}
	if in.GiftPrice != nil {
		if err := checkAmount("giftPrice", *in.GiftPrice, false); err != nil {
			return s.fail("update", err)
		}
	}
	if in.OrganizerContribution != nil {
		if err := checkAmount("organizerContribution", *in.OrganizerContribution, true); err != nil {
			return s.fail("update", err)
		}
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var t Transition
	_, err = s.store.Update(ctx, sessionID, func(sess *model.Session) error {
		if !secretMatches(sess.OrganizerSecret, secret) {
			return ErrUnauthorized
		}

		if in.GiftName != nil {
			sess.GiftName = giftName
		}
		if in.GiftLink != nil {
			sess.GiftLink = link
		}
		if in.GiftPrice != nil {
			sess.GiftPrice = *in.GiftPrice
		}
		if in.OrganizerContribution != nil {
			sess.OrganizerContribution = *in.OrganizerContribution
			if org := sess.Organizer(); org != nil {
				org.Contribution = *in.OrganizerContribution
			}
		}

		t = Recompute(sess, s.policy)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		// Fails closed: an unknown session cannot be authorized.
		return s.fail("update", ErrUnauthorized)
	}
	if err != nil {
		return s.fail("update", err)
	}

	s.invalidate(ctx, sessionID)
	s.report(sessionID, t)
	return nil
}

// DeleteSession removes the session and all of its participants.
func (s *Service) DeleteSession(ctx context.Context, sessionID, secret string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return s.fail("delete", translate(err))
	}
	if !secretMatches(sess.OrganizerSecret, secret) {
		return s.fail("delete", ErrUnauthorized)
	}

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return s.fail("delete", translate(err))
	}

	s.invalidate(ctx, sessionID)
	metrics.RecordSessionDeleted()
	logger.Infof("[Gift] Deleted session %s", sessionID)
	return nil
}

// AddParticipant records a one-time contribution and re-derives completion.
func (s *Service) AddParticipant(ctx context.Context, sessionID, name string, contribution decimal.Decimal) (*model.Participant, error) {
	name, err := checkName("name", name, maxNameLength)
	if err != nil {
		return nil, s.fail("join", err)
	}
	if err := checkAmount("contribution", contribution, false); err != nil {
		return nil, s.fail("join", err)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var t Transition
	updated, err := s.store.Update(ctx, sessionID, func(sess *model.Session) error {
		if sess.IsComplete {
			return ErrSessionClosed
		}
		if s.hasParticipant(sess, name) {
			return ErrDuplicateName
		}

		sess.Participants = append(sess.Participants, model.Participant{
			SessionID:    sessionID,
			Name:         name,
			Contribution: contribution,
		})
		t = Recompute(sess, s.policy)
		return nil
	})
	if err != nil {
		return nil, s.fail("join", translate(err))
	}

	s.invalidate(ctx, sessionID)
	metrics.RecordContribution(contribution)
	s.report(sessionID, t)

	added := updated.Participants[len(updated.Participants)-1]
	return &added, nil
}

// RemoveParticipant deletes a participant on behalf of the organizer of
// the participant's session and re-derives completion and refunds.
func (s *Service) RemoveParticipant(ctx context.Context, participantID int64, secret string) (*model.Participant, error) {
	p, err := s.store.FindParticipant(ctx, participantID)
	if err != nil {
		return nil, s.fail("remove", translate(err))
	}
	return s.RemoveSessionParticipant(ctx, p.SessionID, participantID, secret)
}

// RemoveSessionParticipant is RemoveParticipant scoped to one session; a
// participant from another session is reported as not found.
func (s *Service) RemoveSessionParticipant(ctx context.Context, sessionID string, participantID int64, secret string) (*model.Participant, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var (
		removed model.Participant
		t       Transition
	)
	_, err := s.store.Update(ctx, sessionID, func(sess *model.Session) error {
		if !secretMatches(sess.OrganizerSecret, secret) {
			return ErrUnauthorized
		}

		p := sess.Participant(participantID)
		if p == nil {
			return ErrNotFound
		}
		if p.IsOrganizer {
			return invalid("participantId", "the organizer cannot be removed")
		}
		removed = *p
		sess.RemoveParticipant(participantID)

		t = Recompute(sess, s.policy)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, s.fail("remove", ErrUnauthorized)
	}
	if err != nil {
		return nil, s.fail("remove", err)
	}

	s.invalidate(ctx, sessionID)
	metrics.RecordParticipantRemoved()
	logger.Infof("[Gift] Removed participant %d from session %s", participantID, sessionID)
	s.report(sessionID, t)
	return &removed, nil
}

// ParticipantExists reports whether name already contributed to the session.
// An unknown session has no participants.
func (s *Service) ParticipantExists(ctx context.Context, sessionID, name string) (bool, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.hasParticipant(sess, strings.TrimSpace(name)), nil
}

// Recompute re-derives completion for one session and persists the result.
func (s *Service) Recompute(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, _, err := s.reconcile(ctx, sessionID)
	return sess, err
}

// Reconcile is Recompute reporting whether the stored completion flag or any
// refund changed.
func (s *Service) Reconcile(ctx context.Context, sessionID string) (bool, error) {
	_, changed, err := s.reconcile(ctx, sessionID)
	return changed, err
}

// errUnchanged aborts a reconcile write whose recompute changed nothing.
var errUnchanged = errors.New("settlement unchanged")

func (s *Service) reconcile(ctx context.Context, sessionID string) (*model.Session, bool, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var (
		t       Transition
		current *model.Session
	)
	sess, err := s.store.Update(ctx, sessionID, func(sess *model.Session) error {
		before := settlement(sess)
		t = Recompute(sess, s.policy)
		if settlement(sess) == before {
			current = sess
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return current, false, nil
	}
	if err != nil {
		return nil, false, translate(err)
	}

	s.invalidate(ctx, sessionID)
	s.report(sessionID, t)
	return sess, true, nil
}

// settlement renders the derived state of a session for comparison.
func settlement(sess *model.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%t", sess.IsComplete)
	for _, p := range sess.Participants {
		fmt.Fprintf(&b, "|%d:%s", p.ID, p.RefundAmount.StringFixed(2))
	}
	return b.String()
}

// SessionIDs lists every stored session id.
func (s *Service) SessionIDs(ctx context.Context) ([]string, error) {
	return s.store.ListSessionIDs(ctx)
}

// Audit loads a session and reports every invariant it violates.
func (s *Service) Audit(ctx context.Context, sessionID string) ([]Issue, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, translate(err)
	}
	return Check(sess, s.policy), nil
}
