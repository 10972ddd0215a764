package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/epikoding/giftpool/internal/model"
	"github.com/google/logger"
)

// document is the on-disk layout: every session with its participants
// embedded, plus the system-wide participant id counter.
type document struct {
	Sessions          []*sessionRecord `json:"sessions"`
	LastSessionID     int64            `json:"lastSessionId"`
	LastParticipantID int64            `json:"lastParticipantId"`
}

// sessionRecord keeps the organizer secret on disk; the model hides it from JSON.
type sessionRecord struct {
	model.Session
	OrganizerSecret string `json:"organizerSecret"`
}

func newRecord(s *model.Session) *sessionRecord {
	return &sessionRecord{Session: *s.Clone(), OrganizerSecret: s.OrganizerSecret}
}

func (r *sessionRecord) toModel() *model.Session {
	s := r.Session.Clone()
	s.OrganizerSecret = r.OrganizerSecret
	return s
}

// JSONStore keeps the whole document in memory and rewrites the file on
// every mutation through a temp file and rename, so readers of the file never
// observe a partial write. The in-memory copy only changes after the write
// succeeds.
type JSONStore struct {
	path string
	mu   sync.RWMutex
	doc  *document
}

func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{path: path, doc: &document{Sessions: []*sessionRecord{}}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.write(s.doc); err != nil {
			return nil, err
		}
		logger.Infof("[Store] Created empty data file %s", path)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read data file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse data file: %w", err)
	}
	if doc.Sessions == nil {
		doc.Sessions = []*sessionRecord{}
	}
	s.doc = &doc

	logger.Infof("[Store] Loaded %d sessions from %s", len(doc.Sessions), path)
	return s, nil
}

func (s *JSONStore) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

// next returns a shallow copy of the current document for copy-on-write.
func (s *JSONStore) next() *document {
	sessions := make([]*sessionRecord, len(s.doc.Sessions))
	copy(sessions, s.doc.Sessions)
	return &document{
		Sessions:          sessions,
		LastSessionID:     s.doc.LastSessionID,
		LastParticipantID: s.doc.LastParticipantID,
	}
}

func (s *JSONStore) index(sessionID string) int {
	for i, rec := range s.doc.Sessions {
		if rec.SessionID == sessionID {
			return i
		}
	}
	return -1
}

func (s *JSONStore) Create(ctx context.Context, sess *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(sess.SessionID) >= 0 {
		return ErrExists
	}

	doc := s.next()
	now := time.Now()

	created := sess.Clone()
	doc.LastSessionID++
	created.ID = doc.LastSessionID
	created.CreatedAt = now
	created.UpdatedAt = now
	for i := range created.Participants {
		doc.LastParticipantID++
		created.Participants[i].ID = doc.LastParticipantID
		created.Participants[i].SessionID = created.SessionID
		created.Participants[i].CreatedAt = now
	}
	doc.Sessions = append(doc.Sessions, newRecord(created))

	if err := s.write(doc); err != nil {
		return err
	}
	s.doc = doc

	*sess = *created
	return nil
}

func (s *JSONStore) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.index(sessionID)
	if idx < 0 {
		return nil, ErrNotFound
	}
	return s.doc.Sessions[idx].toModel(), nil
}

func (s *JSONStore) FindParticipant(ctx context.Context, participantID int64) (*model.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.doc.Sessions {
		if p := rec.Participant(participantID); p != nil {
			found := *p
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *JSONStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(sessionID)
	if idx < 0 {
		return nil, ErrNotFound
	}

	working := s.doc.Sessions[idx].toModel()
	if err := fn(working); err != nil {
		return nil, err
	}

	doc := s.next()
	now := time.Now()
	for i := range working.Participants {
		if working.Participants[i].ID == 0 {
			doc.LastParticipantID++
			working.Participants[i].ID = doc.LastParticipantID
			working.Participants[i].SessionID = sessionID
			working.Participants[i].CreatedAt = now
		}
	}
	working.SessionID = sessionID
	working.UpdatedAt = now
	doc.Sessions[idx] = newRecord(working)

	if err := s.write(doc); err != nil {
		return nil, err
	}
	s.doc = doc

	return working, nil
}

func (s *JSONStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(sessionID)
	if idx < 0 {
		return ErrNotFound
	}

	doc := s.next()
	doc.Sessions = append(doc.Sessions[:idx], doc.Sessions[idx+1:]...)

	if err := s.write(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

func (s *JSONStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.doc.Sessions))
	for _, rec := range s.doc.Sessions {
		ids = append(ids, rec.SessionID)
	}
	return ids, nil
}

func (s *JSONStore) Close() error {
	return nil
}
