// Package store persists gift sessions and their participants.
//
// Two interchangeable backends implement SessionStore: a JSON document
// rewritten atomically on every mutation, and a relational store on gorm.
// The backend is chosen once at process start.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/epikoding/giftpool/internal/config"
	"github.com/epikoding/giftpool/internal/database"
	"github.com/epikoding/giftpool/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("session id already exists")
)

// UpdateFunc mutates a loaded session in place. Participants with a zero ID
// are inserted, participants missing from the slice are deleted. Returning an
// error aborts the update and nothing is written.
type UpdateFunc func(s *model.Session) error

type SessionStore interface {
	// Create persists a new session together with its initial participants.
	// Either everything is visible afterwards or nothing is.
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	FindParticipant(ctx context.Context, participantID int64) (*model.Participant, error)
	Update(ctx context.Context, sessionID string, fn UpdateFunc) (*model.Session, error)
	Delete(ctx context.Context, sessionID string) error
	ListSessionIDs(ctx context.Context) ([]string, error)
	Close() error
}

// Open builds the store selected by cfg.StorageBackend.
func Open(cfg *config.Config) (SessionStore, error) {
	switch cfg.StorageBackend {
	case config.BackendJSON:
		return NewJSONStore(cfg.DataFile)
	case config.BackendPostgres, config.BackendSQLite:
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
