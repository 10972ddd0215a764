package store

import (
	"context"
	"errors"

	"github.com/epikoding/giftpool/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps sessions and participants in two tables related by
// session_id. Multi-row changes run in a single transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func byArrival(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func (s *GormStore) Create(ctx context.Context, sess *model.Session) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Session{}).Where("session_id = ?", sess.SessionID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrExists
		}

		if err := tx.Omit(clause.Associations).Create(sess).Error; err != nil {
			return err
		}

		for i := range sess.Participants {
			sess.Participants[i].SessionID = sess.SessionID
			if err := tx.Create(&sess.Participants[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) load(tx *gorm.DB, sessionID string, lock bool) (*model.Session, error) {
	q := tx.Preload("Participants", byArrival)
	if lock && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var sess model.Session
	if err := q.Where("session_id = ?", sessionID).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *GormStore) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.load(s.db.WithContext(ctx), sessionID, false)
}

func (s *GormStore) FindParticipant(ctx context.Context, participantID int64) (*model.Participant, error) {
	var p model.Participant
	if err := s.db.WithContext(ctx).First(&p, "id = ?", participantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) (*model.Session, error) {
	var updated *model.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.load(tx, sessionID, true)
		if err != nil {
			return err
		}

		original := make(map[int64]model.Participant, len(sess.Participants))
		for _, p := range sess.Participants {
			original[p.ID] = p
		}

		if err := fn(sess); err != nil {
			return err
		}
		sess.SessionID = sessionID

		if err := tx.Omit(clause.Associations).Save(sess).Error; err != nil {
			return err
		}

		kept := make(map[int64]bool, len(sess.Participants))
		for i := range sess.Participants {
			p := &sess.Participants[i]
			if p.ID == 0 {
				p.SessionID = sessionID
				if err := tx.Create(p).Error; err != nil {
					return err
				}
				continue
			}
			kept[p.ID] = true
			if prev, ok := original[p.ID]; ok && participantUnchanged(prev, *p) {
				continue
			}
			if err := tx.Save(p).Error; err != nil {
				return err
			}
		}

		var removed []int64
		for id := range original {
			if !kept[id] {
				removed = append(removed, id)
			}
		}
		if len(removed) > 0 {
			if err := tx.Where("id IN ?", removed).Delete(&model.Participant{}).Error; err != nil {
				return err
			}
		}

		updated = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func participantUnchanged(a, b model.Participant) bool {
	return a.Name == b.Name &&
		a.IsOrganizer == b.IsOrganizer &&
		a.Contribution.Equal(b.Contribution) &&
		a.RefundAmount.Equal(b.RefundAmount)
}

func (s *GormStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Participant{}).Error; err != nil {
			return err
		}
		result := tx.Where("session_id = ?", sessionID).Delete(&model.Session{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.Session{}).Order("id ASC").Pluck("session_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
