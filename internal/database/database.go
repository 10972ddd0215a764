package database

import (
	"fmt"

	"github.com/epikoding/giftpool/internal/config"
	"github.com/epikoding/giftpool/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the relational backend named by cfg.StorageBackend.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		dialector = postgres.Open(cfg.DatabaseURL)
	case config.BackendSQLite:
		dialector = sqlite.Open(fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("storage backend %q is not relational", cfg.StorageBackend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// OpenMemory opens a private in-memory sqlite database, used by tests.
func OpenMemory(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Session{}, &model.Participant{}); err != nil {
		return err
	}

	// Name lookups for duplicate checks
	return db.Exec("CREATE INDEX IF NOT EXISTS idx_participants_session_name ON participants(session_id, name)").Error
}
