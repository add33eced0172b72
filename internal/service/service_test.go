package service

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"loops-server/internal/model"
	"loops-server/internal/repository"
)

// newTestDB opens a throwaway SQLite database. A file in t.TempDir rather
// than :memory:, because the pool hands out several connections and each
// in-memory connection would see its own empty database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Loop{}, &model.Subtask{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func newTestLoopRepo(t *testing.T) *repository.LoopRepository {
	t.Helper()
	return repository.NewLoopRepository(newTestDB(t))
}

func strPtr(s string) *string {
	return &s
}

func wireLoop(id, title string) WireLoop {
	return WireLoop{
		ID:     id,
		Tier:   model.TierDaily,
		Type:   model.TypeOpen,
		Status: model.StatusActive,
		Title:  title,
		Color:  "#ff8800",
		Period: "2026-09-01",
	}
}
