package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB returns an in-memory sqlite DB with the static
// migrations applied.
func OpenTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(models.All...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}

	return db
}

// CloseDB closes the underlying sql.DB if available.
func CloseDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// WriteFile writes content below dir, creating parents as needed.
func WriteFile(tb testing.TB, dir, name, content string) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("write %s: %v", name, err)
	}
	return path
}
