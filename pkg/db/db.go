package db

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/pkg/env"
	_ "github.com/jackc/pgx/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultDatabaseName = "data.db"

// Open connects to the database described by the environment.
// The sqlite database lives next to the study definition unless
// a DSN is provided.
func Open(vars env.Environment) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch strings.ToLower(vars.DatabaseType) {
	case "postgres":
		return gorm.Open(postgres.Open(vars.DatabaseDSN), cfg)
	case "sqlite", "":
		dsn := vars.DatabaseDSN
		if dsn == "" {
			dsn = filepath.Join(vars.StudyPath, defaultDatabaseName)
		}
		gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, err
		}
		return gdb, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %v", vars.DatabaseType)
	}
}

// Migrate applies the static schema. Per-stage tables are created
// from the study definition instead.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(models.All...)
}

// Close closes the underlying sql.DB if available.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
