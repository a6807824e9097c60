// Package testutil holds helpers shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hairizuan-noorazman/ui-replay/database"
)

// SetupTestDB creates an in-memory SQLite database for testing. The
// connection is closed when the test ends.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get database instance: %v", err)
	}
	// Every pooled connection to :memory: would see its own database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

// SetupMigratedDB creates a file-backed SQLite database with the real
// schema migrations applied.
func SetupMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "replay.db"),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get database instance: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.RunMigrations(sqlDB, database.DriverSQLite, ""); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// AutoMigrate runs GORM auto-migrations for the given models.
func AutoMigrate(t *testing.T, db *gorm.DB, models ...interface{}) {
	t.Helper()
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to auto-migrate: %v", err)
	}
}
