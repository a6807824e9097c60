package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/mysql/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// newMigrate builds a migrator over db. An empty migrationsPath uses the
// migration set compiled into the binary for driver; otherwise
// migrationsPath must hold migrations written for driver.
func newMigrate(db *sql.DB, driver, migrationsPath string) (*migrate.Migrate, error) {
	var (
		dbDriver database.Driver
		err      error
	)
	driver = strings.ToLower(driver)
	switch driver {
	case DriverSQLite:
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DriverMySQL, "":
		driver = DriverMySQL
		dbDriver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	if migrationsPath != "" {
		m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, driver, dbDriver)
		if err != nil {
			return nil, fmt.Errorf("failed to load migrations: %w", err)
		}
		return m, nil
	}

	src, err := iofs.New(migrationFiles, path.Join("migrations", driver))
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, driver, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return m, nil
}

// RunMigrations applies every pending migration.
func RunMigrations(db *sql.DB, driver, migrationsPath string) error {
	m, err := newMigrate(db, driver, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recent migration.
func RollbackMigration(db *sql.DB, driver, migrationsPath string) error {
	m, err := newMigrate(db, driver, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

// Version reports the applied schema version.
func Version(db *sql.DB, driver, migrationsPath string) (uint, bool, error) {
	m, err := newMigrate(db, driver, migrationsPath)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
