// Package database opens the report database and manages its schema.
package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds database connection settings.
type Config struct {
	Driver string

	// MySQL
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// SQLite
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the driver specific connection string.
func (c Config) DSN() (string, error) {
	switch c.driver() {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true",
			c.User, c.Password, c.Host, c.Port, c.Database), nil
	case DriverSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		return c.Path + "?_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
}

func (c Config) driver() string {
	if c.Driver == "" {
		return DriverMySQL
	}
	return strings.ToLower(c.Driver)
}

// Connect opens a GORM connection and applies the pool settings.
func Connect(cfg Config) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.driver() {
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
