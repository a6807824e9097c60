package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/ui-replay/database"
)

var (
	migrationsPath string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(db *sql.DB, driver string) error {
			if err := database.RunMigrations(db, driver, migrationsPath); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied successfully")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(db *sql.DB, driver string) error {
			if err := database.RollbackMigration(db, driver, migrationsPath); err != nil {
				return fmt.Errorf("failed to rollback migration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migration rolled back successfully")
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(db *sql.DB, driver string) error {
			version, dirty, err := database.Version(db, driver, migrationsPath)
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		})
	},
}

// withDatabase connects using the loaded config and hands the raw
// connection to fn.
func withDatabase(fn func(db *sql.DB, driver string) error) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	return fn(sqlDB, cfg.Database.Driver)
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)

	migrateCmd.PersistentFlags().StringVarP(&migrationsPath, "path", "p", "", "migrations directory path (defaults to the embedded set)")

	rootCmd.AddCommand(migrateCmd)
}
