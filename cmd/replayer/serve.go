package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/ui-replay/cmd/replayer/handlers"
	"github.com/hairizuan-noorazman/ui-replay/database"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/metrics"
	"github.com/hairizuan-noorazman/ui-replay/report"
	"github.com/hairizuan-noorazman/ui-replay/session"
	"github.com/hairizuan-noorazman/ui-replay/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the replay server",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log := logger.NewLogrusLoggerWithConfig(cfg.Log)
	defer log.Close()
	log.Info(ctx, "starting server", map[string]interface{}{
		"version": Version,
		"commit":  Commit,
		"date":    BuildDate,
	})

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := database.RunMigrations(sqlDB, cfg.Database.Driver, ""); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	log.Info(ctx, "database connected", map[string]interface{}{
		"driver":   cfg.Database.Driver,
		"database": cfg.Database.Database,
	})

	// Initialize artifact storage
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	log.Info(ctx, "storage initialized", map[string]interface{}{
		"type": cfg.Storage.Type,
	})

	reportStore := report.NewMySQLStore(db, log)
	m := metrics.New()
	links := handlers.NewArtifactLinks(cfg.Session.LinkSecret, cfg.Session.LinkMaxAge, store, log)

	factory, err := newReplayerFactory(cfg, store, links, m, log)
	if err != nil {
		return err
	}

	// Initialize session manager
	sessionManager := session.NewManager(factory.New, reportStore, cfg.Session.IdleTimeout, m, log)
	if cfg.Session.CleanupInterval <= 0 {
		cfg.Session.CleanupInterval = time.Minute
	}
	sessionManager.StartCleanup(cfg.Session.CleanupInterval)
	defer sessionManager.StopCleanup()

	log.Info(ctx, "session manager initialized", map[string]interface{}{
		"idle_timeout": cfg.Session.IdleTimeout.String(),
	})

	// Steps outlive the socket that requested them, but not the server.
	baseCtx, cancelSteps := context.WithCancel(ctx)
	defer cancelSteps()

	router := handlers.NewRouter(handlers.Routes{
		Health:    handlers.HealthHandler(sessionManager),
		Replay:    handlers.NewReplayHandler(baseCtx, sessionManager, log),
		Metrics:   m.Handler(),
		Reports:   handlers.NewReportHandler(reportStore, log),
		Sessions:  handlers.NewSessionHandler(sessionManager, log),
		Artifacts: links,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info(ctx, "server listening", map[string]interface{}{
			"address": addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down server", nil)

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	cancelSteps()
	sessionManager.Shutdown(shutdownCtx)

	log.Info(ctx, "server stopped", nil)
	return nil
}
