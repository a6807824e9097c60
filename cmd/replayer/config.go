package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/database"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/ledger"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/replay"
	"github.com/hairizuan-noorazman/ui-replay/storage"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Log         logger.Config
	Browser     browser.LaunchConfig
	Replay      ReplayConfig
	Environment flow.EnvironmentConfig
	Storage     storage.Config
	Database    database.Config
	Session     SessionConfig

	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ReplayConfig holds the engine's timing heuristics.
type ReplayConfig struct {
	Engine              replay.Config
	SimilarityThreshold float64
}

// SessionConfig holds session management configuration.
type SessionConfig struct {
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	LinkSecret      string
	LinkMaxAge      time.Duration
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")

	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")
	config.Log.File = v.GetString("log.file")
	config.Log.MaxSizeMB = v.GetInt("log.max_size_mb")
	config.Log.MaxBackups = v.GetInt("log.max_backups")
	config.Log.MaxAgeDays = v.GetInt("log.max_age_days")

	config.Browser.ControlURL = v.GetString("browser.control_url")
	config.Browser.Bin = v.GetString("browser.bin")
	config.Browser.Headless = v.GetBool("browser.headless")
	config.Browser.Flags = v.GetStringSlice("browser.flags")

	config.Replay.Engine = replay.Config{
		QuickSettle:        v.GetDuration("replay.quick_settle"),
		AnimationDelay:     v.GetDuration("replay.animation_delay"),
		PopupSettleTimeout: v.GetDuration("replay.popup_settle_timeout"),
		PopupWait:          v.GetDuration("replay.popup_wait"),
		Settle: ledger.Config{
			PollInterval: v.GetDuration("replay.settle_interval"),
			Timeout:      v.GetDuration("replay.settle_timeout"),
		},
	}
	config.Replay.SimilarityThreshold = v.GetFloat64("replay.similarity_threshold")

	config.Environment.URLReplaceRegexp = v.GetString("environment.url_replace_regexp")
	config.Environment.URLReplaceTo = v.GetString("environment.url_replace_to")
	config.Environment.SleepAfterChange = v.GetInt("environment.sleep_after_change")
	config.Environment.SlowAjaxTime = v.GetInt("environment.slow_ajax_time")

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.Bucket = v.GetString("storage.s3_bucket")
	config.Storage.Region = v.GetString("storage.s3_region")
	config.Storage.Endpoint = v.GetString("storage.s3_endpoint")
	config.Storage.Prefix = v.GetString("storage.s3_prefix")
	config.Storage.UsePathStyle = v.GetBool("storage.s3_path_style")
	config.Storage.PresignExpiry = v.GetDuration("storage.s3_presign_expiry")

	config.Database.Driver = v.GetString("database.driver")
	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.Path = v.GetString("database.path")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")
	config.Database.ConnMaxLifetime = v.GetDuration("database.conn_max_lifetime")
	config.AutoMigrate = v.GetBool("database.auto_migrate")

	config.Session.IdleTimeout = v.GetDuration("session.idle_timeout")
	config.Session.CleanupInterval = v.GetDuration("session.cleanup_interval")
	config.Session.LinkSecret = v.GetString("session.link_secret")
	config.Session.LinkMaxAge = v.GetDuration("session.link_max_age")

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.flags", []string{})

	v.SetDefault("replay.quick_settle", replay.DefaultQuickSettle.String())
	v.SetDefault("replay.animation_delay", replay.DefaultAnimationDelay.String())
	v.SetDefault("replay.popup_settle_timeout", replay.DefaultPopupSettleTimeout.String())
	v.SetDefault("replay.popup_wait", replay.DefaultPopupWait.String())
	v.SetDefault("replay.settle_interval", ledger.DefaultPollInterval.String())
	v.SetDefault("replay.settle_timeout", ledger.DefaultTimeout.String())
	v.SetDefault("replay.similarity_threshold", 0.96)

	v.SetDefault("environment.url_replace_regexp", "")
	v.SetDefault("environment.url_replace_to", "")
	v.SetDefault("environment.sleep_after_change", 0)
	v.SetDefault("environment.slow_ajax_time", 500)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_dir", "./artifacts")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_prefix", "")
	v.SetDefault("storage.s3_path_style", false)
	v.SetDefault("storage.s3_presign_expiry", "15m")

	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "ui_replay")
	v.SetDefault("database.path", "./replay.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.cleanup_interval", "1m")
	v.SetDefault("session.link_secret", "")
	v.SetDefault("session.link_max_age", "168h")
}
