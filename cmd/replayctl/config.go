package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configFileName = ".ui-replay"

var cfg *viper.Viper

func initConfig() error {
	cfg = viper.New()
	cfg.SetConfigName(configFileName)
	cfg.SetConfigType("yaml")

	home, err := os.UserHomeDir()
	if err == nil {
		cfg.AddConfigPath(home)
	}

	cfg.SetDefault("url", "http://localhost:8080")

	cfg.SetEnvPrefix("UI_REPLAY")
	cfg.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := cfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// CLI flags take highest priority
	if flagURL != "" {
		cfg.Set("url", flagURL)
	}

	return nil
}

func getConfigURL() string {
	return strings.TrimRight(cfg.GetString("url"), "/")
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a config file template at ~/" + configFileName + ".yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}

			configPath := filepath.Join(home, configFileName+".yaml")

			if _, err := os.Stat(configPath); err == nil {
				printMessage(cmd.OutOrStdout(), "Config file already exists at "+configPath)
				return nil
			}

			template := `# Replay CLI configuration
url: http://localhost:8080
`
			if err := os.WriteFile(configPath, []byte(template), 0600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			printMessage(cmd.OutOrStdout(), "Config file created at "+configPath)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			printMessage(out, fmt.Sprintf("URL: %s", getConfigURL()))

			if cfgFile := cfg.ConfigFileUsed(); cfgFile != "" {
				printMessage(out, fmt.Sprintf("Config file: %s", cfgFile))
			} else {
				printMessage(out, "Config file: (none)")
			}

			return nil
		},
	}
}
