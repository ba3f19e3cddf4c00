package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/genc-murat/crystalsignal/internal/config"
)

var (
	envName    string
	configPath string

	cfg    *config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:           "signalmem",
		Short:         "Inspect memory accounting for reactive signal graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg = loaded
			logger = newLogger(cfg.Logging)
			slog.SetDefault(logger)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "development", "config environment under config/")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "explicit config file, overrides --env")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errLeakDetected) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig prefers --config, then config/<env>.yaml. Without either flag a
// missing environment file falls back to the built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	loaded, err := config.LoadConfig(envName)
	if err == nil {
		return loaded, nil
	}
	if cmd.Flags().Changed("env") {
		return nil, err
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, config.ErrProjectRootNotFound) {
		return config.DefaultConfig(), nil
	}
	return nil, err
}

func newLogger(lc config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(lc.Level)}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
