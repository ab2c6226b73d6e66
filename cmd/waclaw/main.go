package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/waclaw/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "waclaw",
	Short:         "WhatsApp AI assistant backend",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	defaultPath := filepath.Join(os.Getenv("HOME"), ".waclaw", "config.json")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "config file path")
}

// loadConfig pulls in a .env file if present, then loads the config file.
func loadConfig() *config.Config {
	_ = godotenv.Load()
	return config.LoadOrExit(cfgPath)
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
