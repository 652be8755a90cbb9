package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/medseek/internal/agent"
	"github.com/user/medseek/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "medseek",
	Short:        "MedSeek AI medical receptionist",
	Long:         "MedSeek relays conversations to a medical-assistant workflow and renders its replies in the terminal, the browser, or Telegram.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; real environment variables win.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads and validates the config file, exiting on failure.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config %s:\n%v\n", cfgPath, err)
		os.Exit(1)
	}
	return cfg
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// setupLogging installs the default text logger on stderr.
func setupLogging(cfg *config.Config) {
	setupLoggingTo(os.Stderr, cfg.LogLevel)
}

func setupLoggingTo(w io.Writer, level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})))
}

func newAgent(cfg *config.Config) *agent.Client {
	return agent.New(agent.Config{
		URL:     cfg.Webhook.URL,
		Timeout: cfg.WebhookTimeout(),
	})
}
