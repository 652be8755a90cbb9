package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/tui"
	"github.com/user/medseek/internal/types"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with MedSeek in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		// The terminal belongs to the UI; logs go to a file.
		logPath := filepath.Join(cfg.DataDir, "chat.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		setupLoggingTo(logFile, cfg.LogLevel)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sess := conversation.NewSession(types.NewSessionKey("cli", "chat"), newAgent(cfg))
		slog.Info("chat session started", "session_id", string(sess.ID), "webhook", cfg.Webhook.URL)

		return tui.Run(ctx, sess)
	},
}
