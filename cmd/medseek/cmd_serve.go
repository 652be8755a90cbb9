package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/delivery"
	"github.com/user/medseek/internal/gateway"
	"github.com/user/medseek/internal/render"
	"github.com/user/medseek/internal/scheduler"
	"github.com/user/medseek/internal/state"
	"github.com/user/medseek/internal/telegram"
	"github.com/user/medseek/internal/web"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MedSeek server (web and Telegram front ends)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if !cfg.HTTP.Enabled && cfg.Telegram.Token == "" {
		return errors.New("nothing to serve: enable http or set telegram.token")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write PID file
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	sessions := state.NewSessionStore(newAgent(cfg))
	gw := gateway.New(sessions, int64(cfg.MaxConcurrent))
	gw.Start(gctx)
	defer gw.Stop()

	notices := delivery.NewRegistry()
	gw.SetOnExpire(func(sess *conversation.Session) {
		err := notices.Deliver(sess.Key, render.ExpiredNotice)
		if err != nil && !errors.Is(err, delivery.ErrNoHandler) {
			slog.Warn("expiry notice failed", "session_key", string(sess.Key), "error", err)
		}
	})

	sweeper := scheduler.New(cfg.Session.SweepSchedule, cfg.SessionTTL(), gw.Sweep)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	slog.Info("medseek started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"webhook", cfg.Webhook.URL,
		"session_ttl", cfg.SessionTTL(),
		"pid_file", pidPath,
	)

	if cfg.HTTP.Enabled {
		srv := web.NewServer(gw)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.HTTP.Listen)
		})
	}

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, gw)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		notices.Register(telegram.Source, adapter.SendTo)
		g.Go(func() error {
			adapter.Start(gctx)
			return nil
		})
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	g.Go(func() error {
		return waitForSignal(gctx, cancel, pidPath)
	})

	return g.Wait()
}

// waitForSignal stops the server on SIGINT/SIGTERM and re-executes the
// binary on SIGHUP.
func waitForSignal(ctx context.Context, cancel context.CancelFunc, pidPath string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				// Clean up PID file before re-exec
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					slog.Error("failed to re-exec", "error", err)
					// Re-write PID file since we failed to re-exec
					if writeErr := writePIDFile(pidPath); writeErr != nil {
						slog.Error("failed to re-write PID file", "error", writeErr)
					}
					continue
				}
			}
			// SIGINT or SIGTERM
			slog.Info("shutting down", "signal", sig)
			cancel()
			return nil
		}
	}
}
