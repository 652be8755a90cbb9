package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/render"
	"github.com/user/medseek/internal/types"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var errTurnFailed = errors.New("turn failed")

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sess := conversation.NewSession(types.NewSessionKey("cli", "send"), newAgent(cfg))
		result, err := sess.Send(ctx, strings.Join(args, " "), nil)
		if err != nil {
			return err
		}

		if result.IsError {
			fmt.Fprintln(os.Stderr, render.ErrorBanner(result.Reply))
			cmd.SilenceErrors = true
			return errTurnFailed
		}
		fmt.Fprintln(os.Stdout, render.Markdown(result.Reply))
		if sess.State.CriticalDetected() {
			fmt.Fprintln(os.Stderr, render.CriticalBanner)
		}
		return nil
	},
}
