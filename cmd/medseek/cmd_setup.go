package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/medseek/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("MedSeek Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Webhook.URL = prompt(scanner, "Workflow webhook URL", cfg.Webhook.URL)

		timeoutStr := prompt(scanner, "Webhook timeout (seconds)", strconv.Itoa(cfg.Webhook.TimeoutSeconds))
		if n, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.Webhook.TimeoutSeconds = n
		}

		cfg.HTTP.Listen = prompt(scanner, "Web listen address", cfg.HTTP.Listen)

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		ttlStr := prompt(scanner, "Idle session timeout (minutes)", strconv.Itoa(cfg.Session.TTLMinutes))
		if n, err := strconv.Atoi(ttlStr); err == nil {
			cfg.Session.TTLMinutes = n
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
