package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/medseek/internal/config"
)

var showSecrets bool

func init() {
	configListCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print telegram.token unmasked")
	configCmd.Long = "Read and edit the MedSeek config file (default ~/.medseek/config.json).\n\nKeys:\n  " +
		strings.Join(configKeys(), "\n  ")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}

// configKeys returns every dot-path key the config file understands.
func configKeys() []string {
	values, err := config.ListValues(&config.Config{}, false)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change MedSeek settings",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every setting, with environment overrides applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		values, err := config.ListValues(cfg, !showSecrets)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, k := range configKeys() {
			if v, ok := values[k]; ok {
				fmt.Fprintf(out, "%s = %v\n", k, v)
			}
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:     "get <key>",
	Short:   "Print one setting as stored in the config file",
	Example: "  medseek config get webhook.url\n  medseek config get session.ttl_minutes",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting in the config file",
	Example: "  medseek config set webhook.url https://n8n.example.com/webhook/<id>/chat\n" +
		"  medseek config set session.ttl_minutes 30\n" +
		"  medseek config set http.listen 0.0.0.0:8080",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, raw := args[0], args[1]
		if err := config.SetValue(cfgPath, key, raw); err != nil {
			return err
		}
		display := raw
		if config.IsSecretKey(key) {
			display = "***"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, display)

		// The value is stored either way; a running server picks it up on restart.
		cfg, err := config.Load(cfgPath)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: config is not valid: %v\n", err)
		}
		return nil
	},
}
