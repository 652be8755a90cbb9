package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionEndCmd)
}

// Sessions live in the server process; these commands talk to its API.
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect live sessions of the running server",
}

type sessionSummary struct {
	SessionKey       string `json:"session_key"`
	SessionID        string `json:"session_id"`
	MessageCount     int    `json:"message_count"`
	IsTyping         bool   `json:"is_typing"`
	CriticalDetected bool   `json:"critical_detected"`
	LastActive       string `json:"last_active"`
}

// serverBaseURL turns a listen address into a URL a local client can reach.
func serverBaseURL(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func apiRequest(method, path string) (*http.Response, error) {
	cfg := loadConfig()
	if !cfg.HTTP.Enabled {
		return nil, fmt.Errorf("http is disabled; session commands need the web API")
	}
	base, err := serverBaseURL(cfg.HTTP.Listen)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact server at %s (is `medseek serve` running?): %w", base, err)
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("server: %s", e.Error)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiRequest(http.MethodGet, "/api/sessions")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}

		var list []sessionSummary
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			return fmt.Errorf("decode sessions: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tID\tMESSAGES\tSTATE\tLAST ACTIVE")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				s.SessionKey,
				s.SessionID,
				s.MessageCount,
				sessionState(s),
				s.LastActive,
			)
		}
		return w.Flush()
	},
}

func sessionState(s sessionSummary) string {
	state := "idle"
	if s.IsTyping {
		state = "awaiting reply"
	}
	if s.CriticalDetected {
		state += ", critical"
	}
	return state
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <key>",
	Short: "End a live session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiRequest(http.MethodDelete, "/api/sessions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return apiError(resp)
		}
		fmt.Fprintf(os.Stdout, "Session %s ended.\n", args[0])
		return nil
	},
}
