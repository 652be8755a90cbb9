package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/medseek/internal/scheduler"
)

// DefaultWebhookURL is the n8n chat webhook the assistant talks to.
const DefaultWebhookURL = "https://n8n.fexcon.com.au/webhook/b3e70480-50d1-4a94-936a-ac94bc94445d/chat"

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Webhook       struct {
		URL            string `json:"url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"webhook"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
	Session struct {
		TTLMinutes    int    `json:"ttl_minutes"`
		SweepSchedule string `json:"sweep_schedule"`
	} `json:"session"`
}

// DefaultPath returns ~/.medseek/config.json.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.json")
}

func defaultDataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".medseek")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:       defaultDataDir(),
		LogLevel:      "info",
		MaxConcurrent: 4,
	}
	cfg.Webhook.URL = DefaultWebhookURL
	cfg.Webhook.TimeoutSeconds = 60
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8080"
	cfg.Session.TTLMinutes = 60
	cfg.Session.SweepSchedule = scheduler.DefaultSchedule
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if webhookURL := os.Getenv("MEDSEEK_WEBHOOK_URL"); webhookURL != "" {
		cfg.Webhook.URL = webhookURL
	}
	if listen := os.Getenv("MEDSEEK_HTTP_LISTEN"); listen != "" {
		cfg.HTTP.Listen = listen
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if level := os.Getenv("MEDSEEK_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg, nil
}

// Validate checks the values the server and clients depend on.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Webhook.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("webhook.url must be an http(s) URL, got %q", c.Webhook.URL))
	}
	if c.Webhook.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("webhook.timeout_seconds must be positive"))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent must be positive"))
	}
	if c.Session.TTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl_minutes must be positive"))
	}
	if c.Session.SweepSchedule != "" {
		if err := scheduler.ValidateSchedule(c.Session.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("session.sweep_schedule: %w", err))
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error"))
	}
	return errors.Join(errs...)
}

// WebhookTimeout returns the per-request timeout for webhook calls.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Webhook.TimeoutSeconds) * time.Second
}

// SessionTTL returns how long a session may stay idle before it is ended.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

// PIDPath returns the location of the server's PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, "medseek.pid")
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	return writeJSON(path, cfg)
}

func writeDefaults(path string, cfg *Config) error {
	if err := writeJSON(path, cfg); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into its nested JSON map form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns every config value keyed by dot path, masking
// secrets when mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads a single dot-path key from the config file at path. The
// file is created with defaults if it does not exist yet.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	flat, err := readFlat(path)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets a dot-path key in the existing config file at path. The
// raw value is parsed as JSON when possible (numbers, booleans), otherwise
// stored as a string.
func SetValue(path, key, raw string) error {
	flat, err := readFlat(path)
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	flat[key] = v

	return writeJSON(path, Unflatten(flat))
}

func readFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return Flatten(m), nil
}
