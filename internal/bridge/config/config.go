// Package config builds the bridge's immutable Config (§3) from argv and
// a handful of deployment-time overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults per §3.
const (
	DefaultBaseDelay        = time.Second
	DefaultDelayCap         = 10 * time.Second
	DefaultMaxAttempts      = 5
	DefaultRecoveryInterval = 30 * time.Second
)

// Config is the bridge's immutable configuration, fixed for the lifetime
// of the process once built.
type Config struct {
	// URL is the upstream SSE endpoint U.
	URL string

	// BaseDelay is D0, the first backoff delay.
	BaseDelay time.Duration
	// DelayCap bounds the exponential backoff schedule.
	DelayCap time.Duration
	// MaxAttempts is M, the number of consecutive reconnect attempts
	// before the supervisor enters RECOVERY.
	MaxAttempts int
	// RecoveryInterval is R, the minimum time since the last attempt
	// before a RECOVERY-state bridge will try again.
	RecoveryInterval time.Duration

	// Debug enables verbose stderr diagnostics.
	Debug bool

	// AuthToken, if non-empty, is attached as "Authorization: Bearer
	// <token>" to both the SSE GET and the POST requests.
	AuthToken string

	// WatchdogInterval enables the optional stale-connection watchdog when
	// non-zero. Disabled by default per SPEC_FULL.md §C.
	WatchdogInterval time.Duration
}

// FromArgs builds a Config from argv (excluding the program name) and the
// environment. The core CLI surface is a single positional URL argument
// (§6); everything else is an optional MCPGATE_* override so the binary
// stays tunable without growing flags.
func FromArgs(args []string) (*Config, error) {
	if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
		return nil, fmt.Errorf("usage: mcpgate <url>")
	}
	cfg := &Config{
		URL:              stripQuotes(args[0]),
		BaseDelay:        DefaultBaseDelay,
		DelayCap:         DefaultDelayCap,
		MaxAttempts:      DefaultMaxAttempts,
		RecoveryInterval: DefaultRecoveryInterval,
		// The core spec hard-codes stderr diagnostics on; this module
		// keeps that default and only lets MCPGATE_DEBUG=false narrow it.
		Debug: true,
	}
	if err := applyEnvFile(cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MCPGATE_BASE_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.BaseDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MCPGATE_DELAY_CAP_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.DelayCap = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MCPGATE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("MCPGATE_RECOVERY_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.RecoveryInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MCPGATE_DEBUG"); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("MCPGATE_AUTH_SECRET"); v != "" {
		if token, err := resolveSecret(v); err == nil {
			cfg.AuthToken = token
		}
	}
	if v := os.Getenv("MCPGATE_WATCHDOG_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.WatchdogInterval = time.Duration(ms) * time.Millisecond
		}
	}
}

// applyEnvFile parses MCPGATE_ENV_FILE, a YAML map of MCPGATE_* keys to
// string values, and applies each into the process environment before
// applyEnv reads it. Missing/unset MCPGATE_ENV_FILE is a no-op.
func applyEnvFile(cfg *Config) error {
	path := os.Getenv("MCPGATE_ENV_FILE")
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to open MCPGATE_ENV_FILE %s: %w", path, err)
	}

	var values map[string]string
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("failed to parse MCPGATE_ENV_FILE %s: %w", path, err)
	}
	for key, value := range values {
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	return nil
}
