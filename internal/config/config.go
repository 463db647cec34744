// Package config loads and validates the Relay configuration record.
package config

import (
	"fmt"
	"time"

	"github.com/haasonsaas/relay/internal/catalog"
)

// Config is the single typed configuration record for a Relay process.
// Unknown keys are rejected at load time.
type Config struct {
	// Chat front-end credentials and principal allow-list.
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramUserID   int64  `yaml:"telegram_user_id"`

	// Network base addresses per backend kind, used by the adapter pool
	// when a model descriptor carries no address of its own.
	BackendHTTPBaseURLs map[string]string `yaml:"backend_http_base_urls"`

	// Default routing policy when the call site supplies none.
	RoutingStrategy string  `yaml:"routing_strategy"`
	RoutingMaxCost  float64 `yaml:"routing_max_cost"`

	// ToolsRequireConfirmation forces confirmation for every tool whose
	// scopes touch writes, system state, or process spawning.
	ToolsRequireConfirmation bool `yaml:"tools_require_confirmation"`

	RateLimitMessages      int `yaml:"rate_limit_messages"`
	RateLimitWindowSeconds int `yaml:"rate_limit_window_seconds"`

	DefaultRequestDeadlineSeconds int `yaml:"default_request_deadline_seconds"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// MetricsAddr exposes the Prometheus endpoint when set.
	MetricsAddr string `yaml:"metrics_addr"`

	// ToolsRoot is scanned for tool units at startup; empty registers
	// every built-in directly.
	ToolsRoot string `yaml:"tools_root"`

	// PatternsPath overrides the classifier's built-in pattern tables.
	PatternsPath string `yaml:"patterns_path"`

	// JobsDBPath persists scheduled jobs; empty keeps them in memory.
	JobsDBPath string `yaml:"jobs_db_path"`

	LocalRunner LocalRunnerConfig `yaml:"local_runner"`

	// Models registered into the catalog at startup.
	Models []catalog.Model `yaml:"models"`
}

// LocalRunnerConfig names the binary backing in-process models.
type LocalRunnerConfig struct {
	Binary    string   `yaml:"binary"`
	ExtraArgs []string `yaml:"extra_args"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BackendHTTPBaseURLs: map[string]string{
			string(catalog.BackendHTTPChat):       "http://localhost:11434",
			string(catalog.BackendHTTPCompletion): "http://localhost:1234/v1",
		},
		RoutingStrategy:               "auto",
		RoutingMaxCost:                1.0,
		RateLimitMessages:             20,
		RateLimitWindowSeconds:        60,
		DefaultRequestDeadlineSeconds: 120,
		LogLevel:                      "info",
		LogFormat:                     "json",
	}
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.BackendHTTPBaseURLs == nil {
		c.BackendHTTPBaseURLs = d.BackendHTTPBaseURLs
	}
	if c.RoutingStrategy == "" {
		c.RoutingStrategy = d.RoutingStrategy
	}
	if c.RoutingMaxCost == 0 {
		c.RoutingMaxCost = d.RoutingMaxCost
	}
	if c.RateLimitMessages == 0 {
		c.RateLimitMessages = d.RateLimitMessages
	}
	if c.RateLimitWindowSeconds == 0 {
		c.RateLimitWindowSeconds = d.RateLimitWindowSeconds
	}
	if c.DefaultRequestDeadlineSeconds == 0 {
		c.DefaultRequestDeadlineSeconds = d.DefaultRequestDeadlineSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
}

// Validate checks cross-field invariants. Model descriptors validate
// themselves again at catalog registration.
func (c *Config) Validate() error {
	switch c.RoutingStrategy {
	case "auto", "speed", "quality", "balanced", "cost_optimized":
	default:
		return fmt.Errorf("routing_strategy %q is not recognized", c.RoutingStrategy)
	}
	if c.RoutingMaxCost < 0 || c.RoutingMaxCost > 1 {
		return fmt.Errorf("routing_max_cost %v outside [0,1]", c.RoutingMaxCost)
	}
	if c.RateLimitMessages < 1 {
		return fmt.Errorf("rate_limit_messages must be at least 1")
	}
	if c.RateLimitWindowSeconds < 1 {
		return fmt.Errorf("rate_limit_window_seconds must be at least 1")
	}
	if c.DefaultRequestDeadlineSeconds < 1 {
		return fmt.Errorf("default_request_deadline_seconds must be at least 1")
	}
	for kind := range c.BackendHTTPBaseURLs {
		switch catalog.BackendKind(kind) {
		case catalog.BackendHTTPChat, catalog.BackendHTTPCompletion:
		default:
			return fmt.Errorf("backend_http_base_urls: %q is not a network backend kind", kind)
		}
	}
	return nil
}

// RateLimitWindow returns the window length as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// DefaultDeadline returns the default request deadline as a duration.
func (c *Config) DefaultDeadline() time.Duration {
	return time.Duration(c.DefaultRequestDeadlineSeconds) * time.Second
}

// BaseURLs converts the configured addresses into the pool's keyed form.
func (c *Config) BaseURLs() map[catalog.BackendKind]string {
	out := make(map[catalog.BackendKind]string, len(c.BackendHTTPBaseURLs))
	for kind, addr := range c.BackendHTTPBaseURLs {
		out[catalog.BackendKind(kind)] = addr
	}
	return out
}
