package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "relay.yaml", "telegram_user_id: 42\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TelegramUserID != 42 {
		t.Errorf("telegram_user_id = %d", cfg.TelegramUserID)
	}
	if cfg.RoutingStrategy != "auto" {
		t.Errorf("routing_strategy = %q", cfg.RoutingStrategy)
	}
	if cfg.RateLimitMessages != 20 || cfg.RateLimitWindow() != time.Minute {
		t.Errorf("rate limit defaults = %d / %v", cfg.RateLimitMessages, cfg.RateLimitWindow())
	}
	if cfg.DefaultDeadline() != 2*time.Minute {
		t.Errorf("default deadline = %v", cfg.DefaultDeadline())
	}
	if cfg.BackendHTTPBaseURLs["http_chat"] == "" {
		t.Error("base URL defaults missing")
	}
}

func TestLoadFullConfig(t *testing.T) {
	body := `
routing_strategy: quality
routing_max_cost: 0.8
tools_require_confirmation: true
rate_limit_messages: 5
rate_limit_window_seconds: 30
log_level: debug
backend_http_base_urls:
  http_chat: http://ollama:11434
models:
  - id: llama-8b
    backend: http_chat
    display_name: Llama 8B
    capabilities: [general, code]
    speed_class: fast
    context_window: 8192
    quality_general: 0.7
    quality_code: 0.6
    cost: 0.4
`
	cfg, err := Load(writeConfig(t, t.TempDir(), "relay.yaml", body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RoutingStrategy != "quality" || cfg.RoutingMaxCost != 0.8 {
		t.Errorf("routing = %q %v", cfg.RoutingStrategy, cfg.RoutingMaxCost)
	}
	if !cfg.ToolsRequireConfirmation {
		t.Error("tools_require_confirmation not set")
	}
	if len(cfg.Models) != 1 || cfg.Models[0].ID != "llama-8b" {
		t.Fatalf("models = %+v", cfg.Models)
	}
	if len(cfg.Models[0].Capabilities) != 2 {
		t.Errorf("capabilities = %v", cfg.Models[0].Capabilities)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "relay.yaml", "no_such_option: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown-key error")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad strategy", "routing_strategy: fastest\n", "routing_strategy"},
		{"cost out of range", "routing_max_cost: 1.5\n", "routing_max_cost"},
		{"bad base url kind", "backend_http_base_urls:\n  in_process: http://x\n", "backend_http_base_urls"},
		{"negative rate limit", "rate_limit_messages: -1\n", "rate_limit_messages"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), "relay.yaml", tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("RELAY_TEST_TOKEN", "tok-123")
	path := writeConfig(t, t.TempDir(), "relay.yaml", "telegram_bot_token: ${RELAY_TEST_TOKEN}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TelegramBotToken != "tok-123" {
		t.Errorf("token = %q", cfg.TelegramBotToken)
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", "log_level: debug\nrate_limit_messages: 7\n")
	path := writeConfig(t, dir, "relay.yaml", "$include: base.yaml\nrate_limit_messages: 9\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	// The including file wins on conflicts.
	if cfg.RateLimitMessages != 9 {
		t.Errorf("rate_limit_messages = %d", cfg.RateLimitMessages)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "$include: b.yaml\n")
	writeConfig(t, dir, "b.yaml", "$include: a.yaml\n")
	if _, err := Load(filepath.Join(dir, "a.yaml")); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestLoadJSON5(t *testing.T) {
	body := `{
		// comments are fine here
		routing_strategy: "speed",
		rate_limit_messages: 3,
	}`
	cfg, err := Load(writeConfig(t, t.TempDir(), "relay.json5", body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RoutingStrategy != "speed" || cfg.RateLimitMessages != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
}
