package telegram

import (
	"strings"
	"testing"

	"github.com/haasonsaas/relay/internal/service"
	"github.com/haasonsaas/relay/pkg/models"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in, command, rest string
	}{
		{"/models", "/models", ""},
		{"/tool calc {\"expression\": \"1+1\"}", "/tool", "calc {\"expression\": \"1+1\"}"},
		{"/stats@relay_bot", "/stats", ""},
		{"hello there", "", "hello there"},
		{"/health   ", "/health", ""},
	}
	for _, tc := range tests {
		command, rest := splitCommand(tc.in)
		if command != tc.command || rest != tc.rest {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)",
				tc.in, command, rest, tc.command, tc.rest)
		}
	}
}

func TestParseToolCommand(t *testing.T) {
	name, params, err := parseToolCommand(`calc {"expression": "6*7"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if name != "calc" || params["expression"] != "6*7" {
		t.Errorf("parsed (%q, %v)", name, params)
	}

	name, params, err = parseToolCommand("clock")
	if err != nil || name != "clock" || params != nil {
		t.Errorf("bare name: (%q, %v, %v)", name, params, err)
	}

	if _, _, err := parseToolCommand(""); err == nil {
		t.Error("empty input must fail")
	}
	if _, _, err := parseToolCommand("calc {not json"); err == nil {
		t.Error("bad json must fail")
	}
}

func TestAuthorized(t *testing.T) {
	b := &Bot{cfg: Config{AllowedUserID: 42}}
	if !b.authorized(42) {
		t.Error("allow-listed user rejected")
	}
	if b.authorized(7) {
		t.Error("other user admitted")
	}

	// An unset allow-list admits nobody.
	b = &Bot{cfg: Config{}}
	if b.authorized(0) || b.authorized(42) {
		t.Error("zero allow-list must reject everyone")
	}
}

func TestFormatModels(t *testing.T) {
	out := formatModels([]service.ModelSummary{
		{ID: "tiny", Backend: "in_process", SpeedClass: "ultra_fast", Cost: 0.1, Available: true},
		{ID: "sage", Backend: "http_completion", SpeedClass: "slow", Cost: 0.8},
	})
	if !strings.Contains(out, "✔ tiny") || !strings.Contains(out, "✖ sage") {
		t.Errorf("output = %q", out)
	}
	if formatModels(nil) != "no models registered" {
		t.Error("empty list formatting")
	}
}

func TestFormatToolResult(t *testing.T) {
	ok := formatToolResult("calc", models.ToolSuccess(map[string]any{"value": 42.0}))
	if !strings.Contains(ok, "calc") || !strings.Contains(ok, "42") {
		t.Errorf("success output = %q", ok)
	}

	failed := formatToolResult("calc", models.ToolFailure(models.KindValidation, `parameter "expression" is missing`))
	if !strings.Contains(failed, "validation") || !strings.Contains(failed, "expression") {
		t.Errorf("failure output = %q", failed)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("missing token must fail")
	}

	cfg = Config{Token: "t"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ReminderPollInterval <= 0 || cfg.Logger == nil {
		t.Error("defaults not applied")
	}
}
