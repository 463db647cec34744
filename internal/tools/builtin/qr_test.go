package builtin

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/internal/jobs"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

func TestQRTextPayload(t *testing.T) {
	res := NewQRGenerateTool().Execute(context.Background(), map[string]any{
		"qr_type": "text",
		"content": "hello world",
	})
	if !res.Success {
		t.Fatalf("execute failed: %s", res.ErrorMessage)
	}
	if got := res.Value.(map[string]any)["payload"]; got != "hello world" {
		t.Errorf("payload = %v", got)
	}
}

func TestQRURLPayload(t *testing.T) {
	qr := NewQRGenerateTool()

	res := qr.Execute(context.Background(), map[string]any{
		"qr_type": "url",
		"content": "https://go.dev/doc ",
	})
	if !res.Success {
		t.Fatalf("execute failed: %s", res.ErrorMessage)
	}
	if got := res.Value.(map[string]any)["payload"]; got != "https://go.dev/doc" {
		t.Errorf("payload = %v", got)
	}

	for _, bad := range []string{"notaurl", "ftp://host/x", "https://"} {
		res := qr.Execute(context.Background(), map[string]any{
			"qr_type": "url",
			"content": bad,
		})
		if res.Success {
			t.Errorf("url %q must be rejected", bad)
		}
	}
}

func TestQRWifiPayload(t *testing.T) {
	res := NewQRGenerateTool().Execute(context.Background(), map[string]any{
		"qr_type":  "wifi",
		"ssid":     "Home;Net",
		"password": "p:ss,word",
		"security": "WPA",
		"hidden":   false,
	})
	if !res.Success {
		t.Fatalf("execute failed: %s", res.ErrorMessage)
	}
	want := `WIFI:T:WPA;S:Home\;Net;P:p\:ss\,word;H:false;;`
	if got := res.Value.(map[string]any)["payload"]; got != want {
		t.Errorf("payload = %v, want %s", got, want)
	}
}

func TestQRWifiOpenNetwork(t *testing.T) {
	res := NewQRGenerateTool().Execute(context.Background(), map[string]any{
		"qr_type":  "wifi",
		"ssid":     "cafe",
		"password": "",
		"security": "WPA",
		"hidden":   false,
	})
	if !res.Success {
		t.Fatalf("execute failed: %s", res.ErrorMessage)
	}
	if got := res.Value.(map[string]any)["payload"]; got != "WIFI:T:nopass;S:cafe;P:;H:false;;" {
		t.Errorf("payload = %v", got)
	}
}

func TestQRRendersPNG(t *testing.T) {
	res := NewQRGenerateTool().Execute(context.Background(), map[string]any{
		"qr_type": "text",
		"content": "hello world",
		"size":    float64(128),
	})
	if !res.Success {
		t.Fatalf("execute failed: %s", res.ErrorMessage)
	}
	encoded, _ := res.Value.(map[string]any)["png_base64"].(string)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) < 8 || string(raw[1:4]) != "PNG" {
		t.Error("png_base64 does not hold a PNG image")
	}
}

func TestQRCheckParams(t *testing.T) {
	qr := NewQRGenerateTool()

	err := qr.CheckParams(map[string]any{"qr_type": "wifi"})
	if err == nil || !strings.Contains(err.Error(), "ssid") {
		t.Errorf("wifi without ssid: err = %v", err)
	}
	if err := qr.CheckParams(map[string]any{"qr_type": "text"}); err == nil {
		t.Error("text without content must be rejected")
	}
	if err := qr.CheckParams(map[string]any{"qr_type": "wifi", "ssid": "x"}); err != nil {
		t.Errorf("valid wifi params rejected: %v", err)
	}
}

// A wifi request missing ssid must fail validation before the body runs
// and must not count toward the tool's execution stats.
func TestQRWifiMissingSSIDThroughRegistry(t *testing.T) {
	framework := tools.NewFramework(tools.FrameworkConfig{
		Gate:   tools.AutoApprove{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	reg := tools.NewRegistry(framework)
	report := tools.RegisterAll(reg, Factories(jobs.NewMemoryStore()), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if len(report.Failures) != 0 {
		t.Fatalf("registration failures: %+v", report.Failures)
	}

	res := reg.Execute(context.Background(), "u1", "qr_generate", map[string]any{
		"qr_type": "wifi",
	})
	if res.Success {
		t.Fatal("missing ssid must fail")
	}
	if res.ErrorKind != models.KindValidation {
		t.Errorf("kind = %s", res.ErrorKind)
	}
	if !strings.Contains(res.ErrorMessage, "ssid") {
		t.Errorf("message %q must mention ssid", res.ErrorMessage)
	}
	if stats := framework.StatsFor("qr_generate"); stats.Executions != 0 {
		t.Errorf("executions = %d, want 0", stats.Executions)
	}
}
