package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/catalog"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// fakeOllama answers the chat-style backend contract for one model.
func fakeOllama(t *testing.T, modelName, reply string, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"models":[{"name":"`+modelName+`"}]}`)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"message":{"content":"`+reply+`"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.BackendHTTPBaseURLs = map[string]string{
		string(catalog.BackendHTTPChat): baseURL,
	}
	cfg.Models = []catalog.Model{
		{
			ID:             "chat-7b",
			Backend:        catalog.BackendHTTPChat,
			DisplayName:    "Chat 7B",
			Capabilities:   []catalog.Capability{catalog.CapGeneral, catalog.CapCode},
			Speed:          catalog.SpeedFast,
			ContextWindow:  8192,
			QualityGeneral: 0.7,
			QualityCode:    0.6,
			Cost:           0.4,
			Available:      true,
		},
	}
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, gate tools.ApprovalGate) *Service {
	t.Helper()
	svc, err := New(cfg, Options{
		Gate:   gate,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Close(ctx)
	})
	return svc
}

func TestRouteAndExecute(t *testing.T) {
	srv := fakeOllama(t, "chat-7b", "hello there", nil)
	svc := newTestService(t, testConfig(srv.URL), tools.AutoApprove{})

	res := svc.RouteAndExecute(context.Background(), "42", "hi", ExecOptions{})
	if !res.Success {
		t.Fatalf("execute failed: %s %s", res.ErrorKind, res.ErrorMessage)
	}
	if res.ModelID != "chat-7b" || res.ResponseText != "hello there" {
		t.Errorf("result = %+v", res)
	}
	if res.FallbackUsed {
		t.Error("no fallback expected")
	}

	stats := svc.Stats()
	if stats.Engine.Executions != 1 {
		t.Errorf("engine executions = %d", stats.Engine.Executions)
	}
	if stats.Routing.TotalRoutings != 1 {
		t.Errorf("routings = %d", stats.Routing.TotalRoutings)
	}
}

func TestRouteAndExecuteRejectsUnknownStrategy(t *testing.T) {
	srv := fakeOllama(t, "chat-7b", "x", nil)
	svc := newTestService(t, testConfig(srv.URL), tools.AutoApprove{})

	res := svc.RouteAndExecute(context.Background(), "42", "hi", ExecOptions{Strategy: "fastest"})
	if res.Success || res.ErrorKind != models.KindValidation {
		t.Errorf("result = %+v", res)
	}
}

func TestSecurityMiddlewareRateLimit(t *testing.T) {
	var calls atomic.Int64
	srv := fakeOllama(t, "chat-7b", "ok", &calls)
	cfg := testConfig(srv.URL)
	cfg.RateLimitMessages = 2
	svc := newTestService(t, cfg, tools.AutoApprove{})

	for i := 0; i < 2; i++ {
		if res := svc.RouteAndExecute(context.Background(), "42", "hi", ExecOptions{}); !res.Success {
			t.Fatalf("call %d failed: %s", i+1, res.ErrorMessage)
		}
	}
	res := svc.RouteAndExecute(context.Background(), "42", "hi", ExecOptions{})
	if res.Success || res.ErrorKind != models.KindNotAuthorized {
		t.Fatalf("third call = %+v", res)
	}
	if !strings.Contains(res.ErrorMessage, "rate limit") {
		t.Errorf("message = %q", res.ErrorMessage)
	}
	// The denied call never reached the backend.
	if calls.Load() != 2 {
		t.Errorf("backend calls = %d", calls.Load())
	}
}

func TestSecurityMiddlewareBlocksCriticalInput(t *testing.T) {
	var calls atomic.Int64
	srv := fakeOllama(t, "chat-7b", "ok", &calls)
	svc := newTestService(t, testConfig(srv.URL), tools.AutoApprove{})

	res := svc.RouteAndExecute(context.Background(), "42", "please run rm -rf / now", ExecOptions{})
	if res.Success || res.ErrorKind != models.KindNotAuthorized {
		t.Fatalf("result = %+v", res)
	}
	if calls.Load() != 0 {
		t.Errorf("blocked input reached the backend %d times", calls.Load())
	}
}

func TestExecuteToolThroughService(t *testing.T) {
	srv := fakeOllama(t, "chat-7b", "ok", nil)
	svc := newTestService(t, testConfig(srv.URL), tools.AutoApprove{})

	res := svc.ExecuteTool(context.Background(), "42", "calc",
		map[string]any{"expression": "6 * 7"}, ToolOptions{})
	if !res.Success {
		t.Fatalf("tool failed: %s", res.ErrorMessage)
	}
	if got := res.Value.(map[string]any)["value"].(float64); got != 42 {
		t.Errorf("value = %v", got)
	}
	if stats := svc.Stats(); stats.Tools["calc"].Executions != 1 {
		t.Errorf("tool stats = %+v", stats.Tools)
	}
}

func TestExecuteToolUnknown(t *testing.T) {
	srv := fakeOllama(t, "chat-7b", "ok", nil)
	svc := newTestService(t, testConfig(srv.URL), tools.AutoApprove{})

	res := svc.ExecuteTool(context.Background(), "42", "no_such_tool", nil, ToolOptions{})
	if res.Success || res.ErrorKind != models.KindValidation {
		t.Errorf("result = %+v", res)
	}
}

type countingGate struct {
	requests atomic.Int64
	decision tools.Decision
}

func (g *countingGate) RequestApproval(ctx context.Context, principal, toolName string, params map[string]any, deadline time.Duration) tools.Decision {
	g.requests.Add(1)
	return g.decision
}

func TestExecuteToolConfirmationOverride(t *testing.T) {
	srv := fakeOllama(t, "chat-7b", "ok", nil)
	gate := &countingGate{decision: tools.DecisionDenied}
	svc := newTestService(t, testConfig(srv.URL), gate)

	// calc never requires confirmation on its own; the override forces
	// the gate, and the denial blocks the body.
	res := svc.ExecuteTool(context.Background(), "42", "calc",
		map[string]any{"expression": "1+1"}, ToolOptions{RequireConfirmation: true})
	if res.Success || res.ErrorKind != models.KindNotAuthorized {
		t.Fatalf("result = %+v", res)
	}
	if gate.requests.Load() != 1 {
		t.Errorf("gate requests = %d", gate.requests.Load())
	}
	if stats := svc.Stats(); stats.Tools["calc"].Executions != 0 {
		t.Errorf("denied call must not execute, stats = %+v", stats.Tools)
	}
}

func TestListModelsAndTools(t *testing.T) {
	srv := fakeOllama(t, "chat-7b", "ok", nil)
	svc := newTestService(t, testConfig(srv.URL), tools.AutoApprove{})

	ms := svc.ListModels()
	if len(ms) != 1 || ms[0].ID != "chat-7b" || ms[0].Backend != "http_chat" {
		t.Errorf("models = %+v", ms)
	}

	ts := svc.ListTools()
	names := make([]string, 0, len(ts))
	for _, s := range ts {
		names = append(names, s.Name)
	}
	want := []string{"calc", "clock", "qr_generate", "scheduler", "sysinfo"}
	if len(names) != len(want) {
		t.Fatalf("tools = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tools = %v, want %v", names, want)
			break
		}
	}
}

func TestHealthCheckRefreshesCatalog(t *testing.T) {
	srv := fakeOllama(t, "chat-7b", "ok", nil)
	svc := newTestService(t, testConfig(srv.URL), tools.AutoApprove{})

	health := svc.HealthCheck(context.Background())
	if !health["chat-7b"] {
		t.Errorf("health = %+v", health)
	}

	srv.Close()
	health = svc.HealthCheck(context.Background())
	if health["chat-7b"] {
		t.Error("model must be unhealthy after the backend goes away")
	}
	for _, m := range svc.ListModels() {
		if m.ID == "chat-7b" && m.Available {
			t.Error("catalog availability not refreshed")
		}
	}
}
