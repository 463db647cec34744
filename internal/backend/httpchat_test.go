package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

func TestHTTPChatGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "pong"},
		})
	}))
	defer srv.Close()

	a := NewHTTPChatAdapter(srv.URL, "m1", "llama3.2:3b")
	text, err := a.Generate(context.Background(), GenerateRequest{
		Prompt:      "ping",
		System:      "be brief",
		Temperature: 0.2,
		MaxTokens:   64,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "pong" {
		t.Errorf("text = %q, want pong", text)
	}
	if got.Model != "llama3.2:3b" {
		t.Errorf("model = %q", got.Model)
	}
	if got.Stream {
		t.Error("stream should be false")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "ping" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Options["num_predict"] != float64(64) {
		t.Errorf("num_predict = %v", got.Options["num_predict"])
	}
}

func TestHTTPChatGenerateOmitsEmptySystem(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"message": map[string]any{"content": "ok"}})
	}))
	defer srv.Close()

	a := NewHTTPChatAdapter(srv.URL, "m1", "")
	if _, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestHTTPChatGenerateStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		kind   models.ErrorKind
	}{
		{http.StatusNotFound, models.KindModelUnavailable},
		{http.StatusGatewayTimeout, models.KindTimeout},
		{http.StatusInternalServerError, models.KindBackend},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom: secret detail", tc.status)
		}))
		a := NewHTTPChatAdapter(srv.URL, "m1", "")
		_, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		var be *Error
		if !errors.As(err, &be) {
			t.Fatalf("status %d: error is not typed: %v", tc.status, err)
		}
		if be.Kind != tc.kind {
			t.Errorf("status %d: kind = %s, want %s", tc.status, be.Kind, tc.kind)
		}
		if be.Detail == "" {
			t.Errorf("status %d: detail should carry the body excerpt", tc.status)
		}
	}
}

func TestHTTPChatGenerateInBandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "model requires more system memory"})
	}))
	defer srv.Close()

	a := NewHTTPChatAdapter(srv.URL, "m1", "")
	_, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("error is not typed: %v", err)
	}
	if be.Detail != "model requires more system memory" {
		t.Errorf("detail = %q", be.Detail)
	}
}

func TestHTTPChatGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	a := NewHTTPChatAdapter(srv.URL, "m1", "")
	_, err := a.Generate(context.Background(), GenerateRequest{
		Prompt:  "hi",
		Timeout: 30 * time.Millisecond,
	})
	if KindOf(err) != models.KindTimeout {
		t.Errorf("kind = %s, want timeout (%v)", KindOf(err), err)
	}
}

func TestHTTPChatIsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{{"name": "llama3.2:3b"}, {"name": "phi3:mini"}},
		})
	}))
	defer srv.Close()

	tests := []struct {
		apiModel string
		want     bool
	}{
		{"llama3.2:3b", true},
		{"llama3.2", true}, // tag-less match
		{"qwen2.5", false},
	}
	for _, tc := range tests {
		a := NewHTTPChatAdapter(srv.URL, "m1", tc.apiModel)
		if got := a.IsAvailable(context.Background()); got != tc.want {
			t.Errorf("IsAvailable(%q) = %v, want %v", tc.apiModel, got, tc.want)
		}
	}

	down := NewHTTPChatAdapter("http://127.0.0.1:1", "m1", "x")
	if down.IsAvailable(context.Background()) {
		t.Error("unreachable server should be unavailable")
	}
}
