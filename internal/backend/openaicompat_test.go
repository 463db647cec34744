package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

func TestOpenAICompatGenerate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello there"}},
			},
		})
	}))
	defer srv.Close()

	a := NewOpenAICompatAdapter(srv.URL+"/v1", "m1", "qwen2.5-7b")
	text, err := a.Generate(context.Background(), GenerateRequest{
		Prompt:    "hi",
		System:    "be brief",
		MaxTokens: 32,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q", text)
	}
	if gotBody["model"] != "qwen2.5-7b" {
		t.Errorf("model = %v", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("first role = %v", first["role"])
	}
}

func TestOpenAICompatGenerateNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model not loaded", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	a := NewOpenAICompatAdapter(srv.URL+"/v1", "m1", "")
	_, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if KindOf(err) != models.KindModelUnavailable {
		t.Errorf("kind = %s, want model_unavailable (%v)", KindOf(err), err)
	}
}

func TestOpenAICompatGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	a := NewOpenAICompatAdapter(srv.URL+"/v1", "m1", "")
	_, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if KindOf(err) != models.KindBackend {
		t.Errorf("kind = %s, want backend (%v)", KindOf(err), err)
	}
}

func TestOpenAICompatIsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "qwen2.5-7b", "object": "model"}},
		})
	}))
	defer srv.Close()

	a := NewOpenAICompatAdapter(srv.URL+"/v1", "m1", "qwen2.5-7b")
	if !a.IsAvailable(context.Background()) {
		t.Error("expected available")
	}

	down := NewOpenAICompatAdapter("http://127.0.0.1:1/v1", "m1", "")
	if down.IsAvailable(context.Background()) {
		t.Error("unreachable server should be unavailable")
	}
}
