package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPChatAdapter speaks the Ollama-style chat protocol: POST /api/chat
// with stream disabled, availability probed through GET /api/tags.
type HTTPChatAdapter struct {
	client  *http.Client
	baseURL string
	modelID string

	// apiModel is the name the backend knows the model by; defaults to
	// the descriptor id.
	apiModel string
}

var _ Adapter = (*HTTPChatAdapter)(nil)

// NewHTTPChatAdapter creates a chat adapter for one model.
func NewHTTPChatAdapter(baseURL, modelID, apiModel string) *HTTPChatAdapter {
	if apiModel == "" {
		apiModel = modelID
	}
	return &HTTPChatAdapter{
		// Per-call deadlines come from callContext; the client itself
		// stays unbounded so long generations are not cut off early.
		client:   &http.Client{},
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		modelID:  modelID,
		apiModel: apiModel,
	}
}

// Initialize is a no-op: the transport is a shared HTTP client.
func (a *HTTPChatAdapter) Initialize(ctx context.Context) error { return nil }

// Close releases idle connections.
func (a *HTTPChatAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Generate sends a non-streaming chat request.
func (a *HTTPChatAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := callContext(ctx, req)
	defer cancel()

	payload := chatRequest{
		Model:  a.apiModel,
		Stream: false,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: system})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return "", NewError("http_chat", a.modelID, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", NewError("http_chat", a.modelID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", NewError("http_chat", a.modelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", NewError("http_chat", a.modelID, fmt.Errorf("chat status %d", resp.StatusCode)).
			WithStatus(resp.StatusCode).
			WithDetail(strings.TrimSpace(string(excerpt)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", NewError("http_chat", a.modelID, fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != "" {
		return "", NewError("http_chat", a.modelID, fmt.Errorf("backend error")).WithDetail(decoded.Error)
	}
	return decoded.Message.Content, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// IsAvailable probes GET /api/tags and checks the model id appears.
func (a *HTTPChatAdapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, AvailabilityProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	for _, m := range tags.Models {
		if m.Name == a.apiModel || strings.SplitN(m.Name, ":", 2)[0] == a.apiModel {
			return true
		}
	}
	return false
}
