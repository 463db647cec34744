package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatAdapter speaks the OpenAI chat-completions protocol against
// a local OpenAI-compatible server (LM Studio and friends). Availability
// is probed through the models listing endpoint.
type OpenAICompatAdapter struct {
	client   *openai.Client
	modelID  string
	apiModel string
}

var _ Adapter = (*OpenAICompatAdapter)(nil)

// NewOpenAICompatAdapter creates a completion adapter for one model. The
// server is expected on baseURL (e.g. http://localhost:1234/v1); local
// servers ignore the API key but the client requires one, so a
// placeholder is used.
func NewOpenAICompatAdapter(baseURL, modelID, apiModel string) *OpenAICompatAdapter {
	if apiModel == "" {
		apiModel = modelID
	}
	cfg := openai.DefaultConfig("local")
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &OpenAICompatAdapter{
		client:   openai.NewClientWithConfig(cfg),
		modelID:  modelID,
		apiModel: apiModel,
	}
}

// Initialize is a no-op.
func (a *OpenAICompatAdapter) Initialize(ctx context.Context) error { return nil }

// Close is a no-op: the SDK client holds no persistent resources beyond
// the default transport.
func (a *OpenAICompatAdapter) Close() error { return nil }

// Generate sends a non-streaming chat completion.
func (a *OpenAICompatAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := callContext(ctx, req)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.apiModel,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", a.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", NewError("http_completion", a.modelID, fmt.Errorf("response carried no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAICompatAdapter) classify(ctx context.Context, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewError("http_completion", a.modelID, ctxErr)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewError("http_completion", a.modelID, err).
			WithStatus(apiErr.HTTPStatusCode).
			WithDetail(apiErr.Message)
	}
	return NewError("http_completion", a.modelID, err)
}

// IsAvailable probes the models listing endpoint for a 2xx answer.
func (a *OpenAICompatAdapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, AvailabilityProbeTimeout)
	defer cancel()
	_, err := a.client.ListModels(ctx)
	return err == nil
}
