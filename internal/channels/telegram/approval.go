package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/tools"
)

// approvalRequest is one pending confirmation shown to the user.
type approvalRequest struct {
	id       string
	toolName string
	params   map[string]any
}

// promptSender posts the approval prompt to the chat. Split out so the
// gate's waiting logic is testable without a live bot.
type promptSender func(ctx context.Context, req approvalRequest) error

// ApprovalGate implements tools.ApprovalGate over Telegram inline
// keyboards. Each request posts a message with approve/deny buttons and
// blocks until the button callback, the deadline, or cancellation.
type ApprovalGate struct {
	send   promptSender
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]chan tools.Decision
}

func newApprovalGate(send promptSender, logger *slog.Logger) *ApprovalGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalGate{
		send:    send,
		logger:  logger,
		pending: make(map[string]chan tools.Decision),
	}
}

// RequestApproval posts the prompt and waits for an answer. Deadline
// expiry and context cancellation both return Timeout; the framework
// treats Timeout and Denied identically.
func (g *ApprovalGate) RequestApproval(ctx context.Context, principal, toolName string, params map[string]any, deadline time.Duration) tools.Decision {
	req := approvalRequest{
		id:       uuid.NewString(),
		toolName: toolName,
		params:   params,
	}

	answer := make(chan tools.Decision, 1)
	g.mu.Lock()
	g.pending[req.id] = answer
	g.mu.Unlock()
	defer g.forget(req.id)

	if err := g.send(ctx, req); err != nil {
		g.logger.Warn("approval prompt failed to send",
			"tool", toolName, "error", err)
		return tools.DecisionDenied
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case decision := <-answer:
		return decision
	case <-timer.C:
		g.logger.Info("approval timed out", "tool", toolName, "principal", principal)
		return tools.DecisionTimeout
	case <-ctx.Done():
		return tools.DecisionTimeout
	}
}

// resolve routes a button callback payload ("<id>:yes" or "<id>:no") to
// its waiting request. Stale callbacks report false.
func (g *ApprovalGate) resolve(data string) bool {
	id, verdict, found := strings.Cut(data, ":")
	if !found {
		return false
	}
	g.mu.Lock()
	answer, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()
	if !ok {
		return false
	}
	if verdict == "yes" {
		answer <- tools.DecisionApproved
	} else {
		answer <- tools.DecisionDenied
	}
	return true
}

func (g *ApprovalGate) forget(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}
