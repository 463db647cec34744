package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/tools"
)

type promptRecorder struct {
	mu   sync.Mutex
	reqs []approvalRequest
	err  error
}

func (r *promptRecorder) send(_ context.Context, req approvalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.err
}

func (r *promptRecorder) last() approvalRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reqs[len(r.reqs)-1]
}

func testGate(rec *promptRecorder) *ApprovalGate {
	return newApprovalGate(rec.send, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApprovalApproved(t *testing.T) {
	rec := &promptRecorder{}
	gate := testGate(rec)

	done := make(chan tools.Decision, 1)
	go func() {
		done <- gate.RequestApproval(context.Background(), "42", "sysinfo", nil, time.Minute)
	}()

	// Wait for the prompt to be posted, then press the approve button.
	waitForPrompt(t, rec)
	if !gate.resolve(rec.last().id + ":yes") {
		t.Fatal("resolve must find the pending request")
	}
	if d := <-done; d != tools.DecisionApproved {
		t.Errorf("decision = %s", d)
	}
}

func TestApprovalDenied(t *testing.T) {
	rec := &promptRecorder{}
	gate := testGate(rec)

	done := make(chan tools.Decision, 1)
	go func() {
		done <- gate.RequestApproval(context.Background(), "42", "sysinfo", nil, time.Minute)
	}()
	waitForPrompt(t, rec)
	gate.resolve(rec.last().id + ":no")
	if d := <-done; d != tools.DecisionDenied {
		t.Errorf("decision = %s", d)
	}
}

func TestApprovalDeadline(t *testing.T) {
	rec := &promptRecorder{}
	gate := testGate(rec)

	d := gate.RequestApproval(context.Background(), "42", "sysinfo", nil, 20*time.Millisecond)
	if d != tools.DecisionTimeout {
		t.Errorf("decision = %s", d)
	}
}

func TestApprovalContextCancel(t *testing.T) {
	rec := &promptRecorder{}
	gate := testGate(rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan tools.Decision, 1)
	go func() {
		done <- gate.RequestApproval(ctx, "42", "sysinfo", nil, time.Minute)
	}()
	waitForPrompt(t, rec)
	cancel()
	if d := <-done; d != tools.DecisionTimeout {
		t.Errorf("decision = %s", d)
	}
}

func TestApprovalSendFailureDenies(t *testing.T) {
	rec := &promptRecorder{err: fmt.Errorf("network down")}
	gate := testGate(rec)

	d := gate.RequestApproval(context.Background(), "42", "sysinfo", nil, time.Minute)
	if d != tools.DecisionDenied {
		t.Errorf("decision = %s", d)
	}
}

func TestApprovalStaleCallback(t *testing.T) {
	gate := testGate(&promptRecorder{})
	if gate.resolve("no-such-id:yes") {
		t.Error("stale callback must not resolve")
	}
	if gate.resolve("garbage") {
		t.Error("malformed payload must not resolve")
	}
}

func waitForPrompt(t *testing.T, rec *promptRecorder) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec.mu.Lock()
		n := len(rec.reqs)
		rec.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("prompt was never posted")
}
