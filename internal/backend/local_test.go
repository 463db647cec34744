package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/catalog"
	"github.com/haasonsaas/relay/pkg/models"
)

type fakeRunner struct {
	mu        sync.Mutex
	loadErr   error
	genErr    error
	delay     time.Duration
	loaded    string
	prompts   []string
	inflight  atomic.Int32
	maxSeen   atomic.Int32
	closed    atomic.Bool
	generated atomic.Int32
}

func (f *fakeRunner) Load(ctx context.Context, modelPath string) error {
	f.loaded = modelPath
	return f.loadErr
}

func (f *fakeRunner) Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	f.generated.Add(1)
	if f.genErr != nil {
		return "", f.genErr
	}
	return "echo:" + prompt, nil
}

func (f *fakeRunner) Close() error {
	f.closed.Store(true)
	return nil
}

func TestLocalAdapterRendersPromptForFormat(t *testing.T) {
	r := &fakeRunner{}
	a := NewLocalAdapter(r, "m1", "/models/m1.gguf", catalog.FormatMistralInst, nil)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer a.Close()

	if r.loaded != "/models/m1.gguf" {
		t.Errorf("loaded = %q", r.loaded)
	}

	text, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi", System: "be brief"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := "echo:<s>[INST] be brief\n\nhi [/INST]"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestLocalAdapterUnknownFormatDegrades(t *testing.T) {
	r := &fakeRunner{}
	a := NewLocalAdapter(r, "m1", "/m", catalog.PromptFormat("mystery"), nil)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer a.Close()

	text, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(text, "User: hi\nAssistant:") {
		t.Errorf("expected generic turn layout, got %q", text)
	}
}

func TestLocalAdapterSerializesRunnerCalls(t *testing.T) {
	r := &fakeRunner{delay: 10 * time.Millisecond}
	a := NewLocalAdapter(r, "m1", "/m", catalog.FormatGenericTurn, nil)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer a.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Generate(context.Background(), GenerateRequest{Prompt: "x"})
		}()
	}
	wg.Wait()

	if max := r.maxSeen.Load(); max != 1 {
		t.Errorf("runner saw %d concurrent calls, want 1", max)
	}
	if n := r.generated.Load(); n != 8 {
		t.Errorf("generated %d, want 8", n)
	}
}

func TestLocalAdapterLoadFailure(t *testing.T) {
	r := &fakeRunner{loadErr: fmt.Errorf("weights missing")}
	a := NewLocalAdapter(r, "m1", "/m", catalog.FormatGenericTurn, nil)
	if err := a.Initialize(context.Background()); err == nil {
		t.Fatal("expected load failure")
	}
	if a.IsAvailable(context.Background()) {
		t.Error("failed load should report unavailable")
	}
	_, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected generate failure after load failure")
	}
}

func TestLocalAdapterTimeoutWhileBusy(t *testing.T) {
	r := &fakeRunner{delay: 200 * time.Millisecond}
	a := NewLocalAdapter(r, "m1", "/m", catalog.FormatGenericTurn, nil)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer a.Close()

	// Occupy the worker, then a second call with a short timeout must
	// fail with a timeout kind instead of waiting.
	go a.Generate(context.Background(), GenerateRequest{Prompt: "slow"})
	time.Sleep(20 * time.Millisecond)

	_, err := a.Generate(context.Background(), GenerateRequest{
		Prompt:  "fast",
		Timeout: 30 * time.Millisecond,
	})
	if KindOf(err) != models.KindTimeout {
		t.Errorf("kind = %s, want timeout (%v)", KindOf(err), err)
	}
}

func TestLocalAdapterClose(t *testing.T) {
	r := &fakeRunner{}
	a := NewLocalAdapter(r, "m1", "/m", catalog.FormatGenericTurn, nil)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !r.closed.Load() {
		t.Error("runner not closed")
	}
	if a.IsAvailable(context.Background()) {
		t.Error("closed adapter should report unavailable")
	}
	if _, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi", Timeout: 50 * time.Millisecond}); err == nil {
		t.Error("expected generate failure after close")
	}
	// Idempotent.
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
