package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/haasonsaas/relay/internal/catalog"
	"github.com/haasonsaas/relay/pkg/models"
)

// Runner is the low-level local runtime behind an in-process adapter. It
// owns one loaded model and is driven exclusively from the adapter's
// worker goroutine, so implementations need no internal locking.
type Runner interface {
	// Load materializes the model weights. Called once before the first
	// generation.
	Load(ctx context.Context, modelPath string) error

	// Generate produces text for an already-rendered prompt.
	Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)

	// Close releases the loaded model.
	Close() error
}

// CommandRunner shells out to a local runner binary for each generation.
// The binary receives the rendered prompt on stdin and prints the
// completion on stdout, with model path and sampling knobs passed as
// flags. This matches the plain llama.cpp "main" CLI contract.
type CommandRunner struct {
	binary    string
	extraArgs []string
	modelPath string
}

var _ Runner = (*CommandRunner)(nil)

// NewCommandRunner builds a runner around the given binary. extraArgs are
// appended verbatim after the generated flags.
func NewCommandRunner(binary string, extraArgs ...string) *CommandRunner {
	return &CommandRunner{binary: binary, extraArgs: extraArgs}
}

// Load records the model path and checks the binary resolves. Weights are
// loaded by the binary on each invocation.
func (r *CommandRunner) Load(ctx context.Context, modelPath string) error {
	if r.binary == "" {
		return fmt.Errorf("local runner binary not configured")
	}
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("local runner binary %q: %w", r.binary, err)
	}
	r.modelPath = modelPath
	return nil
}

// Generate invokes the binary once with the rendered prompt on stdin.
func (r *CommandRunner) Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	args := []string{
		"--model", r.modelPath,
		"--temp", strconv.FormatFloat(temperature, 'f', -1, 64),
		"--n-predict", strconv.Itoa(maxTokens),
	}
	args = append(args, r.extraArgs...)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdin = strings.NewReader(prompt)
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("local runner: %w", err)
	}
	return string(out), nil
}

// Close is a no-op: the process exits after each invocation.
func (r *CommandRunner) Close() error { return nil }

type localCall struct {
	ctx   context.Context
	req   GenerateRequest
	reply chan localResult
}

type localResult struct {
	text string
	err  error
}

// LocalAdapter runs a model through an in-process Runner. All runner use
// funnels through one worker goroutine so a slow generation never blocks
// the caller's scheduler and the runner sees strictly serial calls.
type LocalAdapter struct {
	runner    Runner
	modelID   string
	modelPath string
	format    catalog.PromptFormat
	logger    *slog.Logger

	calls chan localCall
	quit  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	loadErr   error
	done      chan struct{}
}

var _ Adapter = (*LocalAdapter)(nil)

// NewLocalAdapter wires an in-process adapter around a runner. Descriptors
// carrying an unknown prompt format degrade to the generic layout with a
// warning rather than failing.
func NewLocalAdapter(runner Runner, modelID, modelPath string, format catalog.PromptFormat, logger *slog.Logger) *LocalAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	switch format {
	case catalog.FormatChatMLv1, catalog.FormatLlama3v1, catalog.FormatMistralInst, catalog.FormatGenericTurn:
	default:
		logger.Warn("unknown prompt format, using generic turn layout",
			"model", modelID, "format", string(format))
		format = catalog.FormatGenericTurn
	}
	return &LocalAdapter{
		runner:    runner,
		modelID:   modelID,
		modelPath: modelPath,
		format:    format,
		logger:    logger,
		calls:     make(chan localCall),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Initialize loads the model and starts the worker goroutine. A load
// failure is returned once and recorded; later calls fail fast.
func (a *LocalAdapter) Initialize(ctx context.Context) error {
	a.startOnce.Do(func() {
		if err := a.runner.Load(ctx, a.modelPath); err != nil {
			a.loadErr = err
			close(a.done)
			return
		}
		go a.serve()
	})
	if a.loadErr != nil {
		return NewError("in_process", a.modelID, a.loadErr)
	}
	return nil
}

func (a *LocalAdapter) serve() {
	defer close(a.done)
	for {
		select {
		case call := <-a.calls:
			text, err := a.runner.Generate(call.ctx, call.req.Prompt, call.req.Temperature, call.req.MaxTokens)
			call.reply <- localResult{text: text, err: err}
		case <-a.quit:
			return
		}
	}
}

// Generate renders the prompt for the model's format and hands it to the
// worker. The caller's context still bounds the wait, so one stuck
// generation times out the waiting call instead of wedging it forever.
func (a *LocalAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if a.loadErr != nil {
		return "", NewError("in_process", a.modelID, a.loadErr)
	}
	ctx, cancel := callContext(ctx, req)
	defer cancel()

	rendered := req
	rendered.Prompt = RenderPrompt(a.format, req.System, req.Prompt)
	rendered.System = ""

	call := localCall{ctx: ctx, req: rendered, reply: make(chan localResult, 1)}
	select {
	case a.calls <- call:
	case <-ctx.Done():
		return "", NewError("in_process", a.modelID, ctx.Err())
	case <-a.done:
		return "", &Error{
			Kind:    models.KindModelUnavailable,
			Backend: "in_process",
			Model:   a.modelID,
			Message: "local runtime is shut down",
		}
	}

	select {
	case res := <-call.reply:
		if res.err != nil {
			return "", NewError("in_process", a.modelID, res.err)
		}
		return res.text, nil
	case <-ctx.Done():
		return "", NewError("in_process", a.modelID, ctx.Err())
	}
}

// IsAvailable reports whether the runtime is loaded and serving.
func (a *LocalAdapter) IsAvailable(ctx context.Context) bool {
	if a.loadErr != nil {
		return false
	}
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// Close stops the worker and releases the runner.
func (a *LocalAdapter) Close() error {
	var err error
	a.stopOnce.Do(func() {
		close(a.quit)
		if a.loadErr == nil {
			<-a.done
		}
		err = a.runner.Close()
	})
	return err
}
