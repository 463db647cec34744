// Package telegram is the chat front-end: a long-polling bot that routes
// free text through the service, exposes the tool and status commands,
// and answers approval requests with inline keyboards.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/relay/internal/jobs"
	"github.com/haasonsaas/relay/internal/service"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// Config holds the front-end configuration.
type Config struct {
	// Token is the bot token from @BotFather.
	Token string

	// AllowedUserID is the single principal admitted to the bot. Zero
	// rejects everyone.
	AllowedUserID int64

	// ReminderPollInterval is how often due scheduler jobs are delivered.
	ReminderPollInterval time.Duration

	Logger *slog.Logger
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if c.ReminderPollInterval <= 0 {
		c.ReminderPollInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Bot wires the relay service to Telegram long polling.
type Bot struct {
	cfg    Config
	svc    *service.Service
	bot    *bot.Bot
	gate   *ApprovalGate
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the bot. The returned ApprovalGate must be handed to the
// service so tool confirmations reach the chat.
func New(cfg Config, svc *service.Service) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bot{
		cfg:    cfg,
		svc:    svc,
		logger: cfg.Logger.With("channel", "telegram"),
	}
	b.gate = newApprovalGate(b.sendApprovalPrompt, cfg.Logger)

	tg, err := bot.New(cfg.Token, bot.WithDefaultHandler(b.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b.bot = tg
	return b, nil
}

// Gate returns the approval gate backed by this chat.
func (b *Bot) Gate() *ApprovalGate { return b.gate }

// Start begins long polling and the reminder delivery loop. It blocks
// until the context is cancelled.
func (b *Bot) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.logger.Info("telegram front-end starting",
		"allowed_user", b.cfg.AllowedUserID)

	b.wg.Add(1)
	go b.deliverReminders(ctx)

	b.bot.Start(ctx)
	b.wg.Wait()
}

// Stop cancels polling and waits for background loops, bounded by ctx.
func (b *Bot) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("telegram front-end stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bot) handleUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgmodels.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}
	if !b.authorized(msg.From.ID) {
		b.logger.Warn("message from unauthorized user", "user_id", msg.From.ID)
		return
	}

	principal := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	command, rest := splitCommand(text)
	switch command {
	case "/start", "/help":
		b.reply(ctx, chatID, helpText)
	case "/models":
		b.reply(ctx, chatID, formatModels(b.svc.ListModels()))
	case "/tools":
		b.reply(ctx, chatID, formatTools(b.svc.ListTools()))
	case "/health":
		b.reply(ctx, chatID, formatHealth(b.svc.HealthCheck(ctx)))
	case "/stats":
		b.reply(ctx, chatID, formatStats(b.svc.Stats()))
	case "/tool":
		b.runTool(ctx, chatID, principal, rest)
	default:
		b.routeText(ctx, chatID, principal, text)
	}
}

func (b *Bot) routeText(ctx context.Context, chatID int64, principal, text string) {
	res := b.svc.RouteAndExecute(ctx, principal, text, service.ExecOptions{})
	if !res.Success {
		b.reply(ctx, chatID, fmt.Sprintf("⚠️ %s: %s", res.ErrorKind, res.ErrorMessage))
		return
	}
	reply := res.ResponseText
	if res.FallbackUsed {
		reply += fmt.Sprintf("\n\n(answered by fallback model %s)", res.ModelID)
	}
	b.reply(ctx, chatID, reply)
}

func (b *Bot) runTool(ctx context.Context, chatID int64, principal, rest string) {
	name, params, err := parseToolCommand(rest)
	if err != nil {
		b.reply(ctx, chatID, "usage: /tool <name> {\"param\": value}\n"+err.Error())
		return
	}
	res := b.svc.ExecuteTool(ctx, principal, name, params, service.ToolOptions{})
	b.reply(ctx, chatID, formatToolResult(name, res))
}

func (b *Bot) handleCallback(ctx context.Context, q *tgmodels.CallbackQuery) {
	if !b.authorized(q.From.ID) {
		return
	}
	acknowledged := b.gate.resolve(q.Data)
	text := "request expired"
	if acknowledged {
		text = "noted"
	}
	_, err := b.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: q.ID,
		Text:            text,
	})
	if err != nil {
		b.logger.Warn("answer callback failed", "error", err)
	}
}

// deliverReminders polls the job store and sends due reminders to their
// principals.
func (b *Bot) deliverReminders(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.ReminderPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.deliverDue(ctx)
		}
	}
}

func (b *Bot) deliverDue(ctx context.Context) {
	store := b.svc.JobStore()
	due, err := store.Due(ctx, time.Now())
	if err != nil {
		b.logger.Warn("reminder query failed", "error", err)
		return
	}
	for _, job := range due {
		chatID, err := strconv.ParseInt(job.Principal, 10, 64)
		if err != nil {
			b.failJob(ctx, store, job, fmt.Sprintf("bad principal %q", job.Principal))
			continue
		}
		if err := b.reply(ctx, chatID, "⏰ "+job.Message); err != nil {
			b.logger.Warn("reminder delivery failed", "job", job.ID, "error", err)
			continue
		}
		if job.CronSpec != "" {
			// Recurring jobs stay pending and move to the next fire time.
			next, err := jobs.NextRun(job.CronSpec, time.Now())
			if err != nil {
				b.failJob(ctx, store, job, fmt.Sprintf("bad cron expression %q", job.CronSpec))
				continue
			}
			job.RunAt = next
		} else {
			job.Status = jobs.StatusDone
			job.CompletedAt = time.Now()
		}
		if err := store.Update(ctx, job); err != nil {
			b.logger.Warn("reminder state update failed", "job", job.ID, "error", err)
		}
	}
}

func (b *Bot) failJob(ctx context.Context, store jobs.Store, job *jobs.Job, reason string) {
	job.Status = jobs.StatusFailed
	job.CompletedAt = time.Now()
	job.Error = reason
	if err := store.Update(ctx, job); err != nil {
		b.logger.Warn("job state update failed", "job", job.ID, "error", err)
	}
}

func (b *Bot) authorized(userID int64) bool {
	return b.cfg.AllowedUserID != 0 && userID == b.cfg.AllowedUserID
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) error {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		b.logger.Error("send failed", "chat_id", chatID, "error", err)
	}
	return err
}

// sendApprovalPrompt posts the yes/no keyboard for one pending approval.
func (b *Bot) sendApprovalPrompt(ctx context.Context, req approvalRequest) error {
	chatID := b.cfg.AllowedUserID
	text := fmt.Sprintf("Tool %q requests approval.\nParameters: %s",
		req.toolName, compactParams(req.params))
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
		ReplyMarkup: &tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{{
				{Text: "✅ Approve", CallbackData: req.id + ":yes"},
				{Text: "❌ Deny", CallbackData: req.id + ":no"},
			}},
		},
	})
	return err
}

const helpText = `relay - local model router

Send any text to route it to the best local model.

/models  registered models
/tools   registered tools
/health  probe backends
/stats   execution counters
/tool <name> {"param": value}  run a tool`

// splitCommand separates a leading /command from its argument tail.
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	parts := strings.SplitN(text, " ", 2)
	command := parts[0]
	// Strip the @botname suffix groups add.
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}
	rest := ""
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return command, rest
}

// parseToolCommand splits "/tool" arguments into a name and a JSON
// parameter object.
func parseToolCommand(rest string) (string, map[string]any, error) {
	if rest == "" {
		return "", nil, fmt.Errorf("missing tool name")
	}
	name := rest
	var params map[string]any
	if i := strings.IndexAny(rest, " {"); i >= 0 {
		name = strings.TrimSpace(rest[:i])
		raw := strings.TrimSpace(rest[i:])
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				return "", nil, fmt.Errorf("parameters must be a JSON object: %v", err)
			}
		}
	}
	if name == "" {
		return "", nil, fmt.Errorf("missing tool name")
	}
	return name, params, nil
}

func compactParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(raw)
}

func formatModels(list []service.ModelSummary) string {
	if len(list) == 0 {
		return "no models registered"
	}
	var sb strings.Builder
	sb.WriteString("Models:\n")
	for _, m := range list {
		mark := "✖"
		if m.Available {
			mark = "✔"
		}
		fmt.Fprintf(&sb, "%s %s (%s, %s, cost %.2f)\n",
			mark, m.ID, m.Backend, m.SpeedClass, m.Cost)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTools(list []tools.ManifestSummary) string {
	if len(list) == 0 {
		return "no tools registered"
	}
	var sb strings.Builder
	sb.WriteString("Tools:\n")
	for _, t := range list {
		line := t.Name
		if t.RequiresConfirmation {
			line += " (needs approval)"
		}
		fmt.Fprintf(&sb, "%s - %s\n", line, t.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatHealth(health map[string]bool) string {
	if len(health) == 0 {
		return "no models registered"
	}
	var sb strings.Builder
	sb.WriteString("Health:\n")
	for id, ok := range health {
		mark := "✖"
		if ok {
			mark = "✔"
		}
		fmt.Fprintf(&sb, "%s %s\n", mark, id)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStats(s service.StatsSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Executions: %d (%.0f%% ok, %d fallbacks)\n",
		s.Engine.Executions, s.Engine.SuccessRate*100, s.Engine.Fallbacks)
	fmt.Fprintf(&sb, "Routings: %d\n", s.Routing.TotalRoutings)
	if len(s.Tools) > 0 {
		sb.WriteString("Tools:\n")
		for name, ts := range s.Tools {
			fmt.Fprintf(&sb, "  %s: %d runs, %d errors\n", name, ts.Executions, ts.Errors)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatToolResult(name string, res *models.ToolResult) string {
	if !res.Success {
		return fmt.Sprintf("⚠️ %s failed (%s): %s", name, res.ErrorKind, res.ErrorMessage)
	}
	raw, err := json.MarshalIndent(res.Value, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s: %v", name, res.Value)
	}
	return fmt.Sprintf("%s:\n%s", name, raw)
}
