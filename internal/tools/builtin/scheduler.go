package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/jobs"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

const maxScheduleDelay = 365 * 24 * time.Hour

// SchedulerTool manages reminders backed by a jobs.Store. Jobs survive
// restarts when the store is the sqlite one.
type SchedulerTool struct {
	store jobs.Store
	now   func() time.Time
}

// NewSchedulerTool builds the scheduler tool on the given store.
func NewSchedulerTool(store jobs.Store) *SchedulerTool {
	return &SchedulerTool{store: store, now: time.Now}
}

func (t *SchedulerTool) Manifest() tools.Manifest {
	var minDelay float64 = 1
	return tools.Manifest{
		Name:                 "scheduler",
		Description:          "Schedule, list, and cancel reminders delivered back to the requesting principal.",
		Category:             tools.CategoryAutomation,
		RequiresConfirmation: false,
		Trust:                tools.TrustCore,
		Scopes:               []tools.SecurityScope{tools.ScopeReadWrite},
		Profile:              tools.ProfileIOIntensive,
		Parameters: []tools.ParameterSpec{
			{
				Name:       "action",
				Type:       tools.TypeEnum,
				Required:   true,
				EnumValues: []string{"schedule", "list", "cancel"},
			},
			{
				Name:        "message",
				Type:        tools.TypeString,
				Description: "Reminder text. Required for schedule.",
			},
			{
				Name:        "in_seconds",
				Type:        tools.TypeNumber,
				Min:         &minDelay,
				Description: "Delay before a one-shot delivery.",
			},
			{
				Name:        "cron",
				Type:        tools.TypeString,
				Description: "Five-field cron expression for a recurring reminder.",
			},
			{
				Name:        "job_id",
				Type:        tools.TypeString,
				Description: "Job to cancel. Required for cancel.",
			},
		},
	}
}

// CheckParams enforces the per-action required fields.
func (t *SchedulerTool) CheckParams(params map[string]any) error {
	action, _ := params["action"].(string)
	switch action {
	case "schedule":
		if msg, _ := params["message"].(string); strings.TrimSpace(msg) == "" {
			return fmt.Errorf(`parameter "message" is required when action is schedule`)
		}
		_, hasDelay := params["in_seconds"].(float64)
		spec, _ := params["cron"].(string)
		hasCron := strings.TrimSpace(spec) != ""
		if hasDelay == hasCron {
			return fmt.Errorf(`schedule needs exactly one of "in_seconds" and "cron"`)
		}
	case "cancel":
		if id, _ := params["job_id"].(string); strings.TrimSpace(id) == "" {
			return fmt.Errorf(`parameter "job_id" is required when action is cancel`)
		}
	}
	return nil
}

func (t *SchedulerTool) Execute(ctx context.Context, params map[string]any) *models.ToolResult {
	action, _ := params["action"].(string)
	switch action {
	case "schedule":
		return t.schedule(ctx, params)
	case "list":
		return t.list(ctx)
	case "cancel":
		return t.cancel(ctx, params)
	default:
		return models.ToolFailure(models.KindValidation, fmt.Sprintf("unknown action %q", action))
	}
}

func (t *SchedulerTool) schedule(ctx context.Context, params map[string]any) *models.ToolResult {
	message, _ := params["message"].(string)
	principal := tools.PrincipalFrom(ctx)
	now := t.now()

	job := &jobs.Job{
		ID:        uuid.NewString(),
		Principal: principal,
		Message:   strings.TrimSpace(message),
		Status:    jobs.StatusPending,
		CreatedAt: now,
	}

	if spec, _ := params["cron"].(string); strings.TrimSpace(spec) != "" {
		next, err := jobs.NextRun(strings.TrimSpace(spec), now)
		if err != nil {
			return models.ToolFailure(models.KindValidation, err.Error())
		}
		job.CronSpec = strings.TrimSpace(spec)
		job.RunAt = next
	} else {
		seconds, _ := params["in_seconds"].(float64)
		delay := time.Duration(seconds * float64(time.Second))
		if delay > maxScheduleDelay {
			return models.ToolFailure(models.KindValidation,
				fmt.Sprintf("in_seconds exceeds the %s maximum", maxScheduleDelay))
		}
		job.RunAt = now.Add(delay)
	}

	if err := t.store.Create(ctx, job); err != nil {
		return models.ToolFailure(models.KindToolExecution,
			fmt.Sprintf("persist job: %v", err))
	}
	out := map[string]any{
		"job_id": job.ID,
		"run_at": job.RunAt.Format(time.RFC3339),
	}
	if job.CronSpec != "" {
		out["cron"] = job.CronSpec
	}
	return models.ToolSuccess(out)
}

func (t *SchedulerTool) list(ctx context.Context) *models.ToolResult {
	all, err := t.store.List(ctx, 0, 0)
	if err != nil {
		return models.ToolFailure(models.KindToolExecution,
			fmt.Sprintf("list jobs: %v", err))
	}
	out := make([]map[string]any, 0, len(all))
	for _, job := range all {
		if job.Status != jobs.StatusPending {
			continue
		}
		entry := map[string]any{
			"job_id":  job.ID,
			"message": job.Message,
			"run_at":  job.RunAt.Format(time.RFC3339),
		}
		if job.CronSpec != "" {
			entry["cron"] = job.CronSpec
		}
		out = append(out, entry)
	}
	return models.ToolSuccess(map[string]any{"jobs": out, "count": len(out)})
}

func (t *SchedulerTool) cancel(ctx context.Context, params map[string]any) *models.ToolResult {
	id, _ := params["job_id"].(string)
	job, err := t.store.Get(ctx, id)
	if err != nil {
		return models.ToolFailure(models.KindToolExecution,
			fmt.Sprintf("look up job: %v", err))
	}
	if job == nil {
		return models.ToolFailure(models.KindToolExecution,
			fmt.Sprintf("no job with id %s", id))
	}
	if job.Status != jobs.StatusPending {
		return models.ToolFailure(models.KindToolExecution,
			fmt.Sprintf("job %s is already %s", id, job.Status))
	}
	if err := t.store.Cancel(ctx, id); err != nil {
		return models.ToolFailure(models.KindToolExecution,
			fmt.Sprintf("cancel job: %v", err))
	}
	return models.ToolSuccess(map[string]any{"job_id": id, "status": string(jobs.StatusCancelled)})
}
