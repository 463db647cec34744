// Package builtin provides the native tool set shipped with the relay:
// small utilities plus the persistent reminder scheduler.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// ClockTool reports the current time, optionally in a named zone.
type ClockTool struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewClockTool builds a clock tool on the system clock.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

func (t *ClockTool) Manifest() tools.Manifest {
	return tools.Manifest{
		Name:        "clock",
		Description: "Get the current date and time, optionally in a specific IANA timezone.",
		Category:    tools.CategoryUtility,
		Trust:       tools.TrustCore,
		Scopes:      []tools.SecurityScope{tools.ScopeReadOnly},
		Profile:     tools.ProfileCPULight,
		Parameters: []tools.ParameterSpec{
			{
				Name:        "timezone",
				Type:        tools.TypeString,
				Default:     "UTC",
				Description: "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC.",
			},
		},
	}
}

func (t *ClockTool) Execute(_ context.Context, params map[string]any) *models.ToolResult {
	zone, _ := params["timezone"].(string)
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return models.ToolFailure(models.KindToolExecution,
			fmt.Sprintf("unknown timezone %q", zone))
	}
	now := t.now().In(loc)
	return models.ToolSuccess(map[string]any{
		"iso":      now.Format(time.RFC3339),
		"unix":     now.Unix(),
		"timezone": loc.String(),
		"weekday":  now.Weekday().String(),
	})
}
