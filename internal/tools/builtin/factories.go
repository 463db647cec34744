package builtin

import (
	"github.com/haasonsaas/relay/internal/jobs"
	"github.com/haasonsaas/relay/internal/tools"
)

// Factories maps the built-in tool names onto constructors. The scheduler
// closes over the job store; everything else is stateless.
func Factories(store jobs.Store) map[string]tools.Factory {
	return map[string]tools.Factory{
		"clock":       func() (tools.Tool, error) { return NewClockTool(), nil },
		"calc":        func() (tools.Tool, error) { return NewCalcTool(), nil },
		"qr_generate": func() (tools.Tool, error) { return NewQRGenerateTool(), nil },
		"sysinfo":     func() (tools.Tool, error) { return NewSysinfoTool(), nil },
		"scheduler":   func() (tools.Tool, error) { return NewSchedulerTool(store), nil },
	}
}
