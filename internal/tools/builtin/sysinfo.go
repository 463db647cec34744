package builtin

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

var processStart = time.Now()

// SysinfoTool reports host and process statistics. Read-only: it never
// touches system state.
type SysinfoTool struct{}

// NewSysinfoTool builds the sysinfo tool.
func NewSysinfoTool() *SysinfoTool { return &SysinfoTool{} }

func (t *SysinfoTool) Manifest() tools.Manifest {
	return tools.Manifest{
		Name:        "sysinfo",
		Description: "Report host platform, CPU count, memory in use, and process uptime.",
		Category:    tools.CategorySystem,
		Trust:       tools.TrustCore,
		Scopes:      []tools.SecurityScope{tools.ScopeReadOnly},
		Profile:     tools.ProfileCPULight,
	}
}

func (t *SysinfoTool) Execute(_ context.Context, _ map[string]any) *models.ToolResult {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return models.ToolSuccess(map[string]any{
		"hostname":       hostname,
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"cpus":           runtime.NumCPU(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  float64(mem.HeapAlloc) / (1 << 20),
		"uptime_seconds": time.Since(processStart).Seconds(),
	})
}
