package tools

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/relay/pkg/models"
)

// categoryDirs is the fixed on-disk layout scanned for tool units, one
// subdirectory per category.
var categoryDirs = []string{
	"utility_tools",
	"data_tools",
	"web_tools",
	"audio_tools",
	"dev_tools",
	"automation_tools",
	"knowledge_tools",
}

// LoadFailure records one unit that could not be loaded.
type LoadFailure struct {
	UnitPath     string           `json:"unit_path"`
	ErrorMessage string           `json:"error_message"`
	ErrorKind    models.ErrorKind `json:"error_kind"`
}

// LoadReport summarizes one discovery pass.
type LoadReport struct {
	LoadedCount int           `json:"loaded_count"`
	Failures    []LoadFailure `json:"failures,omitempty"`
}

// unitFile is the on-disk declaration of a tool unit. A unit enables zero
// or more factories by name.
type unitFile struct {
	Tool    string   `yaml:"tool"`
	Tools   []string `yaml:"tools"`
	Enabled *bool    `yaml:"enabled"`
}

func (u *unitFile) names() []string {
	if u.Tool != "" {
		return append([]string{u.Tool}, u.Tools...)
	}
	return u.Tools
}

// Discoverer scans the tool root for unit files and registers the tools
// they enable. Per-unit failures are recorded, never fatal.
type Discoverer struct {
	root      string
	factories map[string]Factory
	logger    *slog.Logger
}

// NewDiscoverer builds a discoverer over the given root and factory set.
func NewDiscoverer(root string, factories map[string]Factory, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{root: root, factories: factories, logger: logger}
}

// Discover walks the category directories once and registers every
// enabled tool into the registry.
func (d *Discoverer) Discover(reg *Registry) LoadReport {
	var report LoadReport
	for _, dir := range categoryDirs {
		path := filepath.Join(d.root, dir)
		entries, err := os.ReadDir(path)
		if err != nil {
			// Absent category directories are normal.
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			d.loadUnit(reg, filepath.Join(path, name), &report)
		}
	}
	d.logger.Info("tool discovery finished",
		"loaded", report.LoadedCount,
		"failed", len(report.Failures))
	return report
}

func (d *Discoverer) loadUnit(reg *Registry, unitPath string, report *LoadReport) {
	fail := func(kind models.ErrorKind, err error) {
		d.logger.Warn("tool unit failed to load",
			"unit", unitPath, "error", err)
		report.Failures = append(report.Failures, LoadFailure{
			UnitPath:     unitPath,
			ErrorMessage: err.Error(),
			ErrorKind:    kind,
		})
	}

	raw, err := os.ReadFile(unitPath)
	if err != nil {
		fail(models.KindInternal, err)
		return
	}
	var unit unitFile
	if err := yaml.Unmarshal(raw, &unit); err != nil {
		fail(models.KindValidation, fmt.Errorf("parse unit: %w", err))
		return
	}
	if unit.Enabled != nil && !*unit.Enabled {
		return
	}
	names := unit.names()
	if len(names) == 0 {
		fail(models.KindValidation, fmt.Errorf("unit declares no tools"))
		return
	}

	for _, name := range names {
		factory, ok := d.factories[name]
		if !ok {
			fail(models.KindValidation, fmt.Errorf("unknown tool %q", name))
			continue
		}
		tool, err := factory()
		if err != nil {
			fail(models.KindInternal, fmt.Errorf("construct %s: %w", name, err))
			continue
		}
		if err := reg.Register(tool); err != nil {
			fail(models.KindValidation, err)
			continue
		}
		report.LoadedCount++
	}
}

// RegisterAll registers one instance of every factory directly, bypassing
// the filesystem scan. Used when no tool root is configured.
func RegisterAll(reg *Registry, factories map[string]Factory, logger *slog.Logger) LoadReport {
	if logger == nil {
		logger = slog.Default()
	}
	var report LoadReport
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tool, err := factories[name]()
		if err != nil {
			report.Failures = append(report.Failures, LoadFailure{
				UnitPath:     name,
				ErrorMessage: err.Error(),
				ErrorKind:    models.KindInternal,
			})
			continue
		}
		if err := reg.Register(tool); err != nil {
			report.Failures = append(report.Failures, LoadFailure{
				UnitPath:     name,
				ErrorMessage: err.Error(),
				ErrorKind:    models.KindValidation,
			})
			continue
		}
		report.LoadedCount++
	}
	logger.Info("registered built-in tools", "loaded", report.LoadedCount, "failed", len(report.Failures))
	return report
}
