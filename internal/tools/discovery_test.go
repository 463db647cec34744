package tools

import (
	"os"
	"path/filepath"
	"testing"
)

func writeUnit(t *testing.T, root, category, name, body string) {
	t.Helper()
	dir := filepath.Join(root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write unit: %v", err)
	}
}

func stubFactory(name string, cat Category) Factory {
	return func() (Tool, error) {
		return &stubTool{manifest: stubManifest(func(m *Manifest) {
			m.Name = name
			m.Category = cat
		})}, nil
	}
}

func TestDiscoverLoadsUnits(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "utility_tools", "clock.yaml", "tool: clock\n")
	writeUnit(t, root, "dev_tools", "bundle.yaml", "tools:\n  - fmt\n  - lint\n")
	writeUnit(t, root, "data_tools", "off.yaml", "tool: exporter\nenabled: false\n")

	factories := map[string]Factory{
		"clock":    stubFactory("clock", CategoryUtility),
		"fmt":      stubFactory("fmt", CategoryDevelopment),
		"lint":     stubFactory("lint", CategoryDevelopment),
		"exporter": stubFactory("exporter", CategoryData),
	}

	reg := NewRegistry(NewFramework(FrameworkConfig{Gate: AutoApprove{}}))
	report := NewDiscoverer(root, factories, nil).Discover(reg)

	if report.LoadedCount != 3 {
		t.Errorf("loaded = %d, want 3", report.LoadedCount)
	}
	if len(report.Failures) != 0 {
		t.Errorf("failures = %+v", report.Failures)
	}
	if _, ok := reg.Get("exporter"); ok {
		t.Error("disabled unit must not register")
	}
	if _, ok := reg.Get("lint"); !ok {
		t.Error("multi-tool unit missed lint")
	}
}

func TestDiscoverToleratesBrokenUnits(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "utility_tools", "bad.yaml", "tool: [not\n")
	writeUnit(t, root, "utility_tools", "ghost.yaml", "tool: nonexistent\n")
	writeUnit(t, root, "utility_tools", "good.yaml", "tool: clock\n")
	writeUnit(t, root, "utility_tools", "empty.yaml", "enabled: true\n")
	writeUnit(t, root, "utility_tools", "notes.txt", "ignored\n")

	factories := map[string]Factory{"clock": stubFactory("clock", CategoryUtility)}
	reg := NewRegistry(NewFramework(FrameworkConfig{Gate: AutoApprove{}}))
	report := NewDiscoverer(root, factories, nil).Discover(reg)

	if report.LoadedCount != 1 {
		t.Errorf("loaded = %d, want 1", report.LoadedCount)
	}
	if len(report.Failures) != 3 {
		t.Fatalf("failures = %+v, want 3", report.Failures)
	}
	for _, f := range report.Failures {
		if f.UnitPath == "" || f.ErrorMessage == "" || f.ErrorKind == "" {
			t.Errorf("incomplete failure record: %+v", f)
		}
	}
	if _, ok := reg.Get("clock"); !ok {
		t.Error("healthy unit should still load")
	}
}

func TestDiscoverCollisionRejectsLaterUnit(t *testing.T) {
	root := t.TempDir()
	// Same factory enabled twice; the second registration collides.
	writeUnit(t, root, "utility_tools", "a.yaml", "tool: clock\n")
	writeUnit(t, root, "utility_tools", "b.yaml", "tool: clock\n")

	factories := map[string]Factory{"clock": stubFactory("clock", CategoryUtility)}
	reg := NewRegistry(NewFramework(FrameworkConfig{Gate: AutoApprove{}}))
	report := NewDiscoverer(root, factories, nil).Discover(reg)

	if report.LoadedCount != 1 || len(report.Failures) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRegisterAll(t *testing.T) {
	factories := map[string]Factory{
		"clock": stubFactory("clock", CategoryUtility),
		"fmt":   stubFactory("fmt", CategoryDevelopment),
	}
	reg := NewRegistry(NewFramework(FrameworkConfig{Gate: AutoApprove{}}))
	report := RegisterAll(reg, factories, nil)
	if report.LoadedCount != 2 || len(report.Failures) != 0 {
		t.Errorf("report = %+v", report)
	}
	if reg.Len() != 2 {
		t.Errorf("len = %d", reg.Len())
	}
}
