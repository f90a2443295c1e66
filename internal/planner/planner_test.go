package planner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hymod/internal/config"
	"hymod/internal/module"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func stageModule(t *testing.T, storageRoot, id string, files ...string) *module.Module {
	t.Helper()
	for _, f := range files {
		writeFile(t, filepath.Join(storageRoot, id, f), "content")
	}
	return &module.Module{
		ID:         id,
		SourcePath: filepath.Join(storageRoot, id),
		Mode:       string(config.ModeAuto),
	}
}

func TestGenerateFastPath(t *testing.T) {
	storageRoot := t.TempDir()
	cfg := config.Default()

	modules := []*module.Module{
		stageModule(t, storageRoot, "a", "system/etc/hosts"),
		stageModule(t, storageRoot, "b", "vendor/etc/cfg"),
	}

	plan := Generate(cfg, modules, storageRoot, true)

	if len(plan.HymofsModuleIDs) != 2 {
		t.Fatalf("expected both modules on fast path: %+v", plan)
	}
	if len(plan.OverlayOps) != 0 || len(plan.MagicModulePaths) != 0 {
		t.Fatalf("fast path plan should not contain overlay/magic entries: %+v", plan)
	}
}

func TestGenerateOverlayGrouping(t *testing.T) {
	storageRoot := t.TempDir()
	cfg := config.Default()

	modules := []*module.Module{
		stageModule(t, storageRoot, "a", "system/etc/a.conf"),
		stageModule(t, storageRoot, "b", "system/etc/b.conf", "vendor/etc/v.conf"),
	}

	plan := Generate(cfg, modules, storageRoot, false)

	if len(plan.HymofsModuleIDs) != 0 {
		t.Fatalf("fast path unavailable, no hymofs ids expected: %+v", plan)
	}
	if len(plan.OverlayOps) != 2 {
		t.Fatalf("expected 2 overlay ops (system, vendor): %+v", plan.OverlayOps)
	}

	var systemOp *OverlayOp
	for i := range plan.OverlayOps {
		if plan.OverlayOps[i].Target == "/system" {
			systemOp = &plan.OverlayOps[i]
		}
	}
	if systemOp == nil {
		t.Fatalf("system overlay op missing: %+v", plan.OverlayOps)
	}
	// 扫描顺序 [a, b] → lowerdir 顺序 [b, a]（后装的覆盖先装的）
	if len(systemOp.LowerDirs) != 2 ||
		!strings.HasSuffix(systemOp.LowerDirs[0], "b/system") ||
		!strings.HasSuffix(systemOp.LowerDirs[1], "a/system") {
		t.Fatalf("lowerdir order wrong: %v", systemOp.LowerDirs)
	}

	if len(plan.OverlayModuleIDs) != 2 {
		t.Fatalf("overlay module ids wrong: %v", plan.OverlayModuleIDs)
	}
}

func TestGenerateMagicForEscapingSymlink(t *testing.T) {
	storageRoot := t.TempDir()
	cfg := config.Default()

	m := stageModule(t, storageRoot, "a", "system/etc/a.conf")
	// 相对符号链接越出模块树 → 不适合 overlay
	if err := os.Symlink("../../../../outside", filepath.Join(storageRoot, "a", "system", "etc", "esc")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	plan := Generate(cfg, []*module.Module{m}, storageRoot, false)

	if len(plan.MagicModulePaths) != 1 {
		t.Fatalf("escaping symlink should force magic: %+v", plan)
	}
	if len(plan.OverlayOps) != 0 {
		t.Fatalf("module must not appear in two mechanisms: %+v", plan)
	}
}

func TestGenerateExplicitModes(t *testing.T) {
	storageRoot := t.TempDir()
	cfg := config.Default()

	magicMod := stageModule(t, storageRoot, "m", "system/etc/m.conf")
	magicMod.Mode = string(config.ModeMagic)
	noneMod := stageModule(t, storageRoot, "n", "system/etc/n.conf")
	noneMod.Mode = string(config.ModeNone)

	plan := Generate(cfg, []*module.Module{magicMod, noneMod}, storageRoot, true)

	if len(plan.MagicModuleIDs) != 1 || plan.MagicModuleIDs[0] != "m" {
		t.Fatalf("explicit magic mode ignored: %+v", plan)
	}
	if len(plan.HymofsModuleIDs) != 0 {
		t.Fatalf("none mode module leaked into plan: %+v", plan)
	}
}

func TestGenerateEmptyModules(t *testing.T) {
	storageRoot := t.TempDir()
	cfg := config.Default()

	// 模块内容缺失：计划为空，不触发任何挂载
	missing := &module.Module{ID: "ghost", SourcePath: filepath.Join(storageRoot, "ghost"),
		Mode: string(config.ModeAuto)}

	plan := Generate(cfg, []*module.Module{missing}, storageRoot, false)
	if len(plan.OverlayOps) != 0 || len(plan.MagicModulePaths) != 0 || len(plan.HymofsModuleIDs) != 0 {
		t.Fatalf("empty module should produce empty plan: %+v", plan)
	}
}

func TestSegregate(t *testing.T) {
	mirror := t.TempDir()
	writeFile(t, filepath.Join(mirror, "a", "system", "etc", "f"), "x")
	writeFile(t, filepath.Join(mirror, "b", "system", "etc", "f"), "x")
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "keep", "system", "etc", "f"), "x")

	plan := &Plan{
		OverlayOps: []OverlayOp{{
			Target:    "/system",
			LowerDirs: []string{filepath.Join(mirror, "a", "system"), filepath.Join(outside, "keep", "system")},
		}},
		MagicModulePaths: []string{filepath.Join(mirror, "b")},
	}

	Segregate(plan, mirror)

	staged := filepath.Join(mirror, StagingDirName)
	if !strings.HasPrefix(plan.MagicModulePaths[0], staged) {
		t.Fatalf("magic source not segregated: %s", plan.MagicModulePaths[0])
	}
	if !strings.HasPrefix(plan.OverlayOps[0].LowerDirs[0], staged) {
		t.Fatalf("overlay lower not segregated: %s", plan.OverlayOps[0].LowerDirs[0])
	}
	// 镜像之外的来源保持不动
	if plan.OverlayOps[0].LowerDirs[1] != filepath.Join(outside, "keep", "system") {
		t.Fatalf("outside source must not move: %s", plan.OverlayOps[0].LowerDirs[1])
	}
}
