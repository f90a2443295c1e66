//go:build linux
// +build linux

package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"hymod/internal/config"
	"hymod/internal/module"
	"hymod/internal/planner"
)

func TestPathExcluded(t *testing.T) {
	excluded := []string{"/system/etc", "/system/fonts"}

	cases := map[string]bool{
		"/system/etc":          true,
		"/system/etc/hosts":    true,
		"/system/etcetera":     false,
		"/system/fonts/a.ttf":  true,
		"/system/lib/libc.so":  false,
		"/vendor/etc/anything": false,
	}
	for path, want := range cases {
		if got := pathExcluded(path, excluded); got != want {
			t.Errorf("pathExcluded(%q) = %v, want %v", path, got, want)
		}
	}

	if pathExcluded("/system/etc", nil) {
		t.Errorf("empty exclusion list should exclude nothing")
	}
}

func TestActiveMounts(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()

	mkmod := func(id string, parts ...string) *module.Module {
		for _, p := range parts {
			dir := filepath.Join(root, id, p)
			if err := os.MkdirAll(dir, 0755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
		}
		return &module.Module{ID: id, SourcePath: filepath.Join(root, id)}
	}

	modules := []*module.Module{
		mkmod("fast", "system"),
		mkmod("magic", "vendor"),
	}
	plan := &planner.Plan{
		HymofsModuleIDs: []string{"fast"},
		MagicModuleIDs:  []string{"magic"},
		OverlayOps:      []planner.OverlayOp{{Target: "/product"}},
	}

	active := activeMounts(cfg, modules, plan)
	want := map[string]bool{"system": true, "vendor": true, "product": true}
	if len(active) != len(want) {
		t.Fatalf("active mounts = %v", active)
	}
	for _, p := range active {
		if !want[p] {
			t.Fatalf("unexpected active mount %q in %v", p, active)
		}
	}
}
