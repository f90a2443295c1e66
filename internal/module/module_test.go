package module

import (
	"os"
	"path/filepath"
	"testing"
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

func TestScanSentinels(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "active", "system", "etc", "f"), "x")
	writeFile(t, filepath.Join(root, "disabled", "system", "etc", "f"), "x")
	writeFile(t, filepath.Join(root, "disabled", "disable"), "")
	writeFile(t, filepath.Join(root, "removed", "remove"), "")
	writeFile(t, filepath.Join(root, "skipped", "skip_mount"), "")
	// 非目录条目被忽略
	writeFile(t, filepath.Join(root, "stray_file"), "")

	modules, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(modules) != 4 {
		t.Fatalf("expected 4 modules, got %d", len(modules))
	}

	byID := make(map[string]*Module)
	for _, m := range modules {
		byID[m.ID] = m
	}
	if !byID["active"].Active() {
		t.Fatalf("active module misdetected")
	}
	if byID["disabled"].Active() || !byID["disabled"].Disabled {
		t.Fatalf("disable sentinel not honored")
	}
	if byID["removed"].Active() || !byID["removed"].Removed {
		t.Fatalf("remove sentinel not honored")
	}
	if byID["skipped"].Active() || !byID["skipped"].SkipMount {
		t.Fatalf("skip_mount sentinel not honored")
	}
}

func TestScanAppliesModes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "m", "system", "etc", "f"), "x")

	modules, err := Scan(root, map[string]string{"m": "magic", "other": "overlay"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if modules[0].Mode != "magic" {
		t.Fatalf("mode override not applied: %s", modules[0].Mode)
	}

	// 非法模式回退为 auto
	modules, err = Scan(root, map[string]string{"m": "bogus"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if modules[0].Mode != "auto" {
		t.Fatalf("invalid mode should fall back to auto: %s", modules[0].Mode)
	}
}

func TestHasContent(t *testing.T) {
	root := t.TempDir()
	// 只有空目录的模块没有内容
	if err := os.MkdirAll(filepath.Join(root, "empty", "system", "etc"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(root, "full", "vendor", "etc", "f"), "x")

	parts := []string{"system", "vendor"}
	modules, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	byID := make(map[string]*Module)
	for _, m := range modules {
		byID[m.ID] = m
	}
	if byID["empty"].HasContent(parts) {
		t.Fatalf("empty module should have no content")
	}
	if !byID["full"].HasContent(parts) {
		t.Fatalf("full module should have content")
	}
	if got := byID["full"].PartitionsWithContent(parts); len(got) != 1 || got[0] != "vendor" {
		t.Fatalf("partitions with content wrong: %v", got)
	}
}

func TestScanActiveFiltersEmptyAndDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good", "system", "etc", "f"), "x")
	writeFile(t, filepath.Join(root, "off", "system", "etc", "f"), "x")
	writeFile(t, filepath.Join(root, "off", "disable"), "")
	if err := os.MkdirAll(filepath.Join(root, "hollow", "system"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	active, err := ScanActive(root, nil, []string{"system"})
	if err != nil {
		t.Fatalf("scan active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "good" {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestScanPartitionCandidates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "system", "f"), "x")
	writeFile(t, filepath.Join(root, "a", "my_part", "f"), "x")
	writeFile(t, filepath.Join(root, "b", "my_part", "g"), "x")
	writeFile(t, filepath.Join(root, "b", "META-INF", "cert"), "x")

	candidates := ScanPartitionCandidates(root)
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c] {
			t.Fatalf("candidate duplicated: %v", candidates)
		}
		seen[c] = true
	}
	if !seen["my_part"] || !seen["system"] {
		t.Fatalf("expected candidates missing: %v", candidates)
	}
	if seen["META-INF"] {
		t.Fatalf("metadata dir should be excluded: %v", candidates)
	}
}

func TestReadProp(t *testing.T) {
	dir := t.TempDir()
	prop := filepath.Join(dir, "module.prop")
	writeFile(t, prop, "id=test\nname=Test Module\nversion=v1.0\nversionCode=1\n")

	if got := ReadProp(prop, "name"); got != "Test Module" {
		t.Fatalf("name = %q", got)
	}
	if got := ReadProp(prop, "version"); got != "v1.0" {
		t.Fatalf("version = %q", got)
	}
	if got := ReadProp(prop, "author"); got != "" {
		t.Fatalf("missing key should yield empty, got %q", got)
	}
	// version 前缀不能串到 versionCode
	if got := ReadProp(prop, "versionCode"); got != "1" {
		t.Fatalf("versionCode = %q", got)
	}
}
