//go:build linux
// +build linux

package module

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShouldSync(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	// 目标缺失 → 同步
	if !shouldSync(src, filepath.Join(dst, "missing")) {
		t.Fatalf("missing target should force sync")
	}

	// 任一侧缺 prop → 同步
	if !shouldSync(src, dst) {
		t.Fatalf("missing prop should force sync")
	}

	writeFile(t, filepath.Join(src, PropFileName), "version=1\n")
	writeFile(t, filepath.Join(dst, PropFileName), "version=1\n")
	if shouldSync(src, dst) {
		t.Fatalf("identical prop should skip sync")
	}

	writeFile(t, filepath.Join(src, PropFileName), "version=2\n")
	if !shouldSync(src, dst) {
		t.Fatalf("changed prop should force sync")
	}
}

func TestCopyTreePreservesShape(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "system", "etc", "hosts"), "127.0.0.1\n")
	if err := os.Symlink("hosts", filepath.Join(src, "system", "etc", "alias")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "copy")
	if err := copyTree(src, dst); err != nil {
		t.Fatalf("copy tree: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "system", "etc", "hosts"))
	if err != nil || string(data) != "127.0.0.1\n" {
		t.Fatalf("file content lost: %q, %v", data, err)
	}
	target, err := os.Readlink(filepath.Join(dst, "system", "etc", "alias"))
	if err != nil || target != "hosts" {
		t.Fatalf("symlink lost: %q, %v", target, err)
	}
}

func TestSyncAllPrunesOrphans(t *testing.T) {
	srcRoot := t.TempDir()
	target := t.TempDir()

	writeFile(t, filepath.Join(srcRoot, "keep", "system", "etc", "f"), "x")
	writeFile(t, filepath.Join(srcRoot, "keep", PropFileName), "version=1\n")
	writeFile(t, filepath.Join(target, "stale", "system", "etc", "f"), "old")
	writeFile(t, filepath.Join(target, "lost+found", "junk"), "")

	modules, err := Scan(srcRoot, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := SyncAll(modules, target, []string{"system"}); err != nil {
		t.Fatalf("sync all: %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, "stale")); !os.IsNotExist(err) {
		t.Fatalf("stale module should be pruned")
	}
	if _, err := os.Stat(filepath.Join(target, "lost+found")); err != nil {
		t.Fatalf("lost+found must be left alone")
	}
	data, err := os.ReadFile(filepath.Join(target, "keep", "system", "etc", "f"))
	if err != nil || string(data) != "x" {
		t.Fatalf("module not synced: %q, %v", data, err)
	}
}

func TestSyncAllSkipsUpToDate(t *testing.T) {
	srcRoot := t.TempDir()
	target := t.TempDir()

	writeFile(t, filepath.Join(srcRoot, "m", "system", "etc", "f"), "v1")
	writeFile(t, filepath.Join(srcRoot, "m", PropFileName), "version=1\n")

	modules, err := Scan(srcRoot, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := SyncAll(modules, target, []string{"system"}); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// prop 未变时第二次同步不得覆盖目标内容
	writeFile(t, filepath.Join(target, "m", "system", "etc", "f"), "mirror-local")
	if err := SyncAll(modules, target, []string{"system"}); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(target, "m", "system", "etc", "f"))
	if string(data) != "mirror-local" {
		t.Fatalf("up-to-date module was recopied")
	}

	// prop 变化触发重新拷贝
	writeFile(t, filepath.Join(srcRoot, "m", PropFileName), "version=2\n")
	if err := SyncAll(modules, target, []string{"system"}); err != nil {
		t.Fatalf("third sync: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(target, "m", "system", "etc", "f"))
	if string(data) != "v1" {
		t.Fatalf("changed module was not recopied: %q", data)
	}
}
