//go:build linux
// +build linux

package magic

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

func TestCollectModuleFilesMerges(t *testing.T) {
	modA := t.TempDir()
	modB := t.TempDir()
	writeFile(t, filepath.Join(modA, "etc", "hosts"), "from a")
	writeFile(t, filepath.Join(modB, "etc", "resolv.conf"), "from b")

	system := newNode("system", Directory)
	if !collectModuleFiles(system, modA, "a") {
		t.Fatalf("module a should contribute files")
	}
	if !collectModuleFiles(system, modB, "b") {
		t.Fatalf("module b should contribute files")
	}

	etc := system.Children["etc"]
	if etc == nil || etc.Type != Directory {
		t.Fatalf("etc node missing: %+v", system.Children)
	}
	// 子节点合并而不是覆盖
	if len(etc.Children) != 2 {
		t.Fatalf("children should merge, got %v", etc.Children)
	}
	if etc.Children["hosts"].ModuleName != "a" {
		t.Fatalf("hosts should come from module a")
	}
	if etc.Children["resolv.conf"].ModuleName != "b" {
		t.Fatalf("resolv.conf should come from module b")
	}
}

func TestCollectModuleFilesTypeConflictFirstWins(t *testing.T) {
	modA := t.TempDir()
	modB := t.TempDir()
	// a 把 conf 写成文件，b 写成目录
	writeFile(t, filepath.Join(modA, "conf"), "file")
	writeFile(t, filepath.Join(modB, "conf", "inner"), "nested")

	system := newNode("system", Directory)
	collectModuleFiles(system, modA, "a")
	collectModuleFiles(system, modB, "b")

	conf := system.Children["conf"]
	if conf.Type != RegularFile {
		t.Fatalf("first arrival should win, got %v", conf.Type)
	}
	if conf.ModuleName != "a" {
		t.Fatalf("conf should stay owned by module a: %s", conf.ModuleName)
	}
}

func TestReplaceDirSentinel(t *testing.T) {
	mod := t.TempDir()
	writeFile(t, filepath.Join(mod, "app", ".replace"), "")
	writeFile(t, filepath.Join(mod, "app", "apk"), "x")

	system := newNode("system", Directory)
	collectModuleFiles(system, mod, "a")

	app := system.Children["app"]
	if app == nil || !app.Replace {
		t.Fatalf("app should be marked replace: %+v", app)
	}
}

func TestReplaceInheritedByOr(t *testing.T) {
	modA := t.TempDir()
	modB := t.TempDir()
	writeFile(t, filepath.Join(modA, "app", "x"), "x")
	writeFile(t, filepath.Join(modB, "app", ".replace"), "")

	system := newNode("system", Directory)
	collectModuleFiles(system, modA, "a")
	collectModuleFiles(system, modB, "b")

	if !system.Children["app"].Replace {
		t.Fatalf("replace should be inherited by OR across modules")
	}
}

// buildLiveRoot 构造一个最小的假实时根：/system 目录，
// /vendor 实际分区目录，/system/vendor 为符号链接。
func buildLiveRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "system", "etc"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "vendor"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink("/vendor", filepath.Join(root, "system", "vendor")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	return root
}

func TestCollectTreePromotesPartition(t *testing.T) {
	root := buildLiveRoot(t)

	mod := t.TempDir()
	modDir := filepath.Join(mod, "vmod")
	writeFile(t, filepath.Join(modDir, "system", "vendor", "etc", "cfg"), "v")
	writeFile(t, filepath.Join(modDir, "system", "etc", "hosts"), "h")

	tree := collectTree(root, []string{modDir}, nil)
	if tree == nil {
		t.Fatalf("tree should not be empty")
	}

	// vendor 子树被提升到根
	vendor := tree.Children["vendor"]
	if vendor == nil {
		t.Fatalf("vendor should be promoted to root: %v", tree.Children)
	}
	if vendor.Type != Directory {
		t.Fatalf("vendor node should be a directory")
	}
	if _, ok := tree.Children["system"].Children["vendor"]; ok {
		t.Fatalf("vendor should be removed from system subtree")
	}
	if tree.Children["system"].Children["etc"] == nil {
		t.Fatalf("system/etc should remain")
	}
}

func TestCollectTreeSkipsDisabledModules(t *testing.T) {
	root := buildLiveRoot(t)

	mod := t.TempDir()
	modDir := filepath.Join(mod, "m")
	writeFile(t, filepath.Join(modDir, "system", "etc", "hosts"), "h")
	writeFile(t, filepath.Join(modDir, "disable"), "")

	if tree := collectTree(root, []string{modDir}, nil); tree != nil {
		t.Fatalf("disabled module should yield empty tree")
	}
}

func TestShouldCreateTmpfsDecision(t *testing.T) {
	root := buildLiveRoot(t)
	etc := filepath.Join(root, "system", "etc")
	writeFile(t, filepath.Join(etc, "hosts"), "live")

	eng := &Engine{LiveRoot: root}

	// 与实时条目同类型的普通文件：就地绑定即可
	plain := newNode("etc", Directory)
	plain.Children["hosts"] = &Node{Name: "hosts", Type: RegularFile}
	if eng.shouldCreateTmpfs(plain, etc) {
		t.Fatalf("matching regular file should not need tmpfs")
	}

	// 新增文件（实时系统没有）需要 tmpfs
	added := newNode("etc", Directory)
	added.Children["new.conf"] = &Node{Name: "new.conf", Type: RegularFile}
	if !eng.shouldCreateTmpfs(added, etc) {
		t.Fatalf("new entry should force tmpfs")
	}

	// 符号链接子节点总是需要 tmpfs
	link := newNode("etc", Directory)
	link.Children["hosts"] = &Node{Name: "hosts", Type: Symlink}
	if !eng.shouldCreateTmpfs(link, etc) {
		t.Fatalf("symlink child should force tmpfs")
	}

	// whiteout：只有遮蔽真实条目时才需要
	wh := newNode("etc", Directory)
	wh.Children["hosts"] = &Node{Name: "hosts", Type: Whiteout}
	if !eng.shouldCreateTmpfs(wh, etc) {
		t.Fatalf("whiteout over existing entry should force tmpfs")
	}
	wh2 := newNode("etc", Directory)
	wh2.Children["ghost"] = &Node{Name: "ghost", Type: Whiteout}
	if eng.shouldCreateTmpfs(wh2, etc) {
		t.Fatalf("whiteout over missing entry should not force tmpfs")
	}

	// replace 目录（实时存在）需要 tmpfs
	rep := newNode("etc", Directory)
	rep.Replace = true
	if !eng.shouldCreateTmpfs(rep, etc) {
		t.Fatalf("replace dir should force tmpfs")
	}

	// 类型不一致（实时是文件，模块是目录）需要 tmpfs
	mismatch := newNode("etc", Directory)
	mismatch.Children["hosts"] = &Node{Name: "hosts", Type: Directory}
	if !eng.shouldCreateTmpfs(mismatch, etc) {
		t.Fatalf("type mismatch should force tmpfs")
	}
}

func TestFileTypeOf(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f"), "x")
	if err := os.Symlink("f", filepath.Join(dir, "l")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if fileTypeOf(filepath.Join(dir, "f")) != RegularFile {
		t.Fatalf("regular file misdetected")
	}
	if fileTypeOf(dir) != Directory {
		t.Fatalf("directory misdetected")
	}
	if fileTypeOf(filepath.Join(dir, "l")) != Symlink {
		t.Fatalf("symlink misdetected")
	}
}
