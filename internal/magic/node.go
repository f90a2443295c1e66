//go:build linux
// +build linux

// Package magic implements the per-file bind-mount projection engine.
//
// 引擎先把所有模块的 system 树合并成一棵 Node 树，再决定每个目录
// 是否需要 tmpfs 遮蔽，最后递归地以逐文件绑定挂载的方式投影到
// 实时根上。合并时子节点按名字合并而不是覆盖；同名不同类型时
// 先到者生效并记 WARN。
package magic

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"hymod/internal/config"
)

// FileType 是合并树节点的文件类别
type FileType int

const (
	RegularFile FileType = iota
	Directory
	Symlink
	// Whiteout 是 rdev 为 0 的字符设备
	Whiteout
)

func (t FileType) String() string {
	switch t {
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	case Whiteout:
		return "whiteout"
	default:
		return "file"
	}
}

// Node 是合并树节点
type Node struct {
	Name     string
	Type     FileType
	Children map[string]*Node

	// ModulePath 是贡献该节点的模块内路径（目录取首个贡献模块）
	ModulePath string
	// ModuleName 是贡献模块的 ID
	ModuleName string

	// Replace 表示目录声明为不透明（xattr 或 .replace 哨兵）
	Replace bool
	// Skip 为 true 的子节点不参与挂载
	Skip bool
}

func newNode(name string, t FileType) *Node {
	return &Node{Name: name, Type: t, Children: make(map[string]*Node)}
}

// fileTypeOf 判定路径的节点类别；lstat 失败时按普通文件处理
func fileTypeOf(path string) FileType {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return RegularFile
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFCHR:
		if st.Rdev == 0 {
			return Whiteout
		}
		return RegularFile
	case unix.S_IFDIR:
		return Directory
	case unix.S_IFLNK:
		return Symlink
	default:
		return RegularFile
	}
}

// dirIsReplace 判定目录是否声明为不透明：
// xattr trusted.overlay.opaque=y，或目录内存在 .replace 哨兵。
func dirIsReplace(path string) bool {
	buf := make([]byte, 4)
	n, err := unix.Lgetxattr(path, config.ReplaceDirXattr, buf)
	if err == nil && n > 0 && buf[0] == 'y' {
		return true
	}
	if _, err := os.Lstat(filepath.Join(path, config.ReplaceFileName)); err == nil {
		return true
	}
	return false
}

// collectModuleFiles 把 moduleDir 的内容合并进 node 的子树。
// 返回该子树是否含有待挂载的文件。
func collectModuleFiles(node *Node, moduleDir, moduleName string) bool {
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		logrus.Debugf("magic: read %s: %v", moduleDir, err)
		return false
	}

	hasFile := false
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(moduleDir, name)
		ft := fileTypeOf(path)

		child, ok := node.Children[name]
		if !ok {
			child = newNode(name, ft)
			child.ModulePath = path
			child.ModuleName = moduleName
			node.Children[name] = child
		} else if child.Type != ft {
			// 两个模块对同名条目给出了不同类型：先到者生效
			logrus.Warnf("magic: type conflict on %s: %s from %s kept, %s from %s ignored",
				name, child.Type, child.ModuleName, ft, moduleName)
			continue
		}

		if ft == Directory {
			if dirIsReplace(path) {
				child.Replace = true
				logrus.Debugf("magic: replace dir %s", path)
			}
			childHasFile := collectModuleFiles(child, path, moduleName)
			hasFile = hasFile || childHasFile || child.Replace
		} else {
			hasFile = true
		}
	}
	return hasFile
}

// builtinAttach 描述根分区挂接规则：requireSymlink 为 true 时，
// 只有当 /system/<part> 是符号链接时才把该分区提升到根。
var builtinAttach = []struct {
	name           string
	requireSymlink bool
}{
	{"vendor", true},
	{"system_ext", true},
	{"product", true},
	{"odm", false},
}

// collectTree 合并全部模块，返回以实时根为映射对象的合并树。
// liveRoot 在生产环境是 "/"，测试中可指向构造的假根。
func collectTree(liveRoot string, modulePaths []string, extraPartitions []string) *Node {
	root := newNode("", Directory)
	system := newNode("system", Directory)
	system.ModulePath = filepath.Join(liveRoot, "system")

	hasFile := false
	for _, modulePath := range modulePaths {
		id := filepath.Base(modulePath)

		if sentinelPresent(modulePath) {
			logrus.Debugf("magic: skipped module %s (disabled/removed/skip_mount)", id)
			continue
		}

		moduleSystem := filepath.Join(modulePath, "system")
		if info, err := os.Stat(moduleSystem); err != nil || !info.IsDir() {
			logrus.Debugf("magic: module %s has no system directory", id)
			continue
		}

		logrus.Infof("magic: collecting module %s", id)
		if collectModuleFiles(system, moduleSystem, id) {
			hasFile = true
		}
	}

	if !hasFile {
		return nil
	}

	// 把 vendor 等分区从 system 子树提升到根：实时系统中它们是
	// 独立分区，/system/<part> 只是符号链接。
	for _, attach := range builtinAttach {
		promotePartition(root, system, liveRoot, attach.name, attach.requireSymlink)
	}
	for _, part := range extraPartitions {
		if part == "system" || isBuiltinAttach(part) {
			continue
		}
		promotePartition(root, system, liveRoot, part, false)
	}

	root.Children["system"] = system
	return root
}

func isBuiltinAttach(name string) bool {
	for _, attach := range builtinAttach {
		if attach.name == name {
			return true
		}
	}
	return false
}

// promotePartition 把 system 下的分区节点移动到根节点。
// 模块里的 /system/<part> 是指向目录的符号链接时，
// 节点类型提升为目录。
func promotePartition(root, system *Node, liveRoot, name string, requireSymlink bool) {
	pathOfRoot := filepath.Join(liveRoot, name)
	pathOfSystem := filepath.Join(liveRoot, "system", name)

	info, err := os.Stat(pathOfRoot)
	if err != nil || !info.IsDir() {
		return
	}
	if requireSymlink {
		li, err := os.Lstat(pathOfSystem)
		if err != nil || li.Mode()&os.ModeSymlink == 0 {
			return
		}
	}

	node, ok := system.Children[name]
	if !ok {
		return
	}
	if node.Type == Symlink {
		if info, err := os.Stat(node.ModulePath); err == nil && info.IsDir() {
			node.Type = Directory
		}
	}
	if node.ModulePath == "" {
		node.ModulePath = pathOfRoot
	}

	root.Children[name] = node
	delete(system.Children, name)
}

func sentinelPresent(modulePath string) bool {
	for _, s := range []string{config.DisableFileName, config.RemoveFileName, config.SkipMountFileName} {
		if _, err := os.Lstat(filepath.Join(modulePath, s)); err == nil {
			return true
		}
	}
	return false
}
