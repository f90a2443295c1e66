//go:build linux
// +build linux

// Package mount provides the bind-mount and tmpfs primitives shared by the
// magic-mount and overlay engines.
//
// 绑定挂载优先使用新挂载 API（open_tree + move_mount），
// 失败时回退到经典 mount(2) 的 MS_BIND|MS_REC。
package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Bind clones the mount tree at from and attaches it at to.
//
// 先走 open_tree(OPEN_TREE_CLONE|AT_RECURSIVE|OPEN_TREE_CLOEXEC) +
// move_mount(MOVE_MOUNT_F_EMPTY_PATH)；内核不支持时回退经典 bind。
func Bind(from, to string) error {
	logrus.Debugf("bind mount %s -> %s", from, to)

	treeFD, err := unix.OpenTree(unix.AT_FDCWD, from,
		unix.OPEN_TREE_CLONE|unix.AT_RECURSIVE|unix.OPEN_TREE_CLOEXEC)
	if err == nil {
		defer unix.Close(treeFD)
		if err := unix.MoveMount(treeFD, "", unix.AT_FDCWD, to,
			unix.MOVE_MOUNT_F_EMPTY_PATH); err == nil {
			return nil
		} else {
			logrus.Debugf("move_mount %s: %v, falling back to classic bind", to, err)
		}
	} else {
		logrus.Debugf("open_tree %s: %v, falling back to classic bind", from, err)
	}

	if err := unix.Mount(from, to, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind mount %s -> %s: %w", from, to, err)
	}
	return nil
}

// RemountReadOnly 把一个已有绑定挂载改为只读。
// 失败不致命，由调用方决定是否忽略。
func RemountReadOnly(target string) error {
	if err := unix.Mount("", target, "",
		unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("remount read-only %s: %w", target, err)
	}
	return nil
}

// BindSelf 把目录绑定到自身（为后续 MS_MOVE/只读重挂载做准备）
func BindSelf(path string) error {
	if err := unix.Mount(path, path, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind mount %s onto itself: %w", path, err)
	}
	return nil
}

// Move 把挂载从 src 移动到 dst
func Move(src, dst string) error {
	if err := unix.Mount(src, dst, "", unix.MS_MOVE, ""); err != nil {
		return fmt.Errorf("move mount %s -> %s: %w", src, dst, err)
	}
	return nil
}

// MakePrivate 将挂载点的传播类型设为 private
func MakePrivate(path string) error {
	if err := unix.Mount("", path, "", unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make private %s: %w", path, err)
	}
	return nil
}

// Tmpfs 在 target 挂载一个 tmpfs；source 为挂载来源标识。
func Tmpfs(target, source string) error {
	if source == "" {
		source = "tmpfs"
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}
	if err := unix.Mount(source, target, "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("mount tmpfs at %s: %w", target, err)
	}
	return nil
}

// Detach 惰性卸载一个挂载点
func Detach(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach %s: %w", target, err)
	}
	return nil
}

// IsMounted checks if a path is a mount point.
// 比较路径与父目录的设备号；跨设备即为挂载点。
func IsMounted(path string) bool {
	pathStat, err := os.Stat(path)
	if err != nil {
		return false
	}
	parentStat, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return false
	}

	pathSys, ok := pathStat.Sys().(*unix.Stat_t)
	if !ok {
		return false
	}
	parentSys, ok := parentStat.Sys().(*unix.Stat_t)
	if !ok {
		return false
	}
	return pathSys.Dev != parentSys.Dev
}

// IsSafeSymlink 报告符号链接的目标是否留在 root 之内。
// 绝对目标直接判前缀；相对目标先基于链接所在目录解析。
func IsSafeSymlink(linkPath, root string) bool {
	target, err := os.Readlink(linkPath)
	if err != nil {
		return false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(linkPath), target)
	}
	target = filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, "../"))
}
