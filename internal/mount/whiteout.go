//go:build linux
// +build linux

package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// CreateWhiteout 在 workPath 创建一个 whiteout（rdev 为 0:0 的字符设备）。
// SELinux 标签取被遮蔽的 targetPath；targetPath 不存在时取父目录。
func CreateWhiteout(targetPath, workPath string) error {
	if err := os.MkdirAll(filepath.Dir(workPath), 0755); err != nil {
		return fmt.Errorf("create whiteout parent: %w", err)
	}
	if _, err := os.Lstat(workPath); err == nil {
		if err := os.Remove(workPath); err != nil {
			return fmt.Errorf("remove existing entry %s: %w", workPath, err)
		}
	}

	if err := unix.Mknod(workPath, unix.S_IFCHR, int(unix.Mkdev(0, 0))); err != nil {
		return fmt.Errorf("mknod whiteout %s: %w", workPath, err)
	}

	if _, err := os.Lstat(targetPath); err == nil {
		if err := CloneAttr(targetPath, workPath); err != nil {
			logrus.Debugf("whiteout attr: %v", err)
		}
	} else if err := CopyParentContext(workPath); err != nil {
		logrus.Debugf("whiteout context: %v", err)
	}
	return nil
}

// IsWhiteout 报告路径是否是 whiteout 节点
func IsWhiteout(path string) bool {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFCHR && st.Rdev == 0
}
