//go:build linux
// +build linux

package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/selinux/go-selinux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// CloneAttr 把 src 的模式、属主、SELinux 标签与扩展属性复制到 dst。
// 模式与属主失败返回错误；xattr 与标签复制是尽力而为。
func CloneAttr(src, dst string) error {
	var st unix.Stat_t
	if err := unix.Lstat(src, &st); err != nil {
		return fmt.Errorf("lstat %s: %w", src, err)
	}

	isLink := st.Mode&unix.S_IFMT == unix.S_IFLNK
	if !isLink {
		if err := os.Chmod(dst, os.FileMode(st.Mode&07777)); err != nil {
			return fmt.Errorf("chmod %s: %w", dst, err)
		}
	}
	if err := unix.Lchown(dst, int(st.Uid), int(st.Gid)); err != nil {
		return fmt.Errorf("lchown %s: %w", dst, err)
	}

	copyXattrs(src, dst)

	if label, err := selinux.LfileLabel(src); err == nil && label != "" {
		if err := selinux.LsetFileLabel(dst, label); err != nil {
			logrus.Debugf("set label %s on %s: %v", label, dst, err)
		}
	}
	return nil
}

// copyXattrs 复制全部扩展属性，失败静默跳过
func copyXattrs(src, dst string) {
	sz, err := unix.Llistxattr(src, nil)
	if err != nil || sz <= 0 {
		return
	}
	buf := make([]byte, sz)
	sz, err = unix.Llistxattr(src, buf)
	if err != nil {
		return
	}

	for _, name := range splitXattrNames(buf[:sz]) {
		vsz, err := unix.Lgetxattr(src, name, nil)
		if err != nil || vsz < 0 {
			continue
		}
		val := make([]byte, vsz)
		if vsz > 0 {
			if _, err := unix.Lgetxattr(src, name, val); err != nil {
				continue
			}
		}
		if err := unix.Lsetxattr(dst, name, val, 0); err != nil {
			logrus.Debugf("copy xattr %s to %s: %v", name, dst, err)
		}
	}
}

func splitXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}

// PathContext 返回路径的 SELinux 标签；取不到时返回空串。
func PathContext(path string) string {
	label, err := selinux.LfileLabel(path)
	if err != nil {
		return ""
	}
	return label
}

// SetContext 设置路径的 SELinux 标签
func SetContext(path, label string) error {
	if err := selinux.LsetFileLabel(path, label); err != nil {
		return fmt.Errorf("set context %s on %s: %w", label, path, err)
	}
	return nil
}

// CopyPathContext 把 src 的 SELinux 标签复制到 dst
func CopyPathContext(src, dst string) error {
	label := PathContext(src)
	if label == "" {
		return fmt.Errorf("no context on %s", src)
	}
	return SetContext(dst, label)
}

// CopyParentContext 把 dst 父目录的标签复制到 dst。
// 被遮蔽路径不存在时 whiteout 用它兜底。
func CopyParentContext(dst string) error {
	return CopyPathContext(filepath.Dir(dst), dst)
}

// XattrSupported 探测路径所在文件系统是否支持 trusted xattr：
// 在探测文件上写入并读回一个已知值。
func XattrSupported(dir string) bool {
	probe := filepath.Join(dir, ".xattr_probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	defer os.Remove(probe)

	const name = "trusted.hymo.probe"
	want := []byte("1")
	if err := unix.Setxattr(probe, name, want, 0); err != nil {
		return false
	}
	got := make([]byte, 1)
	n, err := unix.Getxattr(probe, name, got)
	return err == nil && n == 1 && got[0] == want[0]
}
