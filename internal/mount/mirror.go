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

// Mirror 把 srcDir/name 镜像到 dstDir/name。
//
// 普通文件：先创建空壳文件，再把来源绑定上去并重挂载为只读；
// 目录：mkdir + 复制属性后逐项递归；
// 符号链接：readlink 后重建并复制属性。
//
// 魔法挂载引擎在 tmpfs 遮蔽目录中用它补齐未被模块触碰的条目。
func Mirror(srcDir, dstDir, name string) error {
	src := filepath.Join(srcDir, name)
	dst := filepath.Join(dstDir, name)

	var st unix.Stat_t
	if err := unix.Lstat(src, &st); err != nil {
		return fmt.Errorf("lstat %s: %w", src, err)
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY, os.FileMode(st.Mode&07777))
		if err != nil {
			return fmt.Errorf("create mirror file %s: %w", dst, err)
		}
		f.Close()
		if err := Bind(src, dst); err != nil {
			return fmt.Errorf("bind mirror file: %w", err)
		}
		if err := RemountReadOnly(dst); err != nil {
			logrus.Debugf("mirror: %v", err)
		}

	case unix.S_IFDIR:
		if err := os.Mkdir(dst, os.FileMode(st.Mode&07777)); err != nil && !os.IsExist(err) {
			return fmt.Errorf("create mirror directory %s: %w", dst, err)
		}
		if err := CloneAttr(src, dst); err != nil {
			logrus.Debugf("mirror: %v", err)
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return fmt.Errorf("read mirror directory %s: %w", src, err)
		}
		for _, entry := range entries {
			if err := Mirror(src, dst, entry.Name()); err != nil {
				return err
			}
		}

	case unix.S_IFLNK:
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("read symlink %s: %w", src, err)
		}
		if err := os.Symlink(target, dst); err != nil {
			return fmt.Errorf("create symlink %s: %w", dst, err)
		}
		if err := CloneAttr(src, dst); err != nil {
			logrus.Debugf("mirror: %v", err)
		}

	default:
		// 设备节点等特殊文件不参与镜像
		logrus.Debugf("mirror: skip special file %s", src)
	}

	return nil
}
