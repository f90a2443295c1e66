//go:build linux
// +build linux

package module

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"hymod/internal/config"
	"hymod/internal/mount"
)

// SyncAll 把启用模块同步到镜像存储。
//
// 先清掉镜像里已不对应任何活跃模块的目录，再逐个模块判断是否
// 需要重新拷贝（module.prop 摘要比较），拷贝后做 SELinux 上下文
// 镜像修复。单个模块失败不影响其余模块，错误聚合返回。
func SyncAll(modules []*Module, targetBase string, partitions []string) error {
	logrus.Infof("syncing %d modules to %s", len(modules), targetBase)

	pruneOrphans(modules, targetBase)

	var errs *multierror.Error
	for _, m := range modules {
		if !m.HasContent(partitions) {
			logrus.Debugf("sync: skipping empty module %s", m.ID)
			continue
		}

		dst := filepath.Join(targetBase, m.ID)
		if !shouldSync(m.SourcePath, dst) {
			logrus.Debugf("sync: %s up-to-date", m.ID)
			continue
		}

		logrus.Infof("sync: copying module %s", m.ID)
		if err := os.RemoveAll(dst); err != nil {
			logrus.Warnf("sync: clean target for %s: %v", m.ID, err)
		}
		if err := copyTree(m.SourcePath, dst); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("sync module %s: %w", m.ID, err))
			continue
		}
		repairContexts(dst, partitions)
	}
	return errs.ErrorOrNil()
}

// pruneOrphans 删除镜像中不再活跃的模块目录
func pruneOrphans(modules []*Module, targetBase string) {
	entries, err := os.ReadDir(targetBase)
	if err != nil {
		return
	}

	active := make(map[string]bool, len(modules))
	for _, m := range modules {
		active[m.ID] = true
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == "lost+found" || name == config.SelfModuleID || name[0] == '.' {
			continue
		}
		if active[name] {
			continue
		}
		logrus.Infof("sync: pruning stale module %s", name)
		if err := os.RemoveAll(filepath.Join(targetBase, name)); err != nil {
			logrus.Warnf("sync: remove stale %s: %v", name, err)
		}
	}
}

// shouldSync 判断模块是否需要重新拷贝。
// 以 module.prop 的内容摘要作为版本变化的启发式；
// 任一侧缺失或读取失败时保守地强制同步。
func shouldSync(src, dst string) bool {
	if _, err := os.Stat(dst); err != nil {
		return true
	}

	srcProp, err1 := os.ReadFile(filepath.Join(src, PropFileName))
	dstProp, err2 := os.ReadFile(filepath.Join(dst, PropFileName))
	if err1 != nil || err2 != nil {
		return true
	}
	return digest.FromBytes(srcProp) != digest.FromBytes(dstProp)
}

// copyTree 递归复制模块树，保留符号链接、whiteout 设备节点与属性
func copyTree(src, dst string) error {
	var st unix.Stat_t
	if err := unix.Lstat(src, &st); err != nil {
		return fmt.Errorf("lstat %s: %w", src, err)
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		if err := os.MkdirAll(dst, os.FileMode(st.Mode&07777)); err != nil {
			return fmt.Errorf("mkdir %s: %w", dst, err)
		}
		if err := mount.CloneAttr(src, dst); err != nil {
			logrus.Debugf("sync: %v", err)
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return fmt.Errorf("read dir %s: %w", src, err)
		}
		for _, entry := range entries {
			if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}

	case unix.S_IFREG:
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read %s: %w", src, err)
		}
		if err := os.WriteFile(dst, data, os.FileMode(st.Mode&07777)); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
		if err := mount.CloneAttr(src, dst); err != nil {
			logrus.Debugf("sync: %v", err)
		}

	case unix.S_IFLNK:
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("readlink %s: %w", src, err)
		}
		if err := os.Symlink(target, dst); err != nil {
			return fmt.Errorf("symlink %s: %w", dst, err)
		}
		if err := mount.CloneAttr(src, dst); err != nil {
			logrus.Debugf("sync: %v", err)
		}

	case unix.S_IFCHR:
		// whiteout 节点按原样重建
		if err := unix.Mknod(dst, unix.S_IFCHR|uint32(st.Mode&07777), int(st.Rdev)); err != nil {
			return fmt.Errorf("mknod %s: %w", dst, err)
		}
		if err := mount.CloneAttr(src, dst); err != nil {
			logrus.Debugf("sync: %v", err)
		}

	default:
		logrus.Debugf("sync: skip special file %s", src)
	}
	return nil
}

// repairContexts 把镜像里每个路径的 SELinux 上下文对齐到真实系统
// 中的同名路径；真实路径不存在时保持原样。错误降级为 DEBUG。
func repairContexts(moduleRoot string, partitions []string) {
	for _, part := range partitions {
		partRoot := filepath.Join(moduleRoot, part)
		if _, err := os.Stat(partRoot); err != nil {
			continue
		}
		_ = filepath.Walk(partRoot, func(path string, _ os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(moduleRoot, path)
			if err != nil {
				return nil
			}
			livePath := filepath.Join("/", rel)
			if _, err := os.Lstat(livePath); err == nil {
				if err := mount.CopyPathContext(livePath, path); err != nil {
					logrus.Debugf("sync: context for %s: %v", rel, err)
				}
			}
			return nil
		})
	}
}
