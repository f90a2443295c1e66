//go:build linux
// +build linux

// Package overlay stacks union-filesystem mounts over target partitions.
//
// 关键点在于保住挂载前的世界：先 chdir 进目标分区拿住旧根引用，
// 记录既有子挂载，叠好 overlay 后按祖先优先的顺序把子挂载恢复
// 回去，最后把被目录覆盖的分区符号链接（/system/vendor 之类）
// 用绑定挂载还原。
package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"hymod/internal/mount"
	"hymod/internal/state"
)

// restoreParts 是可能被 overlay 覆盖的分区符号链接
var restoreParts = []string{"vendor", "product", "system_ext", "odm", "oem"}

// Engine 驱动单个分区的 overlay 叠加
type Engine struct {
	// Source 是挂载来源标识
	Source string
	// DisableUmount 为 true 时不登记可卸载路径
	DisableUmount bool
	// Stats 记录 overlay 挂载次数
	Stats *state.MountStats
}

// New 创建 overlay 引擎
func New(source string, disableUmount bool, stats *state.MountStats) *Engine {
	return &Engine{Source: source, DisableUmount: disableUmount, Stats: stats}
}

// childMounts 从挂载表收集严格位于 target 之下的挂载点（去重、排序）
func childMounts(target string) ([]string, error) {
	infos, err := mountinfo.GetMounts(mountinfo.PrefixFilter(target))
	if err != nil {
		return nil, fmt.Errorf("read mountinfo: %w", err)
	}

	seen := make(map[string]bool)
	var mounts []string
	for _, info := range infos {
		mp := info.Mountpoint
		if mp == target || seen[mp] {
			continue
		}
		seen[mp] = true
		mounts = append(mounts, mp)
	}
	sort.Strings(mounts)
	return mounts, nil
}

// mountOverlayModern 走新挂载 API：fsopen → fsconfig → fsmount → move_mount
func (e *Engine) mountOverlayModern(lowerdir, upperdir, workdir, dest string) error {
	fsFD, err := unix.Fsopen("overlay", unix.FSOPEN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("fsopen overlay: %w", err)
	}
	defer unix.Close(fsFD)

	if err := unix.FsconfigSetString(fsFD, "lowerdir", lowerdir); err != nil {
		return fmt.Errorf("fsconfig lowerdir: %w", err)
	}
	if upperdir != "" && workdir != "" {
		if err := unix.FsconfigSetString(fsFD, "upperdir", upperdir); err != nil {
			return fmt.Errorf("fsconfig upperdir: %w", err)
		}
		if err := unix.FsconfigSetString(fsFD, "workdir", workdir); err != nil {
			return fmt.Errorf("fsconfig workdir: %w", err)
		}
	}
	if err := unix.FsconfigSetString(fsFD, "source", e.Source); err != nil {
		return fmt.Errorf("fsconfig source: %w", err)
	}
	if err := unix.FsconfigCreate(fsFD); err != nil {
		return fmt.Errorf("fsconfig create: %w", err)
	}

	mntFD, err := unix.Fsmount(fsFD, unix.FSMOUNT_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("fsmount: %w", err)
	}
	defer unix.Close(mntFD)

	if err := unix.MoveMount(mntFD, "", unix.AT_FDCWD, dest,
		unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return fmt.Errorf("move_mount to %s: %w", dest, err)
	}
	return nil
}

// mountOverlayLegacy 走经典 mount(2)
func (e *Engine) mountOverlayLegacy(lowerdir, upperdir, workdir, dest string) error {
	data := "lowerdir=" + lowerdir
	if upperdir != "" && workdir != "" {
		data += ",upperdir=" + upperdir + ",workdir=" + workdir
	}
	if err := unix.Mount(e.Source, dest, "overlay", 0, data); err != nil {
		return fmt.Errorf("mount overlay at %s: %w", dest, err)
	}
	return nil
}

func (e *Engine) mountOverlay(lowerdir, upperdir, workdir, dest string) error {
	if err := e.mountOverlayModern(lowerdir, upperdir, workdir, dest); err != nil {
		logrus.Debugf("overlay: modern mount failed (%v), falling back to classic mount", err)
		return e.mountOverlayLegacy(lowerdir, upperdir, workdir, dest)
	}
	return nil
}

// restoreChild 恢复单个既有子挂载。
//
//   - 没有模块修改该子路径 → 把旧内容绑定回去；
//   - 有模块往该路径放了文件（与目录挂载冲突）→ 绑定旧内容并记日志；
//   - 否则以模块子树加旧内容为底层再叠一个子 overlay。
func (e *Engine) restoreChild(mountPoint, relative string, moduleRoots []string, stockRoot string) error {
	rel := strings.TrimPrefix(relative, "/")

	modified := false
	for _, lower := range moduleRoots {
		if _, err := os.Lstat(filepath.Join(lower, rel)); err == nil {
			modified = true
			break
		}
	}
	if !modified {
		return e.bindBack(stockRoot, mountPoint)
	}

	info, err := os.Stat(stockRoot)
	if err != nil || !info.IsDir() {
		return nil
	}

	var lowerDirs []string
	for _, lower := range moduleRoots {
		path := filepath.Join(lower, rel)
		if info, err := os.Stat(path); err == nil {
			if info.IsDir() {
				lowerDirs = append(lowerDirs, path)
			} else {
				// 文件压在目录挂载点上，overlay 无法表达
				logrus.Warnf("overlay: file modification at mount point %s, restoring stock", mountPoint)
				return e.bindBack(stockRoot, mountPoint)
			}
		}
	}
	if len(lowerDirs) == 0 {
		return e.bindBack(stockRoot, mountPoint)
	}

	lowerdir := strings.Join(append(lowerDirs, stockRoot), ":")
	if err := e.mountOverlay(lowerdir, "", "", mountPoint); err != nil {
		logrus.Warnf("overlay: child overlay %s failed (%v), restoring stock", mountPoint, err)
		return e.bindBack(stockRoot, mountPoint)
	}
	e.Stats.OverlayfsMounts++

	if !e.DisableUmount {
		mount.RegisterUnmountable(mountPoint)
	}
	return nil
}

func (e *Engine) bindBack(from, to string) error {
	if err := mount.Bind(from, to); err != nil {
		return err
	}
	if !e.DisableUmount {
		mount.RegisterUnmountable(to)
	}
	return nil
}

// Mount 在目标分区叠加 overlay。
// moduleRoots 是各模块分区目录，顺序为优先级从高到低；
// 旧分区内容永远作为最底层。
func (e *Engine) Mount(target string, moduleRoots []string, upperdir, workdir string) error {
	logrus.Infof("overlay: mounting %s (%d layers)", target, len(moduleRoots))

	// chdir 拿住旧根：overlay 叠上去之后 "." 仍指向旧内容
	if err := os.Chdir(target); err != nil {
		return fmt.Errorf("chdir %s: %w", target, err)
	}
	stockRoot := "."

	mountSeq, err := childMounts(target)
	if err != nil {
		logrus.Warnf("overlay: %v", err)
	}
	if len(mountSeq) > 0 {
		logrus.Debugf("overlay: %d child mounts under %s", len(mountSeq), target)
	}

	lowerdir := strings.Join(append(append([]string{}, moduleRoots...), target), ":")
	logrus.Debugf("overlay: lowerdir=%s", lowerdir)

	if upperdir != "" {
		if _, err := os.Stat(upperdir); err != nil {
			upperdir = ""
		}
	}
	if workdir != "" {
		if _, err := os.Stat(workdir); err != nil {
			workdir = ""
		}
	}
	// overlay 控制目录继承各自父目录的 SELinux 上下文
	for _, dir := range []string{upperdir, workdir} {
		if dir == "" {
			continue
		}
		if err := mount.CopyPathContext(filepath.Dir(dir), dir); err != nil {
			logrus.Debugf("overlay: context for %s: %v", dir, err)
		}
	}

	if err := e.mountOverlay(lowerdir, upperdir, workdir, target); err != nil {
		return fmt.Errorf("mount overlay for %s: %w", target, err)
	}
	e.Stats.OverlayfsMounts++

	if !e.DisableUmount {
		mount.RegisterUnmountable(target)
	}

	// 恢复子挂载：排序保证祖先先于后代处理
	for _, mountPoint := range mountSeq {
		relative := strings.TrimPrefix(mountPoint, target)
		stockRel := stockRoot + relative

		if _, err := os.Stat(stockRel); err != nil {
			logrus.Debugf("overlay: stock path for child mount missing: %s", stockRel)
			continue
		}

		logrus.Debugf("overlay: restoring child mount %s", mountPoint)
		if err := e.restoreChild(mountPoint, relative, moduleRoots, stockRel); err != nil {
			logrus.Warnf("overlay: restore child mount %s: %v", mountPoint, err)
		}
	}

	// 还原被目录覆盖的分区符号链接（如 /system/vendor -> /vendor）。
	// overlay 把符号链接盖成了目录时，把根分区绑定回去。
	for _, part := range restoreParts {
		rootPart := "/" + part
		targetPart := filepath.Join(target, part)

		if info, err := os.Stat(rootPart); err != nil || !info.IsDir() {
			continue
		}
		li, err := os.Lstat(targetPart)
		if err != nil || li.Mode()&os.ModeSymlink != 0 || !li.IsDir() {
			continue
		}
		if containsString(mountSeq, targetPart) {
			continue
		}

		logrus.Infof("overlay: restoring partition mount %s -> %s", rootPart, targetPart)
		if err := e.bindBack(rootPart, targetPart); err != nil {
			logrus.Errorf("overlay: restore partition %s: %v", part, err)
		}
	}

	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
