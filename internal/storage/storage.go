//go:build linux
// +build linux

// Package storage provisions the mirror backing store.
//
// 选择顺序（auto 策略）：tmpfs（需 xattr 支持）→ erofs（压缩只读镜像）
// → ext4（读写镜像）。显式策略跳过前面的阶段但保留向下回退。
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/selinux/go-selinux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"hymod/internal/config"
	"hymod/internal/mount"
	"hymod/pkg/fileutil"
)

// Handle 描述已就绪的镜像存储
type Handle struct {
	MountPoint string
	// Mode 取值 tmpfs / erofs / ext4 / magic_only
	Mode string
}

// 阶段结果：成功、回退到下一阶段、致命失败
type outcome int

const (
	outcomeOK outcome = iota
	outcomeFallback
	outcomeFatal
)

// Setup 在 mntDir 准备镜像存储。
// imagePath 是 ext4 镜像位置；fsType 是策略选择。
// 全部阶段失败时返回错误，由编排器决定最终回退。
func Setup(mntDir, imagePath string, fsType config.FsType) (*Handle, error) {
	logrus.Debugf("setting up storage at %s", mntDir)

	// 残留挂载先行分离
	if _, err := os.Stat(mntDir); err == nil {
		_ = unix.Unmount(mntDir, unix.MNT_DETACH)
	}
	if err := fileutil.EnsureDir(mntDir, 0755); err != nil {
		return nil, err
	}

	erofsImage := filepath.Join(filepath.Dir(imagePath), config.ErofsImageFileName)
	modulesDir := filepath.Join(filepath.Dir(imagePath), "modules")

	stages := stagesFor(fsType)
	var lastErr error
	for _, stage := range stages {
		var (
			out outcome
			err error
		)
		switch stage {
		case config.FsTmpfs:
			out, err = tryTmpfs(mntDir)
		case config.FsErofs:
			out, err = tryErofs(mntDir, modulesDir, erofsImage)
		case config.FsExt4:
			out, err = tryExt4(mntDir, imagePath)
		}

		switch out {
		case outcomeOK:
			h := &Handle{MountPoint: mntDir, Mode: string(stage)}
			logrus.Infof("storage active: %s at %s", h.Mode, mntDir)
			return h, nil
		case outcomeFallback:
			logrus.Warnf("storage: %s unavailable: %v", stage, err)
			lastErr = err
		case outcomeFatal:
			return nil, err
		}
	}
	return nil, fmt.Errorf("no storage backend available: %w", lastErr)
}

// stagesFor 返回策略对应的尝试序列。
// 显式策略跳过更早的阶段但保留向下回退（tmpfs → erofs → ext4）。
func stagesFor(fsType config.FsType) []config.FsType {
	switch fsType {
	case config.FsExt4:
		return []config.FsType{config.FsExt4}
	case config.FsErofs:
		return []config.FsType{config.FsErofs, config.FsExt4}
	case config.FsTmpfs, config.FsAuto:
		fallthrough
	default:
		return []config.FsType{config.FsTmpfs, config.FsErofs, config.FsExt4}
	}
}

func tryTmpfs(target string) (outcome, error) {
	logrus.Debugf("storage: attempting tmpfs")

	if err := mount.Tmpfs(target, ""); err != nil {
		return outcomeFallback, err
	}

	if !mount.XattrSupported(target) {
		_ = unix.Unmount(target, unix.MNT_DETACH)
		return outcomeFallback, fmt.Errorf("tmpfs lacks xattr support")
	}
	return outcomeOK, nil
}

func tryErofs(target, modulesDir, imagePath string) (outcome, error) {
	logrus.Debugf("storage: attempting erofs")

	if !erofsAvailable() {
		return outcomeFallback, fmt.Errorf("mkfs.erofs not found")
	}
	if err := createErofsImage(modulesDir, imagePath); err != nil {
		return outcomeFallback, err
	}
	if err := mount.Image(imagePath, target, "erofs"); err != nil {
		return outcomeFallback, err
	}

	mount.RegisterUnmountable(target)
	return outcomeOK, nil
}

func tryExt4(target, imagePath string) (outcome, error) {
	logrus.Debugf("storage: attempting ext4")

	if _, err := os.Stat(imagePath); err != nil {
		logrus.Warnf("storage: %s missing, recreating", filepath.Base(imagePath))
		if err := CreateImage(filepath.Dir(imagePath)); err != nil {
			return outcomeFatal, fmt.Errorf("create image: %w", err)
		}
	}

	if err := mount.Image(imagePath, target, "ext4"); err != nil {
		logrus.Warnf("storage: ext4 mount failed, attempting repair: %v", err)
		if rerr := repairImage(imagePath); rerr != nil {
			return outcomeFatal, fmt.Errorf("repair image: %w", rerr)
		}
		// 修复后重试一次
		if err := mount.Image(imagePath, target, "ext4"); err != nil {
			return outcomeFatal, fmt.Errorf("mount image after repair: %w", err)
		}
	}

	mount.RegisterUnmountable(target)
	return outcomeOK, nil
}

// FinalizePermissions 修复存储根目录的权限与标签。
// 失败只记日志，不中止。
func FinalizePermissions(root string) {
	logrus.Debugf("repairing storage root permissions")

	if err := os.Chmod(root, 0755); err != nil {
		logrus.Warnf("chmod storage root: %v", err)
	}
	if err := os.Chown(root, 0, 0); err != nil {
		logrus.Warnf("chown storage root: %v", err)
	}
	if err := selinux.LsetFileLabel(root, config.DefaultSELinuxContext); err != nil {
		logrus.Warnf("set storage root context: %v", err)
	}
}
