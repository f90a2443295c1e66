//go:build linux
// +build linux

package storage

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"hymod/internal/config"
	"hymod/pkg/fileutil"
)

// 镜像的最小尺寸
const minImageSize = 64 * 1024 * 1024

var (
	mkfsExt4Paths  = []string{"/system/bin/mkfs.ext4", "/system/bin/mke2fs", "/sbin/mkfs.ext4", "/sbin/mke2fs"}
	mkfsErofsPaths = []string{"/system/bin/mkfs.erofs", "/vendor/bin/mkfs.erofs", "/sbin/mkfs.erofs"}
	e2fsckPaths    = []string{"/system/bin/e2fsck", "/sbin/e2fsck"}
)

func findBinary(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode()&0111 != 0 {
			return p
		}
	}
	return ""
}

// runTool 以显式参数向量执行外部工具，标准流接 /dev/null，同步等待。
func runTool(bin string, args ...string) error {
	cmd := exec.Command(bin, args...)
	// Stdout/Stderr 为 nil 时 os/exec 连接到空设备
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(bin), err)
	}
	return nil
}

// CreateImage 在 baseDir 下创建 modules.img。
// 尺寸为 max(1.2 × 模块目录大小, 64 MiB)，块大小 1024。
func CreateImage(baseDir string) error {
	logrus.Infof("creating %s", config.ImageFileName)

	imgFile := filepath.Join(baseDir, config.ImageFileName)
	modulesDir := filepath.Join(baseDir, "modules")

	if err := fileutil.EnsureDir(baseDir, 0755); err != nil {
		return err
	}
	if err := os.Remove(imgFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old image: %w", err)
	}

	size := fileutil.DirSize(modulesDir)
	size += size / 5
	if size < minImageSize {
		size = minImageSize
	}

	f, err := os.OpenFile(imgFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		_ = os.Remove(imgFile)
		return fmt.Errorf("truncate image: %w", err)
	}
	f.Close()

	mkfs := findBinary(mkfsExt4Paths)
	if mkfs == "" {
		_ = os.Remove(imgFile)
		return fmt.Errorf("mkfs.ext4/mke2fs not found")
	}
	if err := runTool(mkfs, "-t", "ext4", "-b", "1024", imgFile); err != nil {
		_ = os.Remove(imgFile)
		return err
	}

	logrus.Infof("image created: %s", imgFile)
	return nil
}

func erofsAvailable() bool {
	return findBinary(mkfsErofsPaths) != ""
}

// createErofsImage 从模块目录构建压缩只读镜像
func createErofsImage(modulesDir, imagePath string) error {
	logrus.Infof("creating erofs image from %s", modulesDir)

	if _, err := os.Stat(modulesDir); err != nil {
		return fmt.Errorf("modules directory not found: %s", modulesDir)
	}
	if err := os.Remove(imagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old erofs image: %w", err)
	}

	mkfs := findBinary(mkfsErofsPaths)
	if mkfs == "" {
		return fmt.Errorf("mkfs.erofs not found")
	}
	return runTool(mkfs, "-zlz4hc,9", imagePath, modulesDir)
}

// repairImage 对镜像做一次就地修复（fsck 等价物）。
// 外部命令从不自动重试。
func repairImage(imagePath string) error {
	e2fsck := findBinary(e2fsckPaths)
	if e2fsck == "" {
		return fmt.Errorf("e2fsck not found")
	}
	// e2fsck 修复成功也可能返回 1/2（已纠正），这里不当作失败
	cmd := exec.Command(e2fsck, "-y", imagePath)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() <= 2 {
			return nil
		}
		return fmt.Errorf("e2fsck: %w", err)
	}
	return nil
}
