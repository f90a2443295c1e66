//go:build linux
// +build linux

package mount

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// attachLoop 把镜像文件挂接到一个空闲 loop 设备，返回设备路径。
// 设备带 AUTOCLEAR 标志，最后一个引用消失时自动解绑。
func attachLoop(imagePath string, readOnly bool) (string, error) {
	ctl, err := os.OpenFile("/dev/loop-control", os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("open loop-control: %w", err)
	}
	defer ctl.Close()

	num, err := unix.IoctlRetInt(int(ctl.Fd()), unix.LOOP_CTL_GET_FREE)
	if err != nil {
		return "", fmt.Errorf("get free loop device: %w", err)
	}
	devPath := fmt.Sprintf("/dev/loop%d", num)

	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	img, err := os.OpenFile(imagePath, flags, 0)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer img.Close()

	dev, err := os.OpenFile(devPath, flags, 0)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", devPath, err)
	}
	defer dev.Close()

	if err := unix.IoctlSetInt(int(dev.Fd()), unix.LOOP_SET_FD, int(img.Fd())); err != nil {
		return "", fmt.Errorf("attach image to %s: %w", devPath, err)
	}

	var info unix.LoopInfo64
	copy(info.File_name[:], imagePath)
	info.Flags = unix.LO_FLAGS_AUTOCLEAR
	if readOnly {
		info.Flags |= unix.LO_FLAGS_READ_ONLY
	}
	if err := unix.IoctlLoopSetStatus64(int(dev.Fd()), &info); err != nil {
		_ = unix.IoctlSetInt(int(dev.Fd()), unix.LOOP_CLR_FD, 0)
		return "", fmt.Errorf("set loop status: %w", err)
	}

	return devPath, nil
}

// Image 把镜像文件 loop 挂载到 target。
// fsType 为 erofs 时只读挂载；ext4 为读写。两者都带 noatime。
func Image(imagePath, target, fsType string) error {
	readOnly := fsType == "erofs"

	devPath, err := attachLoop(imagePath, readOnly)
	if err != nil {
		return err
	}

	var flags uintptr = unix.MS_NOATIME
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}
	if err := unix.Mount(devPath, target, fsType, flags, ""); err != nil {
		return fmt.Errorf("mount %s image at %s: %w", fsType, target, err)
	}

	logrus.Debugf("mounted %s image %s at %s via %s", fsType, imagePath, target, devPath)
	return nil
}
