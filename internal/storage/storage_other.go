//go:build !linux
// +build !linux

package storage

import (
	"errors"

	"hymod/internal/config"
)

var errUnsupported = errors.New("storage requires linux")

// Handle 描述已就绪的镜像存储
type Handle struct {
	MountPoint string
	Mode       string
}

// Setup 在非 Linux 平台不可用
func Setup(_, _ string, _ config.FsType) (*Handle, error) { return nil, errUnsupported }

// CreateImage 在非 Linux 平台不可用
func CreateImage(_ string) error { return errUnsupported }

// FinalizePermissions 无操作
func FinalizePermissions(_ string) {}

// PrintStatus 在非 Linux 平台不可用
func PrintStatus(_ *config.Config) error { return errUnsupported }
