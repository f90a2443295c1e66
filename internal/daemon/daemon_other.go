//go:build !linux
// +build !linux

package daemon

import (
	"errors"

	"hymod/internal/config"
	"hymod/internal/hymofs"
)

var errUnsupported = errors.New("daemon requires linux")

// Mount 在非 Linux 平台不可用
func Mount(_ *config.Config, _ *hymofs.Driver) error { return errUnsupported }

// Reload 在非 Linux 平台不可用
func Reload(_ *config.Config, _ *hymofs.Driver) error { return errUnsupported }

// Watch 在非 Linux 平台不可用
func Watch(_ *config.Config, _ *hymofs.Driver) error { return errUnsupported }

// HotMount 在非 Linux 平台不可用
func HotMount(_ *config.Config, _ *hymofs.Driver, _ string) error { return errUnsupported }

// HotUnmount 在非 Linux 平台不可用
func HotUnmount(_ *config.Config, _ *hymofs.Driver, _ string) error { return errUnsupported }

// AddModuleRules 在非 Linux 平台不可用
func AddModuleRules(_ *config.Config, _ *hymofs.Driver, _ string) (int, error) {
	return 0, errUnsupported
}

// RemoveModuleRules 在非 Linux 平台不可用
func RemoveModuleRules(_ *config.Config, _ *hymofs.Driver, _ string) (int, error) {
	return 0, errUnsupported
}
