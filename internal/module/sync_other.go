//go:build !linux
// +build !linux

package module

import "errors"

// SyncAll 在非 Linux 平台不可用
func SyncAll(_ []*Module, _ string, _ []string) error {
	return errors.New("module sync requires linux")
}
