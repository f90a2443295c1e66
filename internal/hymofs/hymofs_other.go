//go:build !linux
// +build !linux

package hymofs

import "errors"

// 非 Linux 平台的占位实现，保证 CLI 可以交叉编译。

var errUnsupported = errors.New("hymofs requires linux")

// Driver 是快速路径驱动句柄（非 Linux 平台恒不可用）
type Driver struct{}

// New 创建驱动句柄
func New() *Driver { return &Driver{} }

// CheckStatus 恒返回 StatusNotPresent
func (d *Driver) CheckStatus() Status { return StatusNotPresent }

// Available 恒返回 false
func (d *Driver) Available() bool { return false }

// Reload 无操作
func (d *Driver) Reload() {}

func (d *Driver) ProtocolVersion() (int, error)     { return 0, errUnsupported }
func (d *Driver) AddRule(_, _ string, _ int) error  { return errUnsupported }
func (d *Driver) AddMergeRule(_, _ string) error    { return errUnsupported }
func (d *Driver) DeleteRule(_ string) error         { return errUnsupported }
func (d *Driver) HidePath(_ string) error           { return errUnsupported }
func (d *Driver) HideOverlayXattrs(_ string) error  { return errUnsupported }
func (d *Driver) SetMirrorPath(_ string) error      { return errUnsupported }
func (d *Driver) ClearRules() error                 { return errUnsupported }
func (d *Driver) ListRules() (string, error)        { return "", errUnsupported }
func (d *Driver) SetDebug(_ bool) error             { return errUnsupported }
func (d *Driver) SetStealth(_ bool) error           { return errUnsupported }
func (d *Driver) SetEnabled(_ bool) error           { return errUnsupported }
func (d *Driver) FixMounts() error                  { return errUnsupported }
func (d *Driver) SetUname(_, _ string) error        { return errUnsupported }
func (d *Driver) SetCmdline(_ string) error         { return errUnsupported }
func (d *Driver) AddSpoofKstat(_ *SpoofKstat) error { return errUnsupported }
func (d *Driver) Features() (uint32, error)         { return 0, errUnsupported }
func (d *Driver) IssueRule(_ Rule) error            { return errUnsupported }

func (d *Driver) AddRulesFromDirectory(_, _ string) error    { return errUnsupported }
func (d *Driver) RemoveRulesFromDirectory(_, _ string) error { return errUnsupported }

// GenerateRules 在非 Linux 平台不可用
func GenerateRules(_, _ string) ([]Rule, error) { return nil, errUnsupported }
