//go:build linux
// +build linux

package hymofs

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// prctl 选项：获取匿名命令 FD（SECCOMP 安全），arg2 为输出 fd 指针
const prctlGetFD = 0x48021

// commandRecord 与内核命令记录逐位一致（packed，8 字节对齐）
type commandRecord struct {
	Cmd    uint32
	_      uint32 // 把 Arg 对齐到 8 字节
	Arg    uint64 // 命令参数结构体的用户态地址
	Result int32  // 0 成功，负 errno 失败
}

// syscallArg 对应内核的 hymo_syscall_arg
type syscallArg struct {
	Src    uint64 // *const char
	Target uint64 // *const char
	Type   int32
	_      int32
}

// listArg 对应内核的 hymo_syscall_list_arg
type listArg struct {
	Buf  uint64
	Size uint64
}

// Driver 是快速路径驱动句柄。
// 可用性判定在首次查询后缓存在句柄上；驱动自身从不重试命令。
type Driver struct {
	status  Status
	checked bool
}

// New 创建驱动句柄
func New() *Driver {
	return &Driver{}
}

func grabFD() (int, error) {
	fd := int32(-1)
	err := unix.Prctl(prctlGetFD, uintptr(unsafe.Pointer(&fd)), 0, 0, 0)
	if err != nil && fd < 0 {
		return -1, fmt.Errorf("grab command fd: %w", err)
	}
	if fd < 0 {
		return -1, errors.New("grab command fd: not available")
	}
	return int(fd), nil
}

// execute 下发一条命令。每次调用独立获取并关闭命令 FD；
// 同一 FD 上同时只有一条命令在途。
func (d *Driver) execute(cmd uint32, arg uint64) (int32, error) {
	fd, err := grabFD()
	if err != nil {
		return -1, err
	}
	defer unix.Close(fd)

	rec := commandRecord{Cmd: cmd, Arg: arg}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), commandIoctl,
		uintptr(unsafe.Pointer(&rec)))
	if errno != 0 {
		return -1, fmt.Errorf("command ioctl: %w", errno)
	}
	if rec.Result < 0 {
		return rec.Result, unix.Errno(-rec.Result)
	}
	return rec.Result, nil
}

func pathBytes(path string) (*byte, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return unix.BytePtrFromString(path)
}

// ProtocolVersion 查询内核协议版本
func (d *Driver) ProtocolVersion() (int, error) {
	ret, err := d.execute(CmdGetVersion, 0)
	if err != nil {
		return 0, fmt.Errorf("get protocol version: %w", err)
	}
	return int(ret), nil
}

// CheckStatus 判定快速路径可用性。结果缓存在句柄上，
// 只有 Reload 会重置缓存。
func (d *Driver) CheckStatus() Status {
	if d.checked {
		return d.status
	}
	d.checked = true

	ver, err := d.ProtocolVersion()
	switch {
	case err != nil:
		logrus.Debugf("hymofs: status probe failed: %v", err)
		d.status = StatusNotPresent
	case ver < ProtocolVersion:
		logrus.Warnf("hymofs: kernel too old (got %d, expected %d)", ver, ProtocolVersion)
		d.status = StatusKernelTooOld
	case ver > ProtocolVersion:
		logrus.Warnf("hymofs: module too old (got %d, expected %d)", ver, ProtocolVersion)
		d.status = StatusModuleTooOld
	default:
		logrus.Infof("hymofs: available (version %d)", ver)
		d.status = StatusAvailable
	}
	return d.status
}

// Available 报告快速路径是否完全可用
func (d *Driver) Available() bool {
	return d.CheckStatus() == StatusAvailable
}

// Reload 重置缓存的可用性判定
func (d *Driver) Reload() {
	d.checked = false
}

func (d *Driver) ruleCommand(cmd uint32, src, target string, typ int32) error {
	srcPtr, err := pathBytes(src)
	if err != nil {
		return err
	}
	arg := syscallArg{
		Src:  uint64(uintptr(unsafe.Pointer(srcPtr))),
		Type: typ,
	}
	var targetPtr *byte
	if target != "" {
		targetPtr, err = pathBytes(target)
		if err != nil {
			return err
		}
		arg.Target = uint64(uintptr(unsafe.Pointer(targetPtr)))
	}

	_, err = d.execute(cmd, uint64(uintptr(unsafe.Pointer(&arg))))
	runtime.KeepAlive(srcPtr)
	runtime.KeepAlive(targetPtr)
	return err
}

// AddRule 安装一条重定向规则：对 src 的访问被改写到 target
func (d *Driver) AddRule(src, target string, typ int) error {
	logrus.Debugf("hymofs: add rule src=%s target=%s type=%d", src, target, typ)
	if err := d.ruleCommand(CmdAddRule, src, target, int32(typ)); err != nil {
		return fmt.Errorf("add rule %s: %w", src, err)
	}
	return nil
}

// AddMergeRule 安装一条目录合并规则
func (d *Driver) AddMergeRule(src, target string) error {
	logrus.Debugf("hymofs: add merge rule src=%s target=%s", src, target)
	if err := d.ruleCommand(CmdAddMergeRule, src, target, 0); err != nil {
		return fmt.Errorf("add merge rule %s: %w", src, err)
	}
	return nil
}

// DeleteRule 撤销 src 上的规则
func (d *Driver) DeleteRule(src string) error {
	logrus.Debugf("hymofs: delete rule src=%s", src)
	if err := d.ruleCommand(CmdDelRule, src, "", 0); err != nil {
		return fmt.Errorf("delete rule %s: %w", src, err)
	}
	return nil
}

// HidePath 安装一条隐藏规则
func (d *Driver) HidePath(path string) error {
	logrus.Debugf("hymofs: hide path=%s", path)
	if err := d.ruleCommand(CmdHideRule, path, "", 0); err != nil {
		return fmt.Errorf("hide path %s: %w", path, err)
	}
	return nil
}

// HideOverlayXattrs 隐藏路径上的 overlay 扩展属性
func (d *Driver) HideOverlayXattrs(path string) error {
	if err := d.ruleCommand(CmdHideOverlayXattrs, path, "", 0); err != nil {
		return fmt.Errorf("hide overlay xattrs %s: %w", path, err)
	}
	return nil
}

// SetMirrorPath 设置内核侧镜像路径
func (d *Driver) SetMirrorPath(path string) error {
	logrus.Infof("hymofs: set mirror path=%s", path)
	if err := d.ruleCommand(CmdSetMirrorPath, path, "", 0); err != nil {
		return fmt.Errorf("set mirror path: %w", err)
	}
	return nil
}

// ClearRules 清空内核中的全部规则
func (d *Driver) ClearRules() error {
	logrus.Infof("hymofs: clearing all rules")
	if _, err := d.execute(CmdClearAll, 0); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	return nil
}

// ListRules 返回内核中活跃规则的文本形式
func (d *Driver) ListRules() (string, error) {
	buf := make([]byte, 128*1024)
	arg := listArg{
		Buf:  uint64(uintptr(unsafe.Pointer(&buf[0]))),
		Size: uint64(len(buf)),
	}
	_, err := d.execute(CmdListRules, uint64(uintptr(unsafe.Pointer(&arg))))
	runtime.KeepAlive(buf)
	if err != nil {
		return "", fmt.Errorf("list rules: %w", err)
	}
	// 内核写入 NUL 结尾的文本
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n]), nil
}

func (d *Driver) setToggle(cmd uint32, name string, enable bool) error {
	val := uint64(0)
	if enable {
		val = 1
	}
	logrus.Debugf("hymofs: set %s=%v", name, enable)
	if _, err := d.execute(cmd, val); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// SetDebug 开关内核调试日志
func (d *Driver) SetDebug(enable bool) error {
	return d.setToggle(CmdSetDebug, "debug", enable)
}

// SetStealth 开关隐身模式
func (d *Driver) SetStealth(enable bool) error {
	return d.setToggle(CmdSetStealth, "stealth", enable)
}

// SetEnabled 开关规则引擎本身
func (d *Driver) SetEnabled(enable bool) error {
	return d.setToggle(CmdSetEnabled, "enabled", enable)
}

// FixMounts 请求内核重排 mnt_id（隐身模式下的最后一个挂载相关步骤）
func (d *Driver) FixMounts() error {
	logrus.Infof("hymofs: reordering mnt_id")
	if _, err := d.execute(CmdReorderMntID, 0); err != nil {
		return fmt.Errorf("fix mounts: %w", err)
	}
	return nil
}

func putUnameField(dst []byte, s string) {
	// 保留 NUL 终止位
	if len(s) >= len(dst) {
		s = s[:len(dst)-1]
	}
	copy(dst, s)
}

// SetUname 设置内核版本伪装。release/version 为空串表示清除。
func (d *Driver) SetUname(release, version string) error {
	var arg spoofUname
	putUnameField(arg.Release[:], release)
	putUnameField(arg.Version[:], version)

	logrus.Infof("hymofs: set uname release=%q version=%q", release, version)
	_, err := d.execute(CmdSetUname, uint64(uintptr(unsafe.Pointer(&arg))))
	runtime.KeepAlive(&arg)
	if err != nil {
		return fmt.Errorf("set uname: %w", err)
	}
	return nil
}

// SetCmdline 设置 /proc/cmdline 伪装内容
func (d *Driver) SetCmdline(cmdline string) error {
	if len(cmdline) >= CmdlineSize {
		return fmt.Errorf("cmdline exceeds %d bytes", CmdlineSize)
	}
	var arg spoofCmdline
	copy(arg.Cmdline[:], cmdline)

	_, err := d.execute(CmdSetCmdline, uint64(uintptr(unsafe.Pointer(&arg))))
	runtime.KeepAlive(&arg)
	if err != nil {
		return fmt.Errorf("set cmdline: %w", err)
	}
	return nil
}

// AddSpoofKstat 安装一条 kstat 伪装记录
func (d *Driver) AddSpoofKstat(k *SpoofKstat) error {
	_, err := d.execute(CmdAddSpoofKstat, uint64(uintptr(unsafe.Pointer(k))))
	runtime.KeepAlive(k)
	if err != nil {
		return fmt.Errorf("add spoof kstat: %w", err)
	}
	return nil
}

// Features 查询内核特性位掩码
func (d *Driver) Features() (uint32, error) {
	ret, err := d.execute(CmdGetFeatures, 0)
	if err != nil {
		return 0, fmt.Errorf("get features: %w", err)
	}
	return uint32(ret), nil
}

// IssueRule 下发一条已生成（或已解析）的规则
func (d *Driver) IssueRule(r Rule) error {
	switch r.Op {
	case OpAdd:
		return d.AddRule(r.Src, r.Target, 0)
	case OpHide:
		return d.HidePath(r.Src)
	case OpMerge:
		return d.AddMergeRule(r.Src, r.Target)
	default:
		return fmt.Errorf("unknown rule op: %s", r.Op)
	}
}

// AddRulesFromDirectory 为模块目录批量安装规则。
// 单条规则失败记 WARN 后继续（部分安装是契约）；
// 调用成功的条件是遍历完成且至少下发了一条规则。
func (d *Driver) AddRulesFromDirectory(targetBase, moduleDir string) error {
	rules, err := GenerateRules(targetBase, moduleDir)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return fmt.Errorf("no rules generated for %s", moduleDir)
	}

	var issueErrs *multierror.Error
	issued := 0
	for _, r := range rules {
		if err := d.IssueRule(r); err != nil {
			issueErrs = multierror.Append(issueErrs, err)
			continue
		}
		issued++
	}
	if issueErrs != nil {
		logrus.Warnf("hymofs: %d/%d rules failed for %s: %v",
			issueErrs.Len(), len(rules), moduleDir, issueErrs)
	}
	if issued == 0 {
		return fmt.Errorf("all %d rules failed for %s", len(rules), moduleDir)
	}
	return nil
}

// RemoveRulesFromDirectory 按模块目录内容逐条撤销规则。
// 内核不区分规则来源，因此这只是尽力而为的逆操作；
// 精确的逆操作只有 ClearRules 后整体重装。
func (d *Driver) RemoveRulesFromDirectory(targetBase, moduleDir string) error {
	rules, err := GenerateRules(targetBase, moduleDir)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return fmt.Errorf("no rules generated for %s", moduleDir)
	}

	removed := 0
	for _, r := range rules {
		if err := d.DeleteRule(r.Src); err != nil {
			logrus.Warnf("hymofs: %v", err)
			continue
		}
		removed++
	}
	if removed == 0 {
		return fmt.Errorf("no rules removed for %s", moduleDir)
	}
	return nil
}

