package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"hymod/pkg/fileutil"
)

// FsType 表示镜像存储的文件系统策略
type FsType string

const (
	FsAuto  FsType = "auto"
	FsTmpfs FsType = "tmpfs"
	FsErofs FsType = "erofs"
	FsExt4  FsType = "ext4"
)

// ParseFsType 解析配置中的 fs_type 字符串；未知值回退为 auto。
func ParseFsType(s string) FsType {
	switch FsType(s) {
	case FsTmpfs, FsErofs, FsExt4:
		return FsType(s)
	default:
		return FsAuto
	}
}

// Config 是持久化的守护进程配置。
// 序列化为 YAML 保存在 BaseDir/config.yaml。
type Config struct {
	// 模块源目录
	Moduledir string `yaml:"moduledir"`

	// 临时目录（魔法挂载 workdir 的宿主）
	Tempdir string `yaml:"tempdir"`

	// 挂载来源标识
	Mountsource string `yaml:"mountsource"`

	// 镜像存储文件系统策略：auto/tmpfs/erofs/ext4
	FsTypeName string `yaml:"fs_type"`

	// 详细日志
	Verbose bool `yaml:"verbose"`

	// 额外分区（内建分区之外）
	Partitions []string `yaml:"partitions"`

	// 禁止把挂载点注册给清理收集器
	DisableUmount bool `yaml:"disable_umount"`

	// 启用 ext4 sysfs 痕迹清理（外部协作方）
	EnableNuke bool `yaml:"enable_nuke"`

	// 协议版本不匹配时仍强制使用快速路径
	IgnoreProtocolMismatch bool `yaml:"ignore_protocol_mismatch"`

	// 内核侧开关
	EnableKernelDebug bool `yaml:"enable_kernel_debug"`
	EnableStealth     bool `yaml:"enable_stealth"`
	HymofsEnabled     bool `yaml:"hymofs_enabled"`

	// uname 伪装（空串表示不设置）
	UnameRelease string `yaml:"uname_release"`
	UnameVersion string `yaml:"uname_version"`

	// 自定义内核镜像路径；为空时依次回退 tempdir、MirrorDev
	MirrorPath string `yaml:"mirror_path"`
}

// Default 返回内建默认配置
func Default() *Config {
	return &Config{
		Moduledir:     DefaultModuleDir,
		Mountsource:   DefaultMountSource,
		FsTypeName:    string(FsAuto),
		HymofsEnabled: true,
	}
}

// DefaultPath 返回默认配置文件路径
func DefaultPath() string {
	return filepath.Join(BaseDir, ConfigFileName)
}

// Load 加载指定配置文件；path 为空时使用默认路径。
// 文件不存在返回默认配置，不算错误。
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Moduledir == "" {
		cfg.Moduledir = DefaultModuleDir
	}
	if cfg.Mountsource == "" {
		cfg.Mountsource = DefaultMountSource
	}
	return cfg, nil
}

// Save 将配置写入指定路径；path 为空时使用默认路径。
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fileutil.EnsureParentDir(path, 0755); err != nil {
		return err
	}
	if err := fileutil.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// FsType 返回解析后的文件系统策略
func (c *Config) FsType() FsType {
	return ParseFsType(c.FsTypeName)
}

// MergeCLI 按命令行优先的原则合并命令行覆盖项。
// partitions 为追加语义（与配置值取并集）。
func (c *Config) MergeCLI(moduledir, tempdir, mountsource string, verbose bool, partitions []string) {
	if moduledir != "" {
		c.Moduledir = moduledir
	}
	if tempdir != "" {
		c.Tempdir = tempdir
	}
	if mountsource != "" {
		c.Mountsource = mountsource
	}
	if verbose {
		c.Verbose = true
	}
	for _, p := range partitions {
		if !contains(c.Partitions, p) {
			c.Partitions = append(c.Partitions, p)
		}
	}
}

// AllPartitions 返回内建分区加额外分区（去重，保持内建顺序在前）。
func (c *Config) AllPartitions() []string {
	out := make([]string, 0, len(BuiltinPartitions)+len(c.Partitions))
	out = append(out, BuiltinPartitions...)
	for _, p := range c.Partitions {
		if !contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// EffectiveMirrorPath 解析镜像目录。
// 优先级：mirror_path > tempdir > MirrorDev。
func (c *Config) EffectiveMirrorPath() string {
	if c.MirrorPath != "" {
		return c.MirrorPath
	}
	if c.Tempdir != "" {
		return c.Tempdir
	}
	return MirrorDev
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
