package config

// hymod 的磁盘布局常量。
// 这些是回退默认值；moduledir/tempdir 等可被配置或命令行覆盖。
const (
	// BaseDir 是配置、镜像与日志的根目录
	BaseDir = "/data/adb/hymo"

	// FallbackContentDir 是非快速路径下的内容挂载点
	FallbackContentDir = "/data/adb/hymo/mnt"

	// RunDir 存放运行时标记（hot_unmounted 等）
	RunDir = "/data/adb/hymo/run"

	// DefaultModuleDir 是模块源目录
	DefaultModuleDir = "/data/adb/modules"

	// MirrorDev 是内核规则引擎的默认镜像路径
	MirrorDev = "/dev/hymo_mirror"

	// DaemonLogFile 是守护进程日志
	DaemonLogFile = "/data/adb/hymo/daemon.log"

	// ConfigFileName 是 BaseDir 下的配置文件名
	ConfigFileName = "config.yaml"

	// ImageFileName / ErofsImageFileName 是 BaseDir 下的镜像文件名
	ImageFileName      = "modules.img"
	ErofsImageFileName = "modules.erofs"

	// StateFileName / MountStatsFileName 是运行时状态记录
	StateFileName      = "daemon_state.json"
	MountStatsFileName = "mount_stats.json"

	// 模块模式与自定义规则的持久化文件
	ModuleModesFileName = "module_modes.json"
	ModuleRulesFileName = "module_rules.json"
	UserHideRulesFile   = "/data/adb/hymo/user_hide_rules.json"

	// 模块目录中的哨兵文件
	DisableFileName   = "disable"
	RemoveFileName    = "remove"
	SkipMountFileName = "skip_mount"

	// 不透明目录标记：目录内的哨兵文件，或 xattr trusted.overlay.opaque=y
	ReplaceFileName  = ".replace"
	ReplaceDirXattr  = "trusted.overlay.opaque"
	ReplaceDirXattrV = "y"

	// DefaultMountSource 是挂载来源标识（出现在 /proc/mounts 中）
	DefaultMountSource = "KSU"

	// DefaultSELinuxContext 是存储根目录的默认 SELinux 上下文
	DefaultSELinuxContext = "u:object_r:system_file:s0"
)

// BuiltinPartitions 是内建分区集合。system 是根；其余在存在时挂接到根。
var BuiltinPartitions = []string{"system", "vendor", "product", "system_ext", "odm"}

// SelfModuleID 是 hymod 自身的模块目录名，扫描时跳过
const SelfModuleID = "hymo"
