package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hymod/internal/config"
	"hymod/internal/hymofs"
	"hymod/pkg/logutil"
)

var (
	// 版本信息
	Version = "1.0.0"

	// 全局标志
	configFile  string
	moduleDir   string
	tempDir     string
	mountSource string
	verbose     bool
	partitions  []string
	outputFile  string
)

var rootCmd = &cobra.Command{
	Use:   "hymod",
	Short: "分层模块文件系统守护进程",
	Long: `hymod 把多个只读模块目录合并投影到实时系统分区上。

每次开机按优先级选择一种机制：
  - 内核规则引擎（快速路径，协议版本 ` + fmt.Sprint(hymofs.ProtocolVersion) + `）
  - 按分区叠加的 overlay 文件系统
  - 逐文件绑定挂载（魔法挂载）

镜像存储依次尝试 tmpfs、erofs 压缩镜像与 ext4 读写镜像。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logutil.Init(verbose, config.DaemonLogFile)
	},
}

// Execute 运行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并合并命令行覆盖项
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	cfg.MergeCLI(moduleDir, tempDir, mountSource, verbose, partitions)
	return cfg, nil
}

// configPath 返回应当写回的配置文件路径
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.DefaultPath()
}

// newDriver 创建快速路径驱动句柄
func newDriver() *hymofs.Driver {
	return hymofs.New()
}

// requireDriver 返回可用的驱动，不可用时报错
func requireDriver() (*hymofs.Driver, error) {
	drv := newDriver()
	if !drv.Available() {
		return nil, fmt.Errorf("hymofs not available")
	}
	return drv, nil
}

func init() {
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(storageCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(hideCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(stealthCmd)
	rootCmd.AddCommand(hymofsCmd)
	rootCmd.AddCommand(setUnameCmd)
	rootCmd.AddCommand(setMirrorCmd)
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(setModeCmd)
	rootCmd.AddCommand(addRuleCmd)
	rootCmd.AddCommand(removeRuleCmd)
	rootCmd.AddCommand(fixMountsCmd)
	rootCmd.AddCommand(syncPartitionsCmd)
	rootCmd.AddCommand(createImageCmd)
	rootCmd.AddCommand(hotMountCmd)
	rootCmd.AddCommand(hotUnmountCmd)
	rootCmd.AddCommand(watchCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&moduleDir, "moduledir", "m", "", "模块目录")
	rootCmd.PersistentFlags().StringVarP(&tempDir, "tempdir", "t", "", "临时目录")
	rootCmd.PersistentFlags().StringVarP(&mountSource, "mountsource", "s", "", "挂载来源标识")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细日志")
	rootCmd.PersistentFlags().StringArrayVarP(&partitions, "partition", "p", nil, "额外分区（可重复）")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "输出文件")
}
