package cli

import (
	"github.com/spf13/cobra"

	"hymod/internal/daemon"
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "挂载全部模块",
	Long: `执行一次完整的挂载编排：

探测快速路径 → 准备镜像存储 → 扫描并同步模块 → 生成挂载计划 →
按机制执行（内核规则 / overlay / 魔法挂载）→ 记录运行时状态。

机制之间自动回退：快速路径不可用落到 overlay/魔法挂载，
快速路径下镜像存储或同步失败落到仅魔法挂载。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return daemon.Mount(cfg, newDriver())
	},
}
