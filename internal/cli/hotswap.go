package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hymod/internal/daemon"
)

var hotMountCmd = &cobra.Command{
	Use:   "hot-mount <mod_id>",
	Short: "热挂载一个模块",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		drv, err := requireDriver()
		if err != nil {
			return err
		}
		if err := daemon.HotMount(cfg, drv, args[0]); err != nil {
			return err
		}
		fmt.Printf("Successfully added module %s\n", args[0])
		return nil
	},
}

var hotUnmountCmd = &cobra.Command{
	Use:   "hot-unmount <mod_id>",
	Short: "热卸载一个模块",
	Long: `撤销模块的内核规则并落下热卸载标记。
带标记的模块在下一次 reload 时被跳过。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		drv, err := requireDriver()
		if err != nil {
			return err
		}
		if err := daemon.HotUnmount(cfg, drv, args[0]); err != nil {
			return err
		}
		fmt.Printf("Successfully hot unmounted module %s\n", args[0])
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "监视模块变化并自动重载",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return daemon.Watch(cfg, newDriver())
	},
}
