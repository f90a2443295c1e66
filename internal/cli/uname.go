package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setUnameCmd = &cobra.Command{
	Use:   "set-uname <release> <version>",
	Short: "设置内核版本伪装",
	Long: `设置 uname 伪装并持久化到配置。

两个参数都允许为空串（清除伪装）：
  hymod set-uname "5.15.0-generic" "#1 SMP PREEMPT ..."
  hymod set-uname "" ""`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		release := ""
		version := ""
		if len(args) > 0 {
			release = args[0]
		}
		if len(args) > 1 {
			version = args[1]
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.UnameRelease = release
		cfg.UnameVersion = version
		if err := cfg.Save(configPath()); err != nil {
			return err
		}

		fmt.Printf("Kernel version spoofing configured:\n  Release: %s\n  Version: %s\n",
			release, version)

		drv := newDriver()
		if drv.Available() {
			if err := drv.SetUname(release, version); err != nil {
				return err
			}
			fmt.Println("Applied uname spoofing to kernel.")
		}
		return nil
	},
}

var setMirrorCmd = &cobra.Command{
	Use:   "set-mirror <path>",
	Short: "设置内核镜像路径",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.MirrorPath = path
		if err := cfg.Save(configPath()); err != nil {
			return err
		}
		fmt.Printf("Mirror path set to: %s\n", path)

		drv := newDriver()
		if drv.Available() {
			if err := drv.SetMirrorPath(path); err != nil {
				return err
			}
			fmt.Println("Applied mirror path to kernel.")
		}
		return nil
	},
}
