package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// parseOnOff 解析 on/off 开关参数
func parseOnOff(s string) bool {
	return s == "on" || s == "1" || s == "true"
}

var debugCmd = &cobra.Command{
	Use:   "debug <on|off>",
	Short: "开关内核调试日志",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := requireDriver()
		if err != nil {
			return err
		}
		enable := parseOnOff(args[0])
		if err := drv.SetDebug(enable); err != nil {
			return err
		}
		fmt.Printf("Kernel debug logging %s.\n", onOffWord(enable))
		return nil
	},
}

var stealthCmd = &cobra.Command{
	Use:   "stealth <on|off>",
	Short: "开关隐身模式",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := requireDriver()
		if err != nil {
			return err
		}
		enable := parseOnOff(args[0])
		if err := drv.SetStealth(enable); err != nil {
			return err
		}
		fmt.Printf("Stealth mode %s.\n", onOffWord(enable))
		return nil
	},
}

var hymofsCmd = &cobra.Command{
	Use:   "hymofs <on|off>",
	Short: "开关内核规则引擎",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := requireDriver()
		if err != nil {
			return err
		}
		enable := parseOnOff(args[0])
		if err := drv.SetEnabled(enable); err != nil {
			return err
		}
		fmt.Printf("HymoFS %s.\n", onOffWord(enable))
		return nil
	},
}

var fixMountsCmd = &cobra.Command{
	Use:   "fix-mounts",
	Short: "修复挂载命名空间（重排 mnt_id）",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := requireDriver()
		if err != nil {
			return err
		}
		if err := drv.FixMounts(); err != nil {
			return err
		}
		fmt.Println("Mount namespace fixed (mnt_id reordered).")
		return nil
	},
}

func onOffWord(enable bool) string {
	if enable {
		return "enabled"
	}
	return "disabled"
}
