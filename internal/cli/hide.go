package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"hymod/internal/config"
)

var hideCmd = &cobra.Command{
	Use:   "hide",
	Short: "管理用户隐藏规则",
}

var hideListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出用户隐藏规则",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := config.LoadUserHideRules()
		if err != nil {
			return err
		}
		if rules == nil {
			rules = []string{}
		}
		data, err := json.MarshalIndent(rules, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var hideAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "新增一条隐藏规则",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if err := config.AddUserHideRule(path); err != nil {
			return err
		}
		// 快速路径可用时立即下发
		drv := newDriver()
		if drv.Available() {
			if err := drv.HidePath(path); err != nil {
				return err
			}
		}
		fmt.Printf("Added hide rule: %s\n", path)
		return nil
	},
}

var hideRemoveCmd = &cobra.Command{
	Use:   "remove <path>",
	Short: "删除一条隐藏规则",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		found, err := config.RemoveUserHideRule(path)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("Rule not found.")
			return nil
		}
		drv := newDriver()
		if drv.Available() {
			if err := drv.DeleteRule(path); err != nil {
				return err
			}
		}
		fmt.Printf("Removed hide rule: %s\n", path)
		return nil
	},
}

func init() {
	hideCmd.AddCommand(hideListCmd)
	hideCmd.AddCommand(hideAddCmd)
	hideCmd.AddCommand(hideRemoveCmd)
}
