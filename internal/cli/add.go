package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hymod/internal/daemon"
)

var addCmd = &cobra.Command{
	Use:   "add <mod_id>",
	Short: "为模块安装内核规则",
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

		count, err := daemon.AddModuleRules(cfg, drv, args[0])
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Printf("No content found to add for module %s\n", args[0])
			return nil
		}
		fmt.Printf("Successfully added module %s\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <mod_id>",
	Short: "撤销模块的内核规则",
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

		count, err := daemon.RemoveModuleRules(cfg, drv, args[0])
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Printf("No active rules found or removed for module %s\n", args[0])
			return nil
		}
		fmt.Printf("Successfully removed %d partitions for module %s\n", count, args[0])
		return nil
	},
}
