package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hymod/internal/config"
)

var setModeCmd = &cobra.Command{
	Use:   "set-mode <mod_id> <mode>",
	Short: "设置模块的挂载机制",
	Long:  `机制取值：auto、hymofs、overlay、magic、none。`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, mode := args[0], args[1]
		if !config.ValidMode(mode) {
			return fmt.Errorf("invalid mode: %s", mode)
		}

		modes := config.LoadModuleModes()
		modes[id] = mode
		if err := config.SaveModuleModes(modes); err != nil {
			return err
		}
		fmt.Printf("Set mode for %s to %s\n", id, mode)
		return nil
	},
}

var addRuleCmd = &cobra.Command{
	Use:   "add-rule <mod_id> <path> <mode>",
	Short: "新增模块的路径规则",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, path, mode := args[0], args[1], args[2]
		if !config.ValidMode(mode) {
			return fmt.Errorf("invalid mode: %s", mode)
		}

		rules := config.LoadModuleRules()
		config.SetModuleRule(rules, id, path, mode)
		if err := config.SaveModuleRules(rules); err != nil {
			return err
		}
		fmt.Printf("Added rule for %s: %s -> %s\n", id, path, mode)
		return nil
	},
}

var removeRuleCmd = &cobra.Command{
	Use:   "remove-rule <mod_id> <path>",
	Short: "删除模块的路径规则",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, path := args[0], args[1]

		rules := config.LoadModuleRules()
		if !config.RemoveModuleRule(rules, id, path) {
			fmt.Println("Rule not found.")
			return nil
		}
		if err := config.SaveModuleRules(rules); err != nil {
			return err
		}
		fmt.Printf("Removed rule for %s: %s\n", id, path)
		return nil
	},
}
