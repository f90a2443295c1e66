package cli

import (
	"github.com/spf13/cobra"

	"hymod/internal/module"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "列出活跃模块",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return module.PrintList(cfg)
	},
}
