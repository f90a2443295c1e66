package cli

import (
	"github.com/spf13/cobra"

	"hymod/internal/storage"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "显示存储状态",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return storage.PrintStatus(cfg)
	},
}
