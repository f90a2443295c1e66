package cli

import (
	"github.com/spf13/cobra"

	"hymod/internal/daemon"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "重建快速路径映射",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return daemon.Reload(cfg, newDriver())
	},
}
