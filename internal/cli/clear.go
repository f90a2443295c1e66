package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hymod/internal/state"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "清空全部内核规则",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := requireDriver()
		if err != nil {
			return err
		}
		if err := drv.ClearRules(); err != nil {
			return err
		}
		fmt.Println("Successfully cleared all rules.")
		logrus.Infof("user manually cleared all rules via cli")

		st, err := state.Load()
		if err != nil {
			st = &state.RuntimeState{}
		}
		st.HymofsModuleIDs = nil
		return st.Save()
	},
}
