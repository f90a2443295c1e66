package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var rawCmd = &cobra.Command{
	Use:   "raw <add|hide|delete|merge|clear> [args...]",
	Short: "直接下发内核规则命令",
	Long: `绕过规划器直接操作内核规则：

  hymod raw add <src> <target> [type]
  hymod raw hide <path>
  hymod raw delete <src>
  hymod raw merge <src> <target>
  hymod raw clear`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := requireDriver()
		if err != nil {
			return err
		}

		switch args[0] {
		case "add":
			if len(args) < 3 {
				return fmt.Errorf("usage: hymod raw add <src> <target> [type]")
			}
			typ := 0
			if len(args) >= 4 {
				typ, err = strconv.Atoi(args[3])
				if err != nil {
					return fmt.Errorf("invalid rule type: %s", args[3])
				}
			}
			err = drv.AddRule(args[1], args[2], typ)
		case "hide":
			if len(args) < 2 {
				return fmt.Errorf("usage: hymod raw hide <path>")
			}
			err = drv.HidePath(args[1])
		case "delete":
			if len(args) < 2 {
				return fmt.Errorf("usage: hymod raw delete <src>")
			}
			err = drv.DeleteRule(args[1])
		case "merge":
			if len(args) < 3 {
				return fmt.Errorf("usage: hymod raw merge <src> <target>")
			}
			err = drv.AddMergeRule(args[1], args[2])
		case "clear":
			err = drv.ClearRules()
		default:
			return fmt.Errorf("unknown raw command: %s", args[0])
		}

		if err != nil {
			return err
		}
		fmt.Println("Command executed successfully.")
		return nil
	},
}
