package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"hymod/internal/hymofs"
)

// ruleJSON 是 list 命令的输出单元
type ruleJSON struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
	Source string `json:"source,omitempty"`
	Path   string `json:"path,omitempty"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "列出内核中的活跃规则",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := make([]ruleJSON, 0)

		drv := newDriver()
		if drv.Available() {
			rulesText, err := drv.ListRules()
			if err != nil {
				return err
			}
			for _, r := range hymofs.ParseRules(rulesText) {
				switch r.Op {
				case hymofs.OpHide:
					out = append(out, ruleJSON{Type: string(r.Op), Path: r.Src})
				default:
					out = append(out, ruleJSON{Type: string(r.Op), Target: r.Src, Source: r.Target})
				}
			}
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}
