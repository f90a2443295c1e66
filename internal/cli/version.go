package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"hymod/internal/config"
	"hymod/internal/hymofs"
	"hymod/internal/state"
)

// versionReport 是 version 命令的 JSON 输出
type versionReport struct {
	ProtocolVersion  int      `json:"protocol_version"`
	HymofsAvailable  bool     `json:"hymofs_available"`
	KernelVersion    int      `json:"kernel_version"`
	ProtocolMismatch bool     `json:"protocol_mismatch"`
	Features         uint32   `json:"features"`
	ActiveModules    []string `json:"active_modules"`
	MountBase        string   `json:"mount_base"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示协议版本与内核状态",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		report := versionReport{
			ProtocolVersion: hymofs.ProtocolVersion,
			ActiveModules:   []string{},
		}

		drv := newDriver()
		report.HymofsAvailable = drv.Available()
		if report.HymofsAvailable {
			ver, err := drv.ProtocolVersion()
			if err == nil {
				report.KernelVersion = ver
				report.ProtocolMismatch = ver != hymofs.ProtocolVersion
			}
			if features, err := drv.Features(); err == nil {
				report.Features = features
			}
			if rulesText, err := drv.ListRules(); err == nil {
				ids := hymofs.ModuleIDsFromRules(rulesText,
					cfg.Moduledir, cfg.EffectiveMirrorPath())
				if ids != nil {
					report.ActiveModules = ids
				}
			}
		}

		st, err := state.Load()
		if err != nil {
			st = &state.RuntimeState{}
		}
		report.MountBase = st.MountPoint
		if report.MountBase == "" {
			report.MountBase = config.MirrorDev
		}

		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}
