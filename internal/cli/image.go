package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"hymod/internal/config"
	"hymod/internal/module"
	"hymod/internal/storage"
)

var createImageCmd = &cobra.Command{
	Use:   "create-image [dir]",
	Short: "创建模块镜像文件",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir := config.BaseDir
		if len(args) > 0 {
			targetDir = args[0]
		}
		if err := storage.CreateImage(targetDir); err != nil {
			return err
		}
		fmt.Printf("Successfully created image at %s\n",
			filepath.Join(targetDir, config.ImageFileName))
		return nil
	},
}

var syncPartitionsCmd = &cobra.Command{
	Use:   "sync-partitions",
	Short: "扫描模块并把新分区写入配置",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		known := cfg.AllPartitions()
		added := 0
		for _, cand := range module.ScanPartitionCandidates(cfg.Moduledir) {
			if containsString(known, cand) {
				continue
			}
			cfg.Partitions = append(cfg.Partitions, cand)
			known = append(known, cand)
			fmt.Printf("Added partition: %s\n", cand)
			added++
		}

		if added == 0 {
			fmt.Println("No new partitions found.")
			return nil
		}
		if err := cfg.Save(configPath()); err != nil {
			return err
		}
		fmt.Printf("Updated config with %d new partitions.\n", added)
		return nil
	},
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
