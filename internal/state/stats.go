package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"hymod/internal/config"
	"hymod/pkg/fileutil"
)

// MountStats 是魔法挂载引擎的计数器。
// 引擎持有一个实例并按引用传递；完成后由编排器持久化。
type MountStats struct {
	TotalMounts      int `json:"total_mounts"`
	SuccessfulMounts int `json:"successful_mounts"`
	FailedMounts     int `json:"failed_mounts"`
	TmpfsCreated     int `json:"tmpfs_created"`
	FilesMounted     int `json:"files_mounted"`
	DirsMounted      int `json:"dirs_mounted"`
	SymlinksCreated  int `json:"symlinks_created"`
	OverlayfsMounts  int `json:"overlayfs_mounts"`
}

func mountStatsPath() string {
	return filepath.Join(config.BaseDir, config.MountStatsFileName)
}

// LoadMountStats 读取挂载统计；文件缺失或损坏时返回零值。
func LoadMountStats() *MountStats {
	var stats MountStats
	data, err := os.ReadFile(mountStatsPath())
	if err != nil {
		return &stats
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return &MountStats{}
	}
	return &stats
}

// Save 持久化挂载统计
func (m *MountStats) Save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mount stats: %w", err)
	}
	if err := fileutil.EnsureParentDir(mountStatsPath(), 0755); err != nil {
		return err
	}
	return fileutil.AtomicWriteFile(mountStatsPath(), data, 0644)
}
