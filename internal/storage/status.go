//go:build linux
// +build linux

package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"hymod/internal/config"
	"hymod/internal/state"
	"hymod/pkg/fileutil"
)

// StatusReport 是 storage 命令的 JSON 输出
type StatusReport struct {
	Path    string  `json:"path"`
	Pid     int     `json:"pid"`
	Error   string  `json:"error,omitempty"`
	Warning string  `json:"warning,omitempty"`
	Size    string  `json:"size,omitempty"`
	Used    string  `json:"used,omitempty"`
	Avail   string  `json:"avail,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	Mode    string  `json:"mode,omitempty"`
}

func formatSize(bytes uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1fG", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.0fM", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.0fK", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// Status 汇总当前存储状态。
// statfs 结果为 0 时回退到逻辑目录大小；tmpfs 模式下数据可能
// 实际位于模块源目录，也做一次兜底统计。
func Status(cfg *config.Config) *StatusReport {
	st, err := state.Load()
	if err != nil {
		st = &state.RuntimeState{}
	}

	path := st.MountPoint
	if path == "" {
		path = config.FallbackContentDir
	}

	report := &StatusReport{Path: path, Pid: st.Pid}

	if _, err := os.Stat(path); err != nil {
		report.Error = "Not mounted"
		return report
	}

	mode := st.StorageMode
	if mode == "" {
		mode = "unknown"
	}

	var stats unix.Statfs_t
	if err := unix.Statfs(path, &stats); err != nil {
		report.Error = fmt.Sprintf("statfs failed: %v", err)
		return report
	}

	blockSize := uint64(stats.Bsize)
	total := stats.Blocks * blockSize
	free := stats.Bfree * blockSize
	used := uint64(0)
	if total > free {
		used = total - free
	}

	if used == 0 {
		if logical := fileutil.DirSize(path); logical > 0 {
			used = logical
		}
	}
	if used == 0 && mode == "tmpfs" {
		moduleRoot := cfg.Moduledir
		if moduleRoot == "" {
			moduleRoot = config.DefaultModuleDir
		}
		if logical := fileutil.DirSize(moduleRoot); logical > 0 {
			used = logical
		}
	}

	if total == 0 {
		report.Warning = "Zero size detected"
	}

	report.Size = formatSize(total)
	report.Used = formatSize(used)
	report.Avail = formatSize(free)
	if total > 0 {
		report.Percent = float64(used) * 100 / float64(total)
	}
	report.Mode = mode
	return report
}

// PrintStatus 把存储状态以 JSON 打印到 stdout
func PrintStatus(cfg *config.Config) error {
	data, err := json.MarshalIndent(Status(cfg), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
