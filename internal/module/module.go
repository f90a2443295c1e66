// Package module enumerates and mirrors module directories.
//
// 模块即目录：ID 是目录名，disable/remove/skip_mount 哨兵文件
// 决定它是否参与本次编排。扫描结果在一次编排内不再变化。
package module

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"hymod/internal/config"
	"hymod/pkg/fileutil"
)

// Module 是一次扫描得到的模块记录
type Module struct {
	// ID 是模块目录名
	ID string

	// SourcePath 是模块目录的绝对路径
	SourcePath string

	// 哨兵文件标志
	Disabled  bool
	Removed   bool
	SkipMount bool

	// Mode 是模块级机制覆盖（auto/hymofs/overlay/magic/none）
	Mode string
}

// Active 报告模块是否参与挂载
func (m *Module) Active() bool {
	return !m.Disabled && !m.Removed && !m.SkipMount
}

// HasContent 报告模块是否在任一给定分区下有实际文件
func (m *Module) HasContent(partitions []string) bool {
	for _, part := range partitions {
		if fileutil.HasFilesRecursive(filepath.Join(m.SourcePath, part)) {
			return true
		}
	}
	return false
}

// PartitionsWithContent 返回模块有内容的分区子集
func (m *Module) PartitionsWithContent(partitions []string) []string {
	var out []string
	for _, part := range partitions {
		if fileutil.HasFilesRecursive(filepath.Join(m.SourcePath, part)) {
			out = append(out, part)
		}
	}
	return out
}

// Scan 枚举模块根目录，返回模块记录列表。
// 顺序即目录枚举顺序；规划器不依赖特定排序。
// 被哨兵文件禁用的模块仍出现在结果里（Active 为 false），
// 由调用方决定过滤；hymod 自身与 lost+found 直接跳过。
func Scan(moduleDir string, modes map[string]string) ([]*Module, error) {
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		return nil, fmt.Errorf("read module directory: %w", err)
	}

	var modules []*Module
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if id == config.SelfModuleID || id == "lost+found" {
			continue
		}

		path := filepath.Join(moduleDir, id)
		m := &Module{
			ID:         id,
			SourcePath: path,
			Disabled:   exists(filepath.Join(path, config.DisableFileName)),
			Removed:    exists(filepath.Join(path, config.RemoveFileName)),
			SkipMount:  exists(filepath.Join(path, config.SkipMountFileName)),
			Mode:       string(config.ModeAuto),
		}
		if mode, ok := modes[id]; ok && config.ValidMode(mode) {
			m.Mode = mode
		}

		if !m.Active() {
			logrus.Debugf("module %s skipped (disabled/removed/skip_mount)", id)
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// ScanActive 返回启用且有内容的模块
func ScanActive(moduleDir string, modes map[string]string, partitions []string) ([]*Module, error) {
	all, err := Scan(moduleDir, modes)
	if err != nil {
		return nil, err
	}
	var active []*Module
	for _, m := range all {
		if m.Active() && m.HasContent(partitions) {
			active = append(active, m)
		}
	}
	return active, nil
}

// ScanPartitionCandidates 扫描模块目录，收集模块里出现过的
// 顶层分区目录名（sync-partitions 命令的数据源）。
func ScanPartitionCandidates(moduleDir string) []string {
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == config.SelfModuleID || entry.Name() == "lost+found" {
			continue
		}
		subs, err := os.ReadDir(filepath.Join(moduleDir, entry.Name()))
		if err != nil {
			continue
		}
		for _, sub := range subs {
			if !sub.IsDir() {
				continue
			}
			name := sub.Name()
			// 模块自身的元数据目录不是分区
			if name == "META-INF" || name == "webroot" || name[0] == '.' {
				continue
			}
			if !seen[name] {
				seen[name] = true
				candidates = append(candidates, name)
			}
		}
	}
	return candidates
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
