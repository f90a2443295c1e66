// Package planner turns scanned modules into a MountPlan.
//
// 每个模块按 机制解析顺序（路径规则 > 模块模式 > auto）落进三种
// 机制之一；auto 在快速路径可用时用快速路径，否则内容适合时用
// overlay，再不然用魔法挂载。同一分区下任何路径最多属于一种机制。
package planner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"hymod/internal/config"
	"hymod/internal/module"
	"hymod/pkg/fileutil"
)

// StagingDirName 是镜像内与快速路径规则隔离的私有子树
const StagingDirName = ".overlay_staging"

// OverlayOp 是单个分区的 overlay 叠加操作
type OverlayOp struct {
	// Target 是目标分区（如 /system）
	Target string
	// LowerDirs 按优先级从高到低排列；旧分区内容由引擎追加为最底层
	LowerDirs []string
	UpperDir  string
	WorkDir   string
}

// Plan 是一次编排的挂载计划
type Plan struct {
	OverlayOps       []OverlayOp
	MagicModulePaths []string
	HymofsModuleIDs  []string

	// 统计与状态记录用
	OverlayModuleIDs []string
	MagicModuleIDs   []string

	// 各模块在快速路径安装时要跳过的路径前缀
	// （被路径规则划给其他机制的子树）
	HymofsExclusions map[string][]string
}

// Generate 生成挂载计划。
// storageRoot 是镜像目录（模块内容已同步到 storageRoot/<id>）；
// fastPath 表示快速路径是否可用。
func Generate(cfg *config.Config, modules []*module.Module, storageRoot string, fastPath bool) *Plan {
	plan := &Plan{HymofsExclusions: make(map[string][]string)}
	rules := config.LoadModuleRules()
	partitions := cfg.AllPartitions()

	partitionLayers := make(map[string][]string)

	for _, m := range modules {
		contentPath := filepath.Join(storageRoot, m.ID)
		if _, err := os.Stat(contentPath); err != nil {
			logrus.Debugf("planner: module %s content missing, skipping", m.ID)
			continue
		}

		mode := resolveMode(config.Mode(m.Mode), contentPath, partitions, fastPath)
		switch mode {
		case config.ModeHymofs:
			plan.HymofsModuleIDs = append(plan.HymofsModuleIDs, m.ID)
		case config.ModeOverlay:
			participates := false
			for _, part := range partitions {
				partPath := filepath.Join(contentPath, part)
				if fileutil.HasFilesRecursive(partPath) {
					partitionLayers[part] = append(partitionLayers[part], partPath)
					participates = true
				}
			}
			if participates {
				plan.OverlayModuleIDs = append(plan.OverlayModuleIDs, m.ID)
			}
		case config.ModeMagic:
			plan.MagicModulePaths = append(plan.MagicModulePaths, contentPath)
			plan.MagicModuleIDs = append(plan.MagicModuleIDs, m.ID)
		case config.ModeNone:
			logrus.Debugf("planner: module %s mode none, skipping", m.ID)
		}

		applyPathRules(plan, rules[m.ID], m.ID, contentPath, mode)
	}

	// 同一分区的多个模块叠成一组 lowerdir；
	// 扫描顺序为 [A, B, C] 时 overlay 期望 C:B:A（后装的覆盖先装的）。
	parts := make([]string, 0, len(partitionLayers))
	for part := range partitionLayers {
		parts = append(parts, part)
	}
	sort.Strings(parts)
	for _, part := range parts {
		layers := partitionLayers[part]
		reversed := make([]string, len(layers))
		for i, l := range layers {
			reversed[len(layers)-1-i] = l
		}
		plan.OverlayOps = append(plan.OverlayOps, OverlayOp{
			Target:    "/" + part,
			LowerDirs: reversed,
		})
	}

	sort.Strings(plan.HymofsModuleIDs)
	sort.Strings(plan.OverlayModuleIDs)
	sort.Strings(plan.MagicModuleIDs)
	return plan
}

// resolveMode 解析模块的有效机制
func resolveMode(mode config.Mode, contentPath string, partitions []string, fastPath bool) config.Mode {
	switch mode {
	case config.ModeHymofs:
		if fastPath {
			return config.ModeHymofs
		}
		// 快速路径不可用时按 auto 降级
		return resolveMode(config.ModeAuto, contentPath, partitions, false)
	case config.ModeOverlay, config.ModeMagic, config.ModeNone:
		return mode
	default: // auto
		if fastPath {
			return config.ModeHymofs
		}
		if overlayCompatible(contentPath, partitions) {
			return config.ModeOverlay
		}
		return config.ModeMagic
	}
}

// overlayCompatible 报告模块内容是否适合 overlay：
// 只含目录、普通文件与 whiteout，且符号链接不指向树外。
func overlayCompatible(contentPath string, partitions []string) bool {
	compatible := true
	for _, part := range partitions {
		partRoot := filepath.Join(contentPath, part)
		if _, err := os.Stat(partRoot); err != nil {
			continue
		}
		_ = filepath.Walk(partRoot, func(path string, info os.FileInfo, err error) error {
			if err != nil || !compatible {
				return filepath.SkipAll
			}
			if info.Mode()&os.ModeSymlink != 0 {
				if !symlinkStaysInside(path, partRoot) {
					compatible = false
					return filepath.SkipAll
				}
			}
			return nil
		})
		if !compatible {
			break
		}
	}
	return compatible
}

// symlinkStaysInside 报告符号链接是否留在实时根之内。
// 绝对目标始终视为根内；相对目标基于链接所在目录解析后
// 不得越出模块分区树。
func symlinkStaysInside(linkPath, root string) bool {
	target, err := os.Readlink(linkPath)
	if err != nil {
		return false
	}
	if filepath.IsAbs(target) {
		return true
	}
	resolved := filepath.Clean(filepath.Join(filepath.Dir(linkPath), target))
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, "../"))
}

// applyPathRules 把模块的路径规则落进计划。
// 与模块机制不同的规则路径改走规则指定的机制；
// 快速路径模块则把这些子树登记为安装排除项。
func applyPathRules(plan *Plan, rules []config.ModuleRule, moduleID, contentPath string, moduleMode config.Mode) {
	for _, rule := range rules {
		ruleMode := config.Mode(rule.Mode)
		if !config.ValidMode(rule.Mode) || ruleMode == moduleMode {
			continue
		}

		rel := strings.TrimPrefix(rule.Path, "/")
		subPath := filepath.Join(contentPath, rel)
		if _, err := os.Stat(subPath); err != nil {
			logrus.Debugf("planner: rule path %s missing for %s", rule.Path, moduleID)
			continue
		}

		if moduleMode == config.ModeHymofs {
			plan.HymofsExclusions[moduleID] = append(plan.HymofsExclusions[moduleID], rule.Path)
		}

		switch ruleMode {
		case config.ModeMagic:
			plan.MagicModulePaths = append(plan.MagicModulePaths, subPath)
			logrus.Infof("planner: %s%s forced to magic by rule", moduleID, rule.Path)
		case config.ModeOverlay:
			// 规则路径必须是某个分区下的目录才能作为 lowerdir
			if info, err := os.Stat(subPath); err == nil && info.IsDir() {
				target := "/" + strings.SplitN(rel, "/", 2)[0]
				plan.OverlayOps = append(plan.OverlayOps, OverlayOp{
					Target:    target,
					LowerDirs: []string{subPath},
				})
				logrus.Infof("planner: %s%s forced to overlay by rule", moduleID, rule.Path)
			}
		case config.ModeNone:
			logrus.Infof("planner: %s%s excluded by rule", moduleID, rule.Path)
		}
	}
}

// Segregate 把位于镜像目录内的 overlay/魔法挂载来源移动到
// 私有的 .overlay_staging 子树并改写计划条目，避免快速路径规则
// 与其他机制的来源在同一块存储上互相污染。
func Segregate(plan *Plan, mirrorDir string) {
	stagingDir := filepath.Join(mirrorDir, StagingDirName)

	relocate := func(path string) string {
		rel, err := filepath.Rel(mirrorDir, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return path
		}
		if strings.HasPrefix(rel, StagingDirName) {
			return path
		}
		target := filepath.Join(stagingDir, rel)
		if _, err := os.Stat(path); err != nil {
			return path
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			logrus.Warnf("planner: segregate %s: %v", path, err)
			return path
		}
		if err := os.Rename(path, target); err != nil {
			logrus.Warnf("planner: segregate %s: %v", path, err)
			return path
		}
		logrus.Debugf("planner: segregated %s -> %s", path, target)
		return target
	}

	for i := range plan.OverlayOps {
		for j, layer := range plan.OverlayOps[i].LowerDirs {
			plan.OverlayOps[i].LowerDirs[j] = relocate(layer)
		}
	}
	for i, path := range plan.MagicModulePaths {
		plan.MagicModulePaths[i] = relocate(path)
	}
}
