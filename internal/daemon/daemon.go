//go:build linux
// +build linux

// Package daemon sequences one boot-time orchestration pass.
//
// 顺序：状态探测 → 存储准备 → 扫描 → 同步镜像 → 规划 → 执行 →
// 记录状态。三种机制之间的回退归本包所有：快速路径失败落到
// overlay/魔法挂载，镜像失败落到仅魔法挂载。
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"hymod/internal/config"
	"hymod/internal/hymofs"
	"hymod/internal/magic"
	"hymod/internal/module"
	"hymod/internal/overlay"
	"hymod/internal/planner"
	"hymod/internal/state"
	"hymod/internal/storage"
	"hymod/pkg/fileutil"
)

// 协议不匹配时的用户可见提示
const (
	warnKernelTooOld = "Kernel version is lower than module version. Please update your kernel."
	warnModuleTooOld = "Module version is lower than kernel version. Please update your module."
)

// execResult 记录实际执行成功的模块
type execResult struct {
	overlayModuleIDs []string
	magicModuleIDs   []string
}

// Mount 执行完整的一次挂载编排
func Mount(cfg *config.Config, drv *hymofs.Driver) error {
	if err := fileutil.EnsureDir(config.RunDir, 0755); err != nil {
		return err
	}
	if cfg.DisableUmount {
		logrus.Warnf("namespace detach (try_umount) is disabled")
	}

	status := drv.CheckStatus()
	warning := ""
	canUseFastPath := status == hymofs.StatusAvailable

	if !canUseFastPath && cfg.IgnoreProtocolMismatch {
		switch status {
		case hymofs.StatusKernelTooOld:
			logrus.Warnf("forcing fast path despite protocol mismatch (kernel too old)")
			canUseFastPath = true
			warning = warnKernelTooOld
		case hymofs.StatusModuleTooOld:
			logrus.Warnf("forcing fast path despite protocol mismatch (module too old)")
			canUseFastPath = true
			warning = warnModuleTooOld
		default:
			logrus.Warnf("cannot force fast path: kernel module not present")
		}
	} else {
		switch status {
		case hymofs.StatusKernelTooOld:
			warning = warnKernelTooOld
		case hymofs.StatusModuleTooOld:
			warning = warnModuleTooOld
		}
	}

	stats := &state.MountStats{}
	var (
		handle  *storage.Handle
		plan    *planner.Plan
		result  execResult
		modules []*module.Module
		err     error
	)

	if canUseFastPath {
		handle, plan, modules, result, err = mountFastPath(cfg, drv, stats)
	} else {
		logrus.Infof("mode: standard overlay/magic")
		handle, plan, modules, result, err = mountLegacy(cfg, drv, stats)
	}
	if err != nil {
		module.UpdateDescription(cfg.Moduledir, false, "error", false, 0, 0, 0, "")
		return err
	}

	logrus.Infof("plan: %d overlay modules, %d magic modules, %d hymofs modules",
		len(result.overlayModuleIDs), len(result.magicModuleIDs), len(plan.HymofsModuleIDs))

	if err := stats.Save(); err != nil {
		logrus.Warnf("save mount stats: %v", err)
	}

	// ext4 sysfs 痕迹清理由外部协作方执行；这里只记录结果
	nukeActive := false
	if handle.Mode == "ext4" && cfg.EnableNuke {
		logrus.Infof("nuke requested for ext4 storage (external collaborator)")
		nukeActive = true
	}

	st := &state.RuntimeState{
		StorageMode:      handle.Mode,
		MountPoint:       handle.MountPoint,
		OverlayModuleIDs: result.overlayModuleIDs,
		MagicModuleIDs:   result.magicModuleIDs,
		HymofsModuleIDs:  plan.HymofsModuleIDs,
		ActiveMounts:     activeMounts(cfg, modules, plan),
		NukeActive:       nukeActive,
		Pid:              os.Getpid(),
	}
	if warning != "" {
		st.HymofsMismatch = true
		st.MismatchMessage = warning
	}
	if err := st.Save(); err != nil {
		logrus.Errorf("save runtime state: %v", err)
	}

	module.UpdateDescription(cfg.Moduledir, true, handle.Mode, nukeActive,
		len(result.overlayModuleIDs), len(result.magicModuleIDs), len(plan.HymofsModuleIDs), warning)

	logrus.Infof("mount completed")
	return nil
}

// mountFastPath 是快速路径分支。镜像存储或同步失败时回退到
// 仅魔法挂载（直接使用模块源目录）。
func mountFastPath(cfg *config.Config, drv *hymofs.Driver, stats *state.MountStats) (
	*storage.Handle, *planner.Plan, []*module.Module, execResult, error) {

	logrus.Infof("mode: hymofs fast path")

	mirrorDir := cfg.EffectiveMirrorPath()
	if mirrorDir != config.MirrorDev {
		if err := drv.SetMirrorPath(mirrorDir); err != nil {
			logrus.Warnf("%v", err)
		}
	}

	applyKernelToggles(cfg, drv)

	imgPath := filepath.Join(config.BaseDir, config.ImageFileName)
	partitions := cfg.AllPartitions()
	modes := config.LoadModuleModes()

	handle, err := storage.Setup(mirrorDir, imgPath, cfg.FsType())
	if err == nil {
		var modules []*module.Module
		modules, err = module.ScanActive(cfg.Moduledir, modes, partitions)
		if err == nil {
			if err = module.SyncAll(modules, mirrorDir, partitions); err == nil {
				if handle.Mode == "ext4" {
					storage.FinalizePermissions(handle.MountPoint)
				}

				plan := planner.Generate(cfg, modules, mirrorDir, true)
				planner.Segregate(plan, mirrorDir)
				updateHymofsMappings(cfg, drv, mirrorDir, plan)

				result := executePlan(cfg, plan, stats)

				if cfg.EnableStealth {
					if err := drv.FixMounts(); err != nil {
						logrus.Warnf("%v", err)
					}
				}
				return handle, plan, modules, result, nil
			}
			logrus.Errorf("mirror sync failed: %v", err)
			_ = unix.Unmount(mirrorDir, 0)
		}
	}
	logrus.Warnf("mirror setup failed (%v), falling back to magic mount", err)

	// 仅魔法挂载：直接使用模块源目录
	handle = &storage.Handle{MountPoint: cfg.Moduledir, Mode: "magic_only"}
	modules, scanErr := module.ScanActive(cfg.Moduledir, modes, partitions)
	if scanErr != nil {
		return nil, nil, nil, execResult{}, scanErr
	}

	plan := &planner.Plan{HymofsExclusions: make(map[string][]string)}
	for _, m := range modules {
		plan.MagicModulePaths = append(plan.MagicModulePaths, m.SourcePath)
		plan.MagicModuleIDs = append(plan.MagicModuleIDs, m.ID)
	}
	result := executePlan(cfg, plan, stats)
	return handle, plan, modules, result, nil
}

// mountLegacy 是 overlay/魔法挂载分支（快速路径不可用）
func mountLegacy(cfg *config.Config, drv *hymofs.Driver, stats *state.MountStats) (
	*storage.Handle, *planner.Plan, []*module.Module, execResult, error) {

	imgPath := filepath.Join(config.BaseDir, config.ImageFileName)
	partitions := cfg.AllPartitions()
	modes := config.LoadModuleModes()

	handle, err := storage.Setup(config.FallbackContentDir, imgPath, cfg.FsType())
	if err != nil {
		return nil, nil, nil, execResult{}, fmt.Errorf("setup storage: %w", err)
	}

	modules, err := module.ScanActive(cfg.Moduledir, modes, partitions)
	if err != nil {
		return nil, nil, nil, execResult{}, err
	}
	logrus.Infof("scanned %d active modules", len(modules))

	if err := module.SyncAll(modules, handle.MountPoint, partitions); err != nil {
		logrus.Errorf("sync: %v", err)
	}
	if handle.Mode == "ext4" {
		storage.FinalizePermissions(handle.MountPoint)
	}

	logrus.Infof("generating mount plan")
	plan := planner.Generate(cfg, modules, handle.MountPoint, false)
	result := executePlan(cfg, plan, stats)
	return handle, plan, modules, result, nil
}

// applyKernelToggles 下发配置里的内核侧开关
func applyKernelToggles(cfg *config.Config, drv *hymofs.Driver) {
	if cfg.EnableKernelDebug {
		if err := drv.SetDebug(true); err != nil {
			logrus.Warnf("%v", err)
		}
	}
	if err := drv.SetStealth(cfg.EnableStealth); err != nil {
		logrus.Warnf("%v", err)
	}
	if err := drv.SetEnabled(cfg.HymofsEnabled); err != nil {
		logrus.Warnf("%v", err)
	}
	if cfg.UnameRelease != "" || cfg.UnameVersion != "" {
		if err := drv.SetUname(cfg.UnameRelease, cfg.UnameVersion); err != nil {
			logrus.Warnf("%v", err)
		}
	}
}

// updateHymofsMappings 重建内核规则：清空后按计划逐模块逐分区
// 批量安装，再补上用户隐藏规则。同步必须已经完成——内核在安装
// 时解析规则来源。
func updateHymofsMappings(cfg *config.Config, drv *hymofs.Driver, mirrorDir string, plan *planner.Plan) {
	if err := drv.ClearRules(); err != nil {
		logrus.Warnf("%v", err)
	}

	partitions := cfg.AllPartitions()
	for _, id := range plan.HymofsModuleIDs {
		excluded := plan.HymofsExclusions[id]
		for _, part := range partitions {
			srcDir := filepath.Join(mirrorDir, id, part)
			if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
				continue
			}
			targetBase := "/" + part
			installModuleRules(drv, targetBase, srcDir, excluded)
		}
	}

	hideRules, err := config.LoadUserHideRules()
	if err != nil {
		logrus.Warnf("%v", err)
	}
	for _, path := range hideRules {
		if err := drv.HidePath(path); err != nil {
			logrus.Warnf("%v", err)
		}
	}
}

// installModuleRules 为单个分区目录安装规则，跳过被路径规则
// 划走的子树。单条失败记 WARN 后继续。
func installModuleRules(drv *hymofs.Driver, targetBase, srcDir string, excluded []string) {
	rules, err := hymofs.GenerateRules(targetBase, srcDir)
	if err != nil {
		logrus.Warnf("%v", err)
		return
	}
	for _, r := range rules {
		if pathExcluded(r.Src, excluded) {
			continue
		}
		if err := drv.IssueRule(r); err != nil {
			logrus.Warnf("%v", err)
		}
	}
}

func pathExcluded(path string, excluded []string) bool {
	for _, prefix := range excluded {
		if path == prefix || len(path) > len(prefix) &&
			path[:len(prefix)] == prefix && path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

// executePlan 执行计划中的 overlay 与魔法挂载操作。
// overlay 单个分区失败只跳过该分区；
// 魔法挂载失败记日志但不回滚已完成的部分。
func executePlan(cfg *config.Config, plan *planner.Plan, stats *state.MountStats) execResult {
	result := execResult{
		overlayModuleIDs: plan.OverlayModuleIDs,
		magicModuleIDs:   plan.MagicModuleIDs,
	}

	if len(plan.OverlayOps) > 0 {
		eng := overlay.New(cfg.Mountsource, cfg.DisableUmount, stats)
		for _, op := range plan.OverlayOps {
			if err := eng.Mount(op.Target, op.LowerDirs, op.UpperDir, op.WorkDir); err != nil {
				logrus.Errorf("overlay %s: %v, skipping target", op.Target, err)
			}
		}
	}

	if len(plan.MagicModulePaths) > 0 {
		tmpPath := cfg.Tempdir
		if tmpPath == "" {
			tmpPath = filepath.Join(config.RunDir, "magic")
		}
		if err := fileutil.EnsureDir(tmpPath, 0755); err != nil {
			logrus.Errorf("magic: %v", err)
			return result
		}
		eng := magic.New(cfg.Mountsource, cfg.DisableUmount, stats)
		if err := eng.MountModules(tmpPath, plan.MagicModulePaths, cfg.Partitions); err != nil {
			logrus.Errorf("magic mount: %v", err)
		}
	}

	return result
}

// activeMounts 计算有活动内容的分区集合（状态记录用）
func activeMounts(cfg *config.Config, modules []*module.Module, plan *planner.Plan) []string {
	byID := make(map[string]*module.Module, len(modules))
	for _, m := range modules {
		byID[m.ID] = m
	}

	seen := make(map[string]bool)
	var active []string
	add := func(part string) {
		if !seen[part] {
			seen[part] = true
			active = append(active, part)
		}
	}

	partitions := cfg.AllPartitions()
	forIDs := func(ids []string) {
		for _, part := range partitions {
			for _, id := range ids {
				m, ok := byID[id]
				if !ok {
					continue
				}
				if _, err := os.Stat(filepath.Join(m.SourcePath, part)); err == nil {
					add(part)
					break
				}
			}
		}
	}

	forIDs(plan.HymofsModuleIDs)
	for _, op := range plan.OverlayOps {
		add(filepath.Base(op.Target))
	}
	forIDs(plan.MagicModuleIDs)
	return active
}
