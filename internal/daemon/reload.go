//go:build linux
// +build linux

package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"hymod/internal/config"
	"hymod/internal/hymofs"
	"hymod/internal/module"
	"hymod/internal/planner"
	"hymod/internal/state"
	"hymod/pkg/fileutil"
)

// hotUnmountedDir 返回热卸载标记目录
func hotUnmountedDir() string {
	return filepath.Join(config.RunDir, "hot_unmounted")
}

// HotUnmountedIDs 返回带热卸载标记的模块 ID 集合
func HotUnmountedIDs() map[string]bool {
	ids := make(map[string]bool)
	entries, err := os.ReadDir(hotUnmountedDir())
	if err != nil {
		return ids
	}
	for _, entry := range entries {
		ids[entry.Name()] = true
	}
	return ids
}

// Reload 重建快速路径映射。
// 重新扫描模块（跳过热卸载标记），同步镜像，重装规则，
// 重新应用内核开关并改写运行时状态。
func Reload(cfg *config.Config, drv *hymofs.Driver) error {
	if !drv.Available() {
		return fmt.Errorf("hymofs not available, cannot reload")
	}

	logrus.Infof("reloading hymofs mappings")

	mirrorDir := cfg.EffectiveMirrorPath()
	partitions := cfg.AllPartitions()
	modes := config.LoadModuleModes()

	modules, err := module.ScanActive(cfg.Moduledir, modes, partitions)
	if err != nil {
		return err
	}

	hotUnmounted := HotUnmountedIDs()
	active := modules[:0]
	for _, m := range modules {
		if hotUnmounted[m.ID] {
			logrus.Infof("skipping hot-unmounted module: %s", m.ID)
			continue
		}
		active = append(active, m)
	}
	modules = active

	logrus.Infof("syncing modules to mirror")
	if err := module.SyncAll(modules, mirrorDir, partitions); err != nil {
		logrus.Errorf("sync: %v", err)
	}

	plan := planner.Generate(cfg, modules, mirrorDir, true)
	planner.Segregate(plan, mirrorDir)
	updateHymofsMappings(cfg, drv, mirrorDir, plan)

	if err := drv.SetStealth(cfg.EnableStealth); err != nil {
		logrus.Warnf("%v", err)
	}
	if err := drv.SetEnabled(cfg.HymofsEnabled); err != nil {
		logrus.Warnf("%v", err)
	}
	// 重载期间产生的新挂载也要被隐藏/重排
	if cfg.EnableStealth {
		if err := drv.FixMounts(); err != nil {
			logrus.Warnf("%v", err)
		}
	}

	st, err := state.Load()
	if err != nil {
		st = &state.RuntimeState{}
	}
	st.MountPoint = mirrorDir
	st.HymofsModuleIDs = plan.HymofsModuleIDs
	st.ActiveMounts = activeMounts(cfg, modules, plan)
	if err := st.Save(); err != nil {
		return fmt.Errorf("save runtime state: %w", err)
	}

	logrus.Infof("reload complete")
	return nil
}

// HotMount 即时安装单个模块的规则并更新状态。
// 先清掉热卸载标记与 disable 哨兵。
func HotMount(cfg *config.Config, drv *hymofs.Driver, moduleID string) error {
	marker := filepath.Join(hotUnmountedDir(), moduleID)
	if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("remove hot-unmount marker: %v", err)
	}

	disableFile := filepath.Join(cfg.Moduledir, moduleID, config.DisableFileName)
	if err := os.Remove(disableFile); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("remove disable sentinel: %v", err)
	}

	modulePath := filepath.Join(cfg.Moduledir, moduleID)
	if _, err := os.Stat(modulePath); err != nil {
		return fmt.Errorf("module not found: %s", moduleID)
	}

	installed := installModuleDirRules(cfg, drv, modulePath)
	if installed == 0 {
		return fmt.Errorf("no content found to add for module %s", moduleID)
	}

	logrus.Infof("hot mounted module %s", moduleID)
	st, err := state.Load()
	if err != nil {
		st = &state.RuntimeState{}
	}
	if st.AddHymofsModule(moduleID) {
		if err := st.Save(); err != nil {
			return err
		}
	}
	return nil
}

// HotUnmount 撤销单个模块的规则，落下热卸载标记。
// 下次 reload 依据标记跳过该模块。
func HotUnmount(cfg *config.Config, drv *hymofs.Driver, moduleID string) error {
	if err := fileutil.EnsureDir(hotUnmountedDir(), 0755); err != nil {
		return err
	}
	marker := filepath.Join(hotUnmountedDir(), moduleID)
	f, err := os.Create(marker)
	if err != nil {
		return fmt.Errorf("create hot-unmount marker: %w", err)
	}
	f.Close()

	modulePath := filepath.Join(cfg.Moduledir, moduleID)
	removed := 0
	for _, part := range cfg.AllPartitions() {
		srcDir := filepath.Join(modulePath, part)
		if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
			continue
		}
		if err := drv.RemoveRulesFromDirectory("/"+part, srcDir); err != nil {
			logrus.Warnf("%v", err)
			continue
		}
		removed++
	}
	if removed == 0 {
		return fmt.Errorf("no active rules found for module %s", moduleID)
	}

	logrus.Infof("hot unmounted module %s", moduleID)
	st, err := state.Load()
	if err != nil {
		st = &state.RuntimeState{}
	}
	if st.RemoveHymofsModule(moduleID) {
		if err := st.Save(); err != nil {
			return err
		}
	}
	return nil
}

// AddModuleRules 为模块安装规则（add 命令），返回安装的分区数
func AddModuleRules(cfg *config.Config, drv *hymofs.Driver, moduleID string) (int, error) {
	modulePath := filepath.Join(cfg.Moduledir, moduleID)
	if _, err := os.Stat(modulePath); err != nil {
		return 0, fmt.Errorf("module not found: %s", moduleID)
	}
	count := installModuleDirRules(cfg, drv, modulePath)
	if count > 0 {
		st, err := state.Load()
		if err != nil {
			st = &state.RuntimeState{}
		}
		if st.AddHymofsModule(moduleID) {
			if err := st.Save(); err != nil {
				return count, err
			}
		}
	}
	return count, nil
}

// RemoveModuleRules 撤销模块规则（delete 命令），返回处理的分区数
func RemoveModuleRules(cfg *config.Config, drv *hymofs.Driver, moduleID string) (int, error) {
	modulePath := filepath.Join(cfg.Moduledir, moduleID)
	count := 0
	for _, part := range cfg.AllPartitions() {
		srcDir := filepath.Join(modulePath, part)
		if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
			continue
		}
		if err := drv.RemoveRulesFromDirectory("/"+part, srcDir); err != nil {
			logrus.Warnf("%v", err)
			continue
		}
		count++
	}
	if count > 0 {
		st, err := state.Load()
		if err != nil {
			st = &state.RuntimeState{}
		}
		if st.RemoveHymofsModule(moduleID) {
			if err := st.Save(); err != nil {
				return count, err
			}
		}
	}
	return count, nil
}

func installModuleDirRules(cfg *config.Config, drv *hymofs.Driver, modulePath string) int {
	count := 0
	for _, part := range cfg.AllPartitions() {
		srcDir := filepath.Join(modulePath, part)
		if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
			continue
		}
		if err := drv.AddRulesFromDirectory("/"+part, srcDir); err != nil {
			logrus.Warnf("%v", err)
			continue
		}
		count++
	}
	return count
}
