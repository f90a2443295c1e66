//go:build linux
// +build linux

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"hymod/internal/config"
	"hymod/internal/hymofs"
	"hymod/pkg/fileutil"
)

// 事件合并窗口：一次模块更新往往触发一串事件，攒一拍再重载
const watchSettle = 2 * time.Second

// Watch 监视热卸载标记目录与模块目录的哨兵变化，
// 变化沉降后触发一次 Reload。阻塞直到 watcher 出错。
func Watch(cfg *config.Config, drv *hymofs.Driver) error {
	if !drv.Available() {
		return fmt.Errorf("hymofs not available, cannot watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := fileutil.EnsureDir(hotUnmountedDir(), 0755); err != nil {
		return err
	}
	if err := watcher.Add(hotUnmountedDir()); err != nil {
		return fmt.Errorf("watch %s: %w", hotUnmountedDir(), err)
	}
	if err := watcher.Add(cfg.Moduledir); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.Moduledir, err)
	}
	// 各模块目录本身也要看：disable/remove 哨兵落在里面
	if entries, err := os.ReadDir(cfg.Moduledir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				_ = watcher.Add(filepath.Join(cfg.Moduledir, entry.Name()))
			}
		}
	}

	logrus.Infof("watching %s and %s for changes", hotUnmountedDir(), cfg.Moduledir)

	var timer *time.Timer
	reloadCh := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event, cfg.Moduledir) {
				continue
			}
			logrus.Debugf("watch: %s", event)

			// 新模块目录加入监视
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() &&
					filepath.Dir(event.Name) == cfg.Moduledir {
					_ = watcher.Add(event.Name)
				}
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchSettle, func() {
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			})

		case <-reloadCh:
			if err := Reload(cfg, drv); err != nil {
				logrus.Errorf("watch: reload: %v", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher: %w", err)
		}
	}
}

// relevantEvent 过滤与编排无关的文件事件：
// 哨兵文件增删、热卸载标记增删、模块目录本身的增删。
func relevantEvent(event fsnotify.Event, moduleDir string) bool {
	if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	switch filepath.Base(event.Name) {
	case config.DisableFileName, config.RemoveFileName, config.SkipMountFileName:
		return true
	}
	dir := filepath.Dir(event.Name)
	return dir == hotUnmountedDir() || dir == filepath.Clean(moduleDir)
}
