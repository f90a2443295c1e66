// Package state persists the daemon's runtime records.
//
// RuntimeState 在一次编排成功结束时写入一次；
// MountStats 由魔法挂载引擎在完成后写入。
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"hymod/internal/config"
	"hymod/pkg/fileutil"
)

// RuntimeState 是守护进程的运行时状态记录。
// 序列化为 daemon_state.json，供 CLI 查询命令与外部 UI 读取。
type RuntimeState struct {
	StorageMode      string   `json:"storage_mode"`
	MountPoint       string   `json:"mount_point"`
	OverlayModuleIDs []string `json:"overlay_module_ids"`
	MagicModuleIDs   []string `json:"magic_module_ids"`
	HymofsModuleIDs  []string `json:"hymofs_module_ids"`
	ActiveMounts     []string `json:"active_mounts"`
	NukeActive       bool     `json:"nuke_active"`
	Pid              int      `json:"pid"`

	// 协议版本不匹配时的用户可见提示
	HymofsMismatch  bool   `json:"mismatch,omitempty"`
	MismatchMessage string `json:"mismatch_message,omitempty"`
}

func statePath() string {
	return filepath.Join(config.BaseDir, config.StateFileName)
}

// Load 读取运行时状态；文件不存在时返回零值状态。
func Load() (*RuntimeState, error) {
	data, err := os.ReadFile(statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &RuntimeState{}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var st RuntimeState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &st, nil
}

// Save 原子地写入运行时状态
func (s *RuntimeState) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := fileutil.EnsureParentDir(statePath(), 0755); err != nil {
		return err
	}
	if err := fileutil.AtomicWriteFile(statePath(), data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// AddHymofsModule 将模块 ID 加入快速路径列表（去重），返回是否有变化
func (s *RuntimeState) AddHymofsModule(id string) bool {
	for _, v := range s.HymofsModuleIDs {
		if v == id {
			return false
		}
	}
	s.HymofsModuleIDs = append(s.HymofsModuleIDs, id)
	return true
}

// RemoveHymofsModule 将模块 ID 移出快速路径列表，返回是否有变化
func (s *RuntimeState) RemoveHymofsModule(id string) bool {
	for i, v := range s.HymofsModuleIDs {
		if v == id {
			s.HymofsModuleIDs = append(s.HymofsModuleIDs[:i], s.HymofsModuleIDs[i+1:]...)
			return true
		}
	}
	return false
}
