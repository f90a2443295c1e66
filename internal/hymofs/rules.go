//go:build linux
// +build linux

package hymofs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// GenerateRules 遍历模块目录，生成对应的规则序列。
// 这是模块目录内容的纯函数：同一棵树总是产生同一序列。
//
// 规则映射：
//   - 普通文件 / 符号链接 → ADD（src 为系统内目标路径，target 为模块内路径）
//   - rdev 为 0 的字符设备（whiteout）→ HIDE
//   - 目录只下钻，自身不产生规则
//
// 单个条目的读取错误记日志后继续；部分安装是本层的契约。
func GenerateRules(targetBase, moduleDir string) ([]Rule, error) {
	info, err := os.Stat(moduleDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("module dir not accessible: %s", moduleDir)
	}

	var rules []Rule
	walkErr := filepath.WalkDir(moduleDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logrus.Warnf("hymofs: skip %s: %v", path, err)
			return nil
		}
		if path == moduleDir || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(moduleDir, path)
		if err != nil {
			logrus.Warnf("hymofs: relative path for %s: %v", path, err)
			return nil
		}
		target := filepath.Join(targetBase, rel)

		if err := ValidatePath(target); err != nil {
			logrus.Warnf("hymofs: %v", err)
			return nil
		}

		switch {
		case d.Type().IsRegular() || d.Type()&fs.ModeSymlink != 0:
			rules = append(rules, Rule{Op: OpAdd, Src: target, Target: path})
		case d.Type()&fs.ModeCharDevice != 0:
			var st unix.Stat_t
			if err := unix.Lstat(path, &st); err == nil && st.Rdev == 0 {
				rules = append(rules, Rule{Op: OpHide, Src: target})
			}
		}
		return nil
	})
	if walkErr != nil {
		return rules, fmt.Errorf("walk %s: %w", moduleDir, walkErr)
	}
	return rules, nil
}
