package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"hymod/pkg/fileutil"
)

// LoadUserHideRules 加载用户隐藏规则（绝对路径的 JSON 数组）。
// 文件不存在时返回空列表。
func LoadUserHideRules() ([]string, error) {
	data, err := os.ReadFile(UserHideRulesFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read user hide rules: %w", err)
	}

	var rules []string
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse user hide rules: %w", err)
	}
	return rules, nil
}

// SaveUserHideRules 持久化用户隐藏规则
func SaveUserHideRules(rules []string) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user hide rules: %w", err)
	}
	if err := fileutil.EnsureParentDir(UserHideRulesFile, 0755); err != nil {
		return err
	}
	return fileutil.AtomicWriteFile(UserHideRulesFile, data, 0644)
}

// AddUserHideRule 新增一条隐藏规则。路径必须是绝对路径；重复添加不报错。
func AddUserHideRule(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must be absolute: %s", path)
	}

	rules, err := LoadUserHideRules()
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r == path {
			return nil
		}
	}
	rules = append(rules, path)
	return SaveUserHideRules(rules)
}

// RemoveUserHideRule 删除一条隐藏规则，返回是否存在
func RemoveUserHideRule(path string) (bool, error) {
	rules, err := LoadUserHideRules()
	if err != nil {
		return false, err
	}
	for i, r := range rules {
		if r == path {
			rules = append(rules[:i], rules[i+1:]...)
			return true, SaveUserHideRules(rules)
		}
	}
	return false, nil
}
