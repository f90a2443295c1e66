package fileutil

import (
	"os"
	"path/filepath"
)

// HasFilesRecursive 报告目录树中是否存在至少一个非目录条目
// （普通文件、符号链接或设备节点）。不存在的路径返回 false。
func HasFilesRecursive(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if HasFilesRecursive(filepath.Join(path, entry.Name())) {
				return true
			}
		} else {
			return true
		}
	}
	return false
}

// DirSize 返回目录树中所有普通文件的字节总和。
// 遍历错误被忽略，返回尽力而为的结果。
func DirSize(path string) uint64 {
	var total uint64
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += uint64(info.Size())
			}
		}
		return nil
	})
	return total
}
