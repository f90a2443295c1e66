package module

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hymod/internal/config"
	"hymod/internal/state"
	"hymod/pkg/fileutil"
)

// PropFileName 是模块元数据文件名
const PropFileName = "module.prop"

// ReadProp 从 module.prop 读取单个键；不存在返回空串。
func ReadProp(propPath, key string) string {
	f, err := os.Open(propPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	prefix := key + "="
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, prefix) {
			return line[len(prefix):]
		}
	}
	return ""
}

// Info 是 modules 命令的 JSON 输出单元
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Mode        string `json:"mode"`
}

// PrintList 打印启用且有内容的模块列表（JSON）。
// 内容检查同时看源目录与镜像目录：tmpfs 模式下内容可能只在镜像里。
func PrintList(cfg *config.Config) error {
	modes := config.LoadModuleModes()

	st, err := state.Load()
	if err != nil {
		st = &state.RuntimeState{}
	}
	mntBase := st.MountPoint
	if mntBase == "" {
		mntBase = config.FallbackContentDir
	}

	all, err := Scan(cfg.Moduledir, modes)
	if err != nil {
		return err
	}

	infos := make([]Info, 0)
	partitions := cfg.AllPartitions()
	for _, m := range all {
		if !m.Active() {
			continue
		}

		hasContent := m.HasContent(partitions)
		if !hasContent {
			for _, part := range partitions {
				if fileutil.HasFilesRecursive(filepath.Join(mntBase, m.ID, part)) {
					hasContent = true
					break
				}
			}
		}
		if !hasContent {
			continue
		}

		propPath := filepath.Join(m.SourcePath, PropFileName)
		name := ReadProp(propPath, "name")
		if name == "" {
			name = m.ID
		}
		infos = append(infos, Info{
			ID:          m.ID,
			Name:        name,
			Version:     ReadProp(propPath, "version"),
			Author:      ReadProp(propPath, "author"),
			Description: ReadProp(propPath, "description"),
			Mode:        m.Mode,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	data, err := json.Marshal(infos)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// UpdateDescription 把运行状态摘要写进 hymod 自身的 module.prop。
// prop 文件不存在时跳过（例如开发环境）。
func UpdateDescription(moduleDir string, ok bool, storageMode string, nukeActive bool,
	overlayCount, magicCount, hymofsCount int, warning string) {
	propPath := filepath.Join(moduleDir, config.SelfModuleID, PropFileName)
	data, err := os.ReadFile(propPath)
	if err != nil {
		return
	}

	var desc string
	if !ok {
		desc = "description=error: mount failed, check daemon.log"
	} else {
		desc = fmt.Sprintf("description=running (%s) | Overlay: %d | Magic: %d | HymoFS: %d",
			storageMode, overlayCount, magicCount, hymofsCount)
		if nukeActive {
			desc += " | nuke: on"
		}
		if warning != "" {
			desc += " | " + warning
		}
	}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "description=") {
			lines[i] = desc
		}
	}
	_ = fileutil.AtomicWriteFile(propPath, []byte(strings.Join(lines, "\n")), 0644)
}
