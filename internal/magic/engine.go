//go:build linux
// +build linux

package magic

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"hymod/internal/mount"
	"hymod/internal/state"
)

// Engine 是魔法挂载引擎。
// 统计收集器按引用传入，由编排器在完成后持久化。
type Engine struct {
	// LiveRoot 是投影目标根（生产环境为 "/"）
	LiveRoot string
	// Source 是 tmpfs 挂载来源标识
	Source string
	// DisableUmount 为 true 时不登记可卸载路径
	DisableUmount bool
	// Stats 是挂载计数器
	Stats *state.MountStats
}

// New 创建引擎
func New(source string, disableUmount bool, stats *state.MountStats) *Engine {
	return &Engine{
		LiveRoot:      "/",
		Source:        source,
		DisableUmount: disableUmount,
		Stats:         stats,
	}
}

// MountModules 把模块列表魔法挂载到实时根。
// tmpPath 下会建立一个私有 tmpfs workdir，完成后分离。
// 没有任何可挂载内容不算错误。
func (e *Engine) MountModules(tmpPath string, modulePaths []string, extraPartitions []string) error {
	root := collectTree(e.LiveRoot, modulePaths, extraPartitions)
	if root == nil {
		logrus.Infof("magic: no files to mount")
		return nil
	}

	workDir := filepath.Join(tmpPath, "workdir")
	if err := mount.Tmpfs(workDir, e.Source); err != nil {
		return fmt.Errorf("create workdir tmpfs: %w", err)
	}
	if err := mount.MakePrivate(workDir); err != nil {
		logrus.Warnf("magic: %v", err)
	}
	e.Stats.TmpfsCreated++

	ok := e.mountNode(e.LiveRoot, workDir, root, false)

	if derr := mount.Detach(workDir); derr != nil {
		logrus.Warnf("magic: detach workdir: %v", derr)
	}
	if rerr := os.Remove(workDir); rerr != nil && !os.IsNotExist(rerr) {
		logrus.Warnf("magic: remove workdir: %v", rerr)
	}

	if !ok {
		return fmt.Errorf("magic mount completed with errors")
	}
	return nil
}

// shouldCreateTmpfs 判定目录是否需要 tmpfs 遮蔽：
//   - 目录声明为 replace；
//   - 任一子节点是符号链接；
//   - 任一子节点是遮蔽真实条目的 whiteout；
//   - 任一子节点与实时系统同名条目类型不一致，或实时条目缺失。
//
// 其余情况可以安全地做就地逐文件绑定。
func (e *Engine) shouldCreateTmpfs(node *Node, path string) bool {
	if node.Replace {
		if _, err := os.Lstat(path); err == nil {
			return true
		}
		return node.ModulePath != ""
	}

	for name, child := range node.Children {
		realPath := filepath.Join(path, name)

		need := false
		switch child.Type {
		case Symlink:
			need = true
		case Whiteout:
			_, err := os.Lstat(realPath)
			need = err == nil
		default:
			if _, err := os.Lstat(realPath); err == nil {
				realType := fileTypeOf(realPath)
				need = realType != child.Type || realType == Symlink
			} else {
				need = true
			}
		}

		if need {
			if node.ModulePath == "" {
				if _, err := os.Lstat(path); err != nil {
					logrus.Errorf("magic: cannot create tmpfs on %s (no source)", path)
					return false
				}
			}
			return true
		}
	}
	return false
}

// prepareTmpfsDir 在 workdir 建立遮蔽目录骨架并绑定到自身
func (e *Engine) prepareTmpfsDir(path, workPath string, node *Node) error {
	if err := os.MkdirAll(workPath, 0755); err != nil {
		return fmt.Errorf("create tmpfs skeleton %s: %w", workPath, err)
	}

	src := path
	if _, err := os.Lstat(path); err != nil {
		if node.ModulePath == "" {
			return fmt.Errorf("no source for tmpfs skeleton: %s", path)
		}
		src = node.ModulePath
	}
	if err := mount.CloneAttr(src, workPath); err != nil {
		logrus.Debugf("magic: %v", err)
	}

	return mount.BindSelf(workPath)
}

// finalizeTmpfsOverlay 把完成填充的遮蔽目录只读化并移动到目标路径
func (e *Engine) finalizeTmpfsOverlay(path, workPath string) error {
	if err := mount.RemountReadOnly(workPath); err != nil {
		logrus.Debugf("magic: %v", err)
	}
	if err := mount.Move(workPath, path); err != nil {
		return err
	}
	if err := mount.MakePrivate(path); err != nil {
		logrus.Debugf("magic: %v", err)
	}

	if !e.DisableUmount {
		mount.RegisterUnmountable(path)
	}
	logrus.Debugf("magic: finalized tmpfs overlay %s", path)
	return nil
}

// mountFile 把模块文件绑定到目标（tmpfs 内先建空壳）
func (e *Engine) mountFile(path, workPath string, node *Node, hasTmpfs bool) error {
	e.Stats.TotalMounts++
	e.Stats.FilesMounted++

	target := path
	if hasTmpfs {
		target = workPath
		f, err := os.Create(workPath)
		if err != nil {
			e.Stats.FailedMounts++
			return fmt.Errorf("create shell file %s: %w", workPath, err)
		}
		f.Close()
	}

	if node.ModulePath == "" {
		return nil
	}

	if err := mount.Bind(node.ModulePath, target); err != nil {
		e.Stats.FailedMounts++
		return fmt.Errorf("bind file %s: %w", node.ModulePath, err)
	}
	if !e.DisableUmount {
		mount.RegisterUnmountable(target)
	}
	if err := mount.RemountReadOnly(target); err != nil {
		logrus.Debugf("magic: %v", err)
	}

	e.Stats.SuccessfulMounts++
	logrus.Debugf("magic: mounted file %s -> %s", node.ModulePath, target)
	return nil
}

// mountSymlink 在 tmpfs 遮蔽目录中重建符号链接。
// 指向实时根之外的链接被拒绝。
func (e *Engine) mountSymlink(workPath string, node *Node) error {
	e.Stats.TotalMounts++

	if node.ModulePath == "" {
		return nil
	}

	if !mount.IsSafeSymlink(node.ModulePath, e.LiveRoot) {
		e.Stats.FailedMounts++
		return fmt.Errorf("unsafe symlink: %s", node.ModulePath)
	}

	target, err := os.Readlink(node.ModulePath)
	if err != nil {
		e.Stats.FailedMounts++
		return fmt.Errorf("read symlink %s: %w", node.ModulePath, err)
	}
	if err := os.Symlink(target, workPath); err != nil {
		e.Stats.FailedMounts++
		return fmt.Errorf("create symlink %s: %w", workPath, err)
	}
	if err := mount.CloneAttr(node.ModulePath, workPath); err != nil {
		logrus.Debugf("magic: %v", err)
	}

	e.Stats.SymlinksCreated++
	e.Stats.SuccessfulMounts++
	return nil
}

// mountChildren 处理目录的全部子项。
// 实时目录中已有的条目：被模块触碰的递归下钻，未触碰的在
// tmpfs 遮蔽时镜像补齐；实时目录中不存在的模块新增项单独下钻。
func (e *Engine) mountChildren(path, workPath string, node *Node, hasTmpfs bool) bool {
	ok := true

	if _, err := os.Lstat(path); err == nil && !node.Replace {
		entries, err := os.ReadDir(path)
		if err != nil {
			logrus.Warnf("magic: iterate %s: %v", path, err)
			ok = false
		} else {
			for _, entry := range entries {
				name := entry.Name()
				if child, found := node.Children[name]; found {
					if child.Skip {
						continue
					}
					if !e.mountNode(path, workPath, child, hasTmpfs) {
						ok = false
					}
				} else if hasTmpfs {
					if err := mount.Mirror(path, workPath, name); err != nil {
						logrus.Warnf("magic: %v", err)
						ok = false
					}
				}
			}
		}
	}

	for name, child := range node.Children {
		if child.Skip {
			continue
		}
		realPath := filepath.Join(path, name)
		if _, err := os.Lstat(realPath); err != nil && !node.Replace {
			if !e.mountNode(path, workPath, child, hasTmpfs) {
				ok = false
			}
		} else if node.Replace {
			if !e.mountNode(path, workPath, child, hasTmpfs) {
				ok = false
			}
		}
	}
	return ok
}

// mountNode 投影单个节点。path/workPath 是父目录对（实时侧与遮蔽侧）。
func (e *Engine) mountNode(path, workPath string, node *Node, hasTmpfs bool) bool {
	targetPath := filepath.Join(path, node.Name)
	targetWork := filepath.Join(workPath, node.Name)

	switch node.Type {
	case RegularFile:
		if err := e.mountFile(targetPath, targetWork, node, hasTmpfs); err != nil {
			logrus.Errorf("magic: %v", err)
			return false
		}

	case Symlink:
		if !hasTmpfs {
			// 决策表保证符号链接只出现在 tmpfs 遮蔽之内；
			// 到这里说明父目录遮蔽创建失败过
			e.Stats.FailedMounts++
			logrus.Errorf("magic: symlink %s outside tmpfs overlay", targetPath)
			return false
		}
		if err := e.mountSymlink(targetWork, node); err != nil {
			logrus.Errorf("magic: %v", err)
			return false
		}

	case Directory:
		e.Stats.DirsMounted++

		createTmpfs := !hasTmpfs && e.shouldCreateTmpfs(node, targetPath)
		effectiveTmpfs := hasTmpfs || createTmpfs

		if createTmpfs {
			if err := e.prepareTmpfsDir(targetPath, targetWork, node); err != nil {
				e.Stats.FailedMounts++
				logrus.Errorf("magic: %v", err)
				return false
			}
		} else if hasTmpfs {
			if _, err := os.Lstat(targetWork); err != nil {
				if err := os.Mkdir(targetWork, 0755); err != nil {
					e.Stats.FailedMounts++
					logrus.Errorf("magic: create %s: %v", targetWork, err)
					return false
				}
				src := targetPath
				if _, err := os.Lstat(targetPath); err != nil {
					src = node.ModulePath
				}
				if src != "" {
					if err := mount.CloneAttr(src, targetWork); err != nil {
						logrus.Debugf("magic: %v", err)
					}
				}
			}
		}

		if !e.mountChildren(targetPath, targetWork, node, effectiveTmpfs) {
			e.Stats.FailedMounts++
			return false
		}

		if createTmpfs {
			if err := e.finalizeTmpfsOverlay(targetPath, targetWork); err != nil {
				e.Stats.FailedMounts++
				logrus.Errorf("magic: %v", err)
				return false
			}
		}

	case Whiteout:
		if hasTmpfs {
			if err := mount.CreateWhiteout(targetPath, targetWork); err != nil {
				e.Stats.FailedMounts++
				logrus.Errorf("magic: %v", err)
				return false
			}
			e.Stats.SuccessfulMounts++
		}
	}

	return true
}
