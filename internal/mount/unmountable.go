package mount

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// 卸载清理由外部协作方负责：守护进程只在挂载产生时登记路径，
// 稍后的清理轮次据此解除挂载。默认实现只做进程内记录。

var (
	unmountableMu   sync.Mutex
	unmountable     []string
	unmountableHook func(path string)
)

// SetUnmountableHook 安装外部清理协作方的登记回调
func SetUnmountableHook(fn func(path string)) {
	unmountableMu.Lock()
	defer unmountableMu.Unlock()
	unmountableHook = fn
}

// RegisterUnmountable 登记一个受跟踪的挂载点
func RegisterUnmountable(path string) {
	unmountableMu.Lock()
	defer unmountableMu.Unlock()

	unmountable = append(unmountable, path)
	if unmountableHook != nil {
		unmountableHook(path)
	}
	logrus.Debugf("registered unmountable: %s", path)
}

// Unmountables 返回本次运行登记的挂载点快照
func Unmountables() []string {
	unmountableMu.Lock()
	defer unmountableMu.Unlock()
	out := make([]string, len(unmountable))
	copy(out, unmountable)
	return out
}
