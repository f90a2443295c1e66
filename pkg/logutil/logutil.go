// Package logutil configures the process-wide logger.
//
// hymod 全程使用 logrus 的标准 logger：启动时初始化一次，
// 各包直接通过 logrus 包级函数输出。这是进程中唯一的全局单例。
package logutil

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Init 初始化全局 logger。
// verbose 为 true 时启用 Debug 级别；logFile 非空时同时写入日志文件。
// 日志文件打不开不算致命错误，降级为仅输出到 stderr。
func Init(verbose bool, logFile string) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        "2006-01-02 15:04:05",
		DisableLevelTruncation: true,
	})

	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	out := io.Writer(os.Stderr)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logrus.Warnf("open log file %s: %v", logFile, err)
		} else {
			out = io.MultiWriter(os.Stderr, f)
		}
	}
	logrus.SetOutput(out)
}
