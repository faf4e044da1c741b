package config

import (
	"os"
	"path/filepath"

	"github.com/zg04ckpt/listenE-sub002/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// WatchLogLevel 监听 .env 文件变化，运行时热更新日志级别。
// 返回一个停止函数，调用后关闭监听器。
func WatchLogLevel(envFile string) (func(), error) {
	if envFile == "" {
		envFile = ".env"
	}
	absPath, err := filepath.Abs(envFile)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// 监听所在目录而不是文件本身，编辑器保存时往往是 rename+create
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != absPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				vars, err := godotenv.Read(absPath)
				if err != nil {
					logger.Warn("重新读取 .env 失败", logger.ErrorField(err))
					continue
				}
				level := vars["LOG_LEVEL"]
				if level == "" {
					level = os.Getenv("LOG_LEVEL")
				}
				if level != "" {
					logger.SetLevel(logger.LogLevel(level))
					logger.Info("日志级别已更新", logger.String("level", level))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("配置文件监听出错", logger.ErrorField(err))
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
