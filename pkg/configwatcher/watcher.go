package configwatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"playstats_backend/internal/config"
	"playstats_backend/pkg/logger"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type ConfigReloader func(cfg *config.Config)

// Watch 监听配置目录，文件变更后防抖重新加载，直到 ctx 结束
func Watch(ctx context.Context, configDir string, debounce time.Duration, reloader ConfigReloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	absDir, err := filepath.Abs(configDir)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("resolve config dir: %w", err)
	}
	// 监听目录，编辑器以重命名方式保存时也能收到事件
	if err := watcher.Add(absDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		timer := time.NewTimer(debounce)
		if !timer.Stop() {
			<-timer.C
		}

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != "config.yaml" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					// 防抖处理
					timer.Reset(debounce)
				}
			case <-timer.C:
				newCfg, err := config.LoadConfig(absDir)
				if err != nil {
					logger.Log.Error("Failed to reload config", zap.Error(err))
					continue
				}
				logger.Log.Info("Config reloaded", zap.String("dir", absDir))
				reloader(newCfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Log.Error("Config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
