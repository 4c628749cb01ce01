package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hackhero/backend/internal/application/ingest"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// 防抖延迟：编辑器保存常触发多个事件
const debounceDelay = 500 * time.Millisecond

// RulesWatcher 种子规则文件监听器
// 监听 DATA_ROOT/rules.txt，启动时摄入一次，变更后防抖重新摄入（source=initial）
type RulesWatcher struct {
	path    string
	ingest  *ingest.Service
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRulesWatcher 创建种子规则监听器
func NewRulesWatcher(cfg *config.Config, ingestSvc *ingest.Service) *RulesWatcher {
	return &RulesWatcher{
		path:   cfg.SeedRulesPath(),
		ingest: ingestSvc,
		logger: log.NewModuleLogger("watcher", "rules"),
		stopCh: make(chan struct{}),
	}
}

// Start 启动监听；文件存在时先摄入一次
func (w *RulesWatcher) Start() error {
	if _, err := os.Stat(w.path); err == nil {
		w.reload()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	// 监听目录而不是文件：多数编辑器以 rename+create 方式保存
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		_ = fw.Close()
		return err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("Rules watcher started", "path", w.path)
	return nil
}

// Stop 停止监听
func (w *RulesWatcher) Stop() {
	close(w.stopCh)
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	w.wg.Wait()
}

func (w *RulesWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Rules watcher error", "error", err)
		}
	}
}

// scheduleReload 防抖触发重载
func (w *RulesWatcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(debounceDelay, w.reload)
}

// reload 读取种子文件并替换 initial 上下文
func (w *RulesWatcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("Failed to read seed rules file", "error", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.ingest.ReplaceSeed(ctx, string(data)); err != nil {
		w.logger.Error("Failed to ingest seed rules", "error", err)
		return
	}

	w.logger.Info("Seed rules ingested", "bytes", len(data))
}
