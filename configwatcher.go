package solcore

import (
	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches a TOML config file and applies ReaperInterval
// changes to a Connection as they happen, without requiring a restart.
// One watcher goroutine per watched file, debounced only by fsnotify's
// own event coalescing.
type ConfigWatcher struct {
	path   string
	conn   *Connection
	logger Logger
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewConfigWatcher starts watching path for changes and applies any
// resulting ReaperInterval change to conn. Call Close to stop watching.
func NewConfigWatcher(path string, conn *Connection, logger Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, wrap("create config watcher", WrapStatus(StatusPlatform, err))
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, wrap("watch config file", WrapStatus(StatusPlatform, err))
	}

	cw := &ConfigWatcher{path: path, conn: conn, logger: logger, watcher: w, stop: make(chan struct{})}
	go cw.run()
	return cw, nil
}

func (cw *ConfigWatcher) run() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadConnectionConfigTOML(cw.path)
			if err != nil {
				cw.logger.Warn("config reload failed", "path", cw.path, "error", err)
				continue
			}
			if err := cw.conn.updateReaperInterval(cfg.ReaperInterval()); err != nil {
				cw.logger.Warn("applying reloaded config failed", "path", cw.path, "error", err)
				continue
			}
			cw.logger.Info("config reloaded", "path", cw.path, "reaperInterval", cfg.ReaperInterval())
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watcher error", "path", cw.path, "error", err)
		case <-cw.stop:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify watch.
func (cw *ConfigWatcher) Close() error {
	close(cw.stop)
	return cw.watcher.Close()
}
