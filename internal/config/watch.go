package config

import (
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"wabridge/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// ChangeFunc receives the previous and the reloaded configuration.
type ChangeFunc func(old, cur *Config)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange ChangeFunc
	stopCh   chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, onChange ChangeFunc) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  w,
		path:     filepath.Clean(path),
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. The directory is watched rather than the file so
// editors that replace the file on save are still seen.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	old := GetConfig()
	cur, err := Reload()
	if err != nil {
		logger.Warn().Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous config")
		return
	}
	logger.Info().Str("path", w.path).Msg("Config reloaded")
	if w.onChange != nil && old != nil {
		w.onChange(old, cur)
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		_ = w.watcher.Close()
	})
}

// Reload re-reads the current config file and replaces the global config.
func Reload() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if configPath != "" {
		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	cfg, err := unmarshal()
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// RestartRequired lists the sections that changed between old and cur and
// only take effect on restart. The monitored group and everything that
// shapes the running bridge are fixed once it starts.
func RestartRequired(old, cur *Config) []string {
	var keys []string
	check := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			keys = append(keys, name)
		}
	}
	check("group", old.Group, cur.Group)
	check("forward", old.Forward, cur.Forward)
	check("controller", old.Controller, cur.Controller)
	check("dispatch", old.Dispatch, cur.Dispatch)
	check("session", old.Session, cur.Session)
	check("gateway", old.Gateway, cur.Gateway)
	check("heartbeat", old.Heartbeat, cur.Heartbeat)
	return keys
}
