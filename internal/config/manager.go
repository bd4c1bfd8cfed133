package config

import (
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the current AppConfig and reloads it when a section file changes.
type Manager struct {
	mu           sync.RWMutex
	current      *AppConfig
	configDir    string
	onUpdateFunc func(*AppConfig)
	watcher      *fsnotify.Watcher
}

func NewManager(configDir string) (*Manager, error) {
	mgr := &Manager{configDir: configDir}

	if err := mgr.Reload(); err != nil {
		return nil, err
	}

	return mgr, nil
}

func (m *Manager) Get() AppConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.current
}

func (m *Manager) Reload() error {
	newConfig, err := LoadAppConfig(m.configDir)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = newConfig
	onUpdate := m.onUpdateFunc
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate(newConfig)
	}

	slog.Info("configuration reloaded successfully", "dir", m.configDir)
	return nil
}

func (m *Manager) SetUpdateCallback(f func(*AppConfig)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdateFunc = f
}

// Watch starts reloading on writes to known section files. Close stops it.
func (m *Manager) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.configDir); err != nil {
		_ = watcher.Close()
		return err
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	go m.watch(watcher)
	return nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

func (m *Manager) watch(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isSectionFile(event.Name) {
				continue
			}
			slog.Info("config file modified", "file", event.Name)
			if err := m.Reload(); err != nil {
				slog.Error("error reloading config", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

func isSectionFile(name string) bool {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return false
	}
	return slices.Contains(ConfigFiles, strings.TrimSuffix(base, ext))
}
