package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// reloadDebounce absorbs editors that write a file via rename-replace,
// which fires several fsnotify events in quick succession for one logical
// change. Grounded on the teacher's internal/watcher debounce timer.
const reloadDebounce = 150 * time.Millisecond

// Watcher watches the config file and hot-swaps APIKeys/ModelAliases in
// place on change, leaving every other field (listen address, store
// backend selection) untouched until the next restart.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	cfg      *Config
	timer    *time.Timer
	onReload func(*Config)
}

// NewWatcher starts watching path (the same file passed to Load) for
// changes. onReload, if non-nil, is called after every successful hot
// reload with the updated config.
func NewWatcher(path string, cfg *Config, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{path: path, watcher: fw, cfg: cfg, onReload: onReload}
	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("config watcher: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		log.Warnf("config watcher: re-read %s: %v", w.path, err)
		return
	}
	var next Config
	if err := yaml.Unmarshal(data, &next); err != nil {
		log.Warnf("config watcher: parse %s: %v", w.path, err)
		return
	}

	w.mu.Lock()
	w.cfg.applyAPIKeysAndAliases(&next)
	updated := w.cfg
	w.mu.Unlock()

	log.Infof("config watcher: reloaded api-keys and model-aliases from %s", w.path)
	if w.onReload != nil {
		w.onReload(updated)
	}
}

// applyAPIKeysAndAliases copies only the hot-reloadable fields from next
// into c. Listen address and store backend selection require a restart
// and are intentionally left alone.
func (c *Config) applyAPIKeysAndAliases(next *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.APIKeys = next.APIKeys
	if next.ModelAliases == nil {
		next.ModelAliases = map[string]string{}
	}
	c.ModelAliases = next.ModelAliases
}
