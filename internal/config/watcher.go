package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/modelscan-sec/internal/scanner"
)

// reloadDebounce absorbs the event bursts editors and atomic writes emit.
const reloadDebounce = 300 * time.Millisecond

// Watcher re-applies scanner tunables and the pattern catalog when their
// files change on disk. A reload that fails to parse keeps the previous
// values; the process never restarts for a threshold change.
type Watcher struct {
	log         *logrus.Entry
	fw          *fsnotify.Watcher
	configPath  string
	catalogPath string

	mu         sync.Mutex
	started    bool
	onTunables func(scanner.Tunables)
	onCatalog  func(*scanner.Catalog)
	timers     map[string]*time.Timer

	stop chan struct{}
	done chan struct{}
}

// NewWatcher watches the parent directories of both paths, because editors
// replace files by rename and a direct file watch goes stale after the
// first save. catalogPath may be empty.
func NewWatcher(configPath, catalogPath string, log *logrus.Entry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		log:         log,
		fw:          fw,
		configPath:  filepath.Clean(configPath),
		catalogPath: filepath.Clean(catalogPath),
		timers:      make(map[string]*time.Timer),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	dirs := map[string]bool{filepath.Dir(w.configPath): true}
	if catalogPath != "" {
		dirs[filepath.Dir(w.catalogPath)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// OnTunables registers the callback invoked with the freshly parsed
// tunables after a successful config reload.
func (w *Watcher) OnTunables(fn func(scanner.Tunables)) {
	w.mu.Lock()
	w.onTunables = fn
	w.mu.Unlock()
}

// OnCatalog registers the callback invoked with a freshly loaded catalog.
func (w *Watcher) OnCatalog(fn func(*scanner.Catalog)) {
	w.mu.Lock()
	w.onCatalog = fn
	w.mu.Unlock()
}

// Start runs the event loop until Close. Second and later calls do nothing.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.loop()
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			switch filepath.Clean(ev.Name) {
			case w.configPath:
				w.schedule(w.configPath, w.reloadConfig)
			case w.catalogPath:
				if w.catalogPath != "" {
					w.schedule(w.catalogPath, w.reloadCatalog)
				}
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config watcher error")
		}
	}
}

// schedule debounces repeated events for one path into a single reload.
func (w *Watcher) schedule(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(reloadDebounce)
		return
	}
	w.timers[path] = time.AfterFunc(reloadDebounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		fn()
	})
}

func (w *Watcher) reloadConfig() {
	cfg, err := Load(w.configPath)
	if err != nil {
		w.log.WithError(err).Warn("config reload rejected, keeping previous tunables")
		return
	}
	w.mu.Lock()
	fn := w.onTunables
	w.mu.Unlock()
	if fn != nil {
		fn(cfg.Tunables())
		w.log.Info("scanner tunables reloaded")
	}
}

func (w *Watcher) reloadCatalog() {
	cat, err := scanner.LoadCatalogFile(w.catalogPath)
	if err != nil {
		w.log.WithError(err).Warn("catalog reload rejected, keeping previous patterns")
		return
	}
	w.mu.Lock()
	fn := w.onCatalog
	w.mu.Unlock()
	if fn != nil {
		fn(cat)
		w.log.WithFields(logrus.Fields{"version": cat.Version(), "patterns": cat.Len()}).Info("pattern catalog reloaded")
	}
}

// Close stops the loop and releases the inotify handle.
func (w *Watcher) Close() error {
	close(w.stop)
	err := w.fw.Close()
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
	return err
}
