package protocol

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher invalidates a Loader's cache when a manifest file directly
// inside one of its roots changes on disk, so a long-running process
// picks up edited manifests without a restart. Roots are watched
// non-recursively: manifests in subdirectories are not watched. It is
// an optional collaborator;
// a Loader works correctly without one.
type Watcher struct {
	fsw    *fsnotify.Watcher
	loader *Loader
	log    *zap.Logger
	done   chan struct{}
}

// NewWatcher starts watching every root the Loader was constructed with.
func NewWatcher(l *Loader, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range l.roots {
		if err := fsw.Add(root); err != nil {
			log.Warn("protocol: could not watch manifest root", zap.String("root", root), zap.Error(err))
		}
	}
	w := &Watcher{fsw: fsw, loader: l, log: log, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := manifestNameFromPath(ev.Name)
			if name == "" {
				continue
			}
			w.loader.Invalidate(name)
			w.log.Debug("protocol: invalidated manifest cache entry", zap.String("manifest", name), zap.String("event", ev.Op.String()))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("protocol: manifest watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases its underlying OS resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func manifestNameFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	switch ext {
	case ".yaml", ".yml":
		return strings.TrimSuffix(base, ext)
	default:
		if base == "manifest.yaml" || base == "manifest.yml" {
			return filepath.Base(filepath.Dir(path))
		}
		return ""
	}
}
