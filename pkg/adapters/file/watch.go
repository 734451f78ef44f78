package file

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch implements ports.Watchable. It emits the id of every flow whose file
// is written, created, renamed or removed. For removed files the id is the
// file name without extension.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !isFlowFile(filepath.Base(ev.Name)) || ev.Op == fsnotify.Chmod {
					continue
				}
				id := flowIDFor(ev)
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func flowIDFor(ev fsnotify.Event) string {
	if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		if def, err := LoadFile(ev.Name); err == nil {
			return def.ID
		}
	}
	base := filepath.Base(ev.Name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
