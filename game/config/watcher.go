package config

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wricardo/pathpath/game/engine"
)

// reloadDebounce drops repeated events for the same file
const reloadDebounce = 100 * time.Millisecond

// Watcher refreshes a Manager's cache when level files change on disk
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher
	Reloads chan string
	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWatcher watches the manager's level directory
func NewWatcher(m *Manager) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(m.Dir()); err != nil {
		_ = w.Close()
		return nil, err
	}

	watcher := &Watcher{
		manager: m,
		watcher: w,
		Reloads: make(chan string, 16),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

// Close stops watching. Reloads is closed once the watch loop exits.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.Reloads)

	last := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !engine.IsLevelFile(event.Name) {
				continue
			}
			now := time.Now()
			if t, ok := last[event.Name]; ok && now.Sub(t) < reloadDebounce {
				continue
			}
			last[event.Name] = now

			if err := w.manager.RefreshCache(); err != nil {
				log.Printf("Level reload failed: %v", err)
				continue
			}
			log.Printf("Levels reloaded after change to %s", event.Name)

			// Observers are optional
			select {
			case w.Reloads <- event.Name:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Level watcher error: %v", err)
		case <-w.closeCh:
			return
		}
	}
}
