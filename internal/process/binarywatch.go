// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const restartCooldown = 5 * time.Second
const defaultDebounce = 250 * time.Millisecond

// BinaryWatcher watches a single configured assistant binary for
// replacement and logs it, so an operator redeploying the assistant
// binary mid-session can see the change land (SPEC_FULL.md §4.5
// supplement; the bridge does not itself restart sessions on this
// event — a session's process was already launched from the old inode).
type BinaryWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debouncer   *debouncer
	path        string
	lastRestart time.Time
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// WatchBinary starts watching path for writes/creates. It returns nil,
// nil if path is empty (watch disabled).
func WatchBinary(path string) (*BinaryWatcher, error) {
	if path == "" {
		return nil, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("process: binary watch: %w", err)
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("process: binary watch add %s: %w", path, err)
	}

	w := &BinaryWatcher{
		watcher:   fsWatcher,
		debouncer: newDebouncer(defaultDebounce),
		path:      path,
		closeCh:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Close stops the watcher.
func (w *BinaryWatcher) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	select {
	case <-w.closeCh:
		w.mu.Unlock()
		return nil
	default:
		close(w.closeCh)
	}
	w.mu.Unlock()

	w.debouncer.stop()
	w.watcher.Close()
	w.wg.Wait()
	return nil
}

func (w *BinaryWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *BinaryWatcher) handleEvent(event fsnotify.Event) {
	// Writes and creates only; chmod fires on every exec of the binary
	// and would otherwise cause a log line per session launch.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.debouncer.debounce("binary", func() {
		w.mu.Lock()
		if time.Since(w.lastRestart) < restartCooldown {
			w.mu.Unlock()
			return
		}
		w.lastRestart = time.Now()
		w.mu.Unlock()

		info, err := os.Stat(w.path)
		if err != nil {
			log.Printf("process: assistant binary %s changed but stat failed: %v", w.path, err)
			return
		}
		log.Printf("process: assistant binary %s replaced (mtime %s)", w.path, info.ModTime().Format(time.RFC3339))
	})
}

// debouncer is a single-key debounced-call helper, adapted from the
// teacher's multi-key Debouncer down to the one key this watcher needs.
type debouncer struct {
	mu       sync.Mutex
	duration time.Duration
	timer    *time.Timer
}

func newDebouncer(d time.Duration) *debouncer {
	if d <= 0 {
		d = defaultDebounce
	}
	return &debouncer{duration: d}
}

func (d *debouncer) debounce(_ string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
