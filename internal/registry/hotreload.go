// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements debounced hot-reload of driver libraries,
// grounded on internal/util/fswatcher.go's fsnotify.Watcher + event-loop
// goroutine pattern, extended with the 500ms debounce spec.md 4.F
// requires (the teacher's watcher dispatches every raw event
// immediately, which would reload a driver mid-write on a multi-syscall
// file copy).
package registry

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iotgw/edgegateway/pkg/log"
)

// ReloadFunc is invoked, debounced, after a watched driver library file
// is modified.
type ReloadFunc func(path string)

// Watcher debounces fsnotify write events per path before invoking
// ReloadFunc, so a multi-write file copy triggers one reload rather than
// one per syscall.
type Watcher struct {
	w        *fsnotify.Watcher
	debounce time.Duration
	onReload ReloadFunc

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped chan struct{}
}

// NewWatcher constructs a Watcher with the spec's default 500ms debounce.
func NewWatcher(onReload ReloadFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		w:        fw,
		debounce: 500 * time.Millisecond,
		onReload: onReload,
		timers:   make(map[string]*time.Timer),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch adds path (a driver library file or its containing directory)
// to the watch set.
func (w *Watcher) Watch(path string) error {
	return w.w.Add(path)
}

func (w *Watcher) loop() {
	for {
		select {
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.Errorf("registry: watch error: %v", err)
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload(ev.Name)
		}
	}
}

func (w *Watcher) scheduleReload(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.onReload(path)
	})
}

// Close stops the watcher and cancels any pending debounce timers.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = nil
	w.mu.Unlock()
	return w.w.Close()
}
