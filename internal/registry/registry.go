// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iotgw/edgegateway/pkg/log"
)

// HotReloadHook lets the service layer stop and restart a driver's
// Supervisor around a reload without the registry needing to know
// anything about supervisors.
type HotReloadHook func(oldID string)

// Registry is the in-process driver catalogue: it owns every
// LoadedDriver wrapper, persists their records via Store, and drives
// hot-reload through Watcher.
type Registry struct {
	store   *Store
	trusted TrustedKeys

	mu     sync.Mutex
	byID   map[string]*LoadedDriver
	byPath map[string]string // file path -> current driver id

	watcher  *Watcher
	onReload HotReloadHook
}

// NewRegistry constructs a Registry backed by an already-migrated Store.
func NewRegistry(store *Store, trusted TrustedKeys) *Registry {
	return &Registry{
		store:   store,
		trusted: trusted,
		byID:    make(map[string]*LoadedDriver),
		byPath:  make(map[string]string),
	}
}

// EnableHotReload starts watching every currently loaded driver's file
// and invokes hook after a successful reload, passing the id that was
// unloaded (spec.md 4.F: the new wrapper gets its own id).
func (r *Registry) EnableHotReload(hook HotReloadHook) error {
	w, err := NewWatcher(r.reloadPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.watcher = w
	r.onReload = hook
	paths := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		paths = append(paths, p)
	}
	r.mu.Unlock()

	for _, p := range paths {
		if err := w.Watch(p); err != nil {
			log.Warnf("registry: could not watch %s: %v", p, err)
		}
	}
	return nil
}

// LoadFile loads a driver library from path, verifying its optional
// signature, computing its id, and persisting its record.
func (r *Registry) LoadFile(path string, metadata, signature []byte) (*LoadedDriver, error) {
	if err := VerifySignature(path, metadata, signature, r.trusted); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	// The id depends on meta.name/meta.version, which are only known
	// after Load opens the library; compute a provisional id, then the
	// final one, matching spec.md 4.F's file_stem + "_" + name + "@" + version.
	ld, err := Load(path, stem)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%s_%s@%s", stem, ld.Meta.Name, ld.Meta.Version)
	ld.ID = id

	r.mu.Lock()
	if _, exists := r.byID[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.byID[id] = ld
	r.byPath[path] = id
	if r.watcher != nil {
		if err := r.watcher.Watch(path); err != nil {
			log.Warnf("registry: could not watch %s: %v", path, err)
		}
	}
	r.mu.Unlock()

	if err := r.store.Insert(Record{
		ID: id, Name: ld.Meta.Name, Version: ld.Meta.Version,
		Protocol: ld.Meta.Protocol, Kind: "driver", Status: StatusLoaded,
		Path: path, APIVersion: ld.Meta.APIVersion, LoadedAt: time.Now().UTC(),
	}); err != nil {
		r.mu.Lock()
		delete(r.byID, id)
		delete(r.byPath, path)
		r.mu.Unlock()
		return nil, err
	}
	return ld, nil
}

// Get looks up a currently loaded driver by id.
func (r *Registry) Get(id string) (*LoadedDriver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ld, ok := r.byID[id]
	return ld, ok
}

// Unload removes a driver from the registry's in-memory tracking and
// deletes its persisted record. The caller is responsible for stopping
// any Supervisor using it first.
func (r *Registry) Unload(id string) error {
	r.mu.Lock()
	ld, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byPath, ld.Path)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.store.Delete(id)
}

// reloadPath is the Watcher callback: stop the old wrapper, load the new
// one under its own id, and notify the hook so service wiring can
// restart a Supervisor against it.
func (r *Registry) reloadPath(path string) {
	r.mu.Lock()
	oldID, hadOld := r.byPath[path]
	r.mu.Unlock()

	if hadOld {
		if err := r.Unload(oldID); err != nil {
			log.Errorf("registry: hot-reload: unload %s: %v", oldID, err)
			return
		}
	}

	if _, err := r.LoadFile(path, nil, nil); err != nil {
		log.Errorf("registry: hot-reload: reload %s: %v", path, err)
		return
	}

	if hadOld && r.onReload != nil {
		r.onReload(oldID)
	}
}

// List delegates to the persisted Store for filtered/sorted/paginated
// listing (spec.md 4.F).
func (r *Registry) List(filter ListFilter, opts ListOptions) ([]Record, error) {
	return r.store.List(filter, opts)
}

// Close stops the hot-reload watcher, if any.
func (r *Registry) Close() error {
	r.mu.Lock()
	w := r.watcher
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}
