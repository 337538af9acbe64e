// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the dynamic driver loader of spec.md 4.F: file
// sanity checks, optional Ed25519 signature verification, the shared
// library's mandatory symbol lookup, API version gating, and
// reference-counted unload. Signature verification is grounded on
// utils/gen-keypair.go's crypto/ed25519 + crypto/rand key generation —
// the loader is the consumer side of the keys that tool produces.
package registry

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"os"
	"plugin"
	"sync"

	"github.com/iotgw/edgegateway/internal/driver"
)

const (
	minLibraryBytes = 1 << 10   // 1 KiB
	maxLibraryBytes = 100 << 20 // 100 MiB
	minAPIVersion   = 1
	maxAPIVersion   = 1
)

var (
	ErrLibraryTooSmall    = fmt.Errorf("registry: library file too small")
	ErrLibraryTooLarge    = fmt.Errorf("registry: library file too large")
	ErrWorldWritable      = fmt.Errorf("registry: library file is world-writable")
	ErrMissingSymbol      = fmt.Errorf("registry: library missing mandatory symbol")
	ErrBadSignature       = fmt.Errorf("registry: signature verification failed")
	ErrUnsupportedVersion = fmt.Errorf("registry: unsupported api_version")
)

// TrustedKeys is the set of Ed25519 public keys accepted for signature
// verification. Verification is opt-in: an empty set disables it
// entirely (see DESIGN.md's Open Question decision on this default).
type TrustedKeys []ed25519.PublicKey

// LoadedDriver owns a loaded shared library plus the driver instance it
// produced. It is reference-counted: the library is only eligible for
// unload once every wrapper sharing it has been released.
type LoadedDriver struct {
	ID     string
	Meta   driver.Meta
	Path   string
	Driver driver.Driver

	mu       sync.Mutex
	refCount int
	lib      *plugin.Plugin
}

// Retain increments the wrapper's reference count; Release decrements
// it. A shared library becomes unloadable (by the Go runtime's own
// rules, which never actually unload plugins once opened) only once the
// count reaches zero — tracked here so the registry knows when it is
// safe to forget the wrapper and let a hot-reload replace it.
func (l *LoadedDriver) Retain() {
	l.mu.Lock()
	l.refCount++
	l.mu.Unlock()
}

func (l *LoadedDriver) Release() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refCount--
	return l.refCount
}

// CheckFileSanity validates the size and permission constraints of
// spec.md 4.F step 1 before the file is ever opened as a plugin.
func CheckFileSanity(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("registry: stat %s: %w", path, err)
	}
	if fi.Size() < minLibraryBytes {
		return fmt.Errorf("%w: %s (%d bytes)", ErrLibraryTooSmall, path, fi.Size())
	}
	if fi.Size() > maxLibraryBytes {
		return fmt.Errorf("%w: %s (%d bytes)", ErrLibraryTooLarge, path, fi.Size())
	}
	if fi.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("%w: %s", ErrWorldWritable, path)
	}
	return nil
}

// VerifySignature checks an Ed25519 signature over metadata || SHA-256(file)
// against every key in trusted. An empty trusted set is treated as
// verification disabled and always passes.
func VerifySignature(path string, metadata []byte, signature []byte, trusted TrustedKeys) error {
	if len(trusted) == 0 {
		return nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", path, err)
	}
	sum := sha256.Sum256(contents)
	signed := append(append([]byte{}, metadata...), sum[:]...)

	for _, key := range trusted {
		if ed25519.Verify(key, signed, signature) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrBadSignature, path)
}

// Load opens path as a Go plugin, verifies its mandatory symbols and API
// version, and returns a LoadedDriver with an initial reference count of
// one. driverID follows spec.md 4.F's id = file_stem + "_" + meta.name +
// "@" + meta.version scheme, computed by the caller (Registry.LoadFile)
// since only it knows the file stem.
func Load(path string, driverID string) (*LoadedDriver, error) {
	if err := CheckFileSanity(path); err != nil {
		return nil, err
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}

	metaSym, err := p.Lookup("GetDriverMeta")
	if err != nil {
		return nil, fmt.Errorf("%w: GetDriverMeta in %s", ErrMissingSymbol, path)
	}
	getMeta, ok := metaSym.(func() driver.Meta)
	if !ok {
		return nil, fmt.Errorf("%w: GetDriverMeta has wrong signature in %s", ErrMissingSymbol, path)
	}

	createSym, err := p.Lookup("CreateDriver")
	if err != nil {
		return nil, fmt.Errorf("%w: CreateDriver in %s", ErrMissingSymbol, path)
	}
	create, ok := createSym.(func() driver.Driver)
	if !ok {
		return nil, fmt.Errorf("%w: CreateDriver has wrong signature in %s", ErrMissingSymbol, path)
	}

	meta := getMeta()
	if meta.APIVersion < minAPIVersion || meta.APIVersion > maxAPIVersion {
		return nil, fmt.Errorf("%w: %s supports api_version %d, host supports [%d,%d]",
			ErrUnsupportedVersion, path, meta.APIVersion, minAPIVersion, maxAPIVersion)
	}

	return &LoadedDriver{
		ID:       driverID,
		Meta:     meta,
		Path:     path,
		Driver:   create(),
		refCount: 1,
		lib:      p,
	}, nil
}
