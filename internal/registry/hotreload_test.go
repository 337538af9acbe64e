// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driver.so")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var calls int32
	w, err := NewWatcher(func(p string) { atomic.AddInt32(&calls, 1) })
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	w.debounce = 50 * time.Millisecond
	require.NoError(t, w.Watch(dir))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 10*time.Millisecond)
}
