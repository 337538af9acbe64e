// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package gwconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gateway.json", `{
		"devices": [
			{"device_id": "plc1", "driver_id": "modbus_tcp@1.0.0", "endpoint_url": "tcp://plc1.local:502"}
		]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8081", cfg.Health.ListenAddr)
	require.Equal(t, ":9090", cfg.Metrics.ListenAddr)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
	require.Len(t, cfg.Devices, 1)
	require.Equal(t, "plc1", cfg.Devices[0].DeviceID)
}

func TestLoadRejectsDeviceMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gateway.json", `{
		"devices": [ {"device_id": "plc1"} ]
	}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
