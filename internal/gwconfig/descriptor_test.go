// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package gwconfig

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDescriptorValidatesAgainstSchema(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "modbus_tcp.json", `{
		"name": "modbus_tcp",
		"version": "1.0.0",
		"protocol": "modbus",
		"api_version": 1,
		"config_schema": {
			"type": "object",
			"properties": {
				"unit_id": {"type": "integer"},
				"poll_registers": {"type": "array"}
			},
			"required": ["unit_id"]
		}
	}`)

	d, err := LoadDescriptor(path)
	require.NoError(t, err)
	require.Equal(t, "modbus_tcp", d.Name)
	require.Equal(t, 1, d.APIVersion)
}

func TestLoadDescriptorRejectsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{
		"name": "bad",
		"version": "1.0.0",
		"protocol": "modbus",
		"api_version": 1
	}`)

	_, err := LoadDescriptor(path)
	require.Error(t, err)
}

func TestValidateInstanceConfigChecksAgainstDescriptorSchema(t *testing.T) {
	d := &DriverDescriptor{
		ConfigSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"unit_id": {"type": "integer"}},
			"required": ["unit_id"]
		}`),
	}

	require.NoError(t, ValidateInstanceConfig(d, json.RawMessage(`{"unit_id": 5}`)))
	require.Error(t, ValidateInstanceConfig(d, json.RawMessage(`{}`)))
}
