// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gwconfig

import (
	"encoding/json"
	"fmt"
	"os"
)

// DriverDescriptor is the sidecar metadata a driver .so ships alongside
// itself (conventionally <path>.json next to the library), carrying the
// JSON Schema that every device attached to it must satisfy in its
// config_json.
type DriverDescriptor struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Protocol     string          `json:"protocol"`
	APIVersion   int             `json:"api_version"`
	ConfigSchema json.RawMessage `json:"config_schema"`
}

// LoadDescriptor reads and schema-validates a driver's sidecar metadata
// file from path.
func LoadDescriptor(path string) (*DriverDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gwconfig: read descriptor %s: %w", path, err)
	}
	if err := Validate(driverDescriptorSchema, raw); err != nil {
		return nil, fmt.Errorf("gwconfig: descriptor %s failed schema validation: %w", path, err)
	}
	var d DriverDescriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("gwconfig: parse descriptor %s: %w", path, err)
	}
	return &d, nil
}

// ValidateInstanceConfig checks a device's config_json against the
// JSON Schema its driver descriptor declares. This is the second half
// of spec.md 4.F's config validation: the descriptor schema itself is
// checked against driverDescriptorSchema at load time (LoadDescriptor);
// each device instance's config_json is checked against that
// descriptor's own config_schema here, at attach time.
func ValidateInstanceConfig(d *DriverDescriptor, configJSON json.RawMessage) error {
	if len(configJSON) == 0 {
		configJSON = []byte(`{}`)
	}
	return Validate(string(d.ConfigSchema), configJSON)
}
