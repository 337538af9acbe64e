// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gwconfig

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate compiles schema and checks instance against it, mirroring the
// teacher's internal/config.Validate — except it returns an error
// instead of calling log.Fatal, since gwconfig is a library package and
// must let the caller (cmd/gatewayd) decide how to fail.
func Validate(schema string, instance []byte) error {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		return fmt.Errorf("gwconfig: compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("gwconfig: decode instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("gwconfig: validate: %w", err)
	}
	return nil
}

// gatewayConfigSchema is the top-level shape every gateway.json must
// satisfy before it is unmarshalled into GatewayConfig. It intentionally
// only constrains the fields whose absence would be unrecoverable
// (devices need an id/driver/endpoint triple); component sub-configs
// fall back to their own setDefaults() for anything left unspecified.
const gatewayConfigSchema = `{
  "type": "object",
  "description": "Top-level gateway daemon configuration.",
  "properties": {
    "bus": { "type": "object" },
    "router": { "type": "object" },
    "pool": { "type": "object" },
    "breaker": { "type": "object" },
    "batch": { "type": "object" },
    "compress": { "type": "object" },
    "mqtt": { "type": "object" },
    "registry": {
      "type": "object",
      "properties": {
        "db_path": { "type": "string" },
        "driver_dir": { "type": "string" },
        "trusted_key_paths": {
          "type": "array",
          "items": { "type": "string" }
        }
      }
    },
    "health": { "type": "object" },
    "metrics": { "type": "object" },
    "devices": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "device_id": { "type": "string" },
          "driver_id": { "type": "string" },
          "endpoint_url": { "type": "string" },
          "config_json": { "type": "object" }
        },
        "required": ["device_id", "driver_id", "endpoint_url"]
      }
    }
  }
}`

// driverDescriptorSchema constrains the sidecar JSON file published
// alongside every driver shared library (spec.md 4.F names api_version
// and the mandatory symbols; the sidecar adds the human-facing metadata
// and the driver's own config_json schema so the registry can validate
// device configs without compiling driver-specific validation into the
// host).
const driverDescriptorSchema = `{
  "type": "object",
  "description": "Metadata sidecar published next to a driver .so file.",
  "properties": {
    "name": { "type": "string" },
    "version": { "type": "string" },
    "protocol": { "type": "string" },
    "api_version": { "type": "integer", "minimum": 1 },
    "config_schema": {
      "description": "JSON Schema that every device's config_json for this driver must satisfy.",
      "type": "object"
    }
  },
  "required": ["name", "version", "protocol", "api_version", "config_schema"]
}`
