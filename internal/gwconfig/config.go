// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gwconfig holds the plain configuration structs for every
// gateway component plus JSON-Schema validation of externally-supplied
// driver config_json and driver descriptor metadata, the same way the
// teacher's internal/config package validates its component configs and
// pkg/metricstore/configSchema.go validates metric-store config against
// a schema constant.
package gwconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/iotgw/edgegateway/internal/bus"
	"github.com/iotgw/edgegateway/internal/driver"
	"github.com/iotgw/edgegateway/internal/endpoint"
	"github.com/iotgw/edgegateway/internal/northbound"
	"github.com/iotgw/edgegateway/internal/router"
)

// DriverInstance configures one attached device: which loaded driver
// handles it, which endpoint it dials, and the driver-specific JSON blob
// validated against that driver's own descriptor schema (see
// ValidateInstanceConfig).
type DriverInstance struct {
	DeviceID    string                  `json:"device_id"`
	DriverID    string                  `json:"driver_id"`
	EndpointURL string                  `json:"endpoint_url"`
	ConfigJSON  json.RawMessage         `json:"config_json"`
	Supervisor  driver.SupervisorConfig `json:"supervisor"`
}

// RegistryConfig locates the driver catalog's persisted store and the
// directory watched for hot-reloadable shared libraries.
type RegistryConfig struct {
	DBPath          string   `json:"db_path"`
	DriverDir       string   `json:"driver_dir"`
	TrustedKeyPaths []string `json:"trusted_key_paths"` // files holding base64-encoded 32-byte Ed25519 public keys; empty disables signature verification
}

// HealthConfig tunes the health aggregator's poll interval and HTTP
// listen address.
type HealthConfig struct {
	PollInterval time.Duration `json:"poll_interval"`
	ListenAddr   string        `json:"listen_addr"`
}

// MetricsConfig tunes the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `json:"listen_addr"`
	Path       string `json:"path"`
}

// GatewayConfig aggregates every component's configuration, as loaded
// from a single JSON file (spec.md's "single process, single config
// file" deployment model).
type GatewayConfig struct {
	Bus      bus.Config                `json:"bus"`
	Router   router.Config             `json:"router"`
	Pool     endpoint.PoolConfig       `json:"pool"`
	Breaker  endpoint.BreakerConfig    `json:"breaker"`
	Batch    northbound.BatchConfig    `json:"batch"`
	Compress northbound.CompressConfig `json:"compress"`
	MQTT     northbound.ClientConfig   `json:"mqtt"`
	Registry RegistryConfig            `json:"registry"`
	Health   HealthConfig              `json:"health"`
	Metrics  MetricsConfig             `json:"metrics"`
	Devices  []DriverInstance          `json:"devices"`
}

func (c *GatewayConfig) setDefaults() {
	if c.Health.PollInterval <= 0 {
		c.Health.PollInterval = 10 * time.Second
	}
	if c.Health.ListenAddr == "" {
		c.Health.ListenAddr = ":8081"
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Registry.DriverDir == "" {
		c.Registry.DriverDir = "./drivers"
	}
}

// Load reads and validates a gateway config file from path, applying
// component defaults for anything left zero-valued.
func Load(path string) (*GatewayConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gwconfig: read %s: %w", path, err)
	}
	if err := Validate(gatewayConfigSchema, raw); err != nil {
		return nil, fmt.Errorf("gwconfig: %s failed schema validation: %w", path, err)
	}

	var cfg GatewayConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("gwconfig: parse %s: %w", path, err)
	}
	cfg.setDefaults()
	return &cfg, nil
}
