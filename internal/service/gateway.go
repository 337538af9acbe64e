// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iotgw/edgegateway/internal/bus"
	"github.com/iotgw/edgegateway/internal/driver"
	"github.com/iotgw/edgegateway/internal/endpoint"
	"github.com/iotgw/edgegateway/internal/frame"
	"github.com/iotgw/edgegateway/internal/gwconfig"
	"github.com/iotgw/edgegateway/internal/health"
	gwmetrics "github.com/iotgw/edgegateway/internal/metrics"
	"github.com/iotgw/edgegateway/internal/northbound"
	"github.com/iotgw/edgegateway/internal/registry"
	"github.com/iotgw/edgegateway/internal/router"
	"github.com/jmoiron/sqlx"

	"crypto/ed25519"

	"github.com/iotgw/edgegateway/pkg/log"
)

// Gateway owns every long-lived component of the daemon and their
// startup/shutdown ordering. It is the composition root: nothing here
// is itself complex, it just wires already-tested packages together,
// the way the teacher's cmd/cc-backend/main.go builds the repository,
// auth, and API layers and then starts/stops them around a
// sync.WaitGroup.
type Gateway struct {
	cfg *gwconfig.GatewayConfig

	promReg    *prometheus.Registry
	metricsReg *gwmetrics.Registry

	bus        *bus.Bus
	endpoints  *endpoint.Registry
	cmdRouter  *router.Router
	driverDB   *sql.DB
	driverReg  *registry.Registry
	health     *health.Aggregator
	forwarder  *forwarder
	mqttClient *northbound.Client
	outbound   *northbound.OutboundBuffer
	compressor *northbound.Compressor
	batcher    *northbound.Batcher

	mu          sync.Mutex
	supervisors map[string]*attachedDevice
}

// attachedDevice pairs a running Supervisor with the driver id it was
// attached to, so a hot-reload of that id can find every device that
// needs detaching.
type attachedDevice struct {
	sup      *driver.Supervisor
	driverID string
}

// New builds every component from cfg but does not start any
// goroutines yet (see Start).
func New(cfg *gwconfig.GatewayConfig) (*Gateway, error) {
	g := &Gateway{cfg: cfg, supervisors: make(map[string]*attachedDevice)}

	g.promReg = prometheus.NewRegistry()
	g.metricsReg = gwmetrics.NewRegistry(g.promReg)

	b, err := bus.New(cfg.Bus, g.metricsReg.NewBusMetrics())
	if err != nil {
		return nil, fmt.Errorf("service: bus: %w", err)
	}
	g.bus = b

	g.outbound = northbound.NewOutboundBuffer(0)
	g.compressor = northbound.NewCompressor(cfg.Compress)
	g.batcher = northbound.NewBatcher(cfg.Batch)
	nbMetrics := g.metricsReg.NewNorthboundMetrics()

	if err := g.recoverBus(nbMetrics); err != nil {
		return nil, fmt.Errorf("service: bus recover: %w", err)
	}

	g.endpoints = endpoint.NewRegistry(cfg.Pool, cfg.Breaker)

	r, err := router.New(b, cfg.Router, g.metricsReg.NewRouterMetrics())
	if err != nil {
		return nil, fmt.Errorf("service: router: %w", err)
	}
	g.cmdRouter = r

	if err := g.openDriverRegistry(); err != nil {
		return nil, err
	}

	g.mqttClient = northbound.NewClient(cfg.MQTT, g.outbound, nbMetrics)
	g.forwarder = newForwarder(g.bus, g.batcher, g.compressor, g.outbound, nbMetrics, "gateway/telemetry", cfg.MQTT.QoS)

	g.health = health.NewAggregator(cfg.Health.PollInterval)
	g.health.Register("endpoints", health.EndpointRegistryChecker(g.endpoints))
	g.health.Register("system", health.SystemChecker(0))

	if err := g.loadDrivers(); err != nil {
		return nil, err
	}
	if err := g.attachDevices(); err != nil {
		return nil, err
	}

	return g, nil
}

// recoverBus rehydrates the bus's WAL before any live Publish happens
// (bus.New's own doc comment requires this), then drains every recovered
// data frame straight into the batcher/outbound path by device id so a
// restart doesn't silently drop telemetry that was durable on disk but
// never made it to the broker before the crash. Recovered command/ack
// envelopes are not replayed: a command's origin is a caller who already
// timed out waiting across the restart, so redelivering it now would
// race an unrelated retry rather than recover anything.
func (g *Gateway) recoverBus(nbMetrics northbound.Metrics) error {
	recovered, err := g.bus.Recover()
	if err != nil {
		return err
	}
	if len(recovered) == 0 {
		return nil
	}

	touched := make(map[string]bool)
	for _, env := range recovered {
		if env.Kind != frame.EnvelopeData || env.Data == nil {
			continue
		}
		deviceID := env.Data.Meta["device_id"]
		if deviceID == "" {
			continue
		}
		g.batcher.AddPoint(deviceID, env.Data)
		touched[deviceID] = true
	}
	for deviceID := range touched {
		if msg, ok := g.batcher.Flush(deviceID); ok {
			if err := northbound.PushMessage(g.outbound, g.compressor, "gateway/telemetry/"+deviceID, g.cfg.MQTT.QoS, msg, nbMetrics); err != nil {
				log.Errorf("service: recover: push message for device %s: %s", deviceID, err.Error())
			}
		}
	}
	log.Infof("service: recovered %d frame(s) from WAL across %d device(s)", len(recovered), len(touched))
	return nil
}

func (g *Gateway) openDriverRegistry() error {
	dbPath := g.cfg.Registry.DBPath
	if dbPath == "" {
		dbPath = "./var/registry.db"
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("service: registry dir: %w", err)
		}
	}

	sqlxDB, err := sqlx.Open(registry.SQLiteDriverName(), fmt.Sprintf("%s?_foreign_keys=on", dbPath))
	if err != nil {
		return fmt.Errorf("service: open registry db: %w", err)
	}
	if err := registry.MigrateDB(sqlxDB.DB); err != nil {
		return fmt.Errorf("service: migrate registry db: %w", err)
	}
	g.driverDB = sqlxDB.DB

	trusted, err := loadTrustedKeys(g.cfg.Registry.TrustedKeyPaths)
	if err != nil {
		return err
	}

	store := registry.NewStore(sqlxDB)
	g.driverReg = registry.NewRegistry(store, trusted)
	if err := g.driverReg.EnableHotReload(g.onDriverReload); err != nil {
		log.Warnf("service: hot reload disabled: %v", err)
	}
	return nil
}

func loadTrustedKeys(paths []string) (registry.TrustedKeys, error) {
	keys := make(registry.TrustedKeys, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("service: read trusted key %s: %w", p, err)
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("service: decode trusted key %s: %w", p, err)
		}
		if len(decoded) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("service: trusted key %s: wrong size %d", p, len(decoded))
		}
		keys = append(keys, ed25519.PublicKey(decoded))
	}
	return keys, nil
}

// loadDrivers scans the configured driver directory for .so files and
// loads each one that isn't already in the registry.
func (g *Gateway) loadDrivers() error {
	entries, err := os.ReadDir(g.cfg.Registry.DriverDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("service: driver dir %s does not exist, no drivers loaded", g.cfg.Registry.DriverDir)
			return nil
		}
		return fmt.Errorf("service: read driver dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".so" {
			continue
		}
		path := filepath.Join(g.cfg.Registry.DriverDir, e.Name())
		if _, err := g.driverReg.LoadFile(path, nil, nil); err != nil {
			log.Errorf("service: load driver %s: %v", path, err)
		}
	}
	return nil
}

// attachDevices builds and initializes a Supervisor for every configured
// device, validating its config_json against the owning driver's
// descriptor sidecar when one is present.
func (g *Gateway) attachDevices() error {
	for _, dev := range g.cfg.Devices {
		ld, ok := g.driverReg.Get(dev.DriverID)
		if !ok {
			log.Errorf("service: device %s references unknown driver %s, skipping", dev.DeviceID, dev.DriverID)
			continue
		}

		if desc, err := gwconfig.LoadDescriptor(ld.Path + ".json"); err == nil {
			if err := gwconfig.ValidateInstanceConfig(desc, dev.ConfigJSON); err != nil {
				log.Errorf("service: device %s config_json invalid: %v", dev.DeviceID, err)
				continue
			}
		}

		url, err := endpoint.ParseEndpointURL(dev.EndpointURL)
		if err != nil {
			log.Errorf("service: device %s endpoint_url invalid: %v", dev.DeviceID, err)
			continue
		}
		pool := g.endpoints.GetOrCreate(url, g.cfg.Pool, g.cfg.Breaker)

		pub := newDevicePublisher(dev.DeviceID, g.bus)
		sup := driver.NewSupervisor(dev.DeviceID, ld.Driver, pub, dev.Supervisor)
		if err := sup.Init(dev.ConfigJSON, pool); err != nil {
			log.Errorf("service: device %s init failed: %v", dev.DeviceID, err)
			continue
		}

		g.mu.Lock()
		g.supervisors[dev.DeviceID] = &attachedDevice{sup: sup, driverID: dev.DriverID}
		g.mu.Unlock()
		g.health.Register("driver:"+dev.DeviceID, health.DriverChecker(sup))
	}
	return nil
}

// onDriverReload is the registry's HotReloadHook: it stops the
// supervisor that was attached to the now-unloaded driver id. The
// device stays configured but idle until an operator re-attaches it to
// the newly loaded id (spec.md 4.F assigns the reloaded library its own
// fresh id, so automatic re-attach would silently trust an unreviewed
// replacement).
func (g *Gateway) onDriverReload(oldID string) {
	g.mu.Lock()
	var affected []string
	for deviceID, ad := range g.supervisors {
		if ad.driverID == oldID {
			affected = append(affected, deviceID)
		}
	}
	g.mu.Unlock()

	for _, deviceID := range affected {
		g.mu.Lock()
		ad := g.supervisors[deviceID]
		delete(g.supervisors, deviceID)
		g.mu.Unlock()
		g.health.Unregister("driver:" + deviceID)
		if err := ad.sup.Stop(); err != nil {
			log.Errorf("service: hot-reload: stop supervisor for device %s: %v", deviceID, err)
		}
		log.Warnf("service: driver %s reloaded under a new id; device %s is detached until re-attached", oldID, deviceID)
	}
}

// Start begins every background goroutine: the command router's
// dispatch/ack/sweep loops, the health aggregator's poll loop, the MQTT
// client's connect/drain loop, the bus-to-batcher forwarder, and every
// attached device's supervised read loop.
func (g *Gateway) Start(ctx context.Context) {
	g.cmdRouter.Start()
	g.health.Start()
	g.mqttClient.Start()
	g.forwarder.start()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ad := range g.supervisors {
		ad.sup.Start(ctx)
	}
}

// Router exposes the command router for a northbound command surface
// (REST/MQTT command topic) to submit into.
func (g *Gateway) Router() *router.Router { return g.cmdRouter }

// PromRegistry exposes the Prometheus registry for promhttp.Handler.
func (g *Gateway) PromRegistry() *prometheus.Registry { return g.promReg }

// HealthAggregator exposes the aggregator itself (for its Handler()).
func (g *Gateway) HealthAggregator() *health.Aggregator { return g.health }

// Stop shuts every component down in reverse dependency order, logging
// but not aborting on individual component errors so a stuck pool close
// can't prevent the WAL and registry from closing cleanly.
func (g *Gateway) Stop() {
	g.mu.Lock()
	sups := make([]*driver.Supervisor, 0, len(g.supervisors))
	for _, ad := range g.supervisors {
		sups = append(sups, ad.sup)
	}
	g.mu.Unlock()
	for _, sup := range sups {
		if err := sup.Stop(); err != nil {
			log.Errorf("service: supervisor stop: %v", err)
		}
	}

	g.forwarder.stop()
	g.mqttClient.Stop()
	g.health.Stop()
	if err := g.cmdRouter.Stop(); err != nil {
		log.Errorf("service: router stop: %v", err)
	}
	if err := g.endpoints.CloseAll(); err != nil {
		log.Errorf("service: endpoint registry close: %v", err)
	}
	if err := g.driverReg.Close(); err != nil {
		log.Errorf("service: driver registry close: %v", err)
	}
	if g.driverDB != nil {
		if err := g.driverDB.Close(); err != nil {
			log.Errorf("service: driver db close: %v", err)
		}
	}
	if err := g.bus.Close(); err != nil {
		log.Errorf("service: bus close: %v", err)
	}
}
