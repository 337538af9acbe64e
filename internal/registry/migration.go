// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file adapts internal/repository/migration.go's embed.FS +
// golang-migrate wiring to the driver registry's own schema. The gateway
// runs against a single embedded sqlite3 database (an edge device has no
// mysql deployment target), so the backend-dispatch branch the teacher
// carries for mysql is dropped here.
package registry

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/iotgw/edgegateway/pkg/log"
)

const supportedSchemaVersion uint = 1

//go:embed migrations/sqlite3
var migrationFiles embed.FS

// MigrateDB runs every pending up migration against db, creating the
// schema on first run.
func MigrateDB(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("registry: migrate: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("registry: migrate: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("registry: migrate: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("registry: migrate up: %w", err)
	}

	v, _, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("registry: migrate: %w", err)
	}
	if v < supportedSchemaVersion {
		log.Warnf("registry: schema version %d below supported %d after migrate", v, supportedSchemaVersion)
	}
	return nil
}
