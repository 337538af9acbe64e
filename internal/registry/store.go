// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the persisted driver record store and its
// filtered/sorted/paginated listing, grounded on repository/query.go's
// squirrel query-builder usage (incremental query.Where/.OrderBy/.Limit
// chaining, then query.ToSql() handed to sqlx.Queryx).
package registry

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Status is a driver record's lifecycle status as tracked by the
// registry (distinct from driver.State, which only exists while a
// Supervisor is running).
type Status string

const (
	StatusLoaded   Status = "loaded"
	StatusActive   Status = "active"
	StatusFailed   Status = "failed"
	StatusUnloaded Status = "unloaded"
)

// Record is the persisted row for one loaded driver.
type Record struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Version    string    `db:"version"`
	Protocol   string    `db:"protocol"`
	Kind       string    `db:"kind"`
	Status     Status    `db:"status"`
	Path       string    `db:"path"`
	APIVersion int       `db:"api_version"`
	LoadedAt   time.Time `db:"loaded_at"`
}

// Store persists driver records in sqlite3 via sqlx, with squirrel
// building filtered listing queries.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an already-open, already-migrated *sqlx.DB.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

var ErrDuplicateID = fmt.Errorf("registry: duplicate driver id")

// Insert adds a new driver record. It rejects duplicate ids (spec.md
// 4.F: "Reject duplicate ids").
func (s *Store) Insert(r Record) error {
	_, err := s.db.NamedExec(`
		INSERT INTO driver (id, name, version, protocol, kind, status, path, api_version, loaded_at)
		VALUES (:id, :name, :version, :protocol, :kind, :status, :path, :api_version, :loaded_at)
	`, r)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	return err
}

// UpdateStatus changes a record's status in place (e.g. Active ↔ Failed
// as the supervisor transitions).
func (s *Store) UpdateStatus(id string, status Status) error {
	_, err := s.db.Exec(`UPDATE driver SET status = ? WHERE id = ?`, status, id)
	return err
}

// Delete removes a driver record, e.g. when hot-reload unloads its
// wrapper under a changed id.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM driver WHERE id = ?`, id)
	return err
}

// ListFilter narrows a listing by kind, protocol, status, or a
// name-contains substring. Zero-valued fields are not applied.
type ListFilter struct {
	Kind         string
	Protocol     string
	Status       Status
	NameContains string
}

// ListOptions controls sort column/direction and pagination.
type ListOptions struct {
	OrderBy    string // column name; defaults to "name"
	Descending bool
	Page       int // 1-based; 0 means "no paging" (page 1, default size)
	PageSize   int // default 50
}

var allowedOrderColumns = map[string]bool{
	"id": true, "name": true, "version": true, "protocol": true,
	"kind": true, "status": true, "loaded_at": true,
}

// List returns driver records matching filter, sorted and paginated per
// opts.
func (s *Store) List(filter ListFilter, opts ListOptions) ([]Record, error) {
	q := sq.Select("id", "name", "version", "protocol", "kind", "status", "path", "api_version", "loaded_at").From("driver")

	if filter.Kind != "" {
		q = q.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.Protocol != "" {
		q = q.Where(sq.Eq{"protocol": filter.Protocol})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.NameContains != "" {
		q = q.Where(sq.Like{"name": "%" + filter.NameContains + "%"})
	}

	orderCol := opts.OrderBy
	if orderCol == "" || !allowedOrderColumns[orderCol] {
		orderCol = "name"
	}
	dir := "ASC"
	if opts.Descending {
		dir = "DESC"
	}
	q = q.OrderBy(fmt.Sprintf("%s %s", orderCol, dir))

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	q = q.Limit(uint64(pageSize)).Offset(uint64((page - 1) * pageSize))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Queryx(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.StructScan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
