// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	raw, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	require.NoError(t, err)
	require.NoError(t, MigrateDB(raw))
	require.NoError(t, raw.Close())

	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleRecord(id string) Record {
	return Record{
		ID: id, Name: "modbus-tcp", Version: "1.0.0", Protocol: "modbus",
		Kind: "driver", Status: StatusLoaded, Path: "/drivers/" + id + ".so",
		APIVersion: 1, LoadedAt: time.Now().UTC(),
	}
}

func TestStoreInsertAndList(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert(sampleRecord("modbus_modbus-tcp@1.0.0")))

	recs, err := s.List(ListFilter{}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "modbus-tcp", recs[0].Name)
}

func TestStoreRejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	r := sampleRecord("dup_id")
	require.NoError(t, s.Insert(r))
	err := s.Insert(r)
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestStoreListFilterByProtocol(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert(sampleRecord("a")))
	r2 := sampleRecord("b")
	r2.Protocol = "opcua"
	require.NoError(t, s.Insert(r2))

	recs, err := s.List(ListFilter{Protocol: "opcua"}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "b", recs[0].ID)
}

func TestStoreListNameContains(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert(sampleRecord("a")))

	recs, err := s.List(ListFilter{NameContains: "modbus"}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	recs, err = s.List(ListFilter{NameContains: "nonexistent"}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 0)
}

func TestStoreUpdateStatusAndDelete(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert(sampleRecord("a")))
	require.NoError(t, s.UpdateStatus("a", StatusFailed))

	recs, err := s.List(ListFilter{Status: StatusFailed}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	require.NoError(t, s.Delete("a"))
	recs, err = s.List(ListFilter{}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 0)
}

func TestStorePagination(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		r := sampleRecord(string(rune('a' + i)))
		r.Name = string(rune('a' + i))
		require.NoError(t, s.Insert(r))
	}
	recs, err := s.List(ListFilter{}, ListOptions{PageSize: 2, Page: 2, OrderBy: "name"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "c", recs[0].Name)
}
