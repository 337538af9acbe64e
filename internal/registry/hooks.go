// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/iotgw/edgegateway/pkg/log"
)

// queryHooks logs every registry query and its elapsed time, grounded on
// the teacher's repository.Hooks (internal/repository/hooks.go), which
// wraps the same driver/sqlhooks pairing around its sqlite3/mysql
// connection for exactly this purpose.
type queryHooks struct{}

func (queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("registry: query %s %q", query, args)
	return context.WithValue(ctx, hookBeginKey{}, time.Now()), nil
}

func (queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(hookBeginKey{}).(time.Time); ok {
		log.Debugf("registry: query took %s", time.Since(begin))
	}
	return ctx, nil
}

type hookBeginKey struct{}

var registerHooksOnce sync.Once

// SQLiteDriverName registers (once per process) a "sqlite3" driver
// variant wrapped with sqlhooks query/timing instrumentation and
// returns its name for use with sqlx.Open.
func SQLiteDriverName() string {
	registerHooksOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, queryHooks{}))
	})
	return "sqlite3WithHooks"
}
