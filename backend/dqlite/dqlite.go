// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package dqlite provides the production backend.Client, talking to a
// dqlite cluster through github.com/canonical/go-dqlite.
//
// The configured address seeds the node store. The go-dqlite driver
// finds the current leader from there and follows it on failover.
package dqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"

	"github.com/canonical/go-dqlite/client"
	dqlitedriver "github.com/canonical/go-dqlite/driver"
	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/backend"
	"github.com/dqlite-dbapi/go/dbapi/backend/internal/sqlxclient"
	"github.com/jmoiron/sqlx"
)

const Name = "dqlite"

// sqlx uses the driver name to pick a bind style; dqlite binds like
// SQLite.
const bindDriverName = "sqlite3"

// New is a backend.Factory for a dqlite cluster.
func New(cfg backend.Config) (backend.Client, error) {
	cfg = cfg.WithDefaults()
	if cfg.Address == "" {
		return nil, dbapi.Error{
			Msg:  "dqlite backend requires a node address",
			Code: dbapi.StatusInvalidArgument,
		}
	}

	store := client.NewInmemNodeStore()
	drv, err := dqlitedriver.New(store,
		dqlitedriver.WithConnectionTimeout(cfg.Timeout),
		dqlitedriver.WithLogFunc(logFunc(cfg.Logger)),
	)
	if err != nil {
		return nil, dbapi.Error{
			Msg:   fmt.Sprintf("creating dqlite driver: %s", err),
			Code:  dbapi.StatusInternal,
			Cause: err,
		}
	}

	open := func(ctx context.Context) (*sqlx.DB, error) {
		if err := store.Set(ctx, []client.NodeInfo{{Address: cfg.Address}}); err != nil {
			return nil, err
		}
		db := sql.OpenDB(&connector{drv: drv, name: cfg.Database})
		// A client only ever uses its pinned connection.
		db.SetMaxOpenConns(1)
		return sqlx.NewDb(db, bindDriverName), nil
	}
	return sqlxclient.New(open, codeOf, cfg.Timeout), nil
}

// connector opens connections to one named database.
type connector struct {
	drv  *dqlitedriver.Driver
	name string
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.drv.Open(c.name)
}

func (c *connector) Driver() driver.Driver { return c.drv }

func codeOf(err error) (int, string, bool) {
	var dqliteErr dqlitedriver.Error
	if errors.As(err, &dqliteErr) {
		return dqliteErr.Code, dqliteErr.Message, true
	}
	return 0, "", false
}

func logFunc(logger *slog.Logger) client.LogFunc {
	return func(l client.LogLevel, format string, a ...any) {
		level := slog.LevelDebug
		switch l {
		case client.LogInfo:
			level = slog.LevelInfo
		case client.LogWarn:
			level = slog.LevelWarn
		case client.LogError:
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, fmt.Sprintf(format, a...), "component", "go-dqlite")
	}
}
