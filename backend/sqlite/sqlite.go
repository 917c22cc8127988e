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

// Package sqlite provides a backend.Client on an embedded SQLite
// database. It speaks the same SQL dialect as dqlite and is used for
// local development and tests.
//
// Config.Address names a directory and Config.Database a file inside it
// (with a ".db" suffix). The address ":memory:" opens a private
// in-memory database instead.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/backend"
	"github.com/dqlite-dbapi/go/dbapi/backend/internal/sqlxclient"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
)

const (
	Name       = "sqlite"
	MemoryAddr = ":memory:"
	driverName = "sqlite"
)

// New is a backend.Factory for embedded SQLite.
func New(cfg backend.Config) (backend.Client, error) {
	cfg = cfg.WithDefaults()
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	open := func(ctx context.Context) (*sqlx.DB, error) {
		cfg.Logger.DebugContext(ctx, "opening sqlite database", "dsn", dsn)
		return sqlx.Open(driverName, dsn)
	}
	return sqlxclient.New(open, codeOf, cfg.Timeout), nil
}

// DSN returns the data source name New opens for cfg.
func DSN(cfg backend.Config) (string, error) {
	switch cfg.Address {
	case "":
		return "", dbapi.Error{
			Msg:  "sqlite backend requires a directory or " + MemoryAddr + " as address",
			Code: dbapi.StatusInvalidArgument,
		}
	case MemoryAddr:
		return MemoryAddr, nil
	}

	path := filepath.Join(cfg.Address, cfg.Database+".db")
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, cfg.Timeout.Milliseconds()), nil
}

func codeOf(err error) (int, string, bool) {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code(), sqliteErr.Error(), true
	}
	return 0, "", false
}
