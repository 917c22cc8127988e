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

// Package backend defines the client the driver delegates to.
//
// A Client owns one session with one database. Wire protocol, leader
// discovery and retries all live behind this interface; the driver only
// decides which of Query or Exec a statement goes to and buffers the
// results.
package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/dqlite-dbapi/go/dbapi"
)

const DefaultTimeout = 10 * time.Second

// Result is a fully buffered result set.
type Result struct {
	Columns []string
	// DeclTypes holds the declared type of each column, or "" when the
	// backend cannot tell.
	DeclTypes []string
	Rows      [][]any
}

// Client is a session with a single database.
//
// A Client is used by one goroutine at a time.
type Client interface {
	// Connect establishes the session.
	Connect(ctx context.Context) error
	// Close ends the session. It is safe to call on a client that never
	// connected.
	Close() error
	// Execute runs a statement whose result is not needed, such as
	// COMMIT or ROLLBACK.
	Execute(ctx context.Context, sql string) error
	// Query runs a row-returning statement.
	Query(ctx context.Context, sql string, params []any) (*Result, error)
	// Exec runs a statement and reports the last inserted row id and
	// the number of affected rows.
	Exec(ctx context.Context, sql string, params []any) (lastID int64, affected int64, err error)
}

// Config holds the parameters for creating a Client.
type Config struct {
	// Address of a cluster node in "host:port" form.
	Address  string
	Database string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// WithDefaults fills unset fields with their default values.
func (c Config) WithDefaults() Config {
	if c.Database == "" {
		c.Database = dbapi.DefaultDatabase
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Factory creates an unconnected Client.
type Factory func(Config) (Client, error)
