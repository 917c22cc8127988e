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

package dqlite

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/google/uuid"
)

var (
	_ dbapi.Conn        = (*Conn)(nil)
	_ dbapi.ConnLogging = (*Conn)(nil)
)

// Conn is a synchronous connection. It is safe to hand between
// goroutines but not to use from several at once.
type Conn struct {
	dbapi.Conn
	async *AsyncConn

	// context of the Submit callback currently running, if any
	task atomic.Pointer[context.Context]
}

// Connect opens a synchronous connection. No network I/O happens until
// the first statement is executed.
func Connect(address string, opts ...Option) (*Conn, error) {
	async, err := newAsyncConn(address, true, opts)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: dbapi.AsSyncConn(async), async: async}, nil
}

// Async returns the asynchronous connection backing c.
func (c *Conn) Async() *AsyncConn { return c.async }

func (c *Conn) ID() uuid.UUID { return c.async.ID() }

func (c *Conn) Closed() bool { return c.async.Closed() }

// Close closes the connection. Called from inside a Submit callback it
// closes inline; the loop stops once the callback returns.
func (c *Conn) Close() error {
	ctx := context.Background()
	if task := c.task.Load(); task != nil {
		ctx = *task
	}
	return c.CloseContext(ctx)
}

// CloseContext closes the connection. A ctx handed to a task on the
// connection's loop closes inline.
func (c *Conn) CloseContext(ctx context.Context) error {
	return c.async.Close(ctx).Err(ctx)
}

// Ping establishes the backend client if needed.
func (c *Conn) Ping(ctx context.Context) error {
	return c.async.Connect(ctx).Err(ctx)
}

func (c *Conn) SetLogger(logger *slog.Logger) { c.async.SetLogger(logger) }

// SetTraceParent parents the connection's spans to a W3C traceparent
// when the calling context carries no span.
func (c *Conn) SetTraceParent(traceParent string) { c.async.SetTraceParent(traceParent) }

// Submit runs fn on the connection's loop and waits for it. Statements
// fn executes on c with the context it receives run inline, in order
// with fn.
func (c *Conn) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.async.Submit(ctx, func(ctx context.Context) error {
		prev := c.task.Swap(&ctx)
		defer c.task.Store(prev)
		return fn(ctx)
	}).Err(ctx)
}

// Tables lists the tables and views whose names match pattern, a SQL
// LIKE pattern. A nil pattern lists everything.
func (c *Conn) Tables(ctx context.Context, pattern *string) ([]string, error) {
	return c.async.Tables(ctx, pattern).Wait(ctx)
}

// TableSchema describes table as an Arrow schema.
func (c *Conn) TableSchema(ctx context.Context, table string) (*arrow.Schema, error) {
	return c.async.TableSchema(ctx, table).Wait(ctx)
}
