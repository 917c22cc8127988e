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
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/backend"
	"github.com/dqlite-dbapi/go/dbapi/driver/internal/driverbase"
	"github.com/dqlite-dbapi/go/dbapi/driver/internal/eventloop"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const driverName = "dqlite"

var (
	_ dbapi.AsyncConn   = (*AsyncConn)(nil)
	_ dbapi.ConnLogging = (*AsyncConn)(nil)
	_ dbapi.OTelTracing = (*AsyncConn)(nil)
)

// AsyncConn is an asynchronous connection to one database on a dqlite
// cluster.
type AsyncConn struct {
	*driverbase.Base

	id   uuid.UUID
	cfg  config
	loop *eventloop.Loop
	// lazy connections establish the backend client on first use;
	// eager ones require Connect first.
	lazy bool

	closed atomic.Bool
	// client is only touched from tasks running on loop.
	client backend.Client
}

// AsyncConnect opens an asynchronous connection and establishes the
// backend client before returning.
func AsyncConnect(ctx context.Context, address string, opts ...Option) (*AsyncConn, error) {
	c, err := newAsyncConn(address, false, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx).Err(ctx); err != nil {
		_ = c.Close(ctx).Err(context.Background())
		return nil, err
	}
	return c, nil
}

func newAsyncConn(address string, lazy bool, opts []Option) (*AsyncConn, error) {
	cfg, err := newConfig(address, opts)
	if err != nil {
		return nil, err
	}
	base, err := driverbase.NewBase(context.Background(), driverName, cfg.provider)
	if err != nil {
		return nil, err
	}

	c := &AsyncConn{
		Base: base,
		id:   uuid.New(),
		cfg:  cfg,
		lazy: lazy,
		loop: eventloop.New(eventloop.WithPendingFunc(cfg.metrics.SetPendingTasks)),
	}
	c.SetLogger(cfg.logger)
	return c, nil
}

// ID identifies the connection in logs and spans.
func (c *AsyncConn) ID() uuid.UUID { return c.id }

// Address is the cluster node the connection was opened against.
func (c *AsyncConn) Address() string { return c.cfg.address }

func (c *AsyncConn) Database() string { return c.cfg.database }

// Backend names the backend client in use.
func (c *AsyncConn) Backend() string { return c.cfg.backend }

// Closed reports whether the connection has been closed.
func (c *AsyncConn) Closed() bool { return c.closed.Load() }

func (c *AsyncConn) logger() *slog.Logger {
	return c.Logger().With(
		slog.String("conn_id", c.id.String()),
		slog.String("address", c.cfg.address),
		slog.String("database", c.cfg.database),
	)
}

func (c *AsyncConn) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", "dqlite"),
		attribute.String("db.name", c.cfg.database),
		attribute.String("server.address", c.cfg.address),
		attribute.String("dqlite.dbapi.conn_id", c.id.String()),
	)
	return c.StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Connect establishes the backend client if it is not already
// established.
func (c *AsyncConn) Connect(ctx context.Context) *dbapi.Future[struct{}] {
	if c.closed.Load() {
		return dbapi.Failed[struct{}](c.ErrorHelper.ConnectionClosed())
	}
	return eventloop.Submit(ctx, c.loop, func(ctx context.Context) (struct{}, error) {
		_, err := c.ensureClient(ctx)
		return struct{}{}, err
	})
}

// ensureClient returns the backend client, creating and connecting it
// if needed. A failed attempt leaves no client behind so the next call
// retries. Runs on the loop.
func (c *AsyncConn) ensureClient(ctx context.Context) (client backend.Client, err error) {
	if c.closed.Load() {
		return nil, c.ErrorHelper.ConnectionClosed()
	}
	if c.client != nil {
		return c.client, nil
	}

	logger := c.logger()
	ctx, span := c.startSpan(ctx, "connect", attribute.String("dqlite.dbapi.backend", c.cfg.backend))
	start := time.Now()
	defer func() {
		c.cfg.metrics.ObserveConnect(time.Since(start), err)
		endSpan(span, err)
	}()

	bcfg := c.cfg.backendConfig()
	bcfg.Logger = logger
	client, err = c.cfg.factory(bcfg)
	if err != nil {
		logger.DebugContext(ctx, "connect failed", "error", err)
		return nil, c.ErrorHelper.ConnectFailed(err)
	}
	if err = client.Connect(ctx); err != nil {
		logger.DebugContext(ctx, "connect failed", "error", err)
		_ = client.Close()
		return nil, c.ErrorHelper.ConnectFailed(err)
	}

	logger.DebugContext(ctx, "connected", "backend", c.cfg.backend, "elapsed", time.Since(start))
	c.client = client
	return client, nil
}

// clientForCursor returns the client a cursor operation should use.
// Runs on the loop.
func (c *AsyncConn) clientForCursor(ctx context.Context) (backend.Client, error) {
	if c.lazy {
		return c.ensureClient(ctx)
	}
	if c.client == nil {
		return nil, c.closedError()
	}
	return c.client, nil
}

// closedError is what cursor work reports once the connection is gone.
func (c *AsyncConn) closedError() error {
	if c.lazy {
		return c.ErrorHelper.ConnectionClosed()
	}
	return c.ErrorHelper.ConnectionNotOpen()
}

// Cursor returns a new cursor bound to this connection.
func (c *AsyncConn) Cursor() (dbapi.AsyncCursor, error) {
	if c.closed.Load() {
		return nil, c.ErrorHelper.ConnectionClosed()
	}
	return newAsyncCursor(c), nil
}

func (c *AsyncConn) Commit(ctx context.Context) *dbapi.Future[struct{}] {
	return c.endTransaction(ctx, "commit", "COMMIT")
}

func (c *AsyncConn) Rollback(ctx context.Context) *dbapi.Future[struct{}] {
	return c.endTransaction(ctx, "rollback", "ROLLBACK")
}

func (c *AsyncConn) endTransaction(ctx context.Context, op, sql string) *dbapi.Future[struct{}] {
	if c.closed.Load() {
		return dbapi.Failed[struct{}](c.ErrorHelper.ConnectionClosed())
	}
	return eventloop.Submit(ctx, c.loop, func(ctx context.Context) (_ struct{}, err error) {
		if c.closed.Load() {
			return struct{}{}, c.ErrorHelper.ConnectionClosed()
		}
		// nothing can be pending without a client
		if c.client == nil {
			return struct{}{}, nil
		}

		ctx, span := c.startSpan(ctx, op)
		defer func() {
			c.cfg.metrics.ObserveTransaction(op, err)
			endSpan(span, err)
		}()

		c.logger().DebugContext(ctx, op)
		return struct{}{}, c.client.Execute(ctx, sql)
	})
}

// Close closes the backend client and stops the connection's loop once
// the work queued before it has run. Closing twice is not an error.
func (c *AsyncConn) Close(ctx context.Context) *dbapi.Future[struct{}] {
	if c.loop.Closed() {
		return dbapi.Resolved(struct{}{}, nil)
	}
	// queued work must not be skipped because the caller gave up
	ctx = context.WithoutCancel(ctx)
	f := eventloop.Submit(ctx, c.loop, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.closeOnLoop(ctx)
	})
	c.loop.Close()
	return f
}

func (c *AsyncConn) closeOnLoop(ctx context.Context) (err error) {
	if c.closed.Swap(true) {
		return nil
	}

	ctx, span := c.startSpan(ctx, "close")
	if c.client != nil {
		err = c.client.Close()
		c.client = nil
	}
	c.logger().DebugContext(ctx, "closed", "error", err)
	endSpan(span, err)
	return errors.Join(err, c.Base.Close())
}

// Submit runs fn on the connection's loop, after the work already
// queued. Calls fn makes on this connection with the context it
// receives run inline.
func (c *AsyncConn) Submit(ctx context.Context, fn func(ctx context.Context) error) *dbapi.Future[struct{}] {
	return eventloop.Submit(ctx, c.loop, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}
