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
	"io"
	"slices"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/driver/internal/eventloop"
	"github.com/dqlite-dbapi/go/dbapi/utils"
	"go.opentelemetry.io/otel/attribute"
)

var _ dbapi.AsyncCursor = (*AsyncCursor)(nil)

// AsyncCursor buffers the full result of each Execute and hands it out
// forward-only.
type AsyncCursor struct {
	conn *AsyncConn

	mu          sync.Mutex
	closed      bool
	description []dbapi.Column
	rowCount    int64
	lastRowID   int64
	hasRowID    bool
	arraySize   int
	rows        []dbapi.Row
	pos         int
}

func newAsyncCursor(conn *AsyncConn) *AsyncCursor {
	return &AsyncCursor{
		conn:      conn,
		rowCount:  -1,
		arraySize: 1,
	}
}

func (c *AsyncCursor) Description() []dbapi.Column {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.description
}

func (c *AsyncCursor) RowCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rowCount
}

func (c *AsyncCursor) LastRowID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRowID, c.hasRowID
}

func (c *AsyncCursor) ArraySize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arraySize
}

func (c *AsyncCursor) SetArraySize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arraySize = size
}

func (c *AsyncCursor) SetInputSizes(...int)  {}
func (c *AsyncCursor) SetOutputSize(int, int) {}

func (c *AsyncCursor) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// submit queues fn on the connection's loop unless the cursor is
// already closed. fn sees the cursor open.
func submit[T any](ctx context.Context, c *AsyncCursor, fn func(context.Context) (T, error)) *dbapi.Future[T] {
	if c.isClosed() {
		return dbapi.Failed[T](c.conn.ErrorHelper.CursorClosed())
	}
	if c.conn.loop.Closed() {
		return dbapi.Failed[T](c.conn.closedError())
	}
	return eventloop.Submit(ctx, c.conn.loop, func(ctx context.Context) (T, error) {
		if c.isClosed() {
			var zero T
			return zero, c.conn.ErrorHelper.CursorClosed()
		}
		return fn(ctx)
	})
}

func (c *AsyncCursor) Execute(ctx context.Context, operation string, params ...any) *dbapi.Future[struct{}] {
	return submit(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.execute(ctx, operation, params)
	})
}

// execute runs one statement and replaces the cursor state with its
// outcome. On failure the previous state is kept. Runs on the loop.
func (c *AsyncCursor) execute(ctx context.Context, operation string, params []any) (err error) {
	client, err := c.conn.clientForCursor(ctx)
	if err != nil {
		return err
	}

	kind := c.conn.cfg.classifier.Classify(operation)
	ctx, span := c.conn.startSpan(ctx, "execute",
		attribute.String("db.statement", operation),
		attribute.String("dqlite.dbapi.statement_kind", kind.String()),
	)
	var rows int64
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		c.conn.cfg.metrics.ObserveStatement(kind, elapsed, rows, err)
		span.SetAttributes(attribute.Int64("db.response.returned_rows", rows))
		endSpan(span, err)
		c.conn.logger().DebugContext(ctx, "execute",
			"kind", kind.String(), "rows", rows, "elapsed", elapsed, "error", err)
	}()

	if kind == dbapi.StatementQuery {
		res, err := client.Query(ctx, operation, params)
		if err != nil {
			return err
		}
		desc := make([]dbapi.Column, len(res.Columns))
		for i, name := range res.Columns {
			desc[i] = dbapi.Column{Name: name}
			if i < len(res.DeclTypes) {
				desc[i].TypeCode = res.DeclTypes[i]
			}
		}
		rows = int64(len(res.Rows))

		c.mu.Lock()
		defer c.mu.Unlock()
		c.description = desc
		c.rows = res.Rows
		c.pos = 0
		c.rowCount = rows
		return nil
	}

	lastID, affected, err := client.Exec(ctx, operation, params)
	if err != nil {
		return err
	}
	rows = affected

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRowID, c.hasRowID = lastID, true
	c.rowCount = affected
	c.description = nil
	c.rows = nil
	c.pos = 0
	return nil
}

// ExecuteMany runs operation once per parameter set. RowCount is left
// at the sum of the non-negative per-run counts.
func (c *AsyncCursor) ExecuteMany(ctx context.Context, operation string, seqOfParams [][]any) *dbapi.Future[struct{}] {
	return submit(ctx, c, func(ctx context.Context) (_ struct{}, err error) {
		ctx, span := c.conn.startSpan(ctx, "executemany",
			attribute.String("db.statement", operation),
			attribute.Int("db.operation.batch.size", len(seqOfParams)),
		)
		defer func() { endSpan(span, err) }()

		var total int64
		for _, params := range seqOfParams {
			if err := c.execute(ctx, operation, params); err != nil {
				return struct{}{}, err
			}
			if n := c.RowCount(); n >= 0 {
				total += n
			}
		}

		c.mu.Lock()
		c.rowCount = total
		c.mu.Unlock()
		return struct{}{}, nil
	})
}

// FetchOne returns the next row, or io.EOF once the buffer is
// exhausted.
func (c *AsyncCursor) FetchOne(ctx context.Context) *dbapi.Future[dbapi.Row] {
	return submit(ctx, c, func(context.Context) (dbapi.Row, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.pos >= len(c.rows) {
			return nil, io.EOF
		}
		row := c.rows[c.pos]
		c.pos++
		return row, nil
	})
}

// FetchMany returns up to size rows; size <= 0 means ArraySize.
func (c *AsyncCursor) FetchMany(ctx context.Context, size int) *dbapi.Future[[]dbapi.Row] {
	return submit(ctx, c, func(context.Context) ([]dbapi.Row, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if size <= 0 {
			size = c.arraySize
		}
		end := min(c.pos+max(size, 0), len(c.rows))
		if end <= c.pos {
			return []dbapi.Row{}, nil
		}
		out := slices.Clone(c.rows[c.pos:end])
		c.pos = end
		return out, nil
	})
}

func (c *AsyncCursor) FetchAll(ctx context.Context) *dbapi.Future[[]dbapi.Row] {
	return submit(ctx, c, func(context.Context) ([]dbapi.Row, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.takeRemaining(), nil
	})
}

func (c *AsyncCursor) takeRemaining() []dbapi.Row {
	if c.pos >= len(c.rows) {
		return []dbapi.Row{}
	}
	out := slices.Clone(c.rows[c.pos:])
	c.pos = len(c.rows)
	return out
}

// FetchArrow converts the remaining rows into one record batch using
// the connection's allocator.
func (c *AsyncCursor) FetchArrow(ctx context.Context) *dbapi.Future[arrow.RecordBatch] {
	return submit(ctx, c, func(context.Context) (arrow.RecordBatch, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.description == nil {
			return nil, c.conn.ErrorHelper.Errorf(dbapi.StatusInvalidState, "No result set to fetch")
		}
		return utils.RecordFromRows(c.conn.cfg.alloc, c.description, c.takeRemaining())
	})
}

// Close marks the cursor closed and drops its buffered rows. Work
// already queued on the connection fails when it runs.
func (c *AsyncCursor) Close(context.Context) *dbapi.Future[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.rows = nil
	c.description = nil
	c.pos = 0
	return dbapi.Resolved(struct{}{}, nil)
}
