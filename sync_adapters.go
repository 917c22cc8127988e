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

package dbapi

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/apache/arrow-go/v18/arrow"
)

// syncConnAdapter wraps an AsyncConn to implement Conn.
type syncConnAdapter struct {
	conn AsyncConn
}

// AsSyncConn wraps an AsyncConn to implement Conn. Every method submits
// the asynchronous operation and blocks on its future.
//
// Methods that take a context pass it to the asynchronous operation, so
// a driver can recognise calls made from inside its own event loop.
// Close takes no context, so it cannot be recognised as a call from
// inside the loop. Drivers that allow that offer a CloseContext method.
func AsSyncConn(conn AsyncConn) Conn {
	if conn == nil {
		return nil
	}
	return &syncConnAdapter{conn: conn}
}

func (c *syncConnAdapter) Cursor() (Cursor, error) {
	cur, err := c.conn.Cursor()
	if err != nil {
		return nil, err
	}
	return AsSyncCursor(cur), nil
}

func (c *syncConnAdapter) Commit(ctx context.Context) error {
	return c.conn.Commit(ctx).Err(ctx)
}

func (c *syncConnAdapter) Rollback(ctx context.Context) error {
	return c.conn.Rollback(ctx).Err(ctx)
}

func (c *syncConnAdapter) Close() error {
	ctx := context.Background()
	return c.conn.Close(ctx).Err(ctx)
}

// Async returns the wrapped connection.
func (c *syncConnAdapter) Async() AsyncConn { return c.conn }

// syncCursorAdapter wraps an AsyncCursor to implement Cursor.
type syncCursorAdapter struct {
	cur AsyncCursor
}

// AsSyncCursor wraps an AsyncCursor to implement Cursor.
func AsSyncCursor(cur AsyncCursor) Cursor {
	if cur == nil {
		return nil
	}
	return &syncCursorAdapter{cur: cur}
}

func (c *syncCursorAdapter) Description() []Column      { return c.cur.Description() }
func (c *syncCursorAdapter) RowCount() int64            { return c.cur.RowCount() }
func (c *syncCursorAdapter) LastRowID() (int64, bool)   { return c.cur.LastRowID() }
func (c *syncCursorAdapter) ArraySize() int             { return c.cur.ArraySize() }
func (c *syncCursorAdapter) SetArraySize(size int)      { c.cur.SetArraySize(size) }
func (c *syncCursorAdapter) SetInputSizes(sizes ...int) { c.cur.SetInputSizes(sizes...) }

func (c *syncCursorAdapter) SetOutputSize(size int, column int) {
	c.cur.SetOutputSize(size, column)
}

func (c *syncCursorAdapter) Execute(ctx context.Context, operation string, params ...any) error {
	return c.cur.Execute(ctx, operation, params...).Err(ctx)
}

func (c *syncCursorAdapter) ExecuteMany(ctx context.Context, operation string, seqOfParams [][]any) error {
	return c.cur.ExecuteMany(ctx, operation, seqOfParams).Err(ctx)
}

func (c *syncCursorAdapter) FetchOne(ctx context.Context) (Row, error) {
	return c.cur.FetchOne(ctx).Wait(ctx)
}

func (c *syncCursorAdapter) FetchMany(ctx context.Context, size int) ([]Row, error) {
	return c.cur.FetchMany(ctx, size).Wait(ctx)
}

func (c *syncCursorAdapter) FetchAll(ctx context.Context) ([]Row, error) {
	return c.cur.FetchAll(ctx).Wait(ctx)
}

func (c *syncCursorAdapter) FetchArrow(ctx context.Context) (arrow.RecordBatch, error) {
	return c.cur.FetchArrow(ctx).Wait(ctx)
}

func (c *syncCursorAdapter) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			row, err := c.FetchOne(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

func (c *syncCursorAdapter) Close() error {
	ctx := context.Background()
	return c.cur.Close(ctx).Err(ctx)
}

// Async returns the wrapped cursor.
func (c *syncCursorAdapter) Async() AsyncCursor { return c.cur }
