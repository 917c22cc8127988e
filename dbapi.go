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

// Package dbapi defines the connection and cursor contract for talking
// to a dqlite cluster.
//
// The contract comes in two flavours. The synchronous one ([Conn],
// [Cursor]) blocks until each operation finishes. The asynchronous one
// ([AsyncConn], [AsyncCursor]) returns a [Future] for every operation
// that reaches the backend. Drivers implement the asynchronous flavour
// and obtain the synchronous one through [AsSyncConn].
//
// Connections are not safe for concurrent use (see [ThreadSafety]).
// Cursors belong to the connection that created them.
package dbapi

import (
	"context"
	"iter"

	"github.com/apache/arrow-go/v18/arrow"
)

// Module attributes.
const (
	APILevel = "2.0"
	// Goroutines may share the package, but not connections.
	ThreadSafety = 1
	// Question mark style: WHERE name=?
	ParamStyle = "qmark"

	// SQLiteVersion is the SQLite release dqlite embeds, reported for
	// tools that gate features on it.
	SQLiteVersion = "3.35.0"

	Version = "0.1.3"
)

// SQLiteVersionInfo is SQLiteVersion split into its components.
var SQLiteVersionInfo = [3]int{3, 35, 0}

// Canonical option keys, shared by the driver options map and the
// database/sql connection string.
const (
	OptionKeyAddress  = "address"
	OptionKeyDatabase = "database"
	OptionKeyTimeout  = "timeout"
	OptionKeyBackend  = "backend"

	DefaultDatabase = "default"
)

// Row is a single result row, one value per described column.
type Row = []any

// Column describes one column of a result set.
type Column struct {
	Name string
	// TypeCode is the declared type of the column as reported by the
	// backend, or empty when unknown.
	TypeCode string
}

// StatementKind is the execution path a statement takes.
type StatementKind uint8

const (
	// StatementExec statements report a last row id and an affected
	// row count.
	StatementExec StatementKind = iota
	// StatementQuery statements return rows.
	StatementQuery
)

func (k StatementKind) String() string {
	if k == StatementQuery {
		return "query"
	}
	return "exec"
}

// Conn is a synchronous connection.
type Conn interface {
	// Cursor returns a new cursor bound to this connection.
	Cursor() (Cursor, error)
	// Commit commits any pending transaction. It is a no-op if the
	// connection has not talked to the backend yet.
	Commit(ctx context.Context) error
	// Rollback rolls back any pending transaction. It is a no-op if the
	// connection has not talked to the backend yet.
	Rollback(ctx context.Context) error
	// Close releases the backend client. Closing twice is not an error.
	Close() error
}

// Cursor is a synchronous, forward-only result handle.
type Cursor interface {
	// Description returns the columns of the last result set, or nil
	// when the last operation did not produce one.
	Description() []Column
	// RowCount is the number of rows returned or affected by the last
	// operation, or -1 if nothing has been executed.
	RowCount() int64
	// LastRowID is the row id of the last inserted row, if known.
	LastRowID() (int64, bool)
	// ArraySize is the default FetchMany size. It starts at 1.
	ArraySize() int
	SetArraySize(size int)

	Execute(ctx context.Context, operation string, params ...any) error
	ExecuteMany(ctx context.Context, operation string, seqOfParams [][]any) error

	// FetchOne returns the next row, or io.EOF when there are no more.
	FetchOne(ctx context.Context) (Row, error)
	// FetchMany returns up to size rows. A size <= 0 means ArraySize.
	FetchMany(ctx context.Context, size int) ([]Row, error)
	// FetchAll returns every remaining row.
	FetchAll(ctx context.Context) ([]Row, error)
	// FetchArrow returns every remaining row as a single record batch.
	// The caller must release it.
	FetchArrow(ctx context.Context) (arrow.RecordBatch, error)
	// Rows iterates over the remaining rows.
	Rows(ctx context.Context) iter.Seq2[Row, error]

	// SetInputSizes and SetOutputSize are accepted for compatibility
	// and do nothing.
	SetInputSizes(sizes ...int)
	SetOutputSize(size int, column int)

	Close() error
}

// AsyncConn is the asynchronous flavour of Conn. Operations submitted
// on one connection complete in submission order.
type AsyncConn interface {
	// Connect establishes the backend client if it is not already
	// established.
	Connect(ctx context.Context) *Future[struct{}]
	Cursor() (AsyncCursor, error)
	Commit(ctx context.Context) *Future[struct{}]
	Rollback(ctx context.Context) *Future[struct{}]
	Close(ctx context.Context) *Future[struct{}]
}

// AsyncCursor is the asynchronous flavour of Cursor.
//
// The accessors report the state left by the last completed operation.
type AsyncCursor interface {
	Description() []Column
	RowCount() int64
	LastRowID() (int64, bool)
	ArraySize() int
	SetArraySize(size int)

	Execute(ctx context.Context, operation string, params ...any) *Future[struct{}]
	ExecuteMany(ctx context.Context, operation string, seqOfParams [][]any) *Future[struct{}]

	FetchOne(ctx context.Context) *Future[Row]
	FetchMany(ctx context.Context, size int) *Future[[]Row]
	FetchAll(ctx context.Context) *Future[[]Row]
	FetchArrow(ctx context.Context) *Future[arrow.RecordBatch]

	SetInputSizes(sizes ...int)
	SetOutputSize(size int, column int)

	// Close marks the cursor closed immediately. Operations already
	// queued fail when they run.
	Close(ctx context.Context) *Future[struct{}]
}
