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

package dqlite_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/backend/sqlite"
	"github.com/dqlite-dbapi/go/dbapi/driver/dqlite"
	"github.com/dqlite-dbapi/go/dbapi/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"
)

type SQLiteQuirks struct {
	opts []dqlite.Option
}

func (q *SQLiteQuirks) Connect(t *testing.T) dbapi.Conn {
	conn, err := dqlite.Connect(sqlite.MemoryAddr,
		append([]dqlite.Option{dqlite.WithBackend(dqlite.BackendSqlite, sqlite.New)}, q.opts...)...)
	require.NoError(t, err)
	return conn
}

func (q *SQLiteQuirks) TearDown(t *testing.T, conn dbapi.Conn) {
	require.NoError(t, conn.Close())
}

func (*SQLiteQuirks) BindParameter(int) string { return "?" }
func (*SQLiteQuirks) SupportsReturning() bool  { return true }
func (*SQLiteQuirks) SupportsArrow() bool      { return true }

func TestValidation(t *testing.T) {
	q := &SQLiteQuirks{}
	suite.Run(t, &validation.ConnectionTests{Quirks: q})
	suite.Run(t, &validation.CursorTests{Quirks: q})
}

func connectSQLite(t *testing.T, opts ...dqlite.Option) *dqlite.Conn {
	t.Helper()
	opts = append([]dqlite.Option{dqlite.WithBackend(dqlite.BackendSqlite, sqlite.New)}, opts...)
	conn, err := dqlite.Connect(sqlite.MemoryAddr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, conn.Close()) })
	return conn
}

func TestSubmitRunsSyncCallsInline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := connectSQLite(t)
	cur, err := conn.Cursor()
	require.NoError(t, err)

	var rows []dbapi.Row
	err = conn.Submit(ctx, func(ctx context.Context) error {
		// every call below would deadlock if it were queued behind this task
		if err := cur.Execute(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER)"); err != nil {
			return err
		}
		if err := cur.ExecuteMany(ctx, "INSERT INTO kv VALUES (?, ?)", [][]any{{"a", 1}, {"b", 2}}); err != nil {
			return err
		}
		if err := conn.Commit(ctx); err != nil {
			return err
		}
		// nested submissions run inline too
		return conn.Submit(ctx, func(ctx context.Context) error {
			if err := cur.Execute(ctx, "SELECT k, v FROM kv ORDER BY k"); err != nil {
				return err
			}
			rows, err = cur.FetchAll(ctx)
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []dbapi.Row{{"a", int64(1)}, {"b", int64(2)}}, rows)
}

func TestCloseInsideSubmit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for name, closeFn := range map[string]func(*dqlite.Conn, context.Context) error{
		"Close":        func(c *dqlite.Conn, _ context.Context) error { return c.Close() },
		"CloseContext": (*dqlite.Conn).CloseContext,
	} {
		t.Run(name, func(t *testing.T) {
			conn := connectSQLite(t)
			cur, err := conn.Cursor()
			require.NoError(t, err)

			done := make(chan error, 1)
			go func() {
				done <- conn.Submit(ctx, func(ctx context.Context) error {
					if err := cur.Execute(ctx, "SELECT 1"); err != nil {
						return err
					}
					if err := closeFn(conn, ctx); err != nil {
						return err
					}
					err := cur.Execute(ctx, "SELECT 1")
					if !errors.Is(err, dbapi.ClassInterface) {
						return fmt.Errorf("execute after close: %v", err)
					}
					return nil
				})
			}()

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-ctx.Done():
				t.Fatal("closing from inside Submit did not return")
			}
			assert.True(t, conn.Closed())
			_, err = conn.Cursor()
			assert.ErrorIs(t, err, dbapi.ClassInterface)
		})
	}
}

func TestAsyncOperationsCompleteInOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dqlite.AsyncConnect(ctx, sqlite.MemoryAddr, dqlite.WithBackend(dqlite.BackendSqlite, sqlite.New))
	require.NoError(t, err)
	defer func() { require.NoError(t, conn.Close(ctx).Err(ctx)) }()

	cur, err := conn.Cursor()
	require.NoError(t, err)

	// nothing is awaited until the end; the loop keeps submission order
	created := cur.Execute(ctx, "CREATE TABLE seq (n INTEGER)")
	inserts := make([]*dbapi.Future[struct{}], 0, 50)
	for i := range 50 {
		inserts = append(inserts, cur.Execute(ctx, "INSERT INTO seq VALUES (?)", i))
	}
	selected := cur.Execute(ctx, "SELECT n FROM seq ORDER BY rowid")
	first := cur.FetchOne(ctx)
	rest := cur.FetchAll(ctx)

	rows, err := rest.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, created.Err(ctx))
	for _, f := range inserts {
		require.NoError(t, f.Err(ctx))
	}
	require.NoError(t, selected.Err(ctx))
	row, err := first.Wait(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 0, row[0])
	require.Len(t, rows, 49)
	assert.EqualValues(t, 49, rows[48][0])
	assert.EqualValues(t, 50, cur.RowCount())
}

func TestConnectionsAreIndependent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i := range 8 {
		g.Go(func() error {
			conn, err := dqlite.Connect(sqlite.MemoryAddr, dqlite.WithBackend(dqlite.BackendSqlite, sqlite.New))
			if err != nil {
				return err
			}
			defer conn.Close()

			cur, err := conn.Cursor()
			if err != nil {
				return err
			}
			if err := cur.Execute(ctx, "SELECT ?", i); err != nil {
				return err
			}
			row, err := cur.FetchOne(ctx)
			if err != nil {
				return err
			}
			if row[0] != int64(i) {
				return fmt.Errorf("connection %d read %v", i, row[0])
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestFetchArrow(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	conn := connectSQLite(t, dqlite.WithAllocator(mem))
	cur, err := conn.Cursor()
	require.NoError(t, err)
	require.NoError(t, cur.Execute(ctx, "CREATE TABLE m (id INTEGER, label VARCHAR(10), data BLOB, ratio DOUBLE, at DATETIME)"))
	require.NoError(t, cur.ExecuteMany(ctx, "INSERT INTO m VALUES (?, ?, ?, ?, ?)", [][]any{
		{1, "one", []byte{0x01}, 0.5, "2024-05-01 12:00:00"},
		{2, nil, nil, 1.5, nil},
	}))

	_, err = cur.FetchArrow(ctx)
	assert.ErrorIs(t, err, dbapi.ClassInterface, "exec statements have no result set")

	require.NoError(t, cur.Execute(ctx, "SELECT id, label, data, ratio, at, NULL AS empty FROM m ORDER BY id"))
	rec, err := cur.FetchArrow(ctx)
	require.NoError(t, err)
	defer rec.Release()

	expected := []arrow.DataType{
		arrow.PrimitiveTypes.Int64,
		arrow.BinaryTypes.String,
		arrow.BinaryTypes.Binary,
		arrow.PrimitiveTypes.Float64,
		arrow.BinaryTypes.String,
		arrow.Null,
	}
	require.EqualValues(t, len(expected), rec.NumCols())
	for i, dt := range expected {
		assert.Truef(t, arrow.TypeEqual(dt, rec.Schema().Field(i).Type),
			"column %d: expected %s, got %s", i, dt, rec.Schema().Field(i).Type)
	}
	assert.EqualValues(t, 2, rec.NumRows())
	assert.Equal(t, "one", rec.Column(1).(*array.String).Value(0))
	assert.True(t, rec.Column(1).IsNull(1))
	assert.Equal(t, 1.5, rec.Column(3).(*array.Float64).Value(1))
	assert.Contains(t, rec.Column(4).(*array.String).Value(0), "2024-05-01")
	assert.True(t, rec.Column(4).IsNull(1))
	assert.Equal(t, 2, rec.Column(5).NullN())

	// the rows were consumed by the export
	rows, err := cur.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	conn := connectSQLite(t)
	cur, err := conn.Cursor()
	require.NoError(t, err)

	for _, stmt := range []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, avatar BLOB, score REAL)",
		"CREATE TABLE user_groups (user_id INTEGER, group_name TEXT)",
		"CREATE VIEW v_users AS SELECT id, name FROM users",
	} {
		require.NoError(t, cur.Execute(ctx, stmt))
	}

	tables, err := conn.Tables(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_groups", "users", "v_users"}, tables)

	pattern := "USER_"
	tables, err = conn.Tables(ctx, &pattern)
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tables)

	pattern = "%users"
	tables, err = conn.Tables(ctx, &pattern)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "v_users"}, tables)

	schema, err := conn.TableSchema(ctx, "users")
	require.NoError(t, err)
	require.Len(t, schema.Fields(), 4)

	expected := []struct {
		name     string
		dt       arrow.DataType
		nullable bool
	}{
		{"id", arrow.PrimitiveTypes.Int64, true},
		{"name", arrow.BinaryTypes.String, false},
		{"avatar", arrow.BinaryTypes.Binary, true},
		{"score", arrow.PrimitiveTypes.Float64, true},
	}
	for i, exp := range expected {
		f := schema.Field(i)
		assert.Equal(t, exp.name, f.Name)
		assert.Truef(t, arrow.TypeEqual(exp.dt, f.Type), "%s: got %s", exp.name, f.Type)
		assert.Equal(t, exp.nullable, f.Nullable, exp.name)
	}

	_, err = conn.TableSchema(ctx, "missing'; DROP TABLE users; --")
	assert.ErrorIs(t, err, dbapi.ClassOperational)
	assert.ErrorContains(t, err, "not found")

	tables, err = conn.Tables(ctx, nil)
	require.NoError(t, err)
	assert.Contains(t, tables, "users")
}

func TestWithOptions(t *testing.T) {
	ctx := context.Background()

	conn, err := dqlite.Connect("", dqlite.WithOptions(map[string]string{
		dbapi.OptionKeyAddress:  sqlite.MemoryAddr,
		dbapi.OptionKeyBackend:  "SQLite",
		dbapi.OptionKeyDatabase: "app",
		dbapi.OptionKeyTimeout:  "2.5",
	}))
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, dqlite.BackendSqlite, conn.Async().Backend())
	assert.Equal(t, sqlite.MemoryAddr, conn.Async().Address())
	assert.Equal(t, "app", conn.Async().Database())
	require.NoError(t, conn.Ping(ctx))

	_, err = dqlite.Connect("", dqlite.WithOptions(map[string]string{"autocommit": "true"}))
	assert.ErrorIs(t, err, dbapi.ClassNotSupported)
	assert.ErrorContains(t, err, "Unknown connection option 'autocommit'")

	_, err = dqlite.Connect("", dqlite.WithOptions(map[string]string{dbapi.OptionKeyBackend: "postgres"}))
	assert.ErrorIs(t, err, dbapi.ClassProgramming)

	_, err = dqlite.Connect("", dqlite.WithOptions(map[string]string{dbapi.OptionKeyTimeout: "soon"}))
	assert.ErrorIs(t, err, dbapi.ClassProgramming)
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"5s", 5 * time.Second, true},
		{"250ms", 250 * time.Millisecond, true},
		{"10", 10 * time.Second, true},
		{" 2.5 ", 2500 * time.Millisecond, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"", 0, false},
		{"soon", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := dqlite.ParseTimeout(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnreachableDqlite(t *testing.T) {
	ctx := context.Background()
	conn, err := dqlite.Connect("", dqlite.WithTimeout(time.Second))
	require.NoError(t, err)
	defer conn.Close()

	cur, err := conn.Cursor()
	require.NoError(t, err)
	err = cur.Execute(ctx, "SELECT 1")
	assert.ErrorIs(t, err, dbapi.ClassOperational)
	assert.ErrorContains(t, err, "Failed to connect")
}

// syncBuffer lets the loop goroutine log while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func TestLogging(t *testing.T) {
	ctx := context.Background()
	var out syncBuffer
	logger := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	conn, err := dqlite.Connect(sqlite.MemoryAddr,
		dqlite.WithBackend(dqlite.BackendSqlite, sqlite.New),
		dqlite.WithLogger(logger),
		dqlite.WithDatabase("logs"),
	)
	require.NoError(t, err)
	cur, err := conn.Cursor()
	require.NoError(t, err)
	require.NoError(t, cur.Execute(ctx, "SELECT 1"))
	require.NoError(t, conn.Close())

	var msgs []string
	for _, line := range out.Lines() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		if rec["conn_id"] == nil {
			continue
		}
		assert.Equal(t, conn.ID().String(), rec["conn_id"])
		assert.Equal(t, "logs", rec["database"])
		msgs = append(msgs, rec["msg"].(string))
	}
	assert.Contains(t, msgs, "connected")
	assert.Contains(t, msgs, "execute")
	assert.Contains(t, msgs, "closed")
}

func TestTracing(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(ctx)

	conn, err := dqlite.Connect(sqlite.MemoryAddr,
		dqlite.WithBackend(dqlite.BackendSqlite, sqlite.New),
		dqlite.WithTracerProvider(provider),
	)
	require.NoError(t, err)
	cur, err := conn.Cursor()
	require.NoError(t, err)
	require.NoError(t, cur.Execute(ctx, "CREATE TABLE t (x)"))
	require.NoError(t, cur.ExecuteMany(ctx, "INSERT INTO t VALUES (?)", [][]any{{1}, {2}}))
	require.NoError(t, conn.Commit(ctx))
	assert.Error(t, cur.Execute(ctx, "SELEC 1"))
	require.NoError(t, conn.Close())

	var names []string
	var failed int
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
		if span.Status().Code.String() == "Error" {
			failed++
		}
	}
	assert.Equal(t, []string{"connect", "execute", "execute", "execute", "executemany", "commit", "execute", "close"}, names)
	assert.Equal(t, 1, failed)
}

type recordingMetrics struct {
	dbapi.NopMetrics

	mu         sync.Mutex
	connects   int
	statements map[dbapi.StatementKind]int
	rows       int64
	txns       []string
}

func (m *recordingMetrics) ObserveConnect(time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
}

func (m *recordingMetrics) ObserveStatement(kind dbapi.StatementKind, _ time.Duration, rows int64, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statements == nil {
		m.statements = map[dbapi.StatementKind]int{}
	}
	m.statements[kind]++
	m.rows += rows
}

func (m *recordingMetrics) ObserveTransaction(op string, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns = append(m.txns, op)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := &recordingMetrics{}
	conn := connectSQLite(t, dqlite.WithMetrics(metrics))

	cur, err := conn.Cursor()
	require.NoError(t, err)
	require.NoError(t, cur.Execute(ctx, "CREATE TABLE t (x)"))
	require.NoError(t, cur.ExecuteMany(ctx, "INSERT INTO t VALUES (?)", [][]any{{1}, {2}, {3}}))
	require.NoError(t, cur.Execute(ctx, "SELECT x FROM t"))
	require.NoError(t, conn.Rollback(ctx))
	require.NoError(t, conn.Commit(ctx))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1, metrics.connects)
	assert.Equal(t, 4, metrics.statements[dbapi.StatementExec])
	assert.Equal(t, 1, metrics.statements[dbapi.StatementQuery])
	assert.EqualValues(t, 6, metrics.rows)
	assert.Equal(t, []string{"rollback", "commit"}, metrics.txns)
}
