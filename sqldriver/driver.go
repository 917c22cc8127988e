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

package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/utils"
)

func parseConnectStr(str string) (ret map[string]string, err error) {
	ret = make(map[string]string)
	for _, kv := range strings.Split(str, ";") {
		if strings.TrimSpace(kv) == "" {
			continue
		}
		parsed := strings.SplitN(kv, "=", 2)
		if len(parsed) != 2 {
			return nil, dbapi.Error{
				Msg:  "invalid format for connection string",
				Code: dbapi.StatusInvalidArgument,
			}
		}

		ret[strings.TrimSpace(parsed[0])] = strings.TrimSpace(parsed[1])
	}
	return
}

// Opener opens a connection from the options parsed out of a DSN.
type Opener func(opts map[string]string) (dbapi.Conn, error)

type connector struct {
	opts map[string]string
	drv  Driver
}

// Connect returns a connection to the database. Connect may
// return a cached connection (one previously closed), but doing
// so is unnecessary; the sql package maintains a pool of idle
// connections for efficient re-use.
//
// The returned connection is only used by one goroutine at a time.
func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	cnxn, err := c.drv.Opener(c.opts)
	if err != nil {
		return nil, err
	}

	return &conn{Conn: cnxn}, nil
}

// Driver returns the underlying Driver of the connector,
// mainly to maintain compatibility with the Driver method on sql.DB
func (c *connector) Driver() driver.Driver { return c.drv }

type Driver struct {
	Opener Opener
}

// Open returns a new connection to the database. The name
// should be semi-colon separated key-value pairs of the form:
// key=value;key2=value2;.....
//
// The returned connection is only used by one goroutine at a time.
func (d Driver) Open(name string) (driver.Conn, error) {
	connector, err := d.OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector expects the same format as driver.Open
func (d Driver) OpenConnector(name string) (driver.Connector, error) {
	opts, err := parseConnectStr(name)
	if err != nil {
		return nil, err
	}
	if d.Opener == nil {
		return nil, dbapi.Error{Msg: "sqldriver: Driver has no Opener", Code: dbapi.StatusInvalidState}
	}

	return &connector{opts: opts, drv: d}, nil
}

// conn is a connection to a database. It is not used concurrently by
// multiple goroutines. It is assumed to be stateful.
type conn struct {
	Conn dbapi.Conn
}

// Close invalidates any current transaction and marks this connection
// as no longer in use.
func (c *conn) Close() error {
	return c.Conn.Close()
}

// Ping checks the backend is reachable when the connection supports
// it. Connections that connect lazily are pinged by running nothing.
func (c *conn) Ping(ctx context.Context) error {
	if p, ok := c.Conn.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// CheckNamedValue rejects named parameters. Placeholders are positional
// question marks only.
func (c *conn) CheckNamedValue(val *driver.NamedValue) error {
	if val.Name != "" {
		return dbapi.Error{
			Msg:  "named parameter '" + val.Name + "' is not supported, use ?",
			Code: dbapi.StatusInvalidArgument,
		}
	}
	// fall back to the default conversion
	return driver.ErrSkip
}

func params(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for _, a := range args {
		// Ordinal is 1-based
		out[a.Ordinal-1] = a.Value
	}
	return out
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	cur, err := c.Conn.Cursor()
	if err != nil {
		return nil, err
	}

	if err := cur.Execute(ctx, query, params(args)...); err != nil {
		return nil, errors.Join(err, cur.Close())
	}
	return &rows{ctx: ctx, cur: cur, desc: cur.Description()}, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	cur, err := c.Conn.Cursor()
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	if err := cur.Execute(ctx, query, params(args)...); err != nil {
		return nil, err
	}

	res := result{affected: cur.RowCount()}
	res.lastID, res.hasID = cur.LastRowID()
	return res, nil
}

// Begin exists to fulfill the Conn interface. BeginTx is used instead.
//
// Deprecated
func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx issues BEGIN. SQLite transactions are always serializable,
// so only the default and serializable isolation levels are accepted.
func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	switch sql.IsolationLevel(opts.Isolation) {
	case sql.LevelDefault, sql.LevelSerializable:
	default:
		return nil, dbapi.Error{
			Msg:  "isolation level " + sql.IsolationLevel(opts.Isolation).String() + " is not supported",
			Code: dbapi.StatusNotImplemented,
		}
	}
	if opts.ReadOnly {
		return nil, dbapi.Error{Msg: "read-only transactions are not supported", Code: dbapi.StatusNotImplemented}
	}

	cur, err := c.Conn.Cursor()
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	if err := cur.Execute(ctx, "BEGIN"); err != nil {
		return nil, err
	}
	return tx{ctx: ctx, conn: c.Conn}, nil
}

// Prepare returns a statement bound to this connection. Nothing is
// sent to the backend until the statement runs.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	return &stmt{conn: c, query: query}, nil
}

type tx struct {
	ctx  context.Context
	conn dbapi.Conn
}

func (t tx) Commit() error { return t.conn.Commit(t.ctx) }

// Rollback reaches the backend even after the BeginTx context is done.
func (t tx) Rollback() error { return t.conn.Rollback(context.WithoutCancel(t.ctx)) }

type result struct {
	lastID   int64
	hasID    bool
	affected int64
}

func (r result) LastInsertId() (int64, error) {
	if !r.hasID {
		return 0, dbapi.Error{Msg: "no last insert id available", Code: dbapi.StatusInvalidState}
	}
	return r.lastID, nil
}

func (r result) RowsAffected() (int64, error) { return r.affected, nil }

type stmt struct {
	conn  *conn
	query string
}

func (s *stmt) Close() error { return nil }

// NumInput returns -1; the backend checks the placeholder count.
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, driver.ErrSkip
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, driver.ErrSkip
}

func (s *stmt) CheckNamedValue(val *driver.NamedValue) error {
	return s.conn.CheckNamedValue(val)
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

type rows struct {
	ctx  context.Context
	cur  dbapi.Cursor
	desc []dbapi.Column
}

func (r *rows) Columns() (out []string) {
	out = make([]string, len(r.desc))
	for i, c := range r.desc {
		out[i] = c.Name
	}
	return
}

func (r *rows) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}

func (r *rows) Next(dest []driver.Value) error {
	// exec statements produce no result set
	if r.desc == nil {
		return io.EOF
	}

	row, err := r.cur.FetchOne(r.ctx)
	if err != nil {
		return err
	}
	if len(row) > len(dest) {
		return dbapi.Error{
			Msg:  fmt.Sprintf("row has %d columns, destination has %d", len(row), len(dest)),
			Code: dbapi.StatusInternal,
		}
	}
	for i := range row {
		dest[i] = row[i]
	}
	return nil
}

// typeObjectOf returns the type object the declared type of column
// index belongs to.
func (r *rows) typeObjectOf(index int) (dbapi.TypeObject, bool) {
	code := baseType(r.desc[index].TypeCode)
	for _, t := range []dbapi.TypeObject{
		dbapi.TypeRowID, dbapi.TypeNumber, dbapi.TypeString, dbapi.TypeBinary, dbapi.TypeDatetime,
	} {
		if t.Matches(code) {
			return t, true
		}
	}
	return dbapi.TypeObject{}, false
}

// VARCHAR(20) -> VARCHAR
func baseType(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if i := strings.IndexByte(code, '('); i >= 0 {
		code = strings.TrimSpace(code[:i])
	}
	return code
}

func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	return baseType(r.desc[index].TypeCode)
}

// ColumnTypeNullable is unknown: SQLite only reports NOT NULL through
// table metadata.
func (r *rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	return true, false
}

func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	obj, ok := r.typeObjectOf(index)
	if !ok {
		return reflect.TypeOf((*any)(nil)).Elem()
	}

	switch obj.String() {
	case dbapi.TypeNumber.String(), dbapi.TypeRowID.String():
		if dt := utils.ArrowTypeFor(r.desc[index].TypeCode); dt != nil && dt.ID() == arrow.FLOAT64 {
			return reflect.TypeOf(float64(0))
		}
		return reflect.TypeOf(int64(0))
	case dbapi.TypeBinary.String():
		return reflect.TypeOf([]byte{})
	}
	// DATETIME members are stored as text
	return reflect.TypeOf("")
}
