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

// Package sqlxclient implements backend.Client on top of a database/sql
// driver, pinning a single connection for the lifetime of the client.
package sqlxclient

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/backend"
	"github.com/jmoiron/sqlx"
)

// Opener opens the connection pool the client pins its connection from.
type Opener func(ctx context.Context) (*sqlx.DB, error)

// CodeFunc extracts the SQLite result code and message from a driver
// error. ok is false if err does not carry one.
type CodeFunc func(err error) (code int, message string, ok bool)

// Client is a backend.Client over one pinned sqlx connection.
type Client struct {
	open    Opener
	codeOf  CodeFunc
	timeout time.Duration

	db   *sqlx.DB
	conn *sqlx.Conn
}

func New(open Opener, codeOf CodeFunc, timeout time.Duration) *Client {
	return &Client{open: open, codeOf: codeOf, timeout: timeout}
}

func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	db, err := c.open(ctx)
	if err != nil {
		return c.connectError(err)
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		return errors.Join(c.connectError(err), db.Close())
	}

	if err := conn.PingContext(ctx); err != nil {
		return errors.Join(c.connectError(err), conn.Close(), db.Close())
	}

	c.db, c.conn = db, conn
	return nil
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	err := errors.Join(c.conn.Close(), c.db.Close())
	c.db, c.conn = nil, nil
	return err
}

func (c *Client) Execute(ctx context.Context, query string) error {
	if c.conn == nil {
		return errNotConnected
	}

	_, err := c.conn.ExecContext(ctx, query)
	if err == nil {
		return nil
	}

	mapped := c.mapError(err)
	var dbErr dbapi.Error
	if errors.As(mapped, &dbErr) && isTxEnd(query) && backend.IsNoTransaction(dbErr.Msg) {
		return nil
	}
	return mapped
}

func (c *Client) Query(ctx context.Context, query string, params []any) (*backend.Result, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}

	rows, err := c.conn.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, c.mapError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, c.mapError(err)
	}

	res := &backend.Result{Columns: cols, DeclTypes: make([]string, len(cols))}
	if types, err := rows.ColumnTypes(); err == nil {
		for i, t := range types {
			res.DeclTypes[i] = t.DatabaseTypeName()
		}
	}

	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, c.mapError(err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, c.mapError(err)
	}
	return res, nil
}

func (c *Client) Exec(ctx context.Context, query string, params []any) (int64, int64, error) {
	if c.conn == nil {
		return 0, 0, errNotConnected
	}

	res, err := c.conn.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, 0, c.mapError(err)
	}

	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, c.mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, c.mapError(err)
	}
	return lastID, affected, nil
}

var errNotConnected = dbapi.Error{
	Msg:  "backend client is not connected",
	Code: dbapi.StatusInvalidState,
}

func (c *Client) mapError(err error) error {
	var dbErr dbapi.Error
	switch {
	case errors.As(err, &dbErr):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dbapi.ContextError(err)
	case errors.Is(err, driver.ErrBadConn):
		return dbapi.Error{Msg: err.Error(), Code: dbapi.StatusIO, Cause: err}
	}

	if c.codeOf != nil {
		if code, msg, ok := c.codeOf(err); ok {
			return backend.NewError(code, msg, err)
		}
	}
	return dbapi.Error{Msg: err.Error(), Code: dbapi.StatusUnknown, Cause: err}
}

// connectError reports failures the backend does not classify as I/O,
// since they keep the session from being established.
func (c *Client) connectError(err error) error {
	mapped := c.mapError(err)
	var dbErr dbapi.Error
	if errors.As(mapped, &dbErr) && dbErr.Code == dbapi.StatusUnknown {
		dbErr.Code = dbapi.StatusIO
		return dbErr
	}
	return mapped
}

func isTxEnd(query string) bool {
	switch strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))) {
	case "COMMIT", "END", "ROLLBACK", "COMMIT TRANSACTION", "END TRANSACTION", "ROLLBACK TRANSACTION":
		return true
	}
	return false
}

var _ backend.Client = (*Client)(nil)
