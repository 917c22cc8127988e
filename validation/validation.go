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

// Package validation is a driver-agnostic test suite for dbapi drivers.
// It checks that a driver follows the closed-state, fetch, batch and
// transaction rules every dbapi.Conn must obey.
//
// A driver package runs it by implementing DriverQuirks and handing the
// suites to suite.Run:
//
//	func TestValidation(t *testing.T) {
//		q := &myQuirks{}
//		suite.Run(t, &validation.ConnectionTests{Quirks: q})
//		suite.Run(t, &validation.CursorTests{Quirks: q})
//	}
package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/stretchr/testify/suite"
)

type DriverQuirks interface {
	// Connect opens a connection to an empty database. Connections
	// opened by one test never see each other's tables unless the
	// quirks share a database on purpose.
	Connect(*testing.T) dbapi.Conn
	// Called in TearDownTest to clean up anything necessary between
	// tests. conn may already be closed.
	TearDown(*testing.T, dbapi.Conn)
	// BindParameter returns the SQL to reference the bind parameter at
	// index.
	BindParameter(index int) string
	// SupportsReturning reports whether INSERT ... RETURNING works.
	SupportsReturning() bool
	// SupportsArrow reports whether FetchArrow is implemented.
	SupportsArrow() bool
}

func requireClass(s *suite.Suite, err error, class dbapi.Class, msg string) {
	s.T().Helper()
	s.Require().Error(err)
	s.Truef(errors.Is(err, class), "expected %s, got %v", class, err)
	if msg != "" {
		s.ErrorContains(err, msg)
	}
}

type ConnectionTests struct {
	suite.Suite

	Quirks DriverQuirks
	Conn   dbapi.Conn
	ctx    context.Context
}

func (c *ConnectionTests) SetupTest() {
	c.ctx = context.Background()
	c.Conn = c.Quirks.Connect(c.T())
}

func (c *ConnectionTests) TearDownTest() {
	c.Quirks.TearDown(c.T(), c.Conn)
	c.Conn = nil
}

func (c *ConnectionTests) TestNewCursor() {
	cur, err := c.Conn.Cursor()
	c.Require().NoError(err)
	c.EqualValues(-1, cur.RowCount())
	c.Equal(1, cur.ArraySize())
	c.Nil(cur.Description())
	_, ok := cur.LastRowID()
	c.False(ok)
	c.NoError(cur.Close())
}

func (c *ConnectionTests) TestCloseConnTwice() {
	c.NoError(c.Conn.Close())
	c.NoError(c.Conn.Close())
}

func (c *ConnectionTests) TestTransactionEndBeforeUse() {
	// nothing has reached the backend, so there is nothing to end
	c.NoError(c.Conn.Commit(c.ctx))
	c.NoError(c.Conn.Rollback(c.ctx))
}

func (c *ConnectionTests) TestClosedConnection() {
	c.Require().NoError(c.Conn.Close())

	_, err := c.Conn.Cursor()
	requireClass(&c.Suite, err, dbapi.ClassInterface, "Connection is closed")
	requireClass(&c.Suite, c.Conn.Commit(c.ctx), dbapi.ClassInterface, "Connection is closed")
	requireClass(&c.Suite, c.Conn.Rollback(c.ctx), dbapi.ClassInterface, "Connection is closed")
}

func (c *ConnectionTests) TestCursorOfClosedConnection() {
	cur, err := c.Conn.Cursor()
	c.Require().NoError(err)
	c.Require().NoError(c.Conn.Close())

	err = cur.Execute(c.ctx, "SELECT 1")
	requireClass(&c.Suite, err, dbapi.ClassInterface, "")
}

func (c *ConnectionTests) TestConcurrent() {
	other := c.Quirks.Connect(c.T())
	defer c.Quirks.TearDown(c.T(), other)

	cur1, err := c.Conn.Cursor()
	c.Require().NoError(err)
	cur2, err := other.Cursor()
	c.Require().NoError(err)

	c.NoError(cur1.Execute(c.ctx, "SELECT 1"))
	c.NoError(cur2.Execute(c.ctx, "SELECT 2"))

	row, err := cur2.FetchOne(c.ctx)
	c.Require().NoError(err)
	c.EqualValues(2, row[0])
	row, err = cur1.FetchOne(c.ctx)
	c.Require().NoError(err)
	c.EqualValues(1, row[0])

	c.NoError(other.Close())
}

type CursorTests struct {
	suite.Suite

	Quirks DriverQuirks
	Conn   dbapi.Conn
	Cur    dbapi.Cursor
	ctx    context.Context
}

func (s *CursorTests) SetupTest() {
	s.ctx = context.Background()
	s.Conn = s.Quirks.Connect(s.T())
	var err error
	s.Cur, err = s.Conn.Cursor()
	s.Require().NoError(err)
}

func (s *CursorTests) TearDownTest() {
	s.NoError(s.Cur.Close())
	s.NoError(s.Conn.Close())
	s.Quirks.TearDown(s.T(), s.Conn)
	s.Cur, s.Conn = nil, nil
}

func (s *CursorTests) createSample() {
	s.Require().NoError(s.Cur.Execute(s.ctx,
		"CREATE TABLE sample_test (id INTEGER PRIMARY KEY, name TEXT, score REAL)"))
	insert := fmt.Sprintf("INSERT INTO sample_test (name, score) VALUES (%s, %s)",
		s.Quirks.BindParameter(0), s.Quirks.BindParameter(1))
	s.Require().NoError(s.Cur.ExecuteMany(s.ctx, insert, [][]any{
		{"alpha", 1.5},
		{"beta", nil},
		{"gamma", 3.0},
	}))
}

func (s *CursorTests) TestFetchRoundTrip() {
	s.createSample()
	s.Require().NoError(s.Cur.Execute(s.ctx, "SELECT id, name, score FROM sample_test ORDER BY id"))

	s.EqualValues(3, s.Cur.RowCount())
	desc := s.Cur.Description()
	s.Require().Len(desc, 3)
	s.Equal("id", desc[0].Name)
	s.Equal("name", desc[1].Name)
	s.Equal("score", desc[2].Name)

	var names []any
	for {
		row, err := s.Cur.FetchOne(s.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		s.Require().NoError(err)
		s.Require().Len(row, 3)
		names = append(names, row[1])
	}
	s.Equal([]any{"alpha", "beta", "gamma"}, names)

	// exhausted cursors stay exhausted
	_, err := s.Cur.FetchOne(s.ctx)
	s.ErrorIs(err, io.EOF)
	rows, err := s.Cur.FetchAll(s.ctx)
	s.NoError(err)
	s.Empty(rows)
}

func (s *CursorTests) TestFetchMany() {
	s.createSample()
	s.Require().NoError(s.Cur.Execute(s.ctx, "SELECT name FROM sample_test ORDER BY id"))

	rows, err := s.Cur.FetchMany(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(rows, 1)

	s.Cur.SetArraySize(5)
	rows, err = s.Cur.FetchMany(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(rows, 2)

	rows, err = s.Cur.FetchMany(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(rows)
}

func (s *CursorTests) TestRowsIterator() {
	s.createSample()
	s.Require().NoError(s.Cur.Execute(s.ctx, "SELECT name FROM sample_test ORDER BY id"))

	var n int
	for row, err := range s.Cur.Rows(s.ctx) {
		s.Require().NoError(err)
		s.Len(row, 1)
		n++
	}
	s.Equal(3, n)
}

func (s *CursorTests) TestExecuteManyRowCount() {
	s.createSample()
	s.EqualValues(3, s.Cur.RowCount())

	update := "UPDATE sample_test SET score = 0 WHERE name = " + s.Quirks.BindParameter(0)
	s.Require().NoError(s.Cur.ExecuteMany(s.ctx, update, [][]any{{"alpha"}, {"missing"}, {"gamma"}}))
	s.EqualValues(2, s.Cur.RowCount())
	s.Nil(s.Cur.Description())
}

func (s *CursorTests) TestExecLastRowID() {
	s.createSample()
	s.Require().NoError(s.Cur.Execute(s.ctx, "INSERT INTO sample_test (name) VALUES ('delta')"))
	id, ok := s.Cur.LastRowID()
	s.True(ok)
	s.EqualValues(4, id)
	s.EqualValues(1, s.Cur.RowCount())
}

func (s *CursorTests) TestReturning() {
	if !s.Quirks.SupportsReturning() {
		s.T().Skip("RETURNING not supported")
	}
	s.createSample()

	s.Require().NoError(s.Cur.Execute(s.ctx,
		"INSERT INTO sample_test (name, score) VALUES ('delta', 4.0) RETURNING id, name"))
	s.Require().Len(s.Cur.Description(), 2)
	row, err := s.Cur.FetchOne(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(4, row[0])
	s.Equal("delta", row[1])

	s.Require().NoError(s.Cur.Execute(s.ctx, "DELETE FROM sample_test WHERE score IS NULL\nRETURNING\nname"))
	rows, err := s.Cur.FetchAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("beta", rows[0][0])
}

func (s *CursorTests) countRows() int64 {
	s.Require().NoError(s.Cur.Execute(s.ctx, "SELECT COUNT(*) FROM sample_test"))
	row, err := s.Cur.FetchOne(s.ctx)
	s.Require().NoError(err)
	n, ok := row[0].(int64)
	s.Require().True(ok, "COUNT(*) returned %T", row[0])
	return n
}

func (s *CursorTests) TestCommitAndRollback() {
	s.createSample()

	s.Require().NoError(s.Cur.Execute(s.ctx, "BEGIN"))
	s.Require().NoError(s.Cur.Execute(s.ctx, "DELETE FROM sample_test"))
	s.Require().NoError(s.Conn.Rollback(s.ctx))
	s.EqualValues(3, s.countRows())

	s.Require().NoError(s.Cur.Execute(s.ctx, "BEGIN"))
	s.Require().NoError(s.Cur.Execute(s.ctx, "DELETE FROM sample_test WHERE name = 'alpha'"))
	s.Require().NoError(s.Conn.Commit(s.ctx))
	s.EqualValues(2, s.countRows())

	// ending a transaction that is not open is not an error
	s.NoError(s.Conn.Commit(s.ctx))
	s.NoError(s.Conn.Rollback(s.ctx))
}

func (s *CursorTests) TestRunInTransaction() {
	s.createSample()

	err := dbapi.RunInTransaction(s.ctx, s.Conn, func(cur dbapi.Cursor) error {
		if err := cur.Execute(s.ctx, "DELETE FROM sample_test"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.ErrorContains(err, "abort")
	s.EqualValues(3, s.countRows())

	s.NoError(dbapi.RunInTransaction(s.ctx, s.Conn, func(cur dbapi.Cursor) error {
		return cur.Execute(s.ctx, "DELETE FROM sample_test WHERE name = 'beta'")
	}))
	s.EqualValues(2, s.countRows())
}

func (s *CursorTests) TestProgrammingError() {
	err := s.Cur.Execute(s.ctx, "SELECT * FROM no_such_table")
	s.Truef(errors.Is(err, dbapi.ClassDatabase), "expected a database error, got %v", err)
	s.False(errors.Is(err, dbapi.ClassInterface))
}

func (s *CursorTests) TestClosedCursor() {
	s.createSample()
	s.Require().NoError(s.Cur.Execute(s.ctx, "SELECT name FROM sample_test"))
	s.Require().NoError(s.Cur.Close())
	// closing again is allowed
	s.Require().NoError(s.Cur.Close())

	s.Nil(s.Cur.Description())
	requireClass(&s.Suite, s.Cur.Execute(s.ctx, "SELECT 1"), dbapi.ClassInterface, "Cursor is closed")
	requireClass(&s.Suite, s.Cur.ExecuteMany(s.ctx, "SELECT 1", [][]any{{}}), dbapi.ClassInterface, "Cursor is closed")
	_, err := s.Cur.FetchOne(s.ctx)
	requireClass(&s.Suite, err, dbapi.ClassInterface, "Cursor is closed")
	_, err = s.Cur.FetchMany(s.ctx, 1)
	requireClass(&s.Suite, err, dbapi.ClassInterface, "Cursor is closed")
	_, err = s.Cur.FetchAll(s.ctx)
	requireClass(&s.Suite, err, dbapi.ClassInterface, "Cursor is closed")
}

func (s *CursorTests) TestFetchArrow() {
	if !s.Quirks.SupportsArrow() {
		s.T().Skip("FetchArrow not supported")
	}
	s.createSample()
	s.Require().NoError(s.Cur.Execute(s.ctx, "SELECT id, name, score FROM sample_test ORDER BY id"))

	// the first row has been consumed and is not exported
	_, err := s.Cur.FetchOne(s.ctx)
	s.Require().NoError(err)

	rec, err := s.Cur.FetchArrow(s.ctx)
	s.Require().NoError(err)
	defer rec.Release()

	s.EqualValues(2, rec.NumRows())
	s.EqualValues(3, rec.NumCols())
	names, ok := rec.Column(1).(*array.String)
	s.Require().True(ok, "name column is %s", rec.Column(1).DataType())
	s.Equal("beta", names.Value(0))
	s.True(rec.Column(2).IsNull(0))
}
