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

package sqlite_test

import (
	"context"
	"testing"

	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/backend"
	"github.com/dqlite-dbapi/go/dbapi/backend/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestDSN(t *testing.T) {
	_, err := sqlite.DSN(backend.Config{})
	var dbErr dbapi.Error
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, dbapi.StatusInvalidArgument, dbErr.Code)

	dsn, err := sqlite.DSN(backend.Config{Address: sqlite.MemoryAddr})
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)

	dsn, err = sqlite.DSN(backend.Config{Address: "/var/lib/app"}.WithDefaults())
	require.NoError(t, err)
	assert.Equal(t, "file:/var/lib/app/default.db?_pragma=busy_timeout(10000)", dsn)
}

type ClientTests struct {
	suite.Suite

	ctx    context.Context
	client backend.Client
}

func (s *ClientTests) SetupTest() {
	s.ctx = context.Background()

	var err error
	s.client, err = sqlite.New(backend.Config{Address: s.T().TempDir(), Database: "test"})
	s.Require().NoError(err)
	s.Require().NoError(s.client.Connect(s.ctx))

	_, _, err = s.client.Exec(s.ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT UNIQUE, qty INT)", nil)
	s.Require().NoError(err)
}

func (s *ClientTests) TearDownTest() {
	s.NoError(s.client.Close())
	// closing twice is harmless
	s.NoError(s.client.Close())
}

func (s *ClientTests) TestExecAndQuery() {
	lastID, affected, err := s.client.Exec(s.ctx, "INSERT INTO items (name, qty) VALUES (?, ?)", []any{"apple", 3})
	s.Require().NoError(err)
	s.EqualValues(1, lastID)
	s.EqualValues(1, affected)

	res, err := s.client.Query(s.ctx, "SELECT id, name, qty FROM items WHERE name = ?", []any{"apple"})
	s.Require().NoError(err)
	s.Equal([]string{"id", "name", "qty"}, res.Columns)
	s.Equal([]string{"INTEGER", "TEXT", "INT"}, res.DeclTypes)
	s.Require().Len(res.Rows, 1)
	s.Equal([]any{int64(1), "apple", int64(3)}, res.Rows[0])
}

func (s *ClientTests) TestReturning() {
	res, err := s.client.Query(s.ctx, "INSERT INTO items (name, qty) VALUES ('pear', 1) RETURNING id, name", nil)
	s.Require().NoError(err)
	s.Equal([]string{"id", "name"}, res.Columns)
	s.Equal([][]any{{int64(1), "pear"}}, res.Rows)
}

func (s *ClientTests) TestConstraintViolation() {
	_, _, err := s.client.Exec(s.ctx, "INSERT INTO items (name) VALUES ('dup')", nil)
	s.Require().NoError(err)
	_, _, err = s.client.Exec(s.ctx, "INSERT INTO items (name) VALUES ('dup')", nil)

	var dbErr dbapi.Error
	s.Require().ErrorAs(err, &dbErr)
	s.Equal(dbapi.StatusIntegrity, dbErr.Code)
	s.ErrorIs(err, dbapi.ClassIntegrity)
}

func (s *ClientTests) TestSyntaxError() {
	_, err := s.client.Query(s.ctx, "SELEC nothing", nil)
	s.ErrorIs(err, dbapi.ClassProgramming)
}

func (s *ClientTests) TestCommitWithoutTransaction() {
	s.NoError(s.client.Execute(s.ctx, "COMMIT"))
	s.NoError(s.client.Execute(s.ctx, "ROLLBACK"))
}

func (s *ClientTests) TestTransaction() {
	s.Require().NoError(s.client.Execute(s.ctx, "BEGIN"))
	_, _, err := s.client.Exec(s.ctx, "INSERT INTO items (name) VALUES ('gone')", nil)
	s.Require().NoError(err)
	s.Require().NoError(s.client.Execute(s.ctx, "ROLLBACK"))

	res, err := s.client.Query(s.ctx, "SELECT count(*) FROM items", nil)
	s.Require().NoError(err)
	s.Equal([][]any{{int64(0)}}, res.Rows)
}

func (s *ClientTests) TestNotConnected() {
	c, err := sqlite.New(backend.Config{Address: sqlite.MemoryAddr})
	s.Require().NoError(err)

	_, err = c.Query(s.ctx, "SELECT 1", nil)
	s.ErrorIs(err, dbapi.ClassInterface)
	_, _, err = c.Exec(s.ctx, "SELECT 1", nil)
	s.ErrorIs(err, dbapi.ClassInterface)
	s.NoError(c.Close())
}

func TestClient(t *testing.T) {
	suite.Run(t, new(ClientTests))
}
