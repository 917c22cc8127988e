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
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/driver/internal"
	"github.com/dqlite-dbapi/go/dbapi/driver/internal/eventloop"
	"github.com/dqlite-dbapi/go/dbapi/utils"
)

const dialectSQLite = "sqlite3"

func buildTablesQuery() (string, error) {
	sql, _, err := goqu.Dialect(dialectSQLite).
		From("sqlite_master").
		Select("name").
		Where(
			goqu.C("type").In("table", "view"),
			goqu.C("name").NotLike("sqlite_%"),
		).
		Order(goqu.C("name").Asc()).
		ToSQL()
	return sql, err
}

func buildTableInfoQuery(table string) (string, error) {
	sql, _, err := goqu.Dialect(dialectSQLite).
		From(goqu.L("pragma_table_info(?)", table)).
		Select("name", "type", "notnull").
		Order(goqu.C("cid").Asc()).
		ToSQL()
	return sql, err
}

// Tables lists the tables and views whose names match pattern, a SQL
// LIKE pattern. A nil pattern lists everything. SQLite's internal
// tables are never listed.
func (c *AsyncConn) Tables(ctx context.Context, pattern *string) *dbapi.Future[[]string] {
	if c.closed.Load() {
		return dbapi.Failed[[]string](c.ErrorHelper.ConnectionClosed())
	}
	return eventloop.Submit(ctx, c.loop, func(ctx context.Context) ([]string, error) {
		re, err := internal.PatternToRegexp(pattern)
		if err != nil {
			return nil, c.ErrorHelper.Errorf(dbapi.StatusInvalidArgument, "invalid table name pattern: %s", err)
		}
		sql, err := buildTablesQuery()
		if err != nil {
			return nil, c.ErrorHelper.Wrap(dbapi.StatusInternal, err)
		}
		res, err := c.metadataQuery(ctx, sql)
		if err != nil {
			return nil, err
		}

		names := make([]string, 0, len(res))
		for _, row := range res {
			name := fmt.Sprint(row[0])
			if re == nil || re.MatchString(name) {
				names = append(names, name)
			}
		}
		return names, nil
	})
}

// TableSchema describes table as an Arrow schema. Field types follow
// the declared column types; NOT NULL columns are not nullable.
func (c *AsyncConn) TableSchema(ctx context.Context, table string) *dbapi.Future[*arrow.Schema] {
	if c.closed.Load() {
		return dbapi.Failed[*arrow.Schema](c.ErrorHelper.ConnectionClosed())
	}
	return eventloop.Submit(ctx, c.loop, func(ctx context.Context) (*arrow.Schema, error) {
		sql, err := buildTableInfoQuery(table)
		if err != nil {
			return nil, c.ErrorHelper.Wrap(dbapi.StatusInternal, err)
		}
		res, err := c.metadataQuery(ctx, sql)
		if err != nil {
			return nil, err
		}
		if len(res) == 0 {
			return nil, c.ErrorHelper.Errorf(dbapi.StatusNotFound, "table '%s' not found", table)
		}

		fields := make([]arrow.Field, len(res))
		for i, row := range res {
			notNull, _ := row[2].(int64)
			fields[i] = utils.FieldFor(fmt.Sprint(row[0]), fmt.Sprint(row[1]), notNull == 0)
		}
		return arrow.NewSchema(fields, nil), nil
	})
}

// metadataQuery runs a catalog query on the connection's client. Runs
// on the loop.
func (c *AsyncConn) metadataQuery(ctx context.Context, sql string) ([]dbapi.Row, error) {
	client, err := c.clientForCursor(ctx)
	if err != nil {
		return nil, err
	}
	c.logger().DebugContext(ctx, "metadata query", "sql", sql)
	res, err := client.Query(ctx, sql, nil)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}
