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

package dbapi_test

import (
	"testing"
	"time"

	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	assert.Equal(t, time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC), dbapi.Date(2024, time.March, 9))
	assert.Equal(t, time.Date(0, time.January, 1, 13, 4, 5, 0, time.UTC), dbapi.Time(13, 4, 5))
	assert.Equal(t, time.Date(2024, time.March, 9, 13, 4, 5, 0, time.UTC),
		dbapi.Timestamp(2024, time.March, 9, 13, 4, 5))
}

func TestFromTicks(t *testing.T) {
	// 2021-03-04T05:06:07Z
	const ticks = 1614834367
	assert.Equal(t, dbapi.Date(2021, time.March, 4), dbapi.DateFromTicks(ticks))
	assert.Equal(t, dbapi.Time(5, 6, 7), dbapi.TimeFromTicks(ticks))
	assert.Equal(t, dbapi.Timestamp(2021, time.March, 4, 5, 6, 7), dbapi.TimestampFromTicks(ticks))
}

func TestBinary(t *testing.T) {
	assert.Equal(t, []byte{}, dbapi.Binary(nil))
	assert.Equal(t, []byte("abc"), dbapi.Binary([]byte("abc")))
}

func TestTypeObjects(t *testing.T) {
	tests := []struct {
		obj     dbapi.TypeObject
		name    string
		members []string
		others  []string
	}{
		{dbapi.TypeString, "STRING", []string{"TEXT", "varchar", "Char", "CLOB"}, []string{"BLOB", "INTEGER"}},
		{dbapi.TypeBinary, "BINARY", []string{"BLOB", "binary", "VARBINARY"}, []string{"TEXT"}},
		{dbapi.TypeNumber, "NUMBER", []string{"INTEGER", "int", "REAL", "double", "NUMERIC"}, []string{"TEXT", "DATE"}},
		{dbapi.TypeDatetime, "DATETIME", []string{"DATE", "time", "TIMESTAMP", "DATETIME"}, []string{"INTEGER"}},
		{dbapi.TypeRowID, "ROWID", []string{"ROWID", "integer primary key"}, []string{"INTEGER"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.obj.String())
			for _, m := range tt.members {
				assert.Truef(t, tt.obj.Matches(m), "%s should match %s", tt.name, m)
			}
			for _, o := range tt.others {
				assert.Falsef(t, tt.obj.Matches(o), "%s should not match %s", tt.name, o)
			}
		})
	}
}

func TestModuleAttributes(t *testing.T) {
	assert.Equal(t, "2.0", dbapi.APILevel)
	assert.Equal(t, 1, dbapi.ThreadSafety)
	assert.Equal(t, "qmark", dbapi.ParamStyle)
	assert.Equal(t, [3]int{3, 35, 0}, dbapi.SQLiteVersionInfo)
	assert.Equal(t, "exec", dbapi.StatementExec.String())
	assert.Equal(t, "query", dbapi.StatementQuery.String())
}
