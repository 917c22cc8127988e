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
	"strings"
	"time"
)

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Time returns the given time of day on the zero date, in UTC.
func Time(hour, minute, second int) time.Time {
	return time.Date(0, time.January, 1, hour, minute, second, 0, time.UTC)
}

func Timestamp(year int, month time.Month, day, hour, minute, second int) time.Time {
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

// DateFromTicks returns the UTC date containing the Unix time ticks.
func DateFromTicks(ticks int64) time.Time {
	t := time.Unix(ticks, 0).UTC()
	return Date(t.Year(), t.Month(), t.Day())
}

// TimeFromTicks returns the UTC time of day of the Unix time ticks.
func TimeFromTicks(ticks int64) time.Time {
	t := time.Unix(ticks, 0).UTC()
	return Time(t.Hour(), t.Minute(), t.Second())
}

func TimestampFromTicks(ticks int64) time.Time {
	return time.Unix(ticks, 0).UTC()
}

// Binary marks b as a BLOB parameter.
func Binary(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// TypeObject groups declared column type names. A type code matches the
// object if it is one of its members, ignoring case.
type TypeObject struct {
	name    string
	members map[string]struct{}
}

func newTypeObject(name string, members ...string) TypeObject {
	t := TypeObject{name: name, members: make(map[string]struct{}, len(members))}
	for _, m := range members {
		t.members[m] = struct{}{}
	}
	return t
}

var (
	TypeString   = newTypeObject("STRING", "TEXT", "VARCHAR", "CHAR", "CLOB")
	TypeBinary   = newTypeObject("BINARY", "BLOB", "BINARY", "VARBINARY")
	TypeNumber   = newTypeObject("NUMBER", "INTEGER", "INT", "SMALLINT", "BIGINT", "REAL", "FLOAT", "DOUBLE", "NUMERIC")
	TypeDatetime = newTypeObject("DATETIME", "DATE", "TIME", "TIMESTAMP", "DATETIME")
	TypeRowID    = newTypeObject("ROWID", "ROWID", "INTEGER PRIMARY KEY")
)

// Matches reports whether typeCode is a member of t.
func (t TypeObject) Matches(typeCode string) bool {
	_, ok := t.members[strings.ToUpper(typeCode)]
	return ok
}

func (t TypeObject) String() string { return t.name }
