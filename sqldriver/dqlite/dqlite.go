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

// Package dqlite registers the dqlite dbapi driver with database/sql
// under the name "dqlite".
//
// The connection string uses the keys accepted by the driver's
// WithOptions: address, database, timeout and backend.
package dqlite

import (
	"database/sql"

	"github.com/dqlite-dbapi/go/dbapi"
	dqlitedriver "github.com/dqlite-dbapi/go/dbapi/driver/dqlite"
	"github.com/dqlite-dbapi/go/dbapi/sqldriver"
)

// DriverName is the name the driver is registered under.
const DriverName = "dqlite"

func init() {
	sql.Register(DriverName, sqldriver.Driver{Opener: Open})
}

// Open connects lazily using the given connection options.
func Open(opts map[string]string) (dbapi.Conn, error) {
	conn, err := dqlitedriver.Connect("", dqlitedriver.WithOptions(opts))
	if err != nil {
		return nil, err
	}
	return conn, nil
}
