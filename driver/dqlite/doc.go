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

// Package dqlite is the DB-API driver for dqlite clusters.
//
// Connect returns a synchronous connection that reaches the cluster on
// first use. AsyncConnect returns an asynchronous connection that has
// already reached it.
//
//	conn, err := dqlite.Connect("127.0.0.1:9001", dqlite.WithDatabase("app"))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	cur, _ := conn.Cursor()
//	if err := cur.Execute(ctx, "SELECT id, name FROM users WHERE id = ?", 42); err != nil {
//		return err
//	}
//	row, err := cur.FetchOne(ctx)
//
// Every connection runs its backend work on a dedicated goroutine. Work
// passed to Submit runs on that goroutine too, and synchronous calls
// made from it with the context it was given run inline.
//
// Spans are produced through OpenTelemetry. Unless WithTracerProvider is
// given, the exporter is chosen by the OTEL_TRACES_EXPORTER environment
// variable: "none", "otlp", "console" or "dbapifile" (rotating JSONL
// files under the user config directory).
package dqlite
