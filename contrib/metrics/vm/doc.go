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

// Package vm provides a VictoriaMetrics-based implementation of the
// dbapi.MetricsCollector interface.
//
// # Basic Usage
//
// Create a collector with the default prefix "dqlite_dbapi":
//
//	collector := vm.New()
//	conn, _ := dqlite.Connect(addr, dqlite.WithMetrics(collector))
//
// # Exposing Metrics
//
//	http.HandleFunc("/metrics", collector.Handler)
//
// Or use WritePrometheus to write metrics to a custom writer.
//
// # Metrics Provided
//
// Connections:
//   - {prefix}_connect_total - Counter of connection attempts
//   - {prefix}_connect_errors_total - Counter of failed attempts
//   - {prefix}_connect_duration_seconds - Histogram of connect latencies
//
// Statements:
//   - {prefix}_statements_total{kind} - Counter of statements, kind is exec or query
//   - {prefix}_statement_errors_total{kind} - Counter of failed statements
//   - {prefix}_statement_duration_seconds{kind} - Histogram of statement latencies
//   - {prefix}_statement_rows{kind} - Histogram of returned or affected rows
//
// Transactions:
//   - {prefix}_transactions_total{op} - Counter of COMMIT and ROLLBACK
//   - {prefix}_transaction_errors_total{op} - Counter of failed transaction ends
//
// Event loop:
//   - {prefix}_pending_tasks - Gauge of the last reported queue length
package vm
