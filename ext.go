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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConnLogging is a connection that also supports logging information to
// an application-supplied log sink.
type ConnLogging interface {
	SetLogger(*slog.Logger)
}

// OTelTracing is a connection that supports instrumentation with
// [OpenTelemetry tracing].
//
// [OpenTelemetry tracing]: https://opentelemetry.io/docs/concepts/signals/traces/
type OTelTracing interface {
	// Sets the trace parent from an external trace span. A blank value
	// removes the parent relationship.
	SetTraceParent(string)
	// Gets the trace parent. A blank value indicates no parent.
	GetTraceParent() string
	// Starts a new span, enhancing ctx with the trace parent if one is
	// set.
	StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
	// Gets the initial span attributes for any newly started span.
	GetInitialSpanAttributes() []attribute.KeyValue
}

// MetricsCollector receives operational measurements from a connection.
// Implementations must be safe for concurrent use.
type MetricsCollector interface {
	// ObserveConnect is called after every attempt to establish the
	// backend client.
	ObserveConnect(duration time.Duration, err error)
	// ObserveStatement is called after every statement sent to the
	// backend, including each run of ExecuteMany.
	ObserveStatement(kind StatementKind, duration time.Duration, rows int64, err error)
	// ObserveTransaction is called after every COMMIT or ROLLBACK that
	// reached the backend. op is "commit" or "rollback".
	ObserveTransaction(op string, err error)
	// SetPendingTasks reports the number of tasks queued on a
	// connection's event loop.
	SetPendingTasks(n int)
}

// NopMetrics is a MetricsCollector that discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveConnect(time.Duration, error)                         {}
func (NopMetrics) ObserveStatement(StatementKind, time.Duration, int64, error) {}
func (NopMetrics) ObserveTransaction(string, error)                            {}
func (NopMetrics) SetPendingTasks(int)                                         {}

// RunInTransaction is a helper wrapping the boilerplate of BEGIN, work,
// and COMMIT or ROLLBACK around fn. The cursor passed to fn is closed
// when RunInTransaction returns.
//
// If fn fails the transaction is rolled back and the rollback error, if
// any, is joined to fn's error.
func RunInTransaction(ctx context.Context, conn Conn, fn func(Cursor) error) (err error) {
	cur, err := conn.Cursor()
	if err != nil {
		return fmt.Errorf("RunInTransaction: Cursor: %w", err)
	}
	defer func() {
		err = errors.Join(err, cur.Close())
	}()

	if err = cur.Execute(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("RunInTransaction: BEGIN: %w", err)
	}

	if err = fn(cur); err != nil {
		return errors.Join(err, conn.Rollback(ctx))
	}

	if err = conn.Commit(ctx); err != nil {
		return fmt.Errorf("RunInTransaction: Commit: %w", err)
	}
	return nil
}
