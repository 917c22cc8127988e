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

package vm

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/dqlite-dbapi/go/dbapi"
)

// DefaultPrefix is prepended to every metric name.
const DefaultPrefix = "dqlite_dbapi"

// Option configures a Collector.
type Option func(*Collector)

// WithPrefix sets the metric name prefix.
func WithPrefix(prefix string) Option {
	return func(c *Collector) {
		c.prefix = prefix
	}
}

// WithMetricsSet registers the metrics with set instead of a new,
// globally registered one. The caller is responsible for exposing it.
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Collector) {
		c.set = set
	}
}

type statementMetrics struct {
	total    *metrics.Counter
	errors   *metrics.Counter
	duration *metrics.Histogram
	rows     *metrics.Histogram
}

type transactionMetrics struct {
	total  *metrics.Counter
	errors *metrics.Counter
}

// Collector implements dbapi.MetricsCollector using VictoriaMetrics.
// All metrics are created up front. It is safe for concurrent use.
type Collector struct {
	set    *metrics.Set
	prefix string

	connectTotal    *metrics.Counter
	connectErrors   *metrics.Counter
	connectDuration *metrics.Histogram

	statements   [2]statementMetrics
	transactions map[string]transactionMetrics

	pending atomic.Int64
}

var _ dbapi.MetricsCollector = (*Collector)(nil)

// New creates a collector. Without WithMetricsSet it creates its own
// metrics.Set and registers it globally.
func New(opts ...Option) *Collector {
	c := &Collector{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(c)
	}

	if c.set == nil {
		c.set = metrics.NewSet()
		metrics.RegisterSet(c.set)
	}

	c.initMetrics()
	return c
}

func (c *Collector) initMetrics() {
	p := c.prefix

	c.connectTotal = c.set.NewCounter(p + "_connect_total")
	c.connectErrors = c.set.NewCounter(p + "_connect_errors_total")
	c.connectDuration = c.set.NewHistogram(p + "_connect_duration_seconds")

	for _, kind := range []dbapi.StatementKind{dbapi.StatementExec, dbapi.StatementQuery} {
		k := kind.String()
		c.statements[kind] = statementMetrics{
			total:    c.set.NewCounter(fmt.Sprintf(`%s_statements_total{kind="%s"}`, p, k)),
			errors:   c.set.NewCounter(fmt.Sprintf(`%s_statement_errors_total{kind="%s"}`, p, k)),
			duration: c.set.NewHistogram(fmt.Sprintf(`%s_statement_duration_seconds{kind="%s"}`, p, k)),
			rows:     c.set.NewHistogram(fmt.Sprintf(`%s_statement_rows{kind="%s"}`, p, k)),
		}
	}

	c.transactions = make(map[string]transactionMetrics, 2)
	for _, op := range []string{"commit", "rollback"} {
		c.transactions[op] = transactionMetrics{
			total:  c.set.NewCounter(fmt.Sprintf(`%s_transactions_total{op="%s"}`, p, op)),
			errors: c.set.NewCounter(fmt.Sprintf(`%s_transaction_errors_total{op="%s"}`, p, op)),
		}
	}

	c.set.NewGauge(p+"_pending_tasks", func() float64 {
		return float64(c.pending.Load())
	})
}

// Set returns the metrics set the collector registers with.
func (c *Collector) Set() *metrics.Set {
	return c.set
}

// Handler exposes the metrics in Prometheus format.
func (c *Collector) Handler(w http.ResponseWriter, _ *http.Request) {
	c.set.WritePrometheus(w)
}

// WritePrometheus writes all metrics in Prometheus format to w.
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

func (c *Collector) ObserveConnect(duration time.Duration, err error) {
	c.connectTotal.Inc()
	if err != nil {
		c.connectErrors.Inc()
	}
	c.connectDuration.Update(duration.Seconds())
}

func (c *Collector) ObserveStatement(kind dbapi.StatementKind, duration time.Duration, rows int64, err error) {
	if int(kind) >= len(c.statements) {
		kind = dbapi.StatementExec
	}
	m := c.statements[kind]
	m.total.Inc()
	m.duration.Update(duration.Seconds())
	if err != nil {
		m.errors.Inc()
		return
	}
	if rows >= 0 {
		m.rows.Update(float64(rows))
	}
}

// ObserveTransaction ignores operations other than commit and rollback.
func (c *Collector) ObserveTransaction(op string, err error) {
	m, ok := c.transactions[op]
	if !ok {
		return
	}
	m.total.Inc()
	if err != nil {
		m.errors.Inc()
	}
}

func (c *Collector) SetPendingTasks(n int) {
	c.pending.Store(int64(n))
}
