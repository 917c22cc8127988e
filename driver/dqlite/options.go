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
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/backend"
	dqlitebackend "github.com/dqlite-dbapi/go/dbapi/backend/dqlite"
	sqlitebackend "github.com/dqlite-dbapi/go/dbapi/backend/sqlite"
	"github.com/dqlite-dbapi/go/dbapi/driver/internal"
	"go.opentelemetry.io/otel/trace"
)

const (
	BackendDqlite = "dqlite"
	BackendSqlite = sqlitebackend.Name
)

var backends = map[string]backend.Factory{
	BackendDqlite: dqlitebackend.New,
	BackendSqlite: sqlitebackend.New,
}

// defaultClassifier is shared by every connection that does not bring
// its own.
var defaultClassifier = internal.NewClassifier(internal.DefaultClassifierSize)

type config struct {
	address    string
	database   string
	timeout    time.Duration
	logger     *slog.Logger
	factory    backend.Factory
	backend    string
	metrics    dbapi.MetricsCollector
	provider   trace.TracerProvider
	classifier *internal.Classifier
	alloc      memory.Allocator

	err error
}

func newConfig(address string, opts []Option) (config, error) {
	cfg := config{
		address:    address,
		database:   dbapi.DefaultDatabase,
		timeout:    backend.DefaultTimeout,
		factory:    dqlitebackend.New,
		backend:    BackendDqlite,
		metrics:    dbapi.NopMetrics{},
		classifier: defaultClassifier,
		alloc:      memory.DefaultAllocator,
	}
	for _, opt := range opts {
		opt(&cfg)
		if cfg.err != nil {
			return cfg, cfg.err
		}
	}
	return cfg, nil
}

func (c config) backendConfig() backend.Config {
	return backend.Config{
		Address:  c.address,
		Database: c.database,
		Timeout:  c.timeout,
		Logger:   c.logger,
	}
}

// Option configures a connection.
type Option func(*config)

// WithDatabase selects the database to open. It defaults to "default".
func WithDatabase(name string) Option {
	return func(c *config) {
		if name != "" {
			c.database = name
		}
	}
}

// WithTimeout bounds connecting to the cluster. It defaults to ten
// seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithBackend replaces the backend client factory.
func WithBackend(name string, factory backend.Factory) Option {
	return func(c *config) {
		c.backend = name
		c.factory = factory
	}
}

func WithMetrics(m dbapi.MetricsCollector) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracerProvider sends spans to provider instead of the exporter
// selected by OTEL_TRACES_EXPORTER.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) { c.provider = provider }
}

// WithClassifierSize gives the connection a private statement
// classification cache holding up to size statements.
func WithClassifierSize(size int) Option {
	return func(c *config) { c.classifier = internal.NewClassifier(size) }
}

// WithAllocator sets the allocator FetchArrow builds record batches
// with.
func WithAllocator(alloc memory.Allocator) Option {
	return func(c *config) {
		if alloc != nil {
			c.alloc = alloc
		}
	}
}

// WithOptions applies string options keyed by dbapi.OptionKeyAddress,
// OptionKeyDatabase, OptionKeyTimeout and OptionKeyBackend. Timeouts
// are Go durations ("5s") or a number of seconds ("2.5"). Backends are
// "dqlite" or "sqlite".
func WithOptions(options map[string]string) Option {
	return func(c *config) {
		for key, val := range options {
			if c.err = c.setOption(key, val); c.err != nil {
				return
			}
		}
	}
}

func (c *config) setOption(key, val string) error {
	switch key {
	case dbapi.OptionKeyAddress:
		c.address = val
	case dbapi.OptionKeyDatabase:
		c.database = val
	case dbapi.OptionKeyTimeout:
		d, err := ParseTimeout(val)
		if err != nil {
			return err
		}
		c.timeout = d
	case dbapi.OptionKeyBackend:
		name := strings.ToLower(strings.TrimSpace(val))
		factory, ok := backends[name]
		if !ok {
			return dbapi.Error{
				Msg:  fmt.Sprintf("[dqlite] Unknown backend '%s'", val),
				Code: dbapi.StatusInvalidArgument,
			}
		}
		c.backend = name
		c.factory = factory
	default:
		return dbapi.Error{
			Msg:  fmt.Sprintf("[dqlite] Unknown connection option '%s'", key),
			Code: dbapi.StatusNotImplemented,
		}
	}
	return nil
}

// ParseTimeout reads a timeout written either as a Go duration or as a
// number of seconds.
func ParseTimeout(val string) (time.Duration, error) {
	val = strings.TrimSpace(val)
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d, nil
	}
	secs, err := strconv.ParseFloat(val, 64)
	if err != nil || secs <= 0 {
		return 0, dbapi.Error{
			Msg:  fmt.Sprintf("[dqlite] Invalid timeout '%s'", val),
			Code: dbapi.StatusInvalidArgument,
		}
	}
	return time.Duration(secs * float64(time.Second)), nil
}
