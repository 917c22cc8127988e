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

// dbapi-shell runs SQL against a dqlite cluster and prints the results
// as JSON lines.
//
// Statements are taken from the command line arguments, or read from
// stdin one per line when there are none:
//
//	dbapi-shell -address 127.0.0.1:9001 "SELECT * FROM users"
//	echo "SELECT 1" | dbapi-shell -config shell.yaml
//
// Query statements print one object per row keyed by column name.
// Other statements print their row count and last row id.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/dqlite-dbapi/go/dbapi/contrib/metrics/vm"
	"github.com/dqlite-dbapi/go/dbapi/driver/dqlite"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "dbapi-shell:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dbapi-shell", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "path to a YAML config file")
		address    = fs.String("address", "", "cluster node address, overrides the config")
		database   = fs.String("database", "", "database name, overrides the config")
		backend    = fs.String("backend", "", "backend name (dqlite or sqlite), overrides the config")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := &Config{}
	if *configPath != "" {
		var err error
		if cfg, err = LoadConfig(*configPath); err != nil {
			return err
		}
	} else {
		cfg.setDefaults()
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *database != "" {
		cfg.Database = *database
	}
	if *backend != "" {
		cfg.Backend = *backend
	}

	lvl, err := cfg.level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl}))

	opts := []dqlite.Option{
		dqlite.WithDatabase(cfg.Database),
		dqlite.WithTimeout(cfg.Timeout),
		dqlite.WithLogger(logger),
	}
	if cfg.Backend != "" {
		opts = append(opts, dqlite.WithOptions(map[string]string{dbapi.OptionKeyBackend: cfg.Backend}))
	}
	var collector *vm.Collector
	if cfg.Metrics {
		collector = vm.New(vm.WithPrefix("dbapi_shell"))
		opts = append(opts, dqlite.WithMetrics(collector))
	}

	conn, err := dqlite.Connect(cfg.Address, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if collector != nil {
			collector.WritePrometheus(stderr)
		}
	}()
	defer conn.Close()

	cur, err := conn.Cursor()
	if err != nil {
		return err
	}
	defer cur.Close()

	statements := fs.Args()
	var source iter.Seq[string] = func(yield func(string) bool) {
		for _, s := range statements {
			if !yield(s) {
				return
			}
		}
	}
	if len(statements) == 0 {
		source = lines(stdin)
	}

	enc := json.NewEncoder(stdout)
	for stmt := range source {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := execute(ctx, cur, stmt, enc); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return conn.Commit(ctx)
}

// lines yields the non-blank lines of r.
func lines(r io.Reader) iter.Seq[string] {
	return func(yield func(string) bool) {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

type execResult struct {
	RowCount  int64  `json:"rowcount"`
	LastRowID *int64 `json:"lastrowid,omitempty"`
}

func execute(ctx context.Context, cur dbapi.Cursor, stmt string, enc *jsoniter.Encoder) error {
	if err := cur.Execute(ctx, stmt); err != nil {
		return err
	}

	desc := cur.Description()
	if desc == nil {
		res := execResult{RowCount: cur.RowCount()}
		if id, ok := cur.LastRowID(); ok {
			res.LastRowID = &id
		}
		return enc.Encode(res)
	}

	for row, err := range cur.Rows(ctx) {
		if err != nil {
			return err
		}
		obj := make(map[string]any, len(desc))
		for i, col := range desc {
			obj[col.Name] = row[i]
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return nil
}
