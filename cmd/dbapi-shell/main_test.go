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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shell.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
address: 10.0.0.1:9001
timeout: 3s
backend: sqlite
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9001", cfg.Address)
	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.False(t, cfg.Metrics)

	_, err = cfg.level()
	assert.NoError(t, err)

	_, err = LoadConfig(writeConfig(t, "timeout: [1"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	cfg = &Config{LogLevel: "chatty"}
	_, err = cfg.level()
	assert.ErrorContains(t, err, "invalid log_level")
}

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var objs []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var obj map[string]any
		require.NoError(t, jsoniter.Unmarshal([]byte(line), &obj), line)
		objs = append(objs, obj)
	}
	return objs
}

func TestRunArguments(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-backend", "sqlite", "-address", ":memory:",
		"CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)",
		"INSERT INTO t (name) VALUES ('a'), ('b')",
		"SELECT id, name FROM t ORDER BY id",
	}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	objs := decodeLines(t, stdout.String())
	require.Len(t, objs, 4)
	assert.EqualValues(t, 0, objs[0]["rowcount"])
	assert.EqualValues(t, 2, objs[1]["rowcount"])
	assert.EqualValues(t, 2, objs[1]["lastrowid"])
	assert.Equal(t, map[string]any{"id": float64(1), "name": "a"}, objs[2])
	assert.Equal(t, map[string]any{"id": float64(2), "name": "b"}, objs[3])
}

func TestRunStdin(t *testing.T) {
	cfg := writeConfig(t, "address: \":memory:\"\nbackend: sqlite\nmetrics: true\n")
	stdin := strings.NewReader(`
-- comments and blank lines are skipped
SELECT 1 AS one

SELECT 'x' AS letter
`)
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-config", cfg}, stdin, &stdout, &stderr))

	objs := decodeLines(t, stdout.String())
	require.Len(t, objs, 2)
	assert.Equal(t, float64(1), objs[0]["one"])
	assert.Equal(t, "x", objs[1]["letter"])

	assert.Contains(t, stderr.String(), `dbapi_shell_statements_total{kind="query"} 2`)
}

func TestRunFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-backend", "sqlite", "-address", ":memory:", "SELECT * FROM missing",
	}, strings.NewReader(""), &stdout, &stderr)
	assert.ErrorContains(t, err, "SELECT * FROM missing")
	assert.Empty(t, stdout.String())

	err = run(context.Background(), []string{"-backend", "postgres"}, strings.NewReader(""), &stdout, &stderr)
	assert.ErrorContains(t, err, "Unknown backend 'postgres'")
}
