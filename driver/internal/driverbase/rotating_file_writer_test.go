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

package driverbase_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dqlite-dbapi/go/dbapi/driver/internal/driverbase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileWriter(t *testing.T) {
	dir := t.TempDir()
	fw, err := driverbase.NewRotatingFileWriter(
		driverbase.WithTracingFolderPath(dir),
		driverbase.WithFileSizeMaxKb(1),
		driverbase.WithFileCountMax(3),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, fw.Clear())
	}()

	const value = "my string\n"
	for range 1000 {
		n, err := fw.Write([]byte(value))
		require.NoError(t, err)
		require.Equal(t, len(value), n)
	}
	require.NoError(t, fw.Close())

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	require.NoError(t, err)
	// 10000 bytes over 1KiB files rotates several times; the writer
	// keeps the limit plus the file that was just opened
	assert.NotEmpty(t, files)
	assert.LessOrEqual(t, len(files), 4)
	for _, f := range files {
		assert.True(t, strings.HasPrefix(filepath.Base(f), "dqlite.dbapi-"), f)
	}
}

func TestRotatingFileWriterDefaults(t *testing.T) {
	fw, err := driverbase.NewRotatingFileWriter(
		driverbase.WithTracingFolderPath(t.TempDir()),
		driverbase.WithFileSizeMaxKb(0),
		driverbase.WithFileCountMax(-1),
	)
	require.NoError(t, err)
	assert.Equal(t, "dqlite.dbapi", fw.LogNamePrefix())
	assert.EqualValues(t, 1024, fw.FileSizeMaxKb())
	assert.Equal(t, 100, fw.FileCountMax())

	_, err = fw.Stat()
	assert.Error(t, err)
	assert.NoError(t, fw.Close())
}

func TestRotatingFileWriterReusesFile(t *testing.T) {
	dir := t.TempDir()
	const value = "my string\n"

	fw1, err := driverbase.NewRotatingFileWriter(driverbase.WithTracingFolderPath(dir))
	require.NoError(t, err)
	for range 10 {
		_, err := fw1.Write([]byte(value))
		require.NoError(t, err)
	}
	info1, err := fw1.Stat()
	require.NoError(t, err)
	require.NoError(t, fw1.Close())

	fw2, err := driverbase.NewRotatingFileWriter(driverbase.WithTracingFolderPath(dir))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, fw2.Clear())
	}()
	for range 10 {
		_, err := fw2.Write([]byte(value))
		require.NoError(t, err)
	}
	info2, err := fw2.Stat()
	require.NoError(t, err)
	require.Equal(t, info1.Name(), info2.Name())
	require.EqualValues(t, 20*len(value), info2.Size())
	require.NoError(t, fw2.Close())

	data, err := os.ReadFile(filepath.Join(dir, info2.Name()))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat(value, 20), string(data))
}
