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

package driverbase

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultTraceFileExt  = ".jsonl"
	defaultLogNamePrefix = driverNamespace
	defaultFileSizeMaxKb = int64(1024)
	defaultFileCountMax  = 100
)

type rotatingFileWriterConfig struct {
	folderPath    string
	logNamePrefix string
	fileSizeMaxKb int64
	fileCountMax  int
}

type RotatingFileWriterOption func(*rotatingFileWriterConfig)

// WithTracingFolderPath sets the folder trace files are written to. It
// defaults to .dqlite-dbapi/traces under the user config directory.
func WithTracingFolderPath(path string) RotatingFileWriterOption {
	return func(cfg *rotatingFileWriterConfig) { cfg.folderPath = path }
}

func WithLogNamePrefix(prefix string) RotatingFileWriterOption {
	return func(cfg *rotatingFileWriterConfig) { cfg.logNamePrefix = prefix }
}

// WithFileSizeMaxKb sets the size at which a file is rotated. Values
// below 1 select the default.
func WithFileSizeMaxKb(kb int64) RotatingFileWriterOption {
	return func(cfg *rotatingFileWriterConfig) { cfg.fileSizeMaxKb = kb }
}

// WithFileCountMax sets how many files are kept. Values below 1 select
// the default.
func WithFileCountMax(n int) RotatingFileWriterOption {
	return func(cfg *rotatingFileWriterConfig) { cfg.fileCountMax = n }
}

// RotatingFileWriter writes to "<prefix>-<UTC timestamp>.jsonl" files in
// a folder, starting a new file whenever the current one reaches the
// size limit and removing the oldest files beyond the count limit.
type RotatingFileWriter struct {
	mu      sync.Mutex
	cfg     rotatingFileWriterConfig
	current *os.File
}

func NewRotatingFileWriter(options ...RotatingFileWriterOption) (*RotatingFileWriter, error) {
	cfg := rotatingFileWriterConfig{}
	for _, opt := range options {
		opt(&cfg)
	}
	if strings.TrimSpace(cfg.folderPath) == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.folderPath = filepath.Join(dir, ".dqlite-dbapi", "traces")
	}
	if strings.TrimSpace(cfg.logNamePrefix) == "" {
		cfg.logNamePrefix = defaultLogNamePrefix
	}
	if cfg.fileSizeMaxKb < 1 {
		cfg.fileSizeMaxKb = defaultFileSizeMaxKb
	}
	if cfg.fileCountMax < 1 {
		cfg.fileCountMax = defaultFileCountMax
	}

	if err := os.MkdirAll(cfg.folderPath, 0o755); err != nil {
		return nil, err
	}
	// fail early if the folder is not writable
	probe, err := os.CreateTemp(cfg.folderPath, cfg.logNamePrefix)
	if err != nil {
		return nil, err
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	return &RotatingFileWriter{cfg: cfg}, nil
}

func (w *RotatingFileWriter) FolderPath() string    { return w.cfg.folderPath }
func (w *RotatingFileWriter) LogNamePrefix() string { return w.cfg.logNamePrefix }
func (w *RotatingFileWriter) FileSizeMaxKb() int64  { return w.cfg.fileSizeMaxKb }
func (w *RotatingFileWriter) FileCountMax() int     { return w.cfg.fileCountMax }

func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.maybeRotate(); err != nil {
		return 0, err
	}
	if err := w.ensureCurrent(); err != nil {
		return 0, err
	}
	return w.current.Write(p)
}

// Stat describes the file currently being written.
func (w *RotatingFileWriter) Stat() (fs.FileInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil, errors.New("no trace file is open")
	}
	return w.current.Stat()
}

func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeCurrent()
}

// Clear closes the current file and removes every trace file with this
// writer's prefix.
func (w *RotatingFileWriter) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.closeCurrent(); err != nil {
		return err
	}
	files, err := w.files()
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

func (w *RotatingFileWriter) closeCurrent() error {
	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	w.current = nil
	return err
}

func (w *RotatingFileWriter) maxBytes() int64 { return w.cfg.fileSizeMaxKb * 1024 }

func (w *RotatingFileWriter) maybeRotate() error {
	if w.current == nil {
		return nil
	}
	info, err := w.current.Stat()
	if err != nil {
		return err
	}
	if info.Size() < w.maxBytes() {
		return nil
	}
	if err := w.closeCurrent(); err != nil {
		return err
	}
	return w.removeOldFiles()
}

func (w *RotatingFileWriter) ensureCurrent() error {
	const (
		permissions = 0o666
		createFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
		appendFlags = os.O_APPEND | os.O_WRONLY
	)
	if w.current != nil {
		return nil
	}

	// reuse the newest file if it still has room
	if files, err := w.files(); err == nil && len(files) > 0 {
		last := files[len(files)-1]
		if info, err := os.Stat(last); err == nil && info.Size() < w.maxBytes() {
			if f, err := os.OpenFile(last, appendFlags, permissions); err == nil {
				w.current = f
				return nil
			}
		}
	}

	name := w.cfg.logNamePrefix + "-" + time.Now().UTC().Format("2006-01-02-15-04-05.000000000") + defaultTraceFileExt
	f, err := os.OpenFile(filepath.Join(w.cfg.folderPath, name), createFlags, permissions)
	if err != nil {
		return err
	}
	w.current = f
	return nil
}

// removeOldFiles keeps at most fileCountMax files. Names sort by
// creation time, so the oldest come first.
func (w *RotatingFileWriter) removeOldFiles() error {
	files, err := w.files()
	if err != nil {
		return err
	}
	excess := len(files) - w.cfg.fileCountMax
	for i := 0; i < excess; i++ {
		if err := os.Remove(files[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *RotatingFileWriter) files() ([]string, error) {
	return filepath.Glob(filepath.Join(w.cfg.folderPath, w.cfg.logNamePrefix+"-*"+defaultTraceFileExt))
}
