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
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dqlite-dbapi/go/dbapi"
	"gopkg.in/yaml.v3"
)

// Config is the shell configuration file.
type Config struct {
	Address  string        `yaml:"address"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
	Backend  string        `yaml:"backend"` // dqlite | sqlite
	LogLevel string        `yaml:"log_level"`
	// Metrics prints the collected metrics to stderr on exit.
	Metrics bool `yaml:"metrics"`
}

// LoadConfig reads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database == "" {
		c.Database = dbapi.DefaultDatabase
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
