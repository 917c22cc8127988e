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

package internal

import (
	"regexp"
	"strings"

	"github.com/bluele/gcache"
	"github.com/dqlite-dbapi/go/dbapi"
)

// PatternToRegexp converts a SQL LIKE pattern (% and _ wildcards) into a
// case-insensitive anchored regexp. A nil pattern matches everything and
// yields a nil regexp.
func PatternToRegexp(pattern *string) (*regexp.Regexp, error) {
	if pattern == nil {
		return nil, nil
	}

	var builder strings.Builder
	builder.WriteString("(?i)^")
	for _, c := range *pattern {
		switch c {
		case '_':
			builder.WriteString(".")
		case '%':
			builder.WriteString(".*")
		default:
			builder.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	builder.WriteString("$")
	return regexp.Compile(builder.String())
}

var queryPrefixes = []string{"SELECT", "PRAGMA", "EXPLAIN"}

// Classify decides whether operation returns rows. Read-style statements
// and statements with a RETURNING clause take the query path; everything
// else takes the exec path.
func Classify(operation string) dbapi.StatementKind {
	// collapse whitespace runs so a RETURNING on its own line still counts
	normalized := strings.ToUpper(strings.Join(strings.Fields(operation), " "))

	for _, prefix := range queryPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return dbapi.StatementQuery
		}
	}
	if strings.Contains(normalized, " RETURNING ") || strings.HasSuffix(normalized, " RETURNING") {
		return dbapi.StatementQuery
	}
	return dbapi.StatementExec
}

const (
	DefaultClassifierSize = 512
	maxCachedStatementLen = 4096
)

// Classifier memoizes Classify in a bounded LRU cache. It is safe for
// concurrent use.
type Classifier struct {
	cache gcache.Cache
}

func NewClassifier(size int) *Classifier {
	if size <= 0 {
		size = DefaultClassifierSize
	}
	return &Classifier{
		cache: gcache.New(size).
			LRU().
			LoaderFunc(func(key any) (any, error) {
				return Classify(key.(string)), nil
			}).
			Build(),
	}
}

func (c *Classifier) Classify(operation string) dbapi.StatementKind {
	if len(operation) > maxCachedStatementLen {
		return Classify(operation)
	}
	kind, err := c.cache.Get(operation)
	if err != nil {
		return Classify(operation)
	}
	return kind.(dbapi.StatementKind)
}

// Len returns the number of cached statements.
func (c *Classifier) Len() int {
	return c.cache.Len(false)
}
