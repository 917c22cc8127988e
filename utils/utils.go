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

// Package utils converts buffered result sets to Arrow.
package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dqlite-dbapi/go/dbapi"
)

// DeclTypeMetadataKey is the field metadata key holding the declared
// column type.
const DeclTypeMetadataKey = "dbapi.decltype"

var floatTypes = map[string]struct{}{
	"REAL": {}, "FLOAT": {}, "DOUBLE": {}, "NUMERIC": {},
}

// ArrowTypeFor returns the Arrow type used for a declared column type,
// or nil when the declared type does not decide it.
func ArrowTypeFor(declType string) arrow.DataType {
	base := strings.ToUpper(strings.TrimSpace(declType))
	// VARCHAR(20), NUMERIC(10, 2)
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	if _, ok := floatTypes[base]; ok {
		return arrow.PrimitiveTypes.Float64
	}
	switch {
	case dbapi.TypeNumber.Matches(base), dbapi.TypeRowID.Matches(base):
		return arrow.PrimitiveTypes.Int64
	case dbapi.TypeString.Matches(base):
		return arrow.BinaryTypes.String
	case dbapi.TypeBinary.Matches(base):
		return arrow.BinaryTypes.Binary
	case dbapi.TypeDatetime.Matches(base):
		// exported as text, the way SQLite stores it
		return arrow.BinaryTypes.String
	}
	return nil
}

func arrowTypeOfValue(v any) arrow.DataType {
	switch v.(type) {
	case int64, int, int32:
		return arrow.PrimitiveTypes.Int64
	case float64, float32:
		return arrow.PrimitiveTypes.Float64
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case []byte:
		return arrow.BinaryTypes.Binary
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us
	}
	return arrow.BinaryTypes.String
}

func compatible(dt arrow.DataType, v any) bool {
	switch dt.ID() {
	case arrow.INT64:
		switch v.(type) {
		case int64, int, int32, bool:
			return true
		}
	case arrow.FLOAT64:
		switch v.(type) {
		case float64, float32, int64, int, int32:
			return true
		}
	case arrow.BOOL:
		_, ok := v.(bool)
		return ok
	case arrow.TIMESTAMP:
		_, ok := v.(time.Time)
		return ok
	case arrow.BINARY:
		switch v.(type) {
		case []byte, string:
			return true
		}
	case arrow.STRING:
		return true
	}
	return false
}

// columnType picks the Arrow type of column col. SQLite columns are
// dynamically typed, so a column whose values disagree with the chosen
// type falls back to utf8.
func columnType(declType string, rows []dbapi.Row, col int) arrow.DataType {
	dt := ArrowTypeFor(declType)
	if dt == nil {
		for _, row := range rows {
			if row[col] != nil {
				dt = arrowTypeOfValue(row[col])
				break
			}
		}
	}
	if dt == nil {
		return arrow.Null
	}

	for _, row := range rows {
		if v := row[col]; v != nil && !compatible(dt, v) {
			return arrow.BinaryTypes.String
		}
	}
	return dt
}

// FieldFor returns the schema field for a declared column.
func FieldFor(name, declType string, nullable bool) arrow.Field {
	dt := ArrowTypeFor(declType)
	if dt == nil {
		dt = arrow.BinaryTypes.String
	}
	return arrow.Field{
		Name:     name,
		Type:     dt,
		Nullable: nullable,
		Metadata: arrow.NewMetadata([]string{DeclTypeMetadataKey}, []string{declType}),
	}
}

// RecordFromRows builds a single record batch out of rows described by
// cols. The caller must release it.
func RecordFromRows(mem memory.Allocator, cols []dbapi.Column, rows []dbapi.Row) (arrow.RecordBatch, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	fields := make([]arrow.Field, len(cols))
	arrs := make([]arrow.Array, len(cols))
	defer func() {
		for _, a := range arrs {
			if a != nil {
				a.Release()
			}
		}
	}()

	for i, col := range cols {
		dt := columnType(col.TypeCode, rows, i)
		fields[i] = arrow.Field{
			Name:     col.Name,
			Type:     dt,
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{DeclTypeMetadataKey}, []string{col.TypeCode}),
		}

		arr, err := buildColumn(mem, dt, rows, i)
		if err != nil {
			return nil, err
		}
		arrs[i] = arr
	}

	return array.NewRecordBatch(arrow.NewSchema(fields, nil), arrs, int64(len(rows))), nil
}

func buildColumn(mem memory.Allocator, dt arrow.DataType, rows []dbapi.Row, col int) (arrow.Array, error) {
	bldr := array.NewBuilder(mem, dt)
	defer bldr.Release()
	bldr.Reserve(len(rows))

	for _, row := range rows {
		v := row[col]
		if v == nil {
			bldr.AppendNull()
			continue
		}

		switch b := bldr.(type) {
		case *array.Int64Builder:
			b.Append(toInt64(v))
		case *array.Float64Builder:
			b.Append(toFloat64(v))
		case *array.BooleanBuilder:
			b.Append(v.(bool))
		case *array.TimestampBuilder:
			ts, err := arrow.TimestampFromTime(v.(time.Time), arrow.Microsecond)
			if err != nil {
				return nil, dbapi.Error{Msg: err.Error(), Code: dbapi.StatusInvalidData, Cause: err}
			}
			b.Append(ts)
		case *array.BinaryBuilder:
			switch v := v.(type) {
			case []byte:
				b.Append(v)
			case string:
				b.AppendString(v)
			}
		case *array.StringBuilder:
			b.Append(toString(v))
		default:
			return nil, dbapi.Error{
				Msg:  "unsupported column type " + dt.String(),
				Code: dbapi.StatusNotImplemented,
			}
		}
	}
	return bldr.NewArray(), nil
}

func toInt64(v any) int64 {
	switch v := v.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func toFloat64(v any) float64 {
	switch v := v.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	}
	return 0
}

func toString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// RemoveSchemaMetadata returns a copy of schema without schema or field
// metadata.
func RemoveSchemaMetadata(schema *arrow.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(schema.Fields()))
	for i, field := range schema.Fields() {
		fields[i] = arrow.Field{
			Name:     field.Name,
			Type:     field.Type,
			Nullable: field.Nullable,
		}
	}
	return arrow.NewSchema(fields, nil)
}
