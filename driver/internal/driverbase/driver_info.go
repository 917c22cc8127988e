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
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/dqlite-dbapi/go/dbapi"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const UnknownVersion = "(unknown or development build)"

// InfoCode identifies one piece of driver metadata.
type InfoCode uint32

const (
	InfoVendorName InfoCode = iota
	InfoVendorVersion
	InfoDriverName
	InfoDriverVersion
	InfoDriverArrowVersion
	InfoAPILevel
	InfoParamStyle
	InfoThreadSafety
	InfoVendorSQL
)

var infoCodeNames = map[InfoCode]string{
	InfoVendorName:         "VendorName",
	InfoVendorVersion:      "VendorVersion",
	InfoDriverName:         "DriverName",
	InfoDriverVersion:      "DriverVersion",
	InfoDriverArrowVersion: "DriverArrowVersion",
	InfoAPILevel:           "APILevel",
	InfoParamStyle:         "ParamStyle",
	InfoThreadSafety:       "ThreadSafety",
	InfoVendorSQL:          "VendorSQL",
}

func (c InfoCode) String() string {
	if name, ok := infoCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("InfoCode(%d)", uint32(c))
}

type infoValueType uint8

const (
	infoValueString infoValueType = iota
	infoValueInt64
	infoValueBool
)

var infoValueTypeForInfoCode = map[InfoCode]infoValueType{
	InfoVendorName:         infoValueString,
	InfoVendorVersion:      infoValueString,
	InfoDriverName:         infoValueString,
	InfoDriverVersion:      infoValueString,
	InfoDriverArrowVersion: infoValueString,
	InfoAPILevel:           infoValueString,
	InfoParamStyle:         infoValueString,
	InfoThreadSafety:       infoValueInt64,
	InfoVendorSQL:          infoValueBool,
}

const (
	otelInfoSemConv attribute.Key = "dqlite.dbapi.info."

	otelSemConvInfoVendorName         attribute.Key = otelInfoSemConv + "vendor.name"
	otelSemConvInfoVendorVersion      attribute.Key = otelInfoSemConv + "vendor.version"
	otelSemConvInfoVendorSQL          attribute.Key = otelInfoSemConv + "vendor.sql"
	otelSemConvInfoDriverName         attribute.Key = otelInfoSemConv + "driver.name"
	otelSemConvInfoDriverVersion      attribute.Key = otelInfoSemConv + "driver.version"
	otelSemConvInfoDriverArrowVersion attribute.Key = otelInfoSemConv + "driver.arrow.version"
	otelSemConvInfoAPILevel           attribute.Key = otelInfoSemConv + "api.level"
)

var otelAttrForInfoCode = map[InfoCode]attribute.Key{
	InfoVendorName:         otelSemConvInfoVendorName,
	InfoVendorVersion:      otelSemConvInfoVendorVersion,
	InfoVendorSQL:          otelSemConvInfoVendorSQL,
	InfoDriverName:         otelSemConvInfoDriverName,
	InfoDriverVersion:      otelSemConvInfoDriverVersion,
	InfoDriverArrowVersion: otelSemConvInfoDriverArrowVersion,
	InfoAPILevel:           otelSemConvInfoAPILevel,
}

// arrowVersion is the arrow-go module version linked into the binary.
var arrowVersion = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return UnknownVersion
	}
	for _, dep := range info.Deps {
		if strings.HasPrefix(dep.Path, "github.com/apache/arrow-go/") {
			return dep.Version
		}
	}
	return UnknownVersion
})

// DefaultDriverInfo returns the metadata every driver starts with.
func DefaultDriverInfo(name string) *DriverInfo {
	return &DriverInfo{
		name: name,
		info: map[InfoCode]any{
			InfoVendorName:         name,
			InfoVendorVersion:      dbapi.SQLiteVersion,
			InfoVendorSQL:          true,
			InfoDriverName:         fmt.Sprintf("%s DB-API Driver - Go", name),
			InfoDriverVersion:      dbapi.Version,
			InfoDriverArrowVersion: arrowVersion(),
			InfoAPILevel:           dbapi.APILevel,
			InfoParamStyle:         dbapi.ParamStyle,
			InfoThreadSafety:       int64(dbapi.ThreadSafety),
		},
	}
}

// DriverInfo is the metadata a driver reports about itself. It is not
// safe for concurrent mutation.
type DriverInfo struct {
	name string
	info map[InfoCode]any
}

func (di *DriverInfo) GetName() string { return di.name }

// InfoSupportedCodes returns every registered code in ascending order.
func (di *DriverInfo) InfoSupportedCodes() []InfoCode {
	codes := make([]InfoCode, 0, len(di.info))
	for code := range di.info {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// RegisterInfoCode sets the value for code. Values for the well-known
// codes are type checked; other codes accept anything.
func (di *DriverInfo) RegisterInfoCode(code InfoCode, value any) error {
	valueType, isStandard := infoValueTypeForInfoCode[code]
	if !isStandard {
		di.info[code] = value
		return nil
	}

	var ok bool
	var expected any
	switch valueType {
	case infoValueString:
		expected = ""
		_, ok = value.(string)
	case infoValueInt64:
		expected = int64(0)
		_, ok = value.(int64)
	case infoValueBool:
		expected = false
		_, ok = value.(bool)
	}
	if !ok {
		return fmt.Errorf("%s: expected info_value %v to be of type %T but found %T", code, value, expected, value)
	}
	di.info[code] = value
	return nil
}

func (di *DriverInfo) GetInfoForInfoCode(code InfoCode) (any, bool) {
	val, ok := di.info[code]
	return val, ok
}

// GetDriverVersion returns the registered driver version, or "unknown".
func (di *DriverInfo) GetDriverVersion() string {
	if v, ok := di.info[InfoDriverVersion].(string); ok {
		return v
	}
	return "unknown"
}

// Attributes returns the metadata that has a span attribute mapping.
func (di *DriverInfo) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	for _, code := range di.InfoSupportedCodes() {
		key, ok := otelAttrForInfoCode[code]
		if !ok {
			continue
		}
		switch v := di.info[code].(type) {
		case string:
			attrs = append(attrs, key.String(v))
		case bool:
			attrs = append(attrs, key.Bool(v))
		case int64:
			attrs = append(attrs, key.Int64(v))
		}
	}
	return attrs
}

func SetOTelDriverInfoAttributes(driverInfo *DriverInfo, span trace.Span) {
	span.SetAttributes(driverInfo.Attributes()...)
}
