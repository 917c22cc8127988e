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

package backend

import (
	"strings"

	"github.com/dqlite-dbapi/go/dbapi"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrorDetailKey names the detail attached to errors reported by the
// backend itself.
const ErrorDetailKey = "dqlite.backend_error"

// SQLite primary result codes, as reported by both dqlite and embedded
// SQLite.
const (
	codeError      = 1
	codeInternal   = 2
	codePerm       = 3
	codeAbort      = 4
	codeBusy       = 5
	codeLocked     = 6
	codeNoMem      = 7
	codeReadOnly   = 8
	codeInterrupt  = 9
	codeIOErr      = 10
	codeCorrupt    = 11
	codeNotFound   = 12
	codeFull       = 13
	codeCantOpen   = 14
	codeProtocol   = 15
	codeSchema     = 17
	codeTooBig     = 18
	codeConstraint = 19
	codeMismatch   = 20
	codeMisuse     = 21
	codeAuth       = 23
	codeFormat     = 24
	codeRange      = 25
	codeNotADB     = 26
)

// StatusForCode maps a SQLite result code, primary or extended, to a
// Status.
func StatusForCode(code int) dbapi.Status {
	switch code & 0xff {
	case codeConstraint:
		return dbapi.StatusIntegrity
	case codeMismatch, codeTooBig, codeRange:
		return dbapi.StatusInvalidData
	case codeError, codeMisuse:
		return dbapi.StatusInvalidArgument
	case codeBusy, codeLocked, codeIOErr, codeCantOpen, codeFull, codeProtocol,
		codeSchema, codeAbort:
		return dbapi.StatusIO
	case codeNoMem, codeInternal, codeCorrupt, codeFormat, codeNotADB:
		return dbapi.StatusInternal
	case codePerm, codeAuth, codeReadOnly:
		return dbapi.StatusUnauthorized
	case codeInterrupt:
		return dbapi.StatusCancelled
	case codeNotFound:
		return dbapi.StatusNotFound
	}
	return dbapi.StatusUnknown
}

// NewError builds the Error reported for a failure the backend
// attributed to a SQLite result code.
func NewError(code int, message string, cause error) dbapi.Error {
	e := dbapi.Error{
		Msg:        message,
		Code:       StatusForCode(code),
		VendorCode: int32(code),
		Cause:      cause,
	}
	if detail, err := structpb.NewStruct(map[string]any{
		"code":    code,
		"message": message,
	}); err == nil {
		e.Details = append(e.Details, &dbapi.ProtobufErrorDetail{Name: ErrorDetailKey, Message: detail})
	}
	return e
}

// IsNoTransaction reports whether message is SQLite's complaint about a
// COMMIT or ROLLBACK outside a transaction.
func IsNoTransaction(message string) bool {
	return strings.Contains(message, "no transaction is active")
}
