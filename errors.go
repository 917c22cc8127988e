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

package dbapi

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type Status -linecomment

// ErrorDetail is additional driver-specific error metadata.
//
// This allows drivers to return structured error information (for
// example, the raw backend error code) that can be optionally parsed by
// clients, beyond the standard Error fields, without having to encode it in
// the error message.
type ErrorDetail interface {
	// Get an identifier for the detail.
	Key() string
	// Serialize the detail value to a byte array.
	Serialize() ([]byte, error)
}

// ProtobufErrorDetail is an ErrorDetail backed by a Protobuf message.
type ProtobufErrorDetail struct {
	Name    string
	Message proto.Message
}

func (d *ProtobufErrorDetail) Key() string {
	return d.Name
}

// Serialize serializes the Protobuf message (wrapped in Any).
func (d *ProtobufErrorDetail) Serialize() ([]byte, error) {
	any, err := anypb.New(d.Message)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(any)
}

// TextErrorDetail is an ErrorDetail backed by a human-readable string.
type TextErrorDetail struct {
	Name   string
	Detail string
}

func (d *TextErrorDetail) Key() string {
	return d.Name
}

func (d *TextErrorDetail) Serialize() ([]byte, error) {
	return []byte(d.Detail), nil
}

// Error is the detailed error for an operation.
//
// Every error returned by this module is an Error value. Use errors.Is
// with one of the Class constants to test for a category of failure:
//
//	if errors.Is(err, dbapi.ClassInterface) { ... }
type Error struct {
	// Msg is a string representing a human readable error message
	Msg string
	// Code is the status representing this error
	Code Status
	// VendorCode is the backend result code, if applicable
	VendorCode int32
	// SqlState is a SQLSTATE error code, if provided. If not set, it will
	// be "\0\0\0\0\0"
	SqlState [5]byte
	// Details is an array of additional driver-specific error details.
	Details []ErrorDetail
	// Cause is the underlying error, if any.
	Cause error
}

func (e Error) Error() string {
	if e.SqlState[0] != 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Msg, string(e.SqlState[:]))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e Error) Unwrap() error { return e.Cause }

// Class returns the category this error belongs to.
func (e Error) Class() Class { return ClassOf(e.Code) }

// Is reports whether target is a Class this error belongs to, either
// directly or through one of its ancestors.
func (e Error) Is(target error) bool {
	c, ok := target.(Class)
	if !ok {
		return false
	}
	return e.Class().IsA(c)
}

// Status represents an error code for operations that may fail
type Status uint8

const (
	// No Error
	StatusOK Status = iota // OK
	// An unknown error occurred.
	//
	// May indicate a driver-side or database-side error
	StatusUnknown // Unknown
	// The operation is not implemented or supported.
	StatusNotImplemented // Not Implemented
	// A requested resource was not found.
	StatusNotFound // Not Found
	// A requested resource already exists
	StatusAlreadyExists // Already Exists
	// The arguments are invalid, likely a programming error.
	//
	// For instance, the SQL may not parse or may name a missing column.
	StatusInvalidArgument // Invalid Argument
	// The preconditions for the operation are not met, likely a
	// programming error.
	//
	// For instance, the connection or cursor may already be closed.
	StatusInvalidState // Invalid State
	// Invalid data was processed (not a programming error)
	//
	// May indicate a database-side error only.
	StatusInvalidData // Invalid Data
	// The database's integrity was affected.
	//
	// For instance, a foreign key check may have failed, or a uniqueness
	// constraint may have been violated.
	StatusIntegrity // Integrity Issue
	// An error internal to the driver or database occurred.
	StatusInternal // Internal
	// An I/O error occurred.
	//
	// For instance the cluster leader may be unreachable.
	StatusIO // I/O
	// The operation was cancelled, not due to a timeout.
	StatusCancelled // Cancelled
	// The operation was cancelled due to a timeout.
	StatusTimeout // Timeout
	// Authentication failed.
	StatusUnauthenticated // Unauthenticated
	// The client is not authorized to perform the given operation.
	StatusUnauthorized // Unauthorized
)

// Class is the category of an Error. Classes form a small tree rooted at
// ClassError (and the standalone ClassWarning), so a check against a
// parent class matches all of its children.
type Class uint8

const (
	ClassWarning Class = iota + 1
	ClassError
	ClassInterface
	ClassDatabase
	ClassData
	ClassOperational
	ClassIntegrity
	ClassInternal
	ClassProgramming
	ClassNotSupported
)

var classNames = [...]string{
	ClassWarning:      "Warning",
	ClassError:        "Error",
	ClassInterface:    "InterfaceError",
	ClassDatabase:     "DatabaseError",
	ClassData:         "DataError",
	ClassOperational:  "OperationalError",
	ClassIntegrity:    "IntegrityError",
	ClassInternal:     "InternalError",
	ClassProgramming:  "ProgrammingError",
	ClassNotSupported: "NotSupportedError",
}

func (c Class) String() string {
	if int(c) < len(classNames) && classNames[c] != "" {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// Error lets a Class be used directly as an errors.Is target.
func (c Class) Error() string { return c.String() }

// Parent returns the class c derives from, or zero for the roots.
func (c Class) Parent() Class {
	switch c {
	case ClassInterface, ClassDatabase:
		return ClassError
	case ClassData, ClassOperational, ClassIntegrity, ClassInternal,
		ClassProgramming, ClassNotSupported:
		return ClassDatabase
	}
	return 0
}

// IsA reports whether c is target or descends from it.
func (c Class) IsA(target Class) bool {
	for ; c != 0; c = c.Parent() {
		if c == target {
			return true
		}
	}
	return false
}

// ClassOf maps a Status to the error category it is reported as.
func ClassOf(code Status) Class {
	switch code {
	case StatusOK:
		return ClassError
	case StatusInvalidState:
		return ClassInterface
	case StatusInvalidArgument:
		return ClassProgramming
	case StatusInvalidData:
		return ClassData
	case StatusIntegrity:
		return ClassIntegrity
	case StatusInternal:
		return ClassInternal
	case StatusNotImplemented:
		return ClassNotSupported
	case StatusIO, StatusTimeout, StatusCancelled, StatusNotFound,
		StatusAlreadyExists, StatusUnauthenticated, StatusUnauthorized:
		return ClassOperational
	}
	return ClassDatabase
}
