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

// Package driverbase holds the plumbing shared by driver
// implementations: error construction, logging, tracing and driver
// metadata.
package driverbase

import (
	"errors"
	"fmt"

	"github.com/dqlite-dbapi/go/dbapi"
)

const (
	MessageConnectionClosed  = "Connection is closed"
	MessageConnectionNotOpen = "Connection is not open"
	MessageCursorClosed      = "Cursor is closed"
	MessageFailedToConnect   = "Failed to connect"
)

// ErrorHelper builds errors whose message names the driver they came
// from.
type ErrorHelper struct {
	DriverName string
}

func (helper *ErrorHelper) Errorf(code dbapi.Status, message string, format ...any) error {
	return dbapi.Error{
		Code: code,
		Msg:  fmt.Sprintf("[%s] %s", helper.DriverName, fmt.Sprintf(message, format...)),
	}
}

// Wrap returns err unchanged if it already is a dbapi.Error. Anything
// else is reported with the given status and err as its cause.
func (helper *ErrorHelper) Wrap(code dbapi.Status, err error) error {
	if err == nil {
		return nil
	}
	var dbErr dbapi.Error
	if errors.As(err, &dbErr) {
		return err
	}
	return dbapi.Error{
		Code:  code,
		Msg:   fmt.Sprintf("[%s] %s", helper.DriverName, err.Error()),
		Cause: err,
	}
}

func (helper *ErrorHelper) ConnectionClosed() error {
	return helper.Errorf(dbapi.StatusInvalidState, MessageConnectionClosed)
}

func (helper *ErrorHelper) ConnectionNotOpen() error {
	return helper.Errorf(dbapi.StatusInvalidState, MessageConnectionNotOpen)
}

func (helper *ErrorHelper) CursorClosed() error {
	return helper.Errorf(dbapi.StatusInvalidState, MessageCursorClosed)
}

// ConnectFailed reports a failure to establish the backend client as an
// operational error, keeping the backend error as its cause.
func (helper *ErrorHelper) ConnectFailed(err error) error {
	e := dbapi.Error{
		Code:  dbapi.StatusIO,
		Msg:   fmt.Sprintf("[%s] %s: %s", helper.DriverName, MessageFailedToConnect, err),
		Cause: err,
	}
	var dbErr dbapi.Error
	if errors.As(err, &dbErr) {
		e.VendorCode = dbErr.VendorCode
		e.Details = dbErr.Details
		if dbErr.Code == dbapi.StatusTimeout || dbErr.Code == dbapi.StatusUnauthenticated {
			e.Code = dbErr.Code
		}
	}
	return e
}
