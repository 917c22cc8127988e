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

package dbapi_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dqlite-dbapi/go/dbapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestErrorString(t *testing.T) {
	err := dbapi.Error{Msg: "[dqlite] Connection is closed", Code: dbapi.StatusInvalidState}
	assert.Equal(t, "Invalid State: [dqlite] Connection is closed", err.Error())

	err.SqlState = [5]byte{'2', '3', '0', '0', '0'}
	assert.Equal(t, "Invalid State: [dqlite] Connection is closed (23000)", err.Error())

	assert.Equal(t, "Status(200)", dbapi.Status(200).String())
}

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		code  dbapi.Status
		class dbapi.Class
	}{
		{dbapi.StatusInvalidState, dbapi.ClassInterface},
		{dbapi.StatusInvalidArgument, dbapi.ClassProgramming},
		{dbapi.StatusInvalidData, dbapi.ClassData},
		{dbapi.StatusIntegrity, dbapi.ClassIntegrity},
		{dbapi.StatusInternal, dbapi.ClassInternal},
		{dbapi.StatusNotImplemented, dbapi.ClassNotSupported},
		{dbapi.StatusIO, dbapi.ClassOperational},
		{dbapi.StatusTimeout, dbapi.ClassOperational},
		{dbapi.StatusCancelled, dbapi.ClassOperational},
		{dbapi.StatusNotFound, dbapi.ClassOperational},
		{dbapi.StatusUnknown, dbapi.ClassDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := dbapi.Error{Msg: "x", Code: tt.code}
			assert.Equal(t, tt.class, err.Class())
			assert.ErrorIs(t, err, tt.class)
			assert.ErrorIs(t, err, dbapi.ClassError)
			assert.NotErrorIs(t, err, dbapi.ClassWarning)
		})
	}
}

func TestClassTree(t *testing.T) {
	assert.True(t, dbapi.ClassIntegrity.IsA(dbapi.ClassDatabase))
	assert.True(t, dbapi.ClassDatabase.IsA(dbapi.ClassError))
	assert.False(t, dbapi.ClassInterface.IsA(dbapi.ClassDatabase))
	assert.False(t, dbapi.ClassWarning.IsA(dbapi.ClassError))
	assert.Equal(t, dbapi.Class(0), dbapi.ClassError.Parent())
	assert.Equal(t, "IntegrityError", dbapi.ClassIntegrity.String())
	assert.Equal(t, "Class(99)", dbapi.Class(99).String())
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("query: %w", dbapi.Error{Msg: "dial", Code: dbapi.StatusIO, Cause: cause})

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, dbapi.ClassOperational)

	var dbErr dbapi.Error
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, dbapi.StatusIO, dbErr.Code)

	assert.ErrorIs(t, errors.Join(errors.New("other"), dbErr), dbapi.ClassDatabase)
}

func TestContextError(t *testing.T) {
	err := dbapi.ContextError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, dbapi.ClassOperational)
	assert.Contains(t, err.Error(), "Timeout")

	err = dbapi.ContextError(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "Cancelled")

	other := errors.New("other")
	assert.Same(t, other, dbapi.ContextError(other))
}

func TestErrorDetails(t *testing.T) {
	text := &dbapi.TextErrorDetail{Name: "hint", Detail: "retry on the leader"}
	assert.Equal(t, "hint", text.Key())
	b, err := text.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "retry on the leader", string(b))

	msg, err := structpb.NewStruct(map[string]any{"code": 19})
	require.NoError(t, err)
	detail := &dbapi.ProtobufErrorDetail{Name: "dqlite.error", Message: msg}
	assert.Equal(t, "dqlite.error", detail.Key())

	b, err = detail.Serialize()
	require.NoError(t, err)
	var wrapped anypb.Any
	require.NoError(t, proto.Unmarshal(b, &wrapped))
	var got structpb.Struct
	require.NoError(t, wrapped.UnmarshalTo(&got))
	assert.EqualValues(t, 19, got.Fields["code"].GetNumberValue())
}
