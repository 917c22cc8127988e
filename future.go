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
	"context"
	"errors"
	"sync"
)

// Future is the pending result of an asynchronous operation.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// NewFuture returns an unresolved future and the function that resolves
// it. Only the first call to resolve has any effect.
func NewFuture[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns a future that has already completed.
func Resolved[T any](val T, err error) *Future[T] {
	f, resolve := NewFuture[T]()
	resolve(val, err)
	return f
}

// Failed returns a future that has already completed with err.
func Failed[T any](err error) *Future[T] {
	var zero T
	return Resolved(zero, err)
}

func (f *Future[T]) resolve(val T, err error) {
	f.once.Do(func() {
		f.val, f.err = val, err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx is done. Abandoning a
// wait does not cancel the operation itself.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}

	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ContextError(ctx.Err())
	}
}

// Err waits for the future and returns only its error.
func (f *Future[T]) Err(ctx context.Context) error {
	_, err := f.Wait(ctx)
	return err
}

// ContextError converts a context error into an Error with the matching
// status. Other errors are returned unchanged.
func ContextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Error{Msg: "operation timed out", Code: StatusTimeout, Cause: err}
	case errors.Is(err, context.Canceled):
		return Error{Msg: "operation cancelled", Code: StatusCancelled, Cause: err}
	}
	return err
}
