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

// Package eventloop runs the backend work of one connection on a single
// dedicated goroutine.
//
// Tasks run one at a time in submission order. A task that submits more
// work to the loop it is running on, directly or through a synchronous
// facade, has that work run inline rather than queued behind itself.
package eventloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/dqlite-dbapi/go/dbapi"
)

// ErrClosed is reported for work submitted after Close.
var ErrClosed = dbapi.Error{
	Msg:  "event loop is closed",
	Code: dbapi.StatusInvalidState,
}

type loopKey struct{}

// Option configures a Loop.
type Option func(*Loop)

// WithPendingFunc registers fn to be called with the queue length
// whenever it changes. fn must not block.
func WithPendingFunc(fn func(int)) Option {
	return func(l *Loop) {
		l.onPending = fn
	}
}

// Loop is a serial task runner backed by one goroutine.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	doneCh chan struct{}

	onPending func(int)
}

// New starts a loop. It runs until Close is called and its queue has
// drained.
func New(opts ...Option) *Loop {
	l := &Loop{
		doneCh:    make(chan struct{}),
		onPending: func(int) {},
	}
	l.cond = sync.NewCond(&l.mu)
	for _, opt := range opts {
		opt(l)
	}

	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.doneCh)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		pending := len(l.queue)
		l.mu.Unlock()

		l.onPending(pending)
		fn()
	}
}

func (l *Loop) enqueue(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	pending := len(l.queue)
	l.cond.Signal()
	l.mu.Unlock()

	l.onPending(pending)
	return true
}

// Close stops accepting work. Tasks already queued still run; Done is
// closed once they have.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.doneCh }

// Closed reports whether Close has been called.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// OnLoop reports whether ctx was handed to a task running on l.
func (l *Loop) OnLoop(ctx context.Context) bool {
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Submit queues fn on l and returns its pending result. fn receives a
// context derived from ctx that identifies the loop.
//
// When ctx already belongs to a task on l, fn runs immediately on the
// calling goroutine and the returned future is complete.
func Submit[T any](ctx context.Context, l *Loop, fn func(context.Context) (T, error)) *dbapi.Future[T] {
	if l.OnLoop(ctx) {
		val, err := call(ctx, fn)
		return dbapi.Resolved(val, err)
	}

	f, resolve := dbapi.NewFuture[T]()
	queued := l.enqueue(func() {
		if err := ctx.Err(); err != nil {
			var zero T
			resolve(zero, dbapi.ContextError(err))
			return
		}
		resolve(call(context.WithValue(ctx, loopKey{}, l), fn))
	})
	if !queued {
		var zero T
		resolve(zero, ErrClosed)
	}
	return f
}

// call runs fn, turning a panic into an error so the loop survives it.
func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = dbapi.Error{
				Msg:  fmt.Sprintf("panic in event loop task: %v", r),
				Code: dbapi.StatusInternal,
			}
		}
	}()
	return fn(ctx)
}
