// Copyright 2024 The Coherence Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package synctoken implements SyncToken, the handle for an in-flight
// asynchronous transfer or computation (spec §3, §4.5).
package synctoken

import (
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle of a Token. The only transition is
// Pending -> Done, and it is one-way (spec §3, SyncToken states).
type State int

const (
	Pending State = iota
	Done
)

func (s State) String() string {
	if s == Done {
		return "done"
	}
	return "pending"
}

// releaser is attached to a Token by Attach and invoked exactly once,
// when the token transitions to Done. It models an access handle's
// release being deferred until the asynchronous operation that produced
// it has actually finished (spec §4.5, Attach).
type releaser func()

// Token is a handle for an asynchronous operation. The zero Token is
// not usable; construct one with New, Completed or Failed.
//
// A synchronous "token" is just one already Done at construction,
// exactly as spec §4.5 describes.
type Token struct {
	id string

	mu        sync.Mutex
	state     State
	err       error
	done      chan struct{}
	releasers []releaser
}

// New returns a Pending token. Complete (or Fail) must eventually be
// called on it exactly once.
func New() *Token {
	return &Token{
		id:    uuid.NewString(),
		state: Pending,
		done:  make(chan struct{}),
	}
}

// Completed returns a token that is already Done, with no error. This
// is the degenerate "synchronous token" of spec §4.5.
func Completed() *Token {
	t := &Token{id: uuid.NewString(), state: Done, done: make(chan struct{})}
	close(t.done)
	return t
}

// Failed returns a token that is already Done, carrying err.
func Failed(err error) *Token {
	t := &Token{id: uuid.NewString(), state: Done, err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

// ID is a stable, process-local debug identifier for log fields and
// String().
func (t *Token) ID() string { return t.id }

func (t *Token) String() string { return "synctoken:" + t.id }

// Complete transitions the token to Done with no error, running any
// attached releasers. Complete and Fail are each safe to call exactly
// once; a second call panics, since it would mean two producers raced
// to finish the same asynchronous operation.
func (t *Token) Complete() { t.finish(nil) }

// Fail transitions the token to Done carrying err, which Wait and
// Err will surface. This is how an asynchronous transfer failure is
// reported to a later join (spec §7, propagation policy).
func (t *Token) Fail(err error) { t.finish(err) }

func (t *Token) finish(err error) {
	t.mu.Lock()
	if t.state == Done {
		t.mu.Unlock()
		panic("synctoken: Complete/Fail called twice")
	}
	t.state = Done
	t.err = err
	releasers := t.releasers
	t.releasers = nil
	close(t.done)
	t.mu.Unlock()

	for _, r := range releasers {
		r()
	}
}

// Wait blocks until the token is Done and returns the error it
// completed with, if any. Wait is idempotent and safe to call from
// multiple goroutines concurrently (spec §4.5).
func (t *Token) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Probe is the non-blocking form of Wait: it reports the current state
// without blocking, plus the error if already Done.
func (t *Token) Probe() (State, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return Done, t.err
	default:
		return Pending, nil
	}
}

// Err returns the completion error, blocking until the token is Done.
// It is a convenience wrapper over Wait for call sites that only care
// about the error.
func (t *Token) Err() error { return t.Wait() }

// attach registers a releaser to run when the token transitions to
// Done. If the token is already Done, it runs immediately. Attach is
// its exported form, taking a plain func().
func (t *Token) attach(r releaser) {
	t.mu.Lock()
	if t.state == Done {
		t.mu.Unlock()
		r()
		return
	}
	t.releasers = append(t.releasers, r)
	t.mu.Unlock()
}

// Attach models a token assuming responsibility for releasing some
// outstanding access reference when the asynchronous operation it
// represents completes (spec §3, SyncToken Ownership; §4.5, attach).
// release is called exactly once, either immediately (if the token is
// already Done) or when Complete/Fail is next called.
func (t *Token) Attach(release func()) {
	t.attach(releaser(release))
}
