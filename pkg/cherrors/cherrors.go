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

// Package cherrors defines the error kinds surfaced at the boundary of the
// coherent-array core (space, slotset, array, synctoken, typefactory).
//
// The manager never swallows an error: it restores its invariants first,
// then returns one of the sentinels below, optionally wrapped with Errorf
// for a human-readable message. Callers should compare with errors.Is.
package cherrors

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. See spec §7.
var (
	// ErrArrayBusy is returned when an access or mutation conflicts with an
	// outstanding access on the same array.
	ErrArrayBusy = errors.New("coherence: array busy")

	// ErrNoValidSource is returned by a read acquisition on a non-empty
	// array that currently has no valid slot anywhere.
	ErrNoValidSource = errors.New("coherence: no valid source slot")

	// ErrOutOfMemory is returned when a Memory allocation fails. The slot
	// that requested it is left in its prior state.
	ErrOutOfMemory = errors.New("coherence: out of memory")

	// ErrTransferFailed is returned when a Memory.Copy (or its async
	// variant) fails. The destination slot is left non-valid.
	ErrTransferFailed = errors.New("coherence: transfer failed")

	// ErrUnsupportedType is returned by the Factory for an unregistered
	// element-type tag.
	ErrUnsupportedType = errors.New("coherence: unsupported element type")

	// ErrSizeMismatch is returned by operations given inconsistent array
	// lengths (e.g. resize/setData).
	ErrSizeMismatch = errors.New("coherence: size mismatch")
)

// Errorf wraps one of the sentinels above with additional context while
// keeping errors.Is(result, kind) working, mirroring the small wrapped
// sentinel-error style used throughout the corpus instead of bespoke
// error types per call site.
func Errorf(kind error, format string, args ...any) error {
	return &wrapped{kind: kind, msg: fmt.Sprintf(format, args...)}
}

type wrapped struct {
	kind error
	msg  string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.kind }
