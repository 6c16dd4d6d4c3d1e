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

package array

import (
	"unsafe"

	"github.com/kitparco/coherence/pkg/slotset"
	"github.com/kitparco/coherence/pkg/space"
)

// ReadAccess is a scoped read-only access on one Context's slot (spec
// §3, Access handle; §4.4). Release (or letting it go out of scope via
// a defer) is the only way to drop the read lock it holds.
type ReadAccess struct {
	ref *slotset.AccessRef
}

// Bytes returns the slot's bytes. Callers must not mutate the returned
// slice: the reference is shared with any other concurrent reader of
// the same Context.
func (r *ReadAccess) Bytes() []byte { return r.ref.Bytes() }

// Context returns the Context this access was acquired against.
func (r *ReadAccess) Context() *space.Context { return r.ref.Context() }

// Release drops the read lock. Safe to call more than once.
func (r *ReadAccess) Release() { r.ref.Release() }

// WriteAccess is a scoped write access on one Context's slot (spec §3,
// §4.4). On Release, the slot is validated and every other slot is
// invalidated.
type WriteAccess struct {
	ref *slotset.AccessRef
}

// Bytes returns the slot's mutable bytes.
func (w *WriteAccess) Bytes() []byte { return w.ref.Bytes() }

// Context returns the Context this access was acquired against.
func (w *WriteAccess) Context() *space.Context { return w.ref.Context() }

// Release drops the write lock, validating this slot and invalidating
// every other. Safe to call more than once.
func (w *WriteAccess) Release() { w.ref.Release() }

// ReadAs reinterprets a ReadAccess's bytes as a slice of T, the typed
// accessor spec §4.4 asks TypedArray to expose. T's size must evenly
// divide the access's byte length; callers typically get T right by
// construction, since element width W was fixed when the array was
// made.
func ReadAs[T any](r *ReadAccess) []T {
	return bytesAs[T](r.Bytes())
}

// WriteAs is ReadAs for a WriteAccess.
func WriteAs[T any](w *WriteAccess) []T {
	return bytesAs[T](w.Bytes())
}

func bytesAs[T any](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	var zero T
	width := int(unsafe.Sizeof(zero))
	if width == 0 || len(b)%width != 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/width)
}
