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

// Package array implements TypedArray: a thin value-typed facade over a
// slotset.Manager (spec §3, §4.4). Everything a kernel, storage format,
// or solver sees of the coherence core goes through this package.
package array

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kitparco/coherence/pkg/cherrors"
	"github.com/kitparco/coherence/pkg/slotset"
	"github.com/kitparco/coherence/pkg/space"
)

var nextID int64

// TypedArray is N elements of W bytes, coherently mirrored across
// whichever Contexts have touched it (spec §4.4).
type TypedArray struct {
	id string

	mgr *slotset.Manager

	mu       sync.Mutex // guards n, w, readOnly below
	n        int64
	w        int64
	readOnly bool
}

// New constructs a TypedArray of n elements of w bytes each. If
// initialData is non-nil, it is copied in and made valid at
// initialContext (which must be non-nil in that case); otherwise the
// array starts with no valid slot anywhere, exactly as a freshly
// allocated, not-yet-written array per spec §3.
func New(n, w int64, initialContext *space.Context, initialData []byte) (*TypedArray, error) {
	if n < 0 || w <= 0 {
		return nil, cherrors.Errorf(cherrors.ErrSizeMismatch, "coherence: invalid array shape n=%d w=%d", n, w)
	}
	id := fmt.Sprintf("array-%d", atomic.AddInt64(&nextID, 1))
	ta := &TypedArray{
		id:  id,
		mgr: slotset.New(4, id),
		n:   n,
		w:   w,
	}
	ta.mgr.SetLogicalBytes(n * w)

	if initialData != nil {
		if initialContext == nil {
			return nil, cherrors.Errorf(cherrors.ErrSizeMismatch, "coherence: initial data given without an initial context")
		}
		if int64(len(initialData)) != n*w {
			return nil, cherrors.Errorf(cherrors.ErrSizeMismatch, "coherence: initial data is %d bytes, want %d", len(initialData), n*w)
		}
		if err := ta.SetData(initialContext, initialData); err != nil {
			return nil, err
		}
	}
	return ta, nil
}

// ID is a stable debug identifier, used in log fields.
func (a *TypedArray) ID() string { return a.id }

// Size returns the element count N.
func (a *TypedArray) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

// ElementWidth returns W in bytes.
func (a *TypedArray) ElementWidth() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.w
}

// IsEmpty reports whether the array has zero elements (SPEC_FULL.md
// supplemented feature 3).
func (a *TypedArray) IsEmpty() bool { return a.Size() == 0 }

// ReadOnly reports whether this facade forbids Write accesses.
func (a *TypedArray) ReadOnly() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readOnly
}

// SetReadOnly toggles the read-only flag checked by Write.
func (a *TypedArray) SetReadOnly(ro bool) {
	a.mu.Lock()
	a.readOnly = ro
	a.mu.Unlock()
}

// Resize updates N, growing or shrinking every valid slot's capacity in
// place and preserving the leading min(oldN,newN)*W bytes (spec §3,
// TypedArray invariant; §4.3 resize). resize(n); resize(n) is a no-op
// on the second call (spec §4.3 idempotence law).
func (a *TypedArray) Resize(newN int64) error {
	if newN < 0 {
		return cherrors.Errorf(cherrors.ErrSizeMismatch, "coherence: negative size %d", newN)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if newN == a.n {
		return nil
	}
	oldBytes := a.n * a.w
	newBytes := newN * a.w
	if err := a.mgr.Resize(newBytes, oldBytes); err != nil {
		return err
	}
	a.n = newN
	return nil
}

// Clear is resize(0): it leaves Size()==0 and ValidContext(kind)==nil
// for every kind (spec §4.3, Round-trip laws).
func (a *TypedArray) Clear() error { return a.Resize(0) }

// Prefetch implements spec §4.4 prefetch.
func (a *TypedArray) Prefetch(ctx *space.Context) error { return a.mgr.Prefetch(ctx) }

// ValidContext implements spec §4.4 valid_context.
func (a *TypedArray) ValidContext(preferred space.Kind) *space.Context {
	return a.mgr.ValidContext(preferred)
}

// ValidContexts returns every Context with a currently valid slot.
func (a *TypedArray) ValidContexts() []*space.Context { return a.mgr.ValidContexts() }

// NumValidContexts returns the count of Contexts with a currently valid
// slot (SPEC_FULL.md supplemented feature 4).
func (a *TypedArray) NumValidContexts() int { return a.mgr.NumValidContexts() }

// Snapshot returns a deep-copied, per-Context dump of this array's
// slot state, safe to log or hand to an inspection command without
// risking a later mutation through an aliased pointer.
func (a *TypedArray) Snapshot() []slotset.SlotState { return a.mgr.Snapshot() }

// IsValid implements spec §4.4 is_valid.
func (a *TypedArray) IsValid(ctx *space.Context) bool { return a.mgr.IsValid(ctx) }

// Capacity implements spec §4.4 capacity.
func (a *TypedArray) Capacity(ctx *space.Context) int64 { return a.mgr.Capacity(ctx) }

// Free releases ctx's copy without touching any other slot
// (SPEC_FULL.md supplemented feature 5).
func (a *TypedArray) Free(ctx *space.Context) error { return a.mgr.ReleaseSlot(ctx) }

// Read acquires a read access at ctx (spec §4.4 read).
func (a *TypedArray) Read(ctx *space.Context) (*ReadAccess, error) {
	ref, err := a.mgr.AcquireRead(ctx)
	if err != nil {
		return nil, err
	}
	return &ReadAccess{ref: ref}, nil
}

// Write acquires a write access at ctx (spec §4.4 write). keep
// requests that the current contents be made valid at ctx first.
func (a *TypedArray) Write(ctx *space.Context, keep bool) (*WriteAccess, error) {
	if a.ReadOnly() {
		return nil, cherrors.Errorf(cherrors.ErrArrayBusy, "coherence: write access on read-only array %s", a.id)
	}
	ref, err := a.mgr.AcquireWrite(ctx, keep)
	if err != nil {
		return nil, err
	}
	return &WriteAccess{ref: ref}, nil
}

// SetData overwrites the array's entire contents at ctx in one step: a
// write access with keep=false, a copy, then Release. It is how New
// seeds the array's first valid slot and is handy in tests.
func (a *TypedArray) SetData(ctx *space.Context, data []byte) error {
	a.mu.Lock()
	want := a.n * a.w
	a.mu.Unlock()
	if int64(len(data)) != want {
		return cherrors.Errorf(cherrors.ErrSizeMismatch, "coherence: SetData got %d bytes, want %d", len(data), want)
	}
	wa, err := a.Write(ctx, false)
	if err != nil {
		return err
	}
	defer wa.Release()
	copy(wa.Bytes(), data)
	return nil
}

// Destroy frees every slot. It is a programming error to call it while
// any Access is outstanding (spec §5, Cancellation).
func (a *TypedArray) Destroy() error { return a.mgr.Destroy() }
