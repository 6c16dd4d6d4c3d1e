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

package slotset

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kitparco/coherence/pkg/cherrors"
	"github.com/kitparco/coherence/pkg/diag"
	"github.com/kitparco/coherence/pkg/space"
	"github.com/kitparco/coherence/pkg/synctoken"
)

// Manager is the ContextDataManager of spec §4.3: the table of slots
// for one logical array, the coherence state machine on those slots,
// and the read/write access protocol that drives it.
//
// A Manager is owned 1-to-1 by a TypedArray and destroyed with it
// (spec §3, ContextDataManager Lifetime); pkg/array's Destroy frees
// every slot via Manager.Destroy.
type Manager struct {
	// mu protects everything below, except for the actual byte copy
	// performed by a Memory, which always happens with mu released
	// (spec §4.3, Concurrency of the manager itself).
	mu   sync.Mutex
	cond *sync.Cond

	slots []*Slot

	// logicalBytes is N*W for the owning TypedArray; kept here so the
	// manager can size allocations without reaching back into its
	// owner.
	logicalBytes int64

	// transfersInFlight counts slot-to-slot transfers currently in
	// flight; AcquireWrite waits for it to drain before
	// invalidating other slots, so it never yanks validity out from
	// under an in-flight copy.
	transfersInFlight int

	// sf collapses concurrent Prefetch calls to the same destination
	// Context into a single in-flight transfer (spec §4.3, "two
	// successive prefetch calls behave like one").
	sf singleflight.Group

	log *diag.Logger
}

// New returns an empty Manager with no slots and zero logical bytes,
// reserving capacity for reservedSlots entries up front (a hint, not a
// cap — LAMA_MAX_CONTEXTS in the source is explicitly not a hard limit,
// spec §9).
func New(reservedSlots int, name string) *Manager {
	if reservedSlots <= 0 {
		reservedSlots = 4
	}
	m := &Manager{
		slots: make([]*Slot, 0, reservedSlots),
		log:   diag.New(name),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// SetLogicalBytes updates the manager's notion of N*W. It does not
// itself touch any slot; Resize (which also grows/shrinks slot
// capacities) is the operation callers use for a live array.
func (m *Manager) SetLogicalBytes(n int64) {
	m.mu.Lock()
	m.logicalBytes = n
	m.mu.Unlock()
}

func (m *Manager) anyWriteLockedLocked() bool {
	for _, s := range m.slots {
		if s.writeLocked {
			return true
		}
	}
	return false
}

func (m *Manager) anyOutstandingLocked() bool {
	for _, s := range m.slots {
		if s.writeLocked || s.readCount > 0 {
			return true
		}
	}
	return false
}

func (m *Manager) slotForLocked(ctx *space.Context) *Slot {
	for _, s := range m.slots {
		if s.ctx.Equal(ctx) {
			return s
		}
	}
	s := &Slot{ctx: ctx, mem: ctx.DeviceMemory()}
	m.slots = append(m.slots, s)
	return s
}

func (m *Manager) indexOfLocked(target *Slot) int {
	for i, s := range m.slots {
		if s == target {
			return i
		}
	}
	return -1
}

func (m *Manager) findValidLocked() *Slot {
	for _, s := range m.slots {
		if s.valid {
			return s
		}
	}
	return nil
}

// bringValidLocked fills s until it is valid, transferring from some
// other valid slot (staging through Host when the two memories can't
// reach each other directly) or, for a size-zero array, marking s valid
// immediately with undefined contents (spec §4.3, acquire_read step 3).
//
// mu is held on entry; it is released for the duration of the actual
// byte copy and re-acquired before returning, matching the "metadata
// manipulation is non-suspending, transfers are not" rule of spec §5.
func (m *Manager) bringValidLocked(s *Slot) error {
	for !s.valid {
		if s.pending != nil {
			if err := s.ensureReady(&m.mu); err != nil {
				return cherrors.Errorf(cherrors.ErrTransferFailed, "coherence: join pending transfer into %s: %v", s.ctx, err)
			}
			continue
		}

		if m.logicalBytes == 0 {
			s.valid = true
			break
		}

		v := m.findValidLocked()
		if v == nil {
			return cherrors.ErrNoValidSource
		}
		for v.transferring {
			m.cond.Wait()
		}

		if err := s.reserve(m.logicalBytes); err != nil {
			return cherrors.Errorf(cherrors.ErrOutOfMemory, "coherence: reserve %d bytes on %s: %v", m.logicalBytes, s.ctx, err)
		}

		v.transferring = true
		m.transfersInFlight++
		tok := synctoken.New()
		s.attachToken(tok)
		srcMem, dstMem := v.mem, s.mem
		srcBlock, dstBlock := v.block, s.block
		n := m.logicalBytes
		srcCtx, dstCtx := v.ctx, s.ctx

		m.mu.Unlock()
		m.log.Debug("transfer", "src", srcCtx.String(), "dst", dstCtx.String(), "bytes", n)
		err := transfer(dstMem, srcMem, dstBlock, srcBlock, n)
		m.mu.Lock()

		v.transferring = false
		m.transfersInFlight--
		s.pending = nil
		m.cond.Broadcast()

		if err != nil {
			tok.Fail(err)
			m.log.Warn("transfer failed", "src", srcCtx.String(), "dst", dstCtx.String(), "err", err)
			return cherrors.Errorf(cherrors.ErrTransferFailed, "coherence: transfer %s -> %s: %v", srcCtx, dstCtx, err)
		}
		tok.Complete()
		s.valid = true
	}
	return nil
}

// transfer performs dst <- src, staging through Host when dst can't
// copy directly from src (spec §4.1, Memory.can_copy_from rationale).
func transfer(dstMem, srcMem space.Memory, dst, src *space.Block, n int64) error {
	if dstMem.CanCopyFrom(srcMem) {
		return dstMem.Copy(dst, src, n)
	}
	host := space.HostContext().HostMemory()
	staging, err := host.Allocate(n)
	if err != nil {
		return err
	}
	defer host.Free(staging)
	if err := host.Copy(staging, src, n); err != nil {
		return err
	}
	return dstMem.Copy(dst, staging, n)
}

// AccessKind distinguishes a Read access from a Write access.
type AccessKind int

const (
	Read AccessKind = iota
	Write
)

// AccessRef is the manager-side half of an Access handle (spec §3,
// Access handle; §4.3 return value of acquire_read/acquire_write). It
// is released exactly once, via Release.
type AccessRef struct {
	m     *Manager
	slot  *Slot
	kind  AccessKind
	bytes int64

	mu       sync.Mutex
	released bool
}

// Bytes returns the raw (ptr, len) view described in spec §4.4/§6: a
// byte slice over the locked slot's block, valid until Release.
func (a *AccessRef) Bytes() []byte { return a.slot.Bytes(a.bytes) }

// Context returns the Context this access is against.
func (a *AccessRef) Context() *space.Context { return a.slot.ctx }

// Kind reports whether this is a Read or Write access.
func (a *AccessRef) Kind() AccessKind { return a.kind }

// Release releases the lock held by this access. Calling it more than
// once is a no-op, matching a handle's scoped destruction semantics
// (spec §3, Access handle Lifetime: "released exactly once").
func (a *AccessRef) Release() {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.released = true
	a.mu.Unlock()
	a.m.release(a)
}

// AcquireRead implements spec §4.3 acquire_read.
func (m *Manager) AcquireRead(ctx *space.Context) (*AccessRef, error) {
	m.mu.Lock()
	if m.anyWriteLockedLocked() {
		m.mu.Unlock()
		return nil, cherrors.ErrArrayBusy
	}

	s := m.slotForLocked(ctx)
	if err := m.bringValidLocked(s); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if s.writeLocked {
		m.mu.Unlock()
		return nil, cherrors.ErrArrayBusy
	}
	s.readCount++
	n := m.logicalBytes
	m.mu.Unlock()

	return &AccessRef{m: m, slot: s, kind: Read, bytes: n}, nil
}

// AcquireWrite implements spec §4.3 acquire_write. keep requests that
// the current contents be made valid at ctx before the caller starts
// writing (spec §4.3 step 4).
func (m *Manager) AcquireWrite(ctx *space.Context, keep bool) (*AccessRef, error) {
	m.mu.Lock()
	if m.anyOutstandingLocked() {
		m.mu.Unlock()
		return nil, cherrors.ErrArrayBusy
	}

	s := m.slotForLocked(ctx)
	// Claim exclusivity before any blocking work so a concurrent
	// acquisition that races in while mu is released below sees a
	// write-locked slot and backs off, instead of also believing it is
	// unclaimed (see DESIGN.md for why spec's step order is adjusted
	// here for a multi-goroutine implementation).
	s.writeLocked = true

	var err error
	if keep {
		err = m.bringValidLocked(s)
	} else {
		err = s.reserve(m.logicalBytes)
		if err != nil {
			err = cherrors.Errorf(cherrors.ErrOutOfMemory, "coherence: reserve %d bytes on %s: %v", m.logicalBytes, s.ctx, err)
		}
	}
	if err != nil {
		s.writeLocked = false
		m.mu.Unlock()
		return nil, err
	}

	for m.transfersInFlight > 0 {
		m.cond.Wait()
	}
	for _, other := range m.slots {
		if other != s {
			other.valid = false
		}
	}
	n := m.logicalBytes
	m.mu.Unlock()

	return &AccessRef{m: m, slot: s, kind: Write, bytes: n}, nil
}

// release implements spec §4.3 release for both access kinds.
func (m *Manager) release(a *AccessRef) {
	m.mu.Lock()
	switch a.kind {
	case Read:
		a.slot.readCount--
	case Write:
		a.slot.writeLocked = false
		a.slot.valid = true
	}
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Prefetch implements spec §4.3 prefetch: non-blocking, deduplicated,
// and serialized against any other transfer already reading the chosen
// source slot.
func (m *Manager) Prefetch(ctx *space.Context) error {
	m.mu.Lock()
	if m.anyWriteLockedLocked() {
		m.mu.Unlock()
		return cherrors.ErrArrayBusy
	}
	s := m.slotForLocked(ctx)
	if s.valid {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.sf.DoChan(ctx.String(), func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		s := m.slotForLocked(ctx)
		return nil, m.bringValidLocked(s)
	})
	return nil
}

// Resize implements spec §4.3 resize. Every valid slot is grown or
// shrunk to newBytes, copying min(oldBytes, newBytes) bytes; every
// non-valid slot keeps its current capacity and remains invalid.
// Resizing to zero bytes leaves no slot valid, so a cleared array has
// no valid context.
func (m *Manager) Resize(newBytes, oldBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.anyOutstandingLocked() {
		return cherrors.ErrArrayBusy
	}

	for _, s := range m.slots {
		if !s.valid {
			continue
		}
		newBlock, err := s.mem.Allocate(newBytes)
		if err != nil {
			return cherrors.Errorf(cherrors.ErrOutOfMemory, "coherence: resize %s to %d bytes: %v", s.ctx, newBytes, err)
		}
		n := oldBytes
		if newBytes < n {
			n = newBytes
		}
		if n > 0 {
			if err := s.mem.Copy(newBlock, s.block, n); err != nil {
				s.mem.Free(newBlock)
				return cherrors.Errorf(cherrors.ErrOutOfMemory, "coherence: resize %s: preserve contents: %v", s.ctx, err)
			}
		}
		old := s.block
		s.block = newBlock
		s.capacity = newBytes
		if old != nil {
			s.mem.Free(old)
		}
	}
	if newBytes == 0 {
		for _, s := range m.slots {
			s.valid = false
		}
	}
	m.logicalBytes = newBytes
	return nil
}

// ValidContext implements spec §4.3 valid_context: the first slot (in
// insertion order) whose kind matches preferred and is valid, else the
// first valid slot at all, else nil.
func (m *Manager) ValidContext(preferred space.Kind) *space.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.slots {
		if s.valid && s.ctx.Kind() == preferred {
			return s.ctx
		}
	}
	for _, s := range m.slots {
		if s.valid {
			return s.ctx
		}
	}
	return nil
}

// ValidContexts returns every Context currently holding a valid slot,
// in slot order (SPEC_FULL.md supplemented feature 4: diagnostic only,
// not a new coherence rule).
func (m *Manager) ValidContexts() []*space.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*space.Context, 0, len(m.slots))
	for _, s := range m.slots {
		if s.valid {
			out = append(out, s.ctx)
		}
	}
	return out
}

// NumValidContexts returns the count of Contexts currently holding a
// valid slot (SPEC_FULL.md supplemented feature 4).
func (m *Manager) NumValidContexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.slots {
		if s.valid {
			n++
		}
	}
	return n
}

// SlotState is a point-in-time diagnostic view of one Context's slot,
// returned by Manager.Snapshot (SPEC_FULL.md supplemented feature:
// inspection tooling). It carries no methods and no pointers back into
// the Manager, so a caller logging or printing it can never observe a
// later mutation.
type SlotState struct {
	Context     string
	Valid       bool
	Capacity    int64
	ReadCount   int
	WriteLocked bool
}

// Snapshot returns a deep-copied dump of every slot's state, in slot
// order, suitable for logging or an inspection command (SPEC_FULL.md
// supplemented feature 4). diag.Snapshot guards against a caller
// mutating the returned slice's backing array and having that somehow
// alias Manager-owned memory; with a []SlotState of plain value types
// that can't happen today, but it keeps this call site honest if
// SlotState ever grows a pointer field.
func (m *Manager) Snapshot() []SlotState {
	m.mu.Lock()
	out := make([]SlotState, len(m.slots))
	for i, s := range m.slots {
		out[i] = SlotState{
			Context:     s.ctx.String(),
			Valid:       s.valid,
			Capacity:    s.capacity,
			ReadCount:   s.readCount,
			WriteLocked: s.writeLocked,
		}
	}
	m.mu.Unlock()
	return diag.Snapshot(out)
}

// IsValid implements spec §4.3 is_valid.
func (m *Manager) IsValid(ctx *space.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.ctx.Equal(ctx) {
			return s.valid
		}
	}
	return false
}

// Capacity implements spec §4.3 capacity.
func (m *Manager) Capacity(ctx *space.Context) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.ctx.Equal(ctx) {
			return s.capacity
		}
	}
	return 0
}

// ReleaseSlot drops one context's copy without invalidating the whole
// array (SPEC_FULL.md supplemented feature 5). It refuses to free the
// last valid slot of a non-empty array, since that would leave the
// array with zero valid slots without anyone having asked to clear it.
func (m *Manager) ReleaseSlot(ctx *space.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.slots {
		if !s.ctx.Equal(ctx) {
			continue
		}
		if s.writeLocked || s.readCount > 0 {
			return cherrors.ErrArrayBusy
		}
		if s.valid && m.logicalBytes > 0 {
			onlyValid := true
			for _, other := range m.slots {
				if other != s && other.valid {
					onlyValid = false
					break
				}
			}
			if onlyValid {
				return cherrors.Errorf(cherrors.ErrNoValidSource, "coherence: refusing to free the only valid slot (%s)", ctx)
			}
		}
		s.free()
		m.slots = append(m.slots[:i], m.slots[i+1:]...)
		return nil
	}
	return nil
}

// Destroy frees every slot's block. Precondition: no outstanding
// access (spec §5, Cancellation: destroying an array with a live
// Access is a programming error).
func (m *Manager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.anyOutstandingLocked() {
		return cherrors.Errorf(cherrors.ErrArrayBusy, "coherence: destroy called with a live access outstanding")
	}
	for _, s := range m.slots {
		s.free()
	}
	m.slots = m.slots[:0]
	return nil
}
