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

// Package slotset implements ContextData (the per-Context slot) and the
// ContextDataManager that owns a table of them for one logical array
// (spec §3, §4.2, §4.3). This is the hardest piece of the subsystem;
// pkg/array is thin over it.
package slotset

import (
	"sync"

	"github.com/kitparco/coherence/pkg/space"
	"github.com/kitparco/coherence/pkg/synctoken"
)

// Slot is one copy of an array's bytes in one Memory, plus its validity
// and lock flags (spec's ContextData). Its fields are manipulated only
// by the owning Manager, always under the Manager's mutex; Slot itself
// has no lock of its own.
type Slot struct {
	ctx *space.Context
	mem space.Memory

	block    *space.Block
	capacity int64

	valid       bool
	readCount   int
	writeLocked bool

	// transferring marks this slot as currently serving as the *source*
	// of an in-flight transfer into some other slot. It exists solely
	// to serialize two transfers that would otherwise read this slot
	// while another transfer is still being copied out of it (spec §4.3
	// prefetch note; §9 open question, resolved toward the stronger
	// correctness requirement).
	transferring bool

	// pending is set while an asynchronous transfer is filling this
	// slot; the slot is not valid until the token completes (spec §3,
	// "A slot with a pending-transfer token is not yet valid").
	pending *synctoken.Token
}

// Context returns the Context this slot belongs to.
func (s *Slot) Context() *space.Context { return s.ctx }

// Valid reports whether the slot's bytes are currently authoritative.
func (s *Slot) Valid() bool { return s.valid }

// Capacity reports the slot's current capacity in bytes.
func (s *Slot) Capacity() int64 { return s.capacity }

// Bytes returns a view of the slot's block truncated to n bytes.
// Precondition: the caller holds a read or write access on the slot (so
// its block cannot be freed or grown concurrently) and n <= s.capacity.
func (s *Slot) Bytes(n int64) []byte {
	if s.block == nil {
		return nil
	}
	return s.block.Bytes[:n]
}

// reserve grows the slot's capacity to at least nBytes, preserving
// contents only if the slot is currently valid (spec §4.2, reserve).
// Precondition: caller holds the Manager's mutex.
func (s *Slot) reserve(nBytes int64) error {
	if s.capacity >= nBytes {
		return nil
	}
	newBlock, err := s.mem.Allocate(nBytes)
	if err != nil {
		return err
	}
	if s.valid && s.block != nil && s.capacity > 0 {
		if cerr := s.mem.Copy(newBlock, s.block, s.capacity); cerr != nil {
			s.mem.Free(newBlock)
			return cerr
		}
	}
	old := s.block
	s.block = newBlock
	s.capacity = nBytes
	if old != nil {
		s.mem.Free(old)
	}
	return nil
}

// free releases the slot's block and clears valid (spec §4.2, free).
// Precondition: caller holds the Manager's mutex.
func (s *Slot) free() {
	if s.block != nil {
		s.mem.Free(s.block)
		s.block = nil
	}
	s.capacity = 0
	s.valid = false
}

// attachToken records a pending asynchronous transfer (spec §4.2,
// attach_token). Precondition: caller holds the Manager's mutex.
func (s *Slot) attachToken(tok *synctoken.Token) {
	s.pending = tok
}

// ensureReady joins any pending transfer (spec §4.2, ensure_ready). mu
// must be held on entry; ensureReady releases it for the duration of
// the wait and re-acquires it before returning, the same discipline
// sync.Cond.Wait uses for its associated Locker. It does not itself
// clear s.pending: that belongs to whichever goroutine is actually
// driving the transfer, in bringValidLocked.
func (s *Slot) ensureReady(mu *sync.Mutex) error {
	tok := s.pending
	if tok == nil {
		return nil
	}
	mu.Unlock()
	err := tok.Wait()
	mu.Lock()
	return err
}
