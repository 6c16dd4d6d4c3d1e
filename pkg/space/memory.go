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

package space

import "github.com/kitparco/coherence/pkg/synctoken"

// MemoryKind describes how a Memory's blocks are reachable.
type MemoryKind uint8

const (
	// HostMemoryKind is ordinary process heap memory.
	HostMemoryKind MemoryKind = iota
	// DeviceMemoryKind is memory local to an accelerator, not directly
	// addressable from the host without a transfer.
	DeviceMemoryKind
	// PinnedHostMemoryKind is page-locked host memory, usable as the
	// source/destination of a DMA-style transfer without staging.
	PinnedHostMemoryKind
	// ManagedMemoryKind is memory the runtime migrates on demand (e.g.
	// CUDA unified memory); it can be copied from anywhere.
	ManagedMemoryKind
)

func (k MemoryKind) String() string {
	switch k {
	case HostMemoryKind:
		return "host"
	case DeviceMemoryKind:
		return "device"
	case PinnedHostMemoryKind:
		return "pinned-host"
	case ManagedMemoryKind:
		return "managed"
	default:
		return "memory(?)"
	}
}

// Block is one raw allocation inside a Memory. Its Cap may exceed the
// logical length currently in use by a slot; slotset.Manager tracks
// the logical length separately (spec §3, "capacity >= logicalBytes").
type Block struct {
	// Bytes is the allocation's storage. len(Bytes) is the block's
	// capacity; callers must not reslice it beyond that.
	Bytes []byte
}

// Cap reports the block's capacity in bytes.
func (b *Block) Cap() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.Bytes))
}

// Memory is a typed allocator living inside one Context. A Memory only
// ever allocates blocks usable by its own Context; cross-Context
// transfer orchestration (choosing a source, staging through Host when
// necessary) is the ContextDataManager's job, never Memory's (spec
// §3, Memory invariant; §4.1 rationale).
type Memory interface {
	// Kind reports how this memory's blocks are reachable.
	Kind() MemoryKind

	// Context returns the owning Context.
	Context() *Context

	// Allocate returns a new block of at least nBytes. The block's
	// initial content is unspecified.
	Allocate(nBytes int64) (*Block, error)

	// Free releases a block previously returned by Allocate.
	Free(b *Block)

	// CanCopyFrom reports whether this Memory can be the destination of
	// a direct Copy/CopyAsync from src. false forces the caller
	// (ContextDataManager) to stage the transfer through Host.
	CanCopyFrom(src Memory) bool

	// Copy performs a blocking transfer of nBytes from src to dst. Both
	// blocks must belong to a Memory for which CanCopyFrom reports true
	// in the appropriate direction.
	Copy(dst, src *Block, nBytes int64) error

	// CopyAsync starts a transfer and returns a SyncToken that
	// transitions to Done when it completes (or records an error
	// observable via the token).
	CopyAsync(dst, src *Block, nBytes int64) (*synctoken.Token, error)
}
