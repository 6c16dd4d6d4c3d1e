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

//go:build linux

package space

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/kitparco/coherence/pkg/synctoken"
)

// pinnedHostMemory allocates page-locked host memory via mmap+mlock, the
// same primitive the teacher's pkg/tcpip/link/fdbased ring buffer uses,
// repurposed here for DMA-eligible staging buffers instead of packet
// rings. If mlock is refused (e.g. no CAP_IPC_LOCK / RLIMIT_MEMLOCK
// headroom), the mapping is returned unpinned, since pinning is a latency
// optimization, not a correctness requirement of this layer.
type pinnedHostMemory struct {
	ctx *Context
}

func newPinnedHostMemory(ctx *Context) *pinnedHostMemory { return &pinnedHostMemory{ctx: ctx} }

func (m *pinnedHostMemory) Kind() MemoryKind { return PinnedHostMemoryKind }
func (m *pinnedHostMemory) Context() *Context { return m.ctx }
func (m *pinnedHostMemory) CanCopyFrom(Memory) bool { return true }

func (m *pinnedHostMemory) Allocate(nBytes int64) (*Block, error) {
	if nBytes <= 0 {
		return &Block{Bytes: make([]byte, nBytes)}, nil
	}
	b, err := unix.Mmap(-1, 0, int(nBytes), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("coherence: mmap pinned host memory: %w", err)
	}
	if err := unix.Mlock(b); err != nil {
		// Pinning failed; the mapping is still valid ordinary memory.
		return &Block{Bytes: b}, nil
	}
	return &Block{Bytes: b}, nil
}

func (m *pinnedHostMemory) Free(b *Block) {
	if b == nil || len(b.Bytes) == 0 {
		return
	}
	_ = unix.Munlock(b.Bytes)
	_ = unix.Munmap(b.Bytes)
	b.Bytes = nil
}

func (m *pinnedHostMemory) Copy(dst, src *Block, nBytes int64) error {
	return hostCopy(dst, src, nBytes)
}

func (m *pinnedHostMemory) CopyAsync(dst, src *Block, nBytes int64) (*synctoken.Token, error) {
	if err := hostCopy(dst, src, nBytes); err != nil {
		return synctoken.Failed(err), nil
	}
	return synctoken.Completed(), nil
}
