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

//go:build !linux

package space

import "github.com/kitparco/coherence/pkg/synctoken"

// pinnedHostMemory on non-Linux platforms is plain heap memory: mlock
// has no portable equivalent, and pinning is a latency optimization
// this layer never depends on for correctness.
type pinnedHostMemory struct {
	ctx *Context
}

func newPinnedHostMemory(ctx *Context) *pinnedHostMemory { return &pinnedHostMemory{ctx: ctx} }

func (m *pinnedHostMemory) Kind() MemoryKind { return PinnedHostMemoryKind }
func (m *pinnedHostMemory) Context() *Context { return m.ctx }
func (m *pinnedHostMemory) CanCopyFrom(Memory) bool { return true }

func (m *pinnedHostMemory) Allocate(nBytes int64) (*Block, error) {
	if nBytes < 0 {
		nBytes = 0
	}
	return &Block{Bytes: make([]byte, nBytes)}, nil
}

func (m *pinnedHostMemory) Free(b *Block) {
	if b != nil {
		b.Bytes = nil
	}
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
