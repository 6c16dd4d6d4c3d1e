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

import (
	"fmt"

	"github.com/kitparco/coherence/pkg/synctoken"
)

// hostMemory is plain process heap memory. It can copy directly from
// any other Memory: the host is always reachable, which is exactly why
// the ContextDataManager uses it as the staging point for transfers
// between two memories that can't reach each other directly.
type hostMemory struct {
	ctx *Context
}

func newHostMemory(ctx *Context) *hostMemory { return &hostMemory{ctx: ctx} }

func (m *hostMemory) Kind() MemoryKind { return HostMemoryKind }
func (m *hostMemory) Context() *Context { return m.ctx }
func (m *hostMemory) CanCopyFrom(Memory) bool { return true }

func (m *hostMemory) Allocate(nBytes int64) (*Block, error) {
	if nBytes < 0 {
		return nil, fmt.Errorf("coherence: negative allocation size %d", nBytes)
	}
	return &Block{Bytes: make([]byte, nBytes)}, nil
}

func (m *hostMemory) Free(b *Block) {
	if b != nil {
		b.Bytes = nil
	}
}

func (m *hostMemory) Copy(dst, src *Block, nBytes int64) error {
	return hostCopy(dst, src, nBytes)
}

func (m *hostMemory) CopyAsync(dst, src *Block, nBytes int64) (*synctoken.Token, error) {
	if err := hostCopy(dst, src, nBytes); err != nil {
		return synctoken.Failed(err), nil
	}
	return synctoken.Completed(), nil
}

func hostCopy(dst, src *Block, nBytes int64) error {
	if dst == nil || src == nil {
		return fmt.Errorf("coherence: copy with nil block")
	}
	if int64(len(dst.Bytes)) < nBytes || int64(len(src.Bytes)) < nBytes {
		return fmt.Errorf("coherence: copy of %d bytes exceeds block capacity", nBytes)
	}
	copy(dst.Bytes[:nBytes], src.Bytes[:nBytes])
	return nil
}
