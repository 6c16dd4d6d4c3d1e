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

// managedMemory backs User-kind contexts (spec's UserKind(id) escape
// hatch): memory the runtime is assumed to migrate on demand, so it
// declares itself directly reachable from anything.
type managedMemory struct {
	ctx *Context
}

func newManagedMemory(ctx *Context) *managedMemory { return &managedMemory{ctx: ctx} }

func (m *managedMemory) Kind() MemoryKind { return ManagedMemoryKind }
func (m *managedMemory) Context() *Context { return m.ctx }
func (m *managedMemory) CanCopyFrom(Memory) bool { return true }

func (m *managedMemory) Allocate(nBytes int64) (*Block, error) {
	if nBytes < 0 {
		return nil, fmt.Errorf("coherence: negative allocation size %d", nBytes)
	}
	return &Block{Bytes: make([]byte, nBytes)}, nil
}

func (m *managedMemory) Free(b *Block) {
	if b != nil {
		b.Bytes = nil
	}
}

func (m *managedMemory) Copy(dst, src *Block, nBytes int64) error {
	return hostCopy(dst, src, nBytes)
}

func (m *managedMemory) CopyAsync(dst, src *Block, nBytes int64) (*synctoken.Token, error) {
	if err := hostCopy(dst, src, nBytes); err != nil {
		return synctoken.Failed(err), nil
	}
	return synctoken.Completed(), nil
}
