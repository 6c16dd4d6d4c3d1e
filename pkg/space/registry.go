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
	"sync"

	"github.com/google/btree"
)

// registryKey orders Contexts by (kind, index) so the registry's btree
// can enumerate them deterministically; the manager's own slot list
// stays a flat slice (spec §4.3: "linear is chosen over a map" — that
// choice is about the manager's small per-array slot table, not this
// process-wide, infrequently-walked registry).
type registryKey struct {
	kind  Kind
	index int
}

func (k registryKey) Less(than btree.Item) bool {
	o := than.(registryKey)
	if k.kind != o.kind {
		return k.kind < o.kind
	}
	return k.index < o.index
}

type registryItem struct {
	key registryKey
	ctx *Context
}

func (it registryItem) Less(than btree.Item) bool {
	return it.key.Less(than.(registryItem).key)
}

var (
	registryMu   sync.Mutex
	registry     = btree.New(8)
	bandwidthCap int64 // 0 => 1 GiB/s default
)

// SetDeviceBandwidth configures the simulated per-device transfer
// limiter used by new Accelerator contexts (pkg/config wires this from
// coherence.toml's DeviceBandwidthBytesPerSec). It has no effect on
// Contexts already constructed.
func SetDeviceBandwidth(bytesPerSec int64) {
	registryMu.Lock()
	defer registryMu.Unlock()
	bandwidthCap = bytesPerSec
}

// CurrentContext returns the process-wide singleton Context for
// (kind, index), constructing it on first use (spec §3, Context
// Lifetime; §4.1, current_context).
func CurrentContext(kind Kind, index int) *Context {
	key := registryKey{kind: kind, index: index}

	registryMu.Lock()
	defer registryMu.Unlock()

	if found := registry.Get(registryItem{key: key}); found != nil {
		return found.(registryItem).ctx
	}

	if kind == Host && index == 0 {
		return sharedHostContextLocked()
	}

	ctx := &Context{kind: kind, index: index}
	ctx.hostMem = sharedHostMemoryLocked()
	switch kind {
	case Accelerator:
		ctx.deviceMem = newDeviceMemory(ctx, bandwidthCap)
	case User:
		ctx.deviceMem = newManagedMemory(ctx)
	default:
		ctx.deviceMem = ctx.hostMem
	}
	registry.ReplaceOrInsert(registryItem{key: key, ctx: ctx})
	return ctx
}

var sharedHost *Context

// sharedHostContextLocked returns the single Host context, constructing
// it on first use. Callers hold registryMu.
func sharedHostContextLocked() *Context {
	if sharedHost != nil {
		return sharedHost
	}
	key := registryKey{kind: Host, index: 0}
	if found := registry.Get(registryItem{key: key}); found != nil {
		sharedHost = found.(registryItem).ctx
		return sharedHost
	}
	sharedHost = &Context{kind: Host, index: 0}
	// The Host context's own memory is pinned: it is the universal
	// staging ground for device-to-device transfers (spec §4.1), and a
	// pinned buffer lets a device DMA out of it directly instead of the
	// device driver double-buffering internally.
	hm := newPinnedHostMemory(sharedHost)
	sharedHost.hostMem = hm
	sharedHost.deviceMem = hm
	registry.ReplaceOrInsert(registryItem{key: key, ctx: sharedHost})
	return sharedHost
}

// sharedHostMemoryLocked returns the single Host context's Memory,
// usable as a staging ground by every other Context. Callers hold
// registryMu.
func sharedHostMemoryLocked() Memory {
	return sharedHostContextLocked().deviceMem
}

// HostContext is shorthand for CurrentContext(Host, 0); the original
// LAMA source always has a host context available without explicit
// registration (SPEC_FULL.md supplemented feature 2).
func HostContext() *Context { return CurrentContext(Host, 0) }

// AccelContext is shorthand for CurrentContext(Accelerator, index).
func AccelContext(index int) *Context { return CurrentContext(Accelerator, index) }

// PlainHostMemory returns an unpinned host Memory bound to ctx,
// bypassing the pinned staging buffer every Context's HostMemory()
// otherwise shares. No Context uses it as its own Memory.
func PlainHostMemory(ctx *Context) Memory { return newHostMemory(ctx) }

// Contexts returns every registered Context in (kind, index) order,
// for diagnostics.
func Contexts() []*Context {
	registryMu.Lock()
	defer registryMu.Unlock()

	out := make([]*Context, 0, registry.Len())
	registry.Ascend(func(item btree.Item) bool {
		out = append(out, item.(registryItem).ctx)
		return true
	})
	return out
}
