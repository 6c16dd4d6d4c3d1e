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

// Package space implements Context and Memory: the identity of a
// memory/compute space and the typed allocators that live inside one.
// Everything above this package (slotset, array) only ever talks to a
// Context to obtain a Memory, and to a Memory to allocate, free and copy
// blocks; neither knows about device APIs.
package space

import "fmt"

// Kind is the coarse category of a Context. Two Contexts are equal iff
// their Kind and Index are equal (spec §3, Context identity).
type Kind uint8

const (
	// Host is the process's own address space. Always present.
	Host Kind = iota
	// Accelerator is a device compute/memory space; Index distinguishes
	// Accel0, Accel1, ... (spec's {Host, Accel0, Accel1, ...}).
	Accelerator
	// User is an escape hatch for a caller-defined kind of space
	// (spec's UserKind(id)); Index carries the caller's id.
	User
)

func (k Kind) String() string {
	switch k {
	case Host:
		return "host"
	case Accelerator:
		return "accel"
	case User:
		return "user"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Context is the identity of one memory/compute space. Contexts are
// process-scoped singletons: acquiring the same (Kind, Index) pair twice
// yields the same *Context (spec §3, Lifetime).
type Context struct {
	kind  Kind
	index int

	hostMem   Memory
	deviceMem Memory
}

// Kind returns the context's kind tag.
func (c *Context) Kind() Kind { return c.kind }

// Index returns the context's device index (0 for Host).
func (c *Context) Index() int { return c.index }

// Equal reports whether c and other identify the same space.
func (c *Context) Equal(other *Context) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return c.kind == other.kind && c.index == other.index
}

// String renders the context the way it would appear in a log field or
// error message, e.g. "host" or "accel1".
func (c *Context) String() string {
	if c.kind == Host {
		return "host"
	}
	return fmt.Sprintf("%s%d", c.kind, c.index)
}

// HostMemory returns the shared Host Memory usable as a staging ground
// when a direct transfer between two device memories isn't possible.
// Every Context returns the same Memory here, including Host itself
// (whose HostMemory and DeviceMemory coincide).
func (c *Context) HostMemory() Memory { return c.hostMem }

// DeviceMemory returns the Context's default Memory for its own kind
// (device memory for an accelerator context, managed memory for a User
// context, the shared pinned host memory for Host).
func (c *Context) DeviceMemory() Memory { return c.deviceMem }
