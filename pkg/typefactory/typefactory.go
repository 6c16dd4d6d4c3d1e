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

// Package typefactory implements the Factory of spec §4.6: a
// process-wide registry mapping an element-type tag to a TypedArray
// constructor, so generic algorithms can allocate a correctly-typed
// temporary without virtual inheritance over value types.
package typefactory

import (
	"sync"

	"github.com/kitparco/coherence/pkg/array"
	"github.com/kitparco/coherence/pkg/cherrors"
)

// Tag enumerates the element types the core ships constructors for.
// Non-goals (spec §1) exclude kernels/solvers, so this enumeration only
// needs to cover storage shapes, not arithmetic behavior.
type Tag int

const (
	IndexType Tag = iota
	Float32
	Float64
	// ExtendedFloat stands in for the source's long-double precision.
	// Go has no native extended-precision float; it is registered as
	// an 8-byte slot like Float64, which is a deliberate narrowing
	// documented in DESIGN.md rather than a silent one.
	ExtendedFloat
	Complex64
	Complex128
)

func (t Tag) String() string {
	switch t {
	case IndexType:
		return "index"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case ExtendedFloat:
		return "extended"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	default:
		return "tag(?)"
	}
}

// Constructor builds a zero-length TypedArray of a specific element
// width. Callers typically Resize it immediately after Create.
type Constructor func() (*array.TypedArray, error)

var (
	mu       sync.RWMutex
	registry = map[Tag]Constructor{}
)

// Register installs ctor as the constructor for tag, overwriting any
// previous registration (spec §4.6: "a process-wide registry").
func Register(tag Tag, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	registry[tag] = ctor
}

// Create allocates a new, zero-length TypedArray of tag's element
// width. It returns ErrUnsupportedType if tag was never registered
// (spec §7).
func Create(tag Tag) (*array.TypedArray, error) {
	mu.RLock()
	ctor, ok := registry[tag]
	mu.RUnlock()
	if !ok {
		return nil, cherrors.Errorf(cherrors.ErrUnsupportedType, "coherence: unregistered element type %s", tag)
	}
	return ctor()
}

// Registered reports whether tag currently has a constructor, for
// diagnostics and tests.
func Registered(tag Tag) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[tag]
	return ok
}

func widthConstructor(width int64) Constructor {
	return func() (*array.TypedArray, error) {
		return array.New(0, width, nil, nil)
	}
}

func init() {
	Register(IndexType, widthConstructor(8))
	Register(Float32, widthConstructor(4))
	Register(Float64, widthConstructor(8))
	Register(ExtendedFloat, widthConstructor(8))
	Register(Complex64, widthConstructor(8))
	Register(Complex128, widthConstructor(16))
}
