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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/kitparco/coherence/pkg/array"
	"github.com/kitparco/coherence/pkg/space"
)

// allocCmd allocates a host-resident array of float64 zeros and
// reports its validity.
type allocCmd struct {
	n int
}

func (*allocCmd) Name() string { return "alloc" }
func (*allocCmd) Synopsis() string { return "allocate a float64 array on Host and print its slot state" }
func (*allocCmd) Usage() string { return "alloc -n <count>\n" }
func (c *allocCmd) SetFlags(f *flag.FlagSet) { f.IntVar(&c.n, "n", 8, "element count") }

func (c *allocCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	a, err := array.New(int64(c.n), 8, nil, nil)
	if err != nil {
		fmt.Println("alloc:", err)
		return subcommands.ExitFailure
	}
	data := make([]byte, int64(c.n)*8)
	if err := a.SetData(space.HostContext(), data); err != nil {
		fmt.Println("alloc:", err)
		return subcommands.ExitFailure
	}
	printState(a)
	return subcommands.ExitSuccess
}

// touchCmd allocates an array on Host, then reads it at Accel0 to show
// the lazy-migration path (scenario S2 of the spec).
type touchCmd struct {
	n int
}

func (*touchCmd) Name() string { return "touch" }
func (*touchCmd) Synopsis() string { return "read a Host array from Accel0, showing lazy migration" }
func (*touchCmd) Usage() string { return "touch -n <count>\n" }
func (c *touchCmd) SetFlags(f *flag.FlagSet) { f.IntVar(&c.n, "n", 8, "element count") }

func (c *touchCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	a, err := array.New(int64(c.n), 8, space.HostContext(), make([]byte, int64(c.n)*8))
	if err != nil {
		fmt.Println("touch:", err)
		return subcommands.ExitFailure
	}
	ra, err := a.Read(space.AccelContext(0))
	if err != nil {
		fmt.Println("touch:", err)
		return subcommands.ExitFailure
	}
	ra.Release()
	printState(a)
	return subcommands.ExitSuccess
}

func printState(a *array.TypedArray) {
	fmt.Printf("array %s: size=%d width=%d\n", a.ID(), a.Size(), a.ElementWidth())
	for _, s := range a.Snapshot() {
		fmt.Printf("  %-10s valid=%-5v capacity=%d reads=%d writeLocked=%v\n",
			s.Context, s.Valid, s.Capacity, s.ReadCount, s.WriteLocked)
	}
}
