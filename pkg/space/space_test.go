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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrentContextIsSingleton(t *testing.T) {
	a := CurrentContext(Accelerator, 101)
	b := CurrentContext(Accelerator, 101)
	require.True(t, a == b, "expected the same *Context pointer for repeat lookups")
	require.True(t, a.Equal(b))
}

func TestHostContextIsSharedAndPinned(t *testing.T) {
	h := HostContext()
	require.Equal(t, Host, h.Kind())
	require.Equal(t, PinnedHostMemoryKind, h.DeviceMemory().Kind())
	require.True(t, h.HostMemory() == h.DeviceMemory())
}

func TestAccelContextHostMemoryIsSharedHostMemory(t *testing.T) {
	acc := AccelContext(102)
	require.True(t, acc.HostMemory() == HostContext().HostMemory())
	require.Equal(t, DeviceMemoryKind, acc.DeviceMemory().Kind())
}

func TestDeviceMemoryCanCopyFromHostButNotOtherDevice(t *testing.T) {
	a := AccelContext(103)
	b := AccelContext(104)

	require.True(t, a.DeviceMemory().CanCopyFrom(a.HostMemory()))
	require.True(t, a.DeviceMemory().CanCopyFrom(a.DeviceMemory()))
	require.False(t, a.DeviceMemory().CanCopyFrom(b.DeviceMemory()))
}

func TestPlainHostMemoryIsUnpinnedAndDistinctFromSharedHostMemory(t *testing.T) {
	ctx := HostContext()
	plain := PlainHostMemory(ctx)
	require.Equal(t, HostMemoryKind, plain.Kind())
	require.False(t, plain == ctx.HostMemory())
}

func TestHostCopyRoundTrip(t *testing.T) {
	mem := newHostMemory(HostContext())
	src, err := mem.Allocate(4)
	require.NoError(t, err)
	copy(src.Bytes, []byte{1, 2, 3, 4})
	dst, err := mem.Allocate(4)
	require.NoError(t, err)
	require.NoError(t, mem.Copy(dst, src, 4))
	require.Equal(t, []byte{1, 2, 3, 4}, dst.Bytes)
}

func TestDeviceMemoryAllocateRetriesUnderSimulatedPressure(t *testing.T) {
	calls := 0
	dm := newDeviceMemory(AccelContext(105), 0)
	dm.pressure = func() bool {
		calls++
		return calls <= 2 // fail the first two attempts, succeed the third
	}
	b, err := dm.Allocate(16)
	require.NoError(t, err)
	require.EqualValues(t, 16, b.Cap())
	require.Equal(t, 3, calls)
}

func TestDeviceMemoryAllocateGivesUpAfterPersistentPressure(t *testing.T) {
	dm := newDeviceMemory(AccelContext(106), 0)
	dm.pressure = func() bool { return true }
	_, err := dm.Allocate(16)
	require.Error(t, err)
}

func TestContextsEnumeratesInKindIndexOrder(t *testing.T) {
	AccelContext(201)
	AccelContext(200)
	list := Contexts()
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		require.True(t, prev.Kind() < cur.Kind() || (prev.Kind() == cur.Kind() && prev.Index() <= cur.Index()),
			"contexts out of order: %s before %s", prev, cur)
	}
}
