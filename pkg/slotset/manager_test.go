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

package slotset

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kitparco/coherence/pkg/cherrors"
	"github.com/kitparco/coherence/pkg/space"
)

func newSeededManager(t *testing.T, data []byte) *Manager {
	t.Helper()
	m := New(4, t.Name())
	m.SetLogicalBytes(int64(len(data)))
	ref, err := m.AcquireWrite(space.HostContext(), false)
	require.NoError(t, err)
	copy(ref.Bytes(), data)
	ref.Release()
	return m
}

func TestAcquireReadOnEmptyArrayNeedsNoSource(t *testing.T) {
	m := New(4, t.Name())
	ref, err := m.AcquireRead(space.AccelContext(300))
	require.NoError(t, err)
	require.Empty(t, ref.Bytes())
	ref.Release()
}

func TestAcquireReadWithoutAnySourceFails(t *testing.T) {
	m := New(4, t.Name())
	m.SetLogicalBytes(8)
	_, err := m.AcquireRead(space.AccelContext(301))
	require.ErrorIs(t, err, cherrors.ErrNoValidSource)
}

func TestPrefetchIsNoopWhenAlreadyValid(t *testing.T) {
	m := newSeededManager(t, []byte{1, 2, 3, 4})
	require.NoError(t, m.Prefetch(space.HostContext()))
	require.True(t, m.IsValid(space.HostContext()))
}

func TestPrefetchBringsContextValidWithoutBlockingCaller(t *testing.T) {
	m := newSeededManager(t, []byte{1, 2, 3, 4})
	accel := space.AccelContext(302)
	require.NoError(t, m.Prefetch(accel))

	require.Eventually(t, func() bool {
		return m.IsValid(accel)
	}, time.Second, time.Millisecond)
}

func TestConcurrentPrefetchesToSameDestinationCollapse(t *testing.T) {
	m := newSeededManager(t, []byte{1, 2, 3, 4})
	accel := space.AccelContext(303)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, m.Prefetch(accel))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return m.IsValid(accel)
	}, time.Second, time.Millisecond)
}

func TestResizeShrinksPreservingPrefix(t *testing.T) {
	m := newSeededManager(t, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, m.Resize(4, 8))
	require.EqualValues(t, 4, m.Capacity(space.HostContext()))

	ref, err := m.AcquireRead(space.HostContext())
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, ref.Bytes())
	ref.Release()
}

func TestDestroyFreesAllSlots(t *testing.T) {
	m := newSeededManager(t, []byte{1, 2, 3, 4})
	require.NoError(t, m.Destroy())
	require.False(t, m.IsValid(space.HostContext()))
}

func TestSnapshotReflectsSlotStateAndIsDetached(t *testing.T) {
	m := newSeededManager(t, []byte{1, 2, 3, 4})
	ref, err := m.AcquireRead(space.HostContext())
	require.NoError(t, err)

	states := m.Snapshot()
	require.Len(t, states, 1)
	require.Equal(t, space.HostContext().String(), states[0].Context)
	require.True(t, states[0].Valid)
	require.EqualValues(t, 4, states[0].Capacity)
	require.Equal(t, 1, states[0].ReadCount)

	ref.Release()

	// The slice returned earlier must not have observed the release:
	// Snapshot deep-copies, it doesn't alias manager state.
	require.Equal(t, 1, states[0].ReadCount)
	require.Equal(t, 0, m.Snapshot()[0].ReadCount)
}
