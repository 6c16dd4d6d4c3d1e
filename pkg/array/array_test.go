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

package array_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kitparco/coherence/pkg/array"
	"github.com/kitparco/coherence/pkg/cherrors"
	"github.com/kitparco/coherence/pkg/space"
)

func floats(vs ...float64) []byte {
	out := make([]byte, 0, len(vs)*8)
	for _, v := range vs {
		bits := make([]byte, 8)
		u := uint64(v)
		for i := 0; i < 8; i++ {
			bits[i] = byte(u >> (8 * i))
		}
		out = append(out, bits...)
	}
	return out
}

// S1: a freshly allocated array has no valid slot anywhere.
func TestS1FreshArrayHasNoValidSlot(t *testing.T) {
	a, err := array.New(4, 8, nil, nil)
	require.NoError(t, err)
	require.Nil(t, a.ValidContext(space.Host))
	require.False(t, a.IsValid(space.HostContext()))
}

// S2: writing at Host then reading at an accelerator lazily migrates the
// data there and leaves Host still valid (read does not invalidate).
func TestS2LazyMigrationOnRead(t *testing.T) {
	a, err := array.New(2, 8, nil, nil)
	require.NoError(t, err)
	require.NoError(t, a.SetData(space.HostContext(), floats(1, 2)))

	accel := space.AccelContext(1)
	ra, err := a.Read(accel)
	require.NoError(t, err)
	require.Equal(t, floats(1, 2), ra.Bytes())
	ra.Release()

	require.True(t, a.IsValid(space.HostContext()))
	require.True(t, a.IsValid(accel))
}

// S3: a write access invalidates every other previously-valid slot on
// Release.
func TestS3WriteInvalidatesOtherSlots(t *testing.T) {
	a, err := array.New(2, 8, nil, nil)
	require.NoError(t, err)
	require.NoError(t, a.SetData(space.HostContext(), floats(1, 2)))

	accel := space.AccelContext(2)
	ra, err := a.Read(accel)
	require.NoError(t, err)
	ra.Release()
	require.True(t, a.IsValid(space.HostContext()))
	require.True(t, a.IsValid(accel))

	wa, err := a.Write(accel, false)
	require.NoError(t, err)
	copy(wa.Bytes(), floats(9, 9))
	wa.Release()

	require.True(t, a.IsValid(accel))
	require.False(t, a.IsValid(space.HostContext()))
}

// S4: a second acquisition on a write-locked array fails with ErrArrayBusy
// until the first access is released.
func TestS4ConcurrentAccessIsRejectedWhileWriteLocked(t *testing.T) {
	a, err := array.New(1, 8, space.HostContext(), floats(1))
	require.NoError(t, err)

	wa, err := a.Write(space.HostContext(), true)
	require.NoError(t, err)

	_, err = a.Read(space.HostContext())
	require.ErrorIs(t, err, cherrors.ErrArrayBusy)

	_, err = a.Write(space.AccelContext(3), false)
	require.ErrorIs(t, err, cherrors.ErrArrayBusy)

	wa.Release()

	ra, err := a.Read(space.HostContext())
	require.NoError(t, err)
	ra.Release()
}

// S5: resize(n); resize(n) is a no-op, and resize(0) clears every slot's
// validity without erroring.
func TestS5ResizeIdempotenceAndClear(t *testing.T) {
	a, err := array.New(2, 8, space.HostContext(), floats(1, 2))
	require.NoError(t, err)

	require.NoError(t, a.Resize(2))
	require.True(t, a.IsValid(space.HostContext()))

	require.NoError(t, a.Resize(4))
	require.Equal(t, int64(4), a.Size())
	require.True(t, a.IsValid(space.HostContext()))

	require.NoError(t, a.Clear())
	require.Equal(t, int64(0), a.Size())
	require.True(t, a.IsEmpty())
	require.Nil(t, a.ValidContext(space.Host))
}

// S6: two concurrent reads at different, not-yet-valid contexts that
// share the same source slot must not observe a torn transfer; both must
// see the fully-written source bytes.
func TestS6ConcurrentReadsFromSharedSourceAreNotTorn(t *testing.T) {
	a, err := array.New(4, 8, space.HostContext(), floats(1, 2, 3, 4))
	require.NoError(t, err)

	var g errgroup.Group
	results := make([][]byte, 2)
	ctxs := []*space.Context{space.AccelContext(10), space.AccelContext(11)}
	for i := range ctxs {
		i := i
		g.Go(func() error {
			ra, err := a.Read(ctxs[i])
			if err != nil {
				return err
			}
			defer ra.Release()
			buf := make([]byte, len(ra.Bytes()))
			copy(buf, ra.Bytes())
			results[i] = buf
			return nil
		})
	}
	require.NoError(t, g.Wait())

	want := floats(1, 2, 3, 4)
	if diff := cmp.Diff(want, results[0]); diff != "" {
		t.Errorf("goroutine 0 saw a torn read (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, results[1]); diff != "" {
		t.Errorf("goroutine 1 saw a torn read (-want +got):\n%s", diff)
	}
}

func TestReadAsAndWriteAsTypedViews(t *testing.T) {
	a, err := array.New(2, 8, nil, nil)
	require.NoError(t, err)

	wa, err := a.Write(space.HostContext(), false)
	require.NoError(t, err)
	view := array.WriteAs[uint64](wa)
	require.Len(t, view, 2)
	view[0] = 42
	view[1] = 7
	wa.Release()

	ra, err := a.Read(space.HostContext())
	require.NoError(t, err)
	rview := array.ReadAs[uint64](ra)
	require.Equal(t, []uint64{42, 7}, rview)
	ra.Release()
}

func TestReadOnlyArrayRejectsWrite(t *testing.T) {
	a, err := array.New(1, 8, space.HostContext(), floats(1))
	require.NoError(t, err)
	a.SetReadOnly(true)

	_, err = a.Write(space.HostContext(), true)
	require.ErrorIs(t, err, cherrors.ErrArrayBusy)

	ra, err := a.Read(space.HostContext())
	require.NoError(t, err)
	ra.Release()
}

func TestFreeSlotRefusesToDropOnlyValidCopy(t *testing.T) {
	a, err := array.New(1, 8, space.HostContext(), floats(1))
	require.NoError(t, err)
	err = a.Free(space.HostContext())
	require.ErrorIs(t, err, cherrors.ErrNoValidSource)
}

func TestFreeSlotDropsOneOfMultipleValidCopies(t *testing.T) {
	a, err := array.New(1, 8, space.HostContext(), floats(1))
	require.NoError(t, err)
	accel := space.AccelContext(20)
	ra, err := a.Read(accel)
	require.NoError(t, err)
	ra.Release()

	require.NoError(t, a.Free(accel))
	require.False(t, a.IsValid(accel))
	require.True(t, a.IsValid(space.HostContext()))
}

func TestNumValidContextsTracksValidSlots(t *testing.T) {
	a, err := array.New(1, 8, space.HostContext(), floats(1))
	require.NoError(t, err)
	require.Equal(t, 1, a.NumValidContexts())

	accel := space.AccelContext(21)
	ra, err := a.Read(accel)
	require.NoError(t, err)
	ra.Release()
	require.Equal(t, 2, a.NumValidContexts())

	wa, err := a.Write(accel, false)
	require.NoError(t, err)
	wa.Release()
	require.Equal(t, 1, a.NumValidContexts())
}

func TestDestroyRefusesWithOutstandingAccess(t *testing.T) {
	a, err := array.New(1, 8, space.HostContext(), floats(1))
	require.NoError(t, err)
	ra, err := a.Read(space.HostContext())
	require.NoError(t, err)

	require.ErrorIs(t, a.Destroy(), cherrors.ErrArrayBusy)
	ra.Release()
	require.NoError(t, a.Destroy())
}

func TestNewRejectsMismatchedInitialData(t *testing.T) {
	_, err := array.New(2, 8, space.HostContext(), floats(1))
	require.ErrorIs(t, err, cherrors.ErrSizeMismatch)
}
