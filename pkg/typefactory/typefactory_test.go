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

package typefactory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kitparco/coherence/pkg/array"
	"github.com/kitparco/coherence/pkg/cherrors"
	"github.com/kitparco/coherence/pkg/typefactory"
)

func TestDefaultTagsAreRegistered(t *testing.T) {
	for _, tag := range []typefactory.Tag{
		typefactory.IndexType, typefactory.Float32, typefactory.Float64,
		typefactory.ExtendedFloat, typefactory.Complex64, typefactory.Complex128,
	} {
		require.True(t, typefactory.Registered(tag), "%s should be registered", tag)
	}
}

func TestCreateReturnsZeroLengthArrayOfCorrectWidth(t *testing.T) {
	a, err := typefactory.Create(typefactory.Float64)
	require.NoError(t, err)
	require.EqualValues(t, 0, a.Size())
	require.EqualValues(t, 8, a.ElementWidth())

	a, err = typefactory.Create(typefactory.Complex128)
	require.NoError(t, err)
	require.EqualValues(t, 16, a.ElementWidth())
}

func TestCreateUnregisteredTagFails(t *testing.T) {
	const bogus = typefactory.Tag(999)
	_, err := typefactory.Create(bogus)
	require.ErrorIs(t, err, cherrors.ErrUnsupportedType)
}

func TestRegisterInstallsNewConstructor(t *testing.T) {
	const custom = typefactory.Tag(1000)
	require.False(t, typefactory.Registered(custom))

	calls := 0
	typefactory.Register(custom, func() (*array.TypedArray, error) {
		calls++
		return array.New(0, 2, nil, nil)
	})
	require.True(t, typefactory.Registered(custom))

	a, err := typefactory.Create(custom)
	require.NoError(t, err)
	require.EqualValues(t, 2, a.ElementWidth())
	require.Equal(t, 1, calls)
}
