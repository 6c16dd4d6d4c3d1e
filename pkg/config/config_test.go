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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kitparco/coherence/pkg/config"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestLoadDecodesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coherence.toml")
	const body = `
reserved_slots = 8
log_level = "debug"
device_bandwidth_bytes_per_sec = 1048576
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.ReservedSlots)
	require.Equal(t, "debug", cfg.LogLevel)
	require.EqualValues(t, 1048576, cfg.DeviceBandwidthBytesPerSec)
}

func TestApplyRejectsBadLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "not-a-level"
	require.Error(t, cfg.Apply())
}

func TestApplyAcceptsDefault(t *testing.T) {
	require.NoError(t, config.Default().Apply())
}
