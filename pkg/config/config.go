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

// Package config loads the ambient tuning knobs of the coherence core
// from an optional coherence.toml. None of it changes coherence
// semantics (spec §1 excludes build configuration as a feature); it
// only sizes internal reservations and routes diagnostics.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"

	"github.com/kitparco/coherence/pkg/diag"
	"github.com/kitparco/coherence/pkg/space"
)

// Config is the decoded shape of coherence.toml.
type Config struct {
	// ReservedSlots is decoded from coherence.toml but not applied:
	// Apply does not forward it, and every Manager created by pkg/array
	// reserves 4 slots.
	ReservedSlots int `toml:"reserved_slots"`

	// LogLevel is one of logrus's level names ("debug", "warn", ...).
	LogLevel string `toml:"log_level"`

	// DeviceBandwidthBytesPerSec throttles the simulated accelerator
	// transfer path in pkg/space; 0 selects the 1 GiB/s default.
	DeviceBandwidthBytesPerSec int64 `toml:"device_bandwidth_bytes_per_sec"`
}

// Default returns the configuration used when no coherence.toml is
// present.
func Default() Config {
	return Config{
		ReservedSlots:              4,
		LogLevel:                   "warn",
		DeviceBandwidthBytesPerSec: 0,
	}
}

// Load decodes path into a Config, taking an advisory lock on a
// sibling ".lock" file for the duration of the read so a concurrent
// writer (e.g. a deployment tool rewriting coherence.toml in place)
// can't be read mid-write. Returns Default() if path does not exist.
func Load(path string) (Config, error) {
	cfg := Default()

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(lockContext(), 50*time.Millisecond)
	if err == nil && locked {
		defer lock.Unlock()
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if isNotExist(err) {
			return Default(), nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// Apply pushes a loaded Config's ambient knobs into the packages they
// govern.
func (c Config) Apply() error {
	if c.LogLevel != "" {
		if err := diag.SetLevel(c.LogLevel); err != nil {
			return err
		}
	}
	space.SetDeviceBandwidth(c.DeviceBandwidthBytesPerSec)
	return nil
}
