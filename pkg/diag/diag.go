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

// Package diag carries the coherence core's ambient logging and debug
// snapshotting. Nothing here participates in the coherence invariants
// of spec §8: a Logger call that panics or is a no-op must never change
// what AcquireRead/AcquireWrite/etc. return.
package diag

import (
	"os"
	"sync"

	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"
)

var (
	baseOnce sync.Once
	base     *logrus.Logger
)

func baseLogger() *logrus.Logger {
	baseOnce.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if lvl := os.Getenv("COHERENCE_LOG_LEVEL"); lvl != "" {
			if parsed, err := logrus.ParseLevel(lvl); err == nil {
				base.SetLevel(parsed)
			}
		} else {
			base.SetLevel(logrus.WarnLevel)
		}
	})
	return base
}

// SetLevel adjusts the package-wide log level, overriding
// COHERENCE_LOG_LEVEL / pkg/config's LogLevel. It mainly exists so
// pkg/config can apply a loaded coherence.toml.
func SetLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	baseLogger().SetLevel(parsed)
	return nil
}

// Logger is a named diagnostic sink for one manager/array instance.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger tagged with name (typically the owning array's
// debug id).
func New(name string) *Logger {
	return &Logger{entry: baseLogger().WithField("array", name)}
}

func (l *Logger) fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		f[key] = kv[i+1]
	}
	return f
}

// Debug logs a manager-internal event: slot allocation, transfer
// scheduling, invalidation.
func (l *Logger) Debug(msg string, kv ...any) {
	if l == nil {
		return
	}
	l.entry.WithFields(l.fields(kv)).Debug(msg)
}

// Warn logs a recoverable failure: OutOfMemory, TransferFailed.
func (l *Logger) Warn(msg string, kv ...any) {
	if l == nil {
		return
	}
	l.entry.WithFields(l.fields(kv)).Warn(msg)
}

// Snapshot deep-copies v (typically a small struct describing slot
// state: context name, valid, capacity, lock counts) before it is
// logged or handed to a caller, so neither logging nor an inspection
// API can let a caller mutate manager-owned state through an aliased
// pointer. This is the same "copy before you expose" instinct behind
// the source's debug dumps, just done generically instead of per
// struct.
func Snapshot[T any](v T) T {
	return deepcopy.Copy(v).(T)
}
