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
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/kitparco/coherence/pkg/synctoken"
)

// deviceMemory simulates an accelerator's local memory: reachable
// directly from Host (and from itself), but not directly from another
// device's memory, so a manager moving bytes device-to-device must
// stage through Host (spec §4.1, "false forces staging through Host").
//
// There is no real device backend here (out of scope per spec §1); the
// block is still ordinary Go memory, but allocation and transfer go
// through a simulated bandwidth limiter and a simulated transient
// allocation-pressure retry, so callers observe the same shape of
// latency and failure a real backend would produce.
type deviceMemory struct {
	ctx      *Context
	limiter  *rate.Limiter
	pressure func() bool // returns true to simulate one transient OOM
}

func newDeviceMemory(ctx *Context, bandwidthBytesPerSec int64) *deviceMemory {
	if bandwidthBytesPerSec <= 0 {
		bandwidthBytesPerSec = 1 << 30 // 1 GiB/s default, effectively unthrottled in tests
	}
	return &deviceMemory{
		ctx:     ctx,
		limiter: rate.NewLimiter(rate.Limit(bandwidthBytesPerSec), int(bandwidthBytesPerSec)),
	}
}

func (m *deviceMemory) Kind() MemoryKind  { return DeviceMemoryKind }
func (m *deviceMemory) Context() *Context { return m.ctx }

func (m *deviceMemory) CanCopyFrom(src Memory) bool {
	switch src.Kind() {
	case HostMemoryKind, PinnedHostMemoryKind, ManagedMemoryKind:
		return true
	case DeviceMemoryKind:
		return src.Context().Equal(m.ctx)
	default:
		return false
	}
}

// Allocate retries a simulated transient allocation-pressure signal a
// bounded number of times with a constant backoff before surfacing
// ErrOutOfMemory, the same shape of retry runsc/sandbox.go uses around
// a constant-backoff wait for a transient condition to clear.
func (m *deviceMemory) Allocate(nBytes int64) (*Block, error) {
	if nBytes < 0 {
		return nil, fmt.Errorf("coherence: negative allocation size %d", nBytes)
	}
	if m.pressure == nil {
		return &Block{Bytes: make([]byte, nBytes)}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Three attempts in all: the first plus two retries.
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 2), ctx)
	op := func() error {
		if m.pressure() {
			return fmt.Errorf("transient allocation pressure")
		}
		return nil
	}
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("coherence: device allocation failed after retry: %w", err)
	}
	return &Block{Bytes: make([]byte, nBytes)}, nil
}

func (m *deviceMemory) Free(b *Block) {
	if b != nil {
		b.Bytes = nil
	}
}

func (m *deviceMemory) Copy(dst, src *Block, nBytes int64) error {
	if err := m.throttle(nBytes); err != nil {
		return err
	}
	return hostCopy(dst, src, nBytes)
}

func (m *deviceMemory) CopyAsync(dst, src *Block, nBytes int64) (*synctoken.Token, error) {
	tok := synctoken.New()
	go func() {
		err := m.Copy(dst, src, nBytes)
		if err != nil {
			tok.Fail(err)
			return
		}
		tok.Complete()
	}()
	return tok, nil
}

func (m *deviceMemory) throttle(nBytes int64) error {
	if nBytes <= 0 {
		return nil
	}
	return m.limiter.WaitN(context.Background(), clampBurst(m.limiter, nBytes))
}

func clampBurst(l *rate.Limiter, n int64) int {
	if b := l.Burst(); n > int64(b) {
		return b
	}
	return int(n)
}
