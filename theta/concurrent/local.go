/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package concurrent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/thetasketches/thetasketches-go/theta"
)

// defaultLocalLgNominalEntries matches spec §4.8's "typically <= 2^6".
const defaultLocalLgNominalEntries uint8 = 6

// LocalBuffer is a small single-writer updatable sketch owned by one
// producer. It pre-filters updates against the shared sketch's published
// theta without ever taking the shared mutation lock, and at a propagation
// threshold it swaps itself for a fresh buffer and hands its old snapshot
// to the propagation service (spec §4.8 "local buffer").
type LocalBuffer struct {
	mu        sync.Mutex
	shared    *SharedSketch
	buffer    *theta.QuickSelectUpdateSketch
	seed      uint64
	hashFunc  theta.HashFunc
	lgLocal   uint8
	rf        theta.ResizeFactor
	ordered   bool
	threshold uint32
}

func newLocalBuffer(shared *SharedSketch, builder *theta.Builder) (*LocalBuffer, error) {
	lg := builder.LocalLgNominalEntries
	if lg == 0 {
		lg = defaultLocalLgNominalEntries
	}
	sharedLgK, err := builder.LgK()
	if err != nil {
		return nil, err
	}
	if lg > sharedLgK {
		return nil, fmt.Errorf("local lg nominal entries %d exceeds shared lg nominal entries %d: %w", lg, sharedLgK, theta.ErrInvalidArgument)
	}

	lb := &LocalBuffer{
		shared:    shared,
		seed:      builder.Seed,
		hashFunc:  builder.HashFunc,
		lgLocal:   lg,
		rf:        builder.ResizeFactor,
		ordered:   builder.PropagateOrderedCompact,
		threshold: uint32(1) << lg,
	}

	buffer, err := lb.newBuffer()
	if err != nil {
		return nil, err
	}
	lb.buffer = buffer

	return lb, nil
}

func (lb *LocalBuffer) newBuffer() (*theta.QuickSelectUpdateSketch, error) {
	return theta.NewQuickSelectUpdateSketch(
		theta.WithUpdateSketchLgK(lb.lgLocal),
		theta.WithUpdateSketchResizeFactor(lb.rf),
		theta.WithUpdateSketchSeed(lb.seed),
		theta.WithUpdateSketchHashFunc(lb.hashFunc),
	)
}

// UpdateHash always fails: raw hash injection bypasses the pre-filtering
// and threshold bookkeeping that makes propagation retries safe, so it is
// not a supported primitive on a local buffer (spec §7 Unsupported
// example). Use the Update* convenience methods instead.
func (lb *LocalBuffer) UpdateHash(hash uint64) error {
	return fmt.Errorf("raw hash injection is not supported on local buffers: %w", theta.ErrUnsupported)
}

func (lb *LocalBuffer) updateHash(hash uint64) error {
	if lb.shared.closed.Load() {
		return ErrSketchClosed
	}
	if hash == 0 {
		return theta.ErrZeroHashValue
	}
	if hash >= lb.shared.ThetaVolatile() {
		return nil // dropped by the local pre-filter, never reaches the table
	}

	lb.mu.Lock()
	err := lb.buffer.UpdateHash(hash)
	full := lb.buffer.NumRetained() >= lb.threshold
	lb.mu.Unlock()

	if err != nil && !errors.Is(err, theta.ErrDuplicateKey) {
		return err
	}
	if full {
		return lb.Flush()
	}
	return nil
}

// Flush hands the buffer's current contents to the propagation service as
// a compact snapshot and swaps in a fresh, empty buffer. It is called
// automatically once the buffer reaches its propagation threshold, and may
// be called directly to push a partially filled buffer (e.g. at shutdown).
func (lb *LocalBuffer) Flush() error {
	lb.mu.Lock()
	if lb.buffer.NumRetained() == 0 {
		lb.mu.Unlock()
		return nil
	}
	old := lb.buffer
	fresh, err := lb.newBuffer()
	if err != nil {
		lb.mu.Unlock()
		return err
	}
	lb.buffer = fresh
	lb.mu.Unlock()

	snapshot := old.Compact(lb.ordered)
	return lb.shared.propagator.submit(lb.shared, snapshot)
}

// UpdateInt64 updates the local buffer with a signed 64-bit integer.
func (lb *LocalBuffer) UpdateInt64(value int64) error {
	hash := lb.hashFunc.HashInt64(value, lb.seed) >> 1
	return lb.updateHash(hash)
}

// UpdateUint64 updates the local buffer with an unsigned 64-bit integer.
func (lb *LocalBuffer) UpdateUint64(value uint64) error {
	return lb.UpdateInt64(int64(value))
}

// UpdateString updates the local buffer with a string.
func (lb *LocalBuffer) UpdateString(value string) error {
	if len(value) == 0 {
		return theta.ErrUpdateEmptyString
	}
	hash := lb.hashFunc.HashString(value, lb.seed) >> 1
	return lb.updateHash(hash)
}

// UpdateBytes updates the local buffer with arbitrary bytes.
func (lb *LocalBuffer) UpdateBytes(data []byte) error {
	if len(data) == 0 {
		return theta.ErrUpdateEmptyString
	}
	hash := lb.hashFunc.HashBytes(data, lb.seed) >> 1
	return lb.updateHash(hash)
}

// NumRetained returns the local buffer's current retained count, not
// counting anything already flushed to the propagation service.
func (lb *LocalBuffer) NumRetained() uint32 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buffer.NumRetained()
}
