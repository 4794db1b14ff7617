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
	"sync"
	"sync/atomic"

	"github.com/thetasketches/thetasketches-go/theta"
)

// SharedSketch wraps a theta.QuickSelectUpdateSketch behind a mutation lock
// and publishes its current theta through an unlocked atomic so LocalBuffer
// producers can pre-filter without ever touching the lock (spec §4.8
// "volatile theta").
type SharedSketch struct {
	mu            sync.Mutex
	sketch        *theta.QuickSelectUpdateSketch
	thetaVolatile atomic.Uint64
	closed        atomic.Bool
	propagator    *propagator
	logger        Logger
}

// SharedOptionFunc configures a SharedSketch.
type SharedOptionFunc func(*SharedSketch)

// WithSharedLogger overrides the no-op default logger used to report
// background propagation failures.
func WithSharedLogger(logger Logger) SharedOptionFunc {
	return func(s *SharedSketch) {
		s.logger = logger
	}
}

// NewSharedSketch builds the shared sketch from a theta.Builder, the way
// Builder.Build constructs a plain updatable sketch. It lives here rather
// than as a Builder method to avoid theta importing this package.
func NewSharedSketch(builder *theta.Builder, opts ...SharedOptionFunc) (*SharedSketch, error) {
	inner, err := builder.Build()
	if err != nil {
		return nil, err
	}

	numThreads := builder.NumPoolThreads
	if numThreads < 1 {
		numThreads = 1
	}

	s := &SharedSketch{
		sketch: inner,
		logger: noopLogger,
	}
	s.thetaVolatile.Store(inner.Theta64())
	s.propagator = newPropagator(numThreads, s.logger)

	for _, opt := range opts {
		opt(s)
	}
	s.propagator.logger = s.logger

	return s, nil
}

// ThetaVolatile returns the shared sketch's last-published theta without
// taking the mutation lock. It is monotonically non-increasing.
func (s *SharedSketch) ThetaVolatile() uint64 {
	return s.thetaVolatile.Load()
}

// NewLocal creates a LocalBuffer that propagates into this shared sketch.
func (s *SharedSketch) NewLocal(builder *theta.Builder) (*LocalBuffer, error) {
	return newLocalBuffer(s, builder)
}

// propagate merges one local snapshot into the shared sketch under the
// mutation lock, rebuilds it down to its nominal k entries if the merge left
// more, then republishes theta. Called only by the propagator.
func (s *SharedSketch) propagate(snapshot *theta.CompactSketch) error {
	if s.closed.Load() {
		return ErrSketchClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for entry := range snapshot.All() {
		if entry >= s.sketch.Theta64() {
			if snapshot.IsOrdered() {
				break
			}
			continue
		}
		if err := s.sketch.UpdateHash(entry); err != nil && !errors.Is(err, theta.ErrDuplicateKey) {
			return err
		}
	}
	s.sketch.Trim()

	s.thetaVolatile.Store(s.sketch.Theta64())
	return nil
}

// AwaitBgPropagationTermination blocks until every in-flight propagation
// task submitted so far has completed. Used by tests and by any read path
// (Result, Estimate, NumRetained) that must observe all updates.
func (s *SharedSketch) AwaitBgPropagationTermination() error {
	return s.propagator.await()
}

// Result drains in-flight propagation, then returns a compact snapshot of
// the shared sketch's current state.
func (s *SharedSketch) Result(ordered bool) (*theta.CompactSketch, error) {
	if err := s.AwaitBgPropagationTermination(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sketch.Compact(ordered), nil
}

// Estimate drains in-flight propagation, then returns the shared sketch's
// current cardinality estimate.
func (s *SharedSketch) Estimate() (float64, error) {
	if err := s.AwaitBgPropagationTermination(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sketch.Estimate(), nil
}

// NumRetained drains in-flight propagation, then returns the shared
// sketch's current retained count.
func (s *SharedSketch) NumRetained() (uint32, error) {
	if err := s.AwaitBgPropagationTermination(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sketch.NumRetained(), nil
}

// Close drains all in-flight propagation tasks, then marks the shared
// sketch closed: subsequent LocalBuffer updates and propagation attempts
// fail with ErrSketchClosed. Callers must sequence producer shutdown
// themselves; Close has no timeout (spec §5).
func (s *SharedSketch) Close() error {
	err := s.propagator.await()
	s.closed.Store(true)
	return err
}
