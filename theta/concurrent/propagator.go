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
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/thetasketches/thetasketches-go/theta"
)

// propagator is a bounded worker pool that merges local snapshots into a
// shared sketch. semaphore.Weighted bounds the number of in-flight merges
// ("the bounded thread pool" of spec §4.8); wg tracks them so
// AwaitBgPropagationTermination can block until every submitted task drains.
//
// A bare sync.WaitGroup (or errgroup.Group, which embeds one) forbids
// calling Add with a positive delta concurrently with an in-flight Wait
// unless the two are strictly sequenced — which submit/await cannot
// guarantee on their own, since producer goroutines call submit
// independently of whatever goroutine is draining via Result/Estimate/
// NumRetained/Close. mu serializes every Add against every Wait: a submit
// either completes its Add before an await's Wait begins, or blocks on mu
// until that Wait has fully returned, so the two never race.
type propagator struct {
	sem    *semaphore.Weighted
	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	logger Logger
}

func newPropagator(numThreads int, logger Logger) *propagator {
	if numThreads < 1 {
		numThreads = 1
	}
	if logger == nil {
		logger = noopLogger
	}
	return &propagator{
		sem:    semaphore.NewWeighted(int64(numThreads)),
		ctx:    context.Background(),
		logger: logger,
	}
}

// submit acquires a worker slot — blocking the caller if the pool is
// saturated, matching §5's "local update may momentarily block if the
// propagation queue is full" — then merges snapshot into shared in the
// background, retrying indefinitely on failure. Propagation failures never
// surface to the producer that triggered the flush (§7 propagation policy).
func (p *propagator) submit(shared *SharedSketch, snapshot *theta.CompactSketch) error {
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return err
	}

	p.mu.Lock()
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.sem.Release(1)
		defer p.wg.Done()

		for {
			err := shared.propagate(snapshot)
			if err == nil {
				return
			}
			if errors.Is(err, ErrSketchClosed) {
				return
			}
			p.logger("concurrent: propagation failed, retrying: %v", err)
		}
	}()

	return nil
}

// await blocks until every submitted propagation task has returned.
func (p *propagator) await() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wg.Wait()
	return nil
}
