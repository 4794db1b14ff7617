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

package theta

import (
	"fmt"
	"slices"

	"github.com/thetasketches/thetasketches-go/internal"
)

// ANotB computes the set difference of two Theta sketches.
func ANotB(a, b Sketch, seed uint64, ordered bool) (*CompactSketch, error) {
	seedHash, err := internal.ComputeSeedHash(int64(seed))
	if err != nil {
		return nil, err
	}

	if a.IsEmpty() {
		return NewCompactSketch(a, ordered), nil
	}
	if a.NumRetained() > 0 && b.IsEmpty() {
		return NewCompactSketch(a, ordered), nil
	}

	aSeedHash, err := a.SeedHash()
	if err != nil {
		return nil, err
	}
	bSeedHash, err := b.SeedHash()
	if err != nil {
		return nil, err
	}
	if aSeedHash != uint16(seedHash) {
		return nil, fmt.Errorf("sketch A seed hash mismatch: expected %d, got %d: %w", seedHash, aSeedHash, ErrSeedMismatch)
	}
	if bSeedHash != uint16(seedHash) {
		return nil, fmt.Errorf("sketch B seed hash mismatch: expected %d, got %d: %w", seedHash, bSeedHash, ErrSeedMismatch)
	}

	theta := min(a.Theta64(), b.Theta64())
	var entries []uint64

	if b.NumRetained() == 0 {
		for entry := range a.All() {
			if entry < theta {
				entries = append(entries, entry)
			}
		}
	} else if a.IsOrdered() && b.IsOrdered() {
		entries = computeSortBased(a, b, theta)
	} else {
		var err error
		entries, err = computeHashBased(a, b, theta)
		if err != nil {
			return nil, err
		}
	}

	isEmpty := a.IsEmpty()
	if len(entries) == 0 && theta == MaxTheta {
		isEmpty = true
	}

	if ordered && !a.IsOrdered() {
		slices.Sort(entries)
	}

	return newCompactSketchFromEntries(
		isEmpty,
		a.IsOrdered() || ordered,
		uint16(seedHash),
		theta,
		entries,
	), nil
}

func computeSortBased(a, b Sketch, theta uint64) []uint64 {
	bEntries := make(map[uint64]struct{})
	for entry := range b.All() {
		bEntries[entry] = struct{}{}
	}

	var entries []uint64
	for entry := range a.All() {
		if _, ok := bEntries[entry]; ok {
			continue
		}

		if entry < theta {
			entries = append(entries, entry)
		}
	}
	return entries
}

type anotbOptions struct {
	seed uint64
}

// ANotBOptionFunc configures a stateful ANotBState.
type ANotBOptionFunc func(*anotbOptions)

// WithANotBSeed sets the seed for the hash function. Should be used carefully
// if needed. A and B sketches produced with a different seed are not
// compatible and cannot be mixed in this operation.
func WithANotBSeed(seed uint64) ANotBOptionFunc {
	return func(opts *anotbOptions) {
		opts.seed = seed
	}
}

// ANotBState computes A-not-B (set difference) across multiple calls,
// mirroring the stateful shape of Intersection: SetA establishes the
// left-hand operand, repeated calls to NotB remove right-hand operands
// from the running result, and GetResult materializes the current state.
type ANotBState struct {
	seed     uint64
	seedHash uint16
	entries  []uint64
	theta    uint64
	empty    bool
	hasA     bool
}

// NewANotBState creates a new stateful A-not-B operation.
func NewANotBState(opts ...ANotBOptionFunc) (*ANotBState, error) {
	options := &anotbOptions{seed: DefaultSeed}
	for _, opt := range opts {
		opt(options)
	}

	seedHash, err := internal.ComputeSeedHash(int64(options.seed))
	if err != nil {
		return nil, err
	}

	return &ANotBState{
		seed:     options.seed,
		seedHash: uint16(seedHash),
		theta:    MaxTheta,
		empty:    true,
	}, nil
}

// SetA establishes the left-hand operand of the set difference, replacing
// any previous state. Subsequent calls to NotB remove entries from a copy
// of A's retained set.
func (ab *ANotBState) SetA(a Sketch) error {
	aSeedHash, err := a.SeedHash()
	if err != nil {
		return err
	}
	if !a.IsEmpty() && aSeedHash != ab.seedHash {
		return fmt.Errorf("sketch A seed hash mismatch: expected %d, got %d: %w", ab.seedHash, aSeedHash, ErrSeedMismatch)
	}

	entries := make([]uint64, 0, a.NumRetained())
	for entry := range a.All() {
		entries = append(entries, entry)
	}

	ab.entries = entries
	ab.theta = a.Theta64()
	ab.empty = a.IsEmpty()
	ab.hasA = true
	return nil
}

// NotB removes B's retained entries (and anything at or above the running
// theta) from the current result. SetA must be called first.
func (ab *ANotBState) NotB(b Sketch) error {
	if !ab.hasA {
		return fmt.Errorf("calling not_b() before calling set_a() is undefined: %w", ErrPreconditionViolated)
	}
	if b.IsEmpty() {
		return nil
	}

	bSeedHash, err := b.SeedHash()
	if err != nil {
		return err
	}
	if bSeedHash != ab.seedHash {
		return fmt.Errorf("sketch B seed hash mismatch: expected %d, got %d: %w", ab.seedHash, bSeedHash, ErrSeedMismatch)
	}

	ab.theta = min(ab.theta, b.Theta64())
	if len(ab.entries) == 0 {
		return nil
	}

	bSet := make(map[uint64]struct{}, b.NumRetained())
	for entry := range b.All() {
		if entry < ab.theta {
			bSet[entry] = struct{}{}
		} else if b.IsOrdered() {
			break // early stop
		}
	}

	filtered := ab.entries[:0:0]
	for _, entry := range ab.entries {
		if entry >= ab.theta {
			continue
		}
		if _, found := bSet[entry]; found {
			continue
		}
		filtered = append(filtered, entry)
	}
	ab.entries = filtered
	return nil
}

// GetResult materializes the current state as a compact sketch. If reset is
// true, the state is cleared as if newly constructed, requiring a new call
// to SetA before the next NotB.
func (ab *ANotBState) GetResult(ordered bool, reset bool) (*CompactSketch, error) {
	if !ab.hasA {
		return nil, fmt.Errorf("calling get_result() before calling set_a() is undefined: %w", ErrPreconditionViolated)
	}

	entries := make([]uint64, 0, len(ab.entries))
	for _, entry := range ab.entries {
		if entry < ab.theta {
			entries = append(entries, entry)
		}
	}
	if ordered {
		slices.Sort(entries)
	}

	isEmpty := ab.empty
	if len(entries) == 0 && ab.theta == MaxTheta {
		isEmpty = true
	}

	result := newCompactSketchFromEntries(isEmpty, ordered, ab.seedHash, ab.theta, entries)

	if reset {
		ab.entries = nil
		ab.theta = MaxTheta
		ab.empty = true
		ab.hasA = false
	}

	return result, nil
}

// HasResult returns true once SetA has been called.
func (ab *ANotBState) HasResult() bool {
	return ab.hasA
}

func computeHashBased(a, b Sketch, theta uint64) ([]uint64, error) {
	lgSize := internal.LgSizeFromCount(b.NumRetained(), rebuildThreshold)

	table := NewHashtable(lgSize, lgSize, ResizeX1, 1, 0, 0, false)

	for entry := range b.All() {
		if entry < theta {
			idx, err := table.Find(entry)
			if err != nil && err == ErrKeyNotFoundAndNoEmptySlots {
				return nil, err
			}

			table.Insert(idx, entry)
		} else if b.IsOrdered() {
			break // Early stop
		}
	}

	// Scan A and look up B
	var entries []uint64
	for entry := range a.All() {
		if entry < theta {
			_, err := table.Find(entry)
			if err != nil && err == ErrKeyNotFound {
				entries = append(entries, entry)
			}
		} else if a.IsOrdered() {
			break // Early stop
		}
	}

	return entries, nil
}
