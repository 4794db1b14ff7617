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

	"github.com/thetasketches/thetasketches-go/internal"
)

// Family selects the sketch algorithm family a Builder constructs.
type Family uint8

const (
	// FamilyQuickSelect builds the quick-select updatable sketch (the only
	// updatable family this module implements).
	FamilyQuickSelect Family = iota
	// FamilyAlpha is reserved for the Alpha sketch family. This module does
	// not carry a distinct Alpha implementation, so Builder.Build treats it
	// identically to FamilyQuickSelect.
	FamilyAlpha
)

// Builder gathers every knob spec.md's construction surface exposes behind
// a single struct validated once, at Build time, rather than one option func
// per constructor. Fields default to the same values NewQuickSelectUpdateSketch
// uses when left zero.
//
// Builder only constructs non-concurrent sketches. The concurrent shared/local
// pair (package theta/concurrent) takes a *Builder as configuration input
// instead of growing Build methods here, since that package imports theta and
// a Builder method returning a concurrent type would create an import cycle.
type Builder struct {
	Seed                    uint64
	P                       float32
	NominalEntries          uint32
	ResizeFactor            ResizeFactor
	Family                  Family
	HashFunc                HashFunc
	LocalLgNominalEntries   uint8
	NumPoolThreads          int
	MaxConcurrencyError     float64
	PropagateOrderedCompact bool
}

// BuilderOptionFunc configures a Builder.
type BuilderOptionFunc func(*Builder)

// WithSeed sets the seed for the hash function. Sketches produced with a
// different seed are not compatible and cannot be mixed in set operations.
func WithSeed(seed uint64) BuilderOptionFunc {
	return func(b *Builder) { b.Seed = seed }
}

// WithP sets the initial sampling probability (starting theta).
func WithP(p float32) BuilderOptionFunc {
	return func(b *Builder) { b.P = p }
}

// WithNominalEntries sets the target retained count k. A non-power-of-two
// value is rounded up at Build time rather than rejected.
func WithNominalEntries(k uint32) BuilderOptionFunc {
	return func(b *Builder) { b.NominalEntries = k }
}

// WithResizeFactor sets the hash table growth multiplier.
func WithResizeFactor(rf ResizeFactor) BuilderOptionFunc {
	return func(b *Builder) { b.ResizeFactor = rf }
}

// WithFamily selects the sketch family to construct.
func WithFamily(family Family) BuilderOptionFunc {
	return func(b *Builder) { b.Family = family }
}

// WithHashFunc sets the HashFunc used to turn updated values into the
// sketch's 64-bit hash space. Defaults to Murmur3HashFunc. Sketches from
// Build use it only for UpdateInt64 and the methods that delegate to it (see
// WithUpdateSketchHashFunc); concurrent local buffers use it for all of their
// Update* methods.
func WithHashFunc(hashFunc HashFunc) BuilderOptionFunc {
	return func(b *Builder) { b.HashFunc = hashFunc }
}

// WithLocalLgNominalEntries sets log2(local buffer size) for the concurrent
// local buffers the Builder configures for theta/concurrent. Must not exceed
// log2(NominalEntries).
func WithLocalLgNominalEntries(lg uint8) BuilderOptionFunc {
	return func(b *Builder) { b.LocalLgNominalEntries = lg }
}

// WithNumPoolThreads sets the size of the concurrent propagation worker pool.
func WithNumPoolThreads(n int) BuilderOptionFunc {
	return func(b *Builder) { b.NumPoolThreads = n }
}

// WithMaxConcurrencyError reserves the acceptable extra estimation error the
// concurrent path may introduce through delayed propagation. Carried through
// to theta/concurrent; this module does not yet use it to bound propagation
// batching, since no caller-observable behavior currently depends on it.
func WithMaxConcurrencyError(e float64) BuilderOptionFunc {
	return func(b *Builder) { b.MaxConcurrencyError = e }
}

// WithPropagateOrderedCompact selects whether local buffers snapshot
// themselves as ordered compact sketches before handing them to the
// propagation service.
func WithPropagateOrderedCompact(ordered bool) BuilderOptionFunc {
	return func(b *Builder) { b.PropagateOrderedCompact = ordered }
}

// NewBuilder creates a Builder with the same defaults NewQuickSelectUpdateSketch
// applies when an option is left unset.
func NewBuilder(opts ...BuilderOptionFunc) *Builder {
	b := &Builder{
		Seed:           DefaultSeed,
		P:              1.0,
		NominalEntries: uint32(1) << DefaultLgK,
		ResizeFactor:   DefaultResizeFactor,
		Family:         FamilyQuickSelect,
		HashFunc:       Murmur3HashFunc{},
		NumPoolThreads: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LgK computes log2 of the (possibly rounded-up) nominal entries count,
// validating it falls within [MinLgK, MaxLgK].
func (b *Builder) LgK() (uint8, error) {
	k := internal.CeilPowerOf2(int(b.NominalEntries))
	lgK, err := internal.ExactLog2(k)
	if err != nil {
		return 0, fmt.Errorf("nominal entries %d: %w", b.NominalEntries, err)
	}
	if lgK < int(MinLgK) {
		return 0, fmt.Errorf("nominal entries must be at least %d: %d: %w", 1<<MinLgK, b.NominalEntries, ErrInvalidArgument)
	}
	if lgK > int(MaxLgK) {
		return 0, fmt.Errorf("nominal entries must be at most %d: %d: %w", 1<<MaxLgK, b.NominalEntries, ErrInvalidArgument)
	}
	return uint8(lgK), nil
}

// Build validates the accumulated options and constructs a new updatable
// sketch. FamilyAlpha is accepted but constructs the same QuickSelect
// implementation as FamilyQuickSelect, since this module carries no
// distinct Alpha variant.
func (b *Builder) Build() (*QuickSelectUpdateSketch, error) {
	lgK, err := b.LgK()
	if err != nil {
		return nil, err
	}
	if b.LocalLgNominalEntries > lgK {
		return nil, fmt.Errorf("local lg nominal entries %d exceeds lg nominal entries %d: %w", b.LocalLgNominalEntries, lgK, ErrInvalidArgument)
	}

	return NewQuickSelectUpdateSketch(
		WithUpdateSketchLgK(lgK),
		WithUpdateSketchResizeFactor(b.ResizeFactor),
		WithUpdateSketchP(b.P),
		WithUpdateSketchSeed(b.Seed),
		WithUpdateSketchHashFunc(b.HashFunc),
	)
}
