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
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/thetasketches/thetasketches-go/internal"
)

const (
	updatableSketchFamilyID        = 2
	updatableSketchPreambleLongs   = 3
	updatableSketchRetainedU32Byte = 8
	updatableSketchPU32Byte        = 12
	updatableSketchThetaU64Byte    = 16
	updatableSketchTableStartByte  = 24
)

// EncodeUpdatable serializes an updatable sketch together with its live
// probing table (preamble_longs=3: header, retained count + p, theta, then
// the full 2^lg_arr probing table with zeros standing in for empty slots).
// Unlike Encoder.Encode, which only ever writes the compact form, this lets
// a sketch be persisted and resumed without losing its in-progress table.
func EncodeUpdatable(w io.Writer, sketch *QuickSelectUpdateSketch) error {
	t := sketch.table
	tableSize := 1 << t.lgCurSize

	buf := make([]byte, updatableSketchTableStartByte+tableSize*8)

	buf[compactSketchPreLongsByte] = byte(updatableSketchPreambleLongs) | byte(t.rf)<<6
	buf[compactSketchSerialVersionByte] = UncompressedSerialVersion
	buf[compactSketchTypeByte] = updatableSketchFamilyID
	buf[3] = t.lgNomSize
	buf[4] = t.lgCurSize

	flags := byte(0)
	if t.isEmpty {
		flags |= 1 << serializationFlagIsEmpty
	}
	buf[compactSketchFlagsByte] = flags

	seedHash, err := sketch.SeedHash()
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(buf[6:8], seedHash)

	binary.LittleEndian.PutUint32(buf[updatableSketchRetainedU32Byte:], t.numEntries)
	binary.LittleEndian.PutUint32(buf[updatableSketchPU32Byte:], math.Float32bits(t.p))
	binary.LittleEndian.PutUint64(buf[updatableSketchThetaU64Byte:], t.theta)

	for i, entry := range t.entries {
		binary.LittleEndian.PutUint64(buf[updatableSketchTableStartByte+i*8:], entry)
	}

	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

// DecodeUpdatable reconstructs an updatable sketch from bytes written by
// EncodeUpdatable. The hash function used to compute future updates is not
// part of the wire format (it governs how new values are hashed, not the
// retained hashes themselves). The decoded sketch always uses
// Murmur3HashFunc, matching the rest of this package's defaults; there is no
// way to choose another HashFunc for it.
func DecodeUpdatable(data []byte, seed uint64) (*QuickSelectUpdateSketch, error) {
	if err := validateMemorySize(data, updatableSketchTableStartByte); err != nil {
		return nil, err
	}

	preambleLongs := data[compactSketchPreLongsByte] & 0x0F
	if preambleLongs != updatableSketchPreambleLongs {
		return nil, fmt.Errorf("invalid preamble size for updatable sketch: expected %d, got %d: %w", updatableSketchPreambleLongs, preambleLongs, ErrInvalidFormat)
	}
	rf := ResizeFactor(data[compactSketchPreLongsByte] >> 6)

	if data[compactSketchTypeByte] != updatableSketchFamilyID {
		return nil, fmt.Errorf("invalid sketch type: expected %d, got %d: %w", updatableSketchFamilyID, data[compactSketchTypeByte], ErrInvalidFormat)
	}

	lgNomSize := data[3]
	lgCurSize := data[4]
	isEmpty := data[compactSketchFlagsByte]&(1<<serializationFlagIsEmpty) != 0

	seedHash := binary.LittleEndian.Uint16(data[6:8])
	expectedSeedHash, err := internal.ComputeSeedHash(int64(seed))
	if err != nil {
		return nil, err
	}
	if err := CheckSeedHashEqual(seedHash, uint16(expectedSeedHash)); err != nil {
		return nil, err
	}

	numEntries := binary.LittleEndian.Uint32(data[updatableSketchRetainedU32Byte:])
	p := math.Float32frombits(binary.LittleEndian.Uint32(data[updatableSketchPU32Byte:]))
	theta := binary.LittleEndian.Uint64(data[updatableSketchThetaU64Byte:])

	tableSize := 1 << lgCurSize
	if err := validateMemorySize(data, updatableSketchTableStartByte+tableSize*8); err != nil {
		return nil, err
	}

	entries := make([]uint64, tableSize)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint64(data[updatableSketchTableStartByte+i*8:])
	}

	table := &Hashtable{
		entries:    entries,
		theta:      theta,
		seed:       seed,
		numEntries: numEntries,
		p:          p,
		lgCurSize:  lgCurSize,
		lgNomSize:  lgNomSize,
		rf:         rf,
		isEmpty:    isEmpty,
	}

	return &QuickSelectUpdateSketch{
		table:    table,
		hashFunc: Murmur3HashFunc{},
	}, nil
}
