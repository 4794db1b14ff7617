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

	"github.com/cespare/xxhash/v2"
	"github.com/thetasketches/thetasketches-go/internal"
)

// HashFunc computes the raw 64-bit hash an update sketch screens against
// theta. Implementations need not produce a value already shifted into the
// sketch's hash space: the callers (UpdateInt64 and the concurrent local
// buffer's Update* methods) apply the `>> 1` before passing the hash to
// UpdateHash, which performs the zero/theta screening.
type HashFunc interface {
	HashInt64(value int64, seed uint64) uint64
	HashInt32(value int32, seed uint64) uint64
	HashString(value string, seed uint64) uint64
	HashBytes(data []byte, seed uint64) uint64
}

// Murmur3HashFunc hashes with the same bit-for-bit murmur3 variant used by
// the Java reference implementation. It is the default HashFunc, required
// whenever a sketch must be compared or serialized across languages.
type Murmur3HashFunc struct{}

func (Murmur3HashFunc) HashInt64(value int64, seed uint64) uint64 {
	h1, _ := internal.HashInt64SliceMurmur3([]int64{value}, 0, 1, seed)
	return h1
}

func (Murmur3HashFunc) HashInt32(value int32, seed uint64) uint64 {
	h1, _ := internal.HashInt32SliceMurmur3([]int32{value}, 0, 1, seed)
	return h1
}

func (Murmur3HashFunc) HashString(value string, seed uint64) uint64 {
	h1, _ := internal.HashCharSliceMurmur3([]byte(value), 0, len(value), seed)
	return h1
}

func (Murmur3HashFunc) HashBytes(data []byte, seed uint64) uint64 {
	h1, _ := internal.HashByteArrMurmur3(data, 0, len(data), seed)
	return h1
}

// XXHashFunc hashes with xxhash64, a faster alternative to Murmur3HashFunc
// for callers who don't need Java interoperability. Since cespare/xxhash/v2
// has no native seed parameter, the seed is folded in as an 8-byte
// little-endian prefix ahead of the hashed value, in a buffer allocated on
// every call.
type XXHashFunc struct{}

func (XXHashFunc) HashInt64(value int64, seed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	return xxhash.Sum64(seededBuf(seed, buf[:]))
}

func (XXHashFunc) HashInt32(value int32, seed uint64) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(value))
	return xxhash.Sum64(seededBuf(seed, buf[:]))
}

func (XXHashFunc) HashString(value string, seed uint64) uint64 {
	return xxhash.Sum64(seededBuf(seed, []byte(value)))
}

func (XXHashFunc) HashBytes(data []byte, seed uint64) uint64 {
	return xxhash.Sum64(seededBuf(seed, data))
}

func seededBuf(seed uint64, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint64(buf[:8], seed)
	copy(buf[8:], data)
	return buf
}
