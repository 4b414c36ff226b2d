/*
Copyright 2013 The Camlistore Authors
Copyright 2014 The Perkeep Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package varint implements the two integer encodings the pending-terms
// accumulator needs to flush a doclist byte-compatible with the host
// storage engine's own varints: a generic 1-9 byte unsigned varint with
// the continuation bit on the high (not low) end of each byte, and a
// fixed 4-byte form used to reserve a back-patchable length prefix
// in-stream without ever shifting the bytes that follow it.
//
// Neither codec rejects input; callers are assumed to hand it
// well-formed values and well-formed (or at least long-enough) byte
// slices, mirroring the host storage engine's own varint routines.
package varint

// MaxLen is the maximum number of bytes PutUvarint can write.
const MaxLen = 9

// Len4 is the width, in bytes, of the fixed back-patchable form.
const Len4 = 4

// Len returns the number of bytes PutUvarint would use to encode v.
func Len(v uint64) int {
	if v&(uint64(0xff)<<56) != 0 {
		return 9
	}
	n := 0
	for {
		n++
		v >>= 7
		if v == 0 {
			break
		}
	}
	return n
}

// PutUvarint encodes v into buf using the generic big-endian,
// continuation-bit-per-byte form and returns the number of bytes
// written (1-9). buf must have at least Len(v) bytes of room.
//
// This mirrors the host storage engine's own varint routine byte for
// byte: when the top 8 bits of v are non-zero, the final byte holds a
// full 8 bits (no continuation semantics) and the preceding 8 bytes
// each carry 7 data bits with the continuation bit set.
func PutUvarint(buf []byte, v uint64) int {
	if v&(uint64(0xff)<<56) != 0 {
		buf[8] = byte(v)
		v >>= 8
		for i := 7; i >= 0; i-- {
			buf[i] = byte(v&0x7f) | 0x80
			v >>= 7
		}
		return 9
	}

	var tmp [9]byte
	n := 0
	for {
		tmp[n] = byte(v&0x7f) | 0x80
		v >>= 7
		n++
		if v == 0 {
			break
		}
	}
	tmp[0] &^= 0x80
	for i, j := 0, n-1; j >= 0; i, j = i+1, j-1 {
		buf[i] = tmp[j]
	}
	return n
}

// Uvarint decodes a generic varint at the start of buf, returning the
// value and the number of bytes consumed (1-9). buf is assumed to hold
// a complete, well-formed varint; Uvarint does not validate length.
func Uvarint(buf []byte) (uint64, int) {
	var v uint64
	for i := 0; i < 8; i++ {
		b := buf[i]
		if b&0x80 == 0 {
			return v<<7 | uint64(b), i + 1
		}
		v = v<<7 | uint64(b&0x7f)
	}
	return v<<8 | uint64(buf[8]), 9
}

// PutUvarint4 encodes v into buf as a fixed 4-byte varint: every byte
// is present regardless of v's magnitude, so overwriting the value
// later (back-patching) never shifts any byte that follows it. buf
// must have at least 4 bytes of room. v must fit in 28 bits.
func PutUvarint4(buf []byte, v uint32) {
	buf[0] = 0x80 | byte(v>>21)
	buf[1] = 0x80 | byte(v>>14)
	buf[2] = 0x80 | byte(v>>7)
	buf[3] = byte(v & 0x7f)
}

// Uvarint4 decodes the fixed 4-byte form at the start of buf. It also
// returns the "natural" length (1-4) that the same value would have
// occupied had it been written with PutUvarint instead, so a scanner
// walking bytes that mix the two forms can tell where a generic decode
// would have stopped.
func Uvarint4(buf []byte) (v uint32, natural int) {
	v = uint32(buf[0]&0x7f)<<21 | uint32(buf[1]&0x7f)<<14 | uint32(buf[2]&0x7f)<<7 | uint32(buf[3]&0x7f)
	return v, Len(uint64(v))
}
