/*
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

package varint

import "testing"

func TestRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 2, 0x7f, 0x80, 0x3fff, 0x4000,
		1 << 21, 1<<21 - 1, 1 << 28, 1 << 35, 1 << 42, 1 << 49,
		1<<56 - 1, 1 << 56, 1<<63 - 1, 1<<64 - 1,
	}
	for _, v := range values {
		buf := make([]byte, MaxLen)
		n := PutUvarint(buf, v)
		if got := Len(v); got != n {
			t.Errorf("Len(%d) = %d, PutUvarint wrote %d bytes", v, got, n)
		}
		got, n2 := Uvarint(buf)
		if n2 != n {
			t.Errorf("Uvarint consumed %d bytes, want %d (v=%d)", n2, n, v)
		}
		if got != v {
			t.Errorf("round trip %d -> %x -> %d", v, buf[:n], got)
		}
	}
}

func TestContinuationBits(t *testing.T) {
	// Every byte but the last must have its high bit set; the last
	// byte (whether 7 or 8 data bits) must not, except in the 9-byte
	// case where the final byte is a raw 8-bit byte that may
	// legitimately have its high bit set as data.
	buf := make([]byte, MaxLen)
	n := PutUvarint(buf, 1<<40+12345)
	for i := 0; i < n-1; i++ {
		if buf[i]&0x80 == 0 {
			t.Fatalf("byte %d of %x lacks continuation bit", i, buf[:n])
		}
	}
	if buf[n-1]&0x80 != 0 {
		t.Fatalf("final byte of %x has continuation bit set", buf[:n])
	}
}

func TestNineByteForm(t *testing.T) {
	buf := make([]byte, MaxLen)
	n := PutUvarint(buf, 1<<63|42)
	if n != 9 {
		t.Fatalf("expected 9-byte encoding, got %d", n)
	}
	got, n2 := Uvarint(buf)
	if n2 != 9 || got != 1<<63|42 {
		t.Fatalf("decode = %d, %d; want %d, 9", got, n2, uint64(1<<63|42))
	}
}

func TestFixed4(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 1 << 20, 1<<28 - 1} {
		buf := make([]byte, Len4)
		PutUvarint4(buf, v)
		for i := 0; i < 3; i++ {
			if buf[i]&0x80 == 0 {
				t.Fatalf("fixed4 byte %d of %d missing continuation bit", i, v)
			}
		}
		got, natural := Uvarint4(buf)
		if got != v {
			t.Fatalf("Uvarint4(%x) = %d, want %d", buf, got, v)
		}
		if want := Len(uint64(v)); natural != want {
			t.Fatalf("natural length for %d = %d, want %d", v, natural, want)
		}
	}
}

func TestBackpatchDoesNotShift(t *testing.T) {
	// Writing a new value into an existing 4-byte slot must not change
	// the length of the buffer around it.
	buf := make([]byte, 10)
	PutUvarint4(buf[2:6], 0)
	tail := append([]byte{}, buf[6:]...)
	PutUvarint4(buf[2:6], 1<<20+7)
	for i := range tail {
		if buf[6+i] != tail[i] {
			t.Fatalf("back-patch shifted trailing byte %d", i)
		}
	}
}
