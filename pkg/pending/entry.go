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

package pending

import "github.com/mpl/ftspending/pkg/varint"

// SizeSlot is the byte offset, within an Entry's payload, of the
// 4-byte back-patched length of the document whose poslist is
// currently open. It is the only offset anyone is allowed to write
// into out of stream order; every other mutation of an Entry's buffer
// happens by appending.
type SizeSlot int

const (
	minInitialCap = 128
	growthSlack   = 64
	// lowWaterMark is the minimum free tail space an Entry must keep
	// after every write: the worst case single write appends a 9-byte
	// rowid delta, a 4-byte size slot, a 1-byte column marker, a
	// 3-byte column number and a 5-byte position, 22 bytes total.
	lowWaterMark = 22
)

// columnDeleted marks a write as a deletion/tombstone record: the
// column/position encoding is skipped and only the rowid-delta and
// size-slot bookkeeping happens.
const columnDeleted = -1

// Entry is the per-term doclist encoder described in the accumulator's
// data model: an append-only byte buffer of (rowid-delta,
// position-list, poslist-size) tuples, plus the cursor state needed to
// delta-encode the next write.
type Entry struct {
	key []byte // immutable after creation

	buf []byte // doclist payload; len(buf) is the "length" field

	hasDoc   bool // false only before the first write
	sizeSlot SizeSlot

	lastRowid    int64
	lastColumn   int32
	lastPosition int32
}

// newEntry allocates an empty Entry for key. The buffer starts large
// enough for a short key plus one typical document without needing an
// immediate reallocation; key itself is never stored in the buffer, so
// unlike the packed on-disk layout this accumulator mirrors, the
// payload doesn't need a header/key offset of its own.
func newEntry(key []byte) *Entry {
	initCap := len(key) + 1 + growthSlack
	if initCap < minInitialCap {
		initCap = minInitialCap
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Entry{
		key: k,
		buf: make([]byte, 0, initCap),
	}
}

// Key returns the term this Entry encodes. The slice must not be
// modified or retained past the Entry's lifetime.
func (e *Entry) Key() []byte { return e.key }

// Len returns the number of bytes currently used in the payload.
func (e *Entry) Len() int { return len(e.buf) }

// Payload returns the finalized or lazily-finalizable doclist bytes
// accumulated so far. Callers that need the final poslist-size slot
// correct must call backpatch first (PointQuery and ScanEntry do this
// for you).
func (e *Entry) Payload() []byte { return e.buf }

// growIfNeeded doubles the buffer's capacity whenever fewer than
// lowWaterMark bytes of free tail space remain, which is always enough
// room for the worst-case single write. Re-slicing into a fresh
// backing array preserves the Entry's identity as seen by the hash
// table: callers hold a stable *Entry, never a raw pointer into buf.
func (e *Entry) growIfNeeded() {
	if cap(e.buf)-len(e.buf) >= lowWaterMark {
		return
	}
	newCap := cap(e.buf) * 2
	if newCap < minInitialCap {
		newCap = minInitialCap
	}
	nb := make([]byte, len(e.buf), newCap)
	copy(nb, e.buf)
	e.buf = nb
}

func (e *Entry) appendVarint(v uint64) {
	var tmp [varint.MaxLen]byte
	n := varint.PutUvarint(tmp[:], v)
	e.buf = append(e.buf, tmp[:n]...)
}

// backpatch writes the finalized length of the currently-open poslist
// into its size slot. It is idempotent: callers may invoke it any
// number of times (PointQuery and ScanEntry both do, lazily) and it
// always recomputes from the buffer's current length.
func (e *Entry) backpatch() {
	if !e.hasDoc {
		return
	}
	sz := uint32(len(e.buf) - int(e.sizeSlot) - varint.Len4)
	varint.PutUvarint4(e.buf[e.sizeSlot:e.sizeSlot+varint.Len4], sz)
}

// startDoc finalizes the previous document's poslist (if any), then
// opens a new one for rowid: appends the rowid delta (absolute for the
// entry's first document, signed-non-negative difference otherwise)
// and reserves a fresh 4-byte size slot.
func (e *Entry) startDoc(rowid int64) {
	if e.hasDoc {
		e.backpatch()
		e.appendVarint(uint64(rowid - e.lastRowid))
	} else {
		e.appendVarint(uint64(rowid))
	}
	e.sizeSlot = SizeSlot(len(e.buf))
	e.buf = append(e.buf, make([]byte, varint.Len4)...)
	e.lastRowid = rowid
	e.lastColumn = 0
	e.lastPosition = 0
	e.hasDoc = true
}

// Write appends one position record to the doclist, applying the
// rowid/column/position delta encoding described in the data model. A
// negative column marks a deletion/tombstone: the rowid-delta and
// size-slot work still happens, but no poslist bytes are written for
// this call.
func (e *Entry) Write(rowid int64, column, position int32) {
	e.growIfNeeded()
	if !e.hasDoc || rowid != e.lastRowid {
		e.startDoc(rowid)
	}
	if column == columnDeleted || column < 0 {
		return
	}
	if column != e.lastColumn {
		e.growIfNeeded()
		e.buf = append(e.buf, 0x01)
		e.appendVarint(uint64(column))
		e.lastColumn = column
		e.lastPosition = 0
	}
	e.growIfNeeded()
	e.appendVarint(uint64(position-e.lastPosition) + 2)
	e.lastPosition = position
}
