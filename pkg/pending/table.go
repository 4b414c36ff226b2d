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

import "errors"

// ErrOutOfMemory is returned by Write, ScanInit, and Iterate when an
// allocation fails. The table is left in a valid, if partial, state:
// any entry that already existed keeps its pre-growth contents.
var ErrOutOfMemory = errors.New("pending: out of memory")

const initialSlotCount = 1024

// bucket is one slot's chain of entries.
type bucket struct {
	head *node
}

type node struct {
	entry *Entry
	hash  uint64
	next  *node
}

// Accumulator is the pending-terms hash table. It owns every Entry it
// creates; entries never outlive the Accumulator that made them.
type Accumulator struct {
	slots      []bucket
	entryCount int

	byteCounter *int64 // externally owned; see §4.4 in the design doc

	cursor *cursor // non-nil while a scan is in progress (cursor mode)
}

// New creates an empty Accumulator. byteCounter is a borrowed pointer
// to an externally-owned byte accountant: every write that changes an
// entry's payload length adjusts *byteCounter by the delta. The
// Accumulator is its sole author for as long as it's registered;
// clearing or draining the table leaves the counter unchanged, so
// resetting it after a flush is up to the owner.
func New(byteCounter *int64) *Accumulator {
	return NewWithSlots(byteCounter, initialSlotCount)
}

// NewWithSlots is like New but starts the table with slotCount slots
// instead of the default. slotCount is rounded up to the next power of
// two (minimum 1); this is the knob the demo CLI exposes through its
// jsonconfig so a caller with a good estimate of its term count can
// avoid the early rehashes New's default would otherwise pay for.
func NewWithSlots(byteCounter *int64, slotCount int) *Accumulator {
	n := 1
	for n < slotCount {
		n <<= 1
	}
	return &Accumulator{
		slots:       make([]bucket, n),
		byteCounter: byteCounter,
	}
}

func hashKey(key []byte) uint64 {
	var h uint64 = 13
	for i := len(key) - 1; i >= 0; i-- {
		h = (h << 3) ^ h ^ uint64(key[i])
	}
	return h
}

func keyEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (a *Accumulator) slotFor(hash uint64) int {
	return int(hash % uint64(len(a.slots)))
}

// find walks the bucket chain for key, returning the node or nil.
func (a *Accumulator) find(key []byte, hash uint64) *node {
	for n := a.slots[a.slotFor(hash)].head; n != nil; n = n.next {
		if n.hash == hash && keyEqual(n.entry.Key(), key) {
			return n
		}
	}
	return nil
}

// maybeResize doubles the slot array when entryCount*2 >= len(slots),
// checked immediately before a new entry is inserted, keeping the load
// factor at or below 0.5 after every write.
func (a *Accumulator) maybeResize() {
	if a.entryCount*2 < len(a.slots) {
		return
	}
	old := a.slots
	a.slots = make([]bucket, len(old)*2)
	for _, b := range old {
		for n := b.head; n != nil; {
			next := n.next
			idx := a.slotFor(n.hash)
			n.next = a.slots[idx].head
			a.slots[idx].head = n
			n = next
		}
	}
}

func (a *Accumulator) addByteDelta(delta int) {
	if a.byteCounter != nil {
		*a.byteCounter += int64(delta)
	}
}

// Write locates or creates the Entry for term and appends one
// delta-encoded position record to its doclist. A negative column
// marks a deletion/tombstone record. Writes within a single term must
// present rowids in non-decreasing order, columns in non-decreasing
// order within a rowid, and strictly increasing positions within a
// (rowid, column) — Write does not validate this; it is the caller's
// contract.
//
// Write invalidates any in-progress cursor scan, exactly like a fresh
// ScanInit would: a cursor only makes sense against a stable snapshot
// of keys, and a concurrent mutation (impossible under the
// single-threaded contract, but also triggered by interleaving Write
// between ScanInit and ScanNext) must not be load-bearing for
// correctness, so we simply drop it.
func (a *Accumulator) Write(rowid int64, column, position int32, term []byte) (err error) {
	defer recoverOOM(&err)
	a.cursor = nil
	hash := hashKey(term)
	n := a.find(term, hash)
	if n == nil {
		a.maybeResize()
		e := newEntry(term)
		before := e.Len()
		e.Write(rowid, column, position)
		a.addByteDelta(e.Len() - before)
		idx := a.slotFor(hash)
		n = &node{entry: e, hash: hash, next: a.slots[idx].head}
		a.slots[idx].head = n
		a.entryCount++
		return nil
	}
	before := n.entry.Len()
	n.entry.Write(rowid, column, position)
	a.addByteDelta(n.entry.Len() - before)
	return nil
}

// PointQuery returns a borrowed view of the doclist bytes for term, or
// (nil, false) if term was never written. The final poslist's size
// slot is back-patched before returning. PointQuery never modifies the
// table's structure.
func (a *Accumulator) PointQuery(term []byte) ([]byte, bool) {
	n := a.find(term, hashKey(term))
	if n == nil {
		return nil, false
	}
	n.entry.backpatch()
	return n.entry.Payload(), true
}

// EntryCount returns the number of distinct terms currently held.
func (a *Accumulator) EntryCount() int { return a.entryCount }

// Clear drops every entry, releasing the table to the same state New
// returns (aside from slot count, which is never shrunk). The byte
// counter is left untouched; a caller using it as a flush trigger is
// responsible for resetting it once the drain it was triggering on has
// actually been acted on.
func (a *Accumulator) Clear() {
	for i := range a.slots {
		a.slots[i] = bucket{}
	}
	a.entryCount = 0
	a.cursor = nil
}
