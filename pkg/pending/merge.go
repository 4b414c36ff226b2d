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

// mergeSlotCount is the number of auxiliary holders used by the
// binary-lifting merge below: enough for 2^32-1 entries, which is far
// beyond anything a single transaction's pending-terms table will
// ever hold.
const mergeSlotCount = 32

// scanNode is one link in the sorted singly-linked list produced by
// collectSorted. It's a separate type from the table's bucket chain
// node so the merge never has to fight over a "next" pointer that
// bucket rehashing also wants to own.
type scanNode struct {
	entry *Entry
	next  *scanNode
}

// compareKeys orders two keys by unsigned byte lexicographic value; a
// strict prefix of the other key is the smaller of the two.
func compareKeys(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func hasPrefix(key, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(key) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if key[i] != p {
			return false
		}
	}
	return true
}

// mergeLists stably merges two key-ordered lists into one. Stability
// doesn't matter here (keys are unique within a table), but the merge
// itself must still be a plain ascending-key merge.
func mergeLists(a, b *scanNode) *scanNode {
	var head, tail *scanNode
	push := func(n *scanNode) {
		if tail == nil {
			head, tail = n, n
			return
		}
		tail.next = n
		tail = n
	}
	for a != nil && b != nil {
		if compareKeys(a.entry.Key(), b.entry.Key()) <= 0 {
			push(a)
			a = a.next
		} else {
			push(b)
			b = b.next
		}
	}
	for a != nil {
		push(a)
		a = a.next
	}
	for b != nil {
		push(b)
		b = b.next
	}
	if tail != nil {
		tail.next = nil
	}
	return head
}

// collectSorted walks every bucket exactly once, builds a singleton
// list for each entry whose key starts with prefix, and folds them
// together with a bottom-up (binary-lifting) merge: level i of
// mergeSlots always holds either nothing or a sorted list of exactly
// 2^i entries. This avoids both a second counting pass over the table
// and a single contiguous sort buffer, at the cost of O(log n)
// auxiliary slots.
func (a *Accumulator) collectSorted(prefix []byte) *scanNode {
	var slots [mergeSlotCount]*scanNode
	for _, b := range a.slots {
		for n := b.head; n != nil; n = n.next {
			if !hasPrefix(n.entry.Key(), prefix) {
				continue
			}
			item := &scanNode{entry: n.entry}
			i := 0
			for slots[i] != nil {
				item = mergeLists(slots[i], item)
				slots[i] = nil
				i++
			}
			slots[i] = item
		}
	}
	var result *scanNode
	for i := 0; i < mergeSlotCount; i++ {
		if slots[i] == nil {
			continue
		}
		if result == nil {
			result = slots[i]
		} else {
			result = mergeLists(result, slots[i])
		}
	}
	return result
}

// Sink receives the drained contents of an Accumulator from Iterate.
// Each method returns a status; the first non-nil error aborts the
// drain. Entries already emitted are gone; entries not yet emitted are
// still dropped (and thus eventually collected) before Iterate
// returns, so an aborted drain never leaks entries back into the
// table.
type Sink interface {
	OnTerm(term []byte) error
	OnDoc(rowid int64, framedPoslist []byte) error
	OnTermEnd() error
}

// decodeDocs walks one entry's finalized doclist payload document by
// document, recovering the absolute rowid of each (the first is
// stored absolute, the rest as deltas) and re-presenting each
// document's bytes as the framed [size-varint || poslist] pair the
// on-disk format wants — which, since every poslist in this
// accumulator already sits directly after its own 4-byte size slot,
// is simply a subslice of the payload, not a re-encoding.
func decodeDocs(payload []byte, onDoc func(rowid int64, framed []byte) error) error {
	pos := 0
	var rowid int64
	first := true
	for pos < len(payload) {
		delta, n := varint.Uvarint(payload[pos:])
		pos += n
		if first {
			rowid = int64(delta)
			first = false
		} else {
			rowid += int64(delta)
		}
		sz, _ := varint.Uvarint4(payload[pos : pos+varint.Len4])
		end := pos + varint.Len4 + int(sz)
		framed := payload[pos:end]
		pos = end
		if err := onDoc(rowid, framed); err != nil {
			return err
		}
	}
	return nil
}

// Iterate destructively drains the table in ascending key order: every
// entry is emitted to sink (OnTerm, one OnDoc per document, then
// OnTermEnd) and the table is empty once Iterate returns, regardless
// of whether the sink aborted early.
func (a *Accumulator) Iterate(sink Sink) error {
	list, err := a.safeCollect(nil)
	if err != nil {
		return err
	}
	a.Clear()
	for n := list; n != nil; n = n.next {
		e := n.entry
		e.backpatch()
		if err := sink.OnTerm(e.Key()); err != nil {
			return err
		}
		if err := decodeDocs(e.Payload(), sink.OnDoc); err != nil {
			return err
		}
		if err := sink.OnTermEnd(); err != nil {
			return err
		}
	}
	return nil
}

// cursor holds the non-destructive sorted-scan state for ScanInit /
// ScanNext / ScanEOF / ScanEntry. It is never shared with Iterate's
// drain path.
type cursor struct {
	current *scanNode
}

// ScanInit builds (or rebuilds) a non-destructive cursor over every
// entry whose key starts with prefix (or every entry, if prefix is
// empty or nil), in ascending key order. A fresh ScanInit silently
// discards any cursor from a previous call — the safe, documented
// choice for what was otherwise left open by the source this
// accumulator's design is based on.
func (a *Accumulator) ScanInit(prefix []byte) error {
	list, err := a.safeCollect(prefix)
	if err != nil {
		return err
	}
	a.cursor = &cursor{current: list}
	return nil
}

// ScanEOF reports whether the cursor has no current entry, either
// because ScanInit matched nothing or because ScanNext has walked off
// the end of the list.
func (a *Accumulator) ScanEOF() bool {
	return a.cursor == nil || a.cursor.current == nil
}

// ScanEntry returns the current cursor entry's term and doclist bytes,
// back-patching its final poslist's size slot first. Both slices are
// borrowed views; they're invalidated by the next mutating call on the
// Accumulator. ScanEntry must not be called when ScanEOF is true.
func (a *Accumulator) ScanEntry() (term, doclist []byte) {
	e := a.cursor.current.entry
	e.backpatch()
	return e.Key(), e.Payload()
}

// ScanNext advances the cursor to the next matching entry.
func (a *Accumulator) ScanNext() {
	if a.cursor != nil && a.cursor.current != nil {
		a.cursor.current = a.cursor.current.next
	}
}
