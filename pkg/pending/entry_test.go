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

import (
	"testing"

	"github.com/mpl/ftspending/pkg/varint"
)

// decodedDoc mirrors one (rowid, poslist) pair for test assertions.
type decodedDoc struct {
	rowid   int64
	poslist []uint64 // raw varint values, column markers included as 1 followed by the column number
}

func decodeAll(t *testing.T, payload []byte) []decodedDoc {
	t.Helper()
	var docs []decodedDoc
	err := decodeDocs(payload, func(rowid int64, framed []byte) error {
		sz, _ := varint.Uvarint4(framed[:varint.Len4])
		body := framed[varint.Len4:]
		if len(body) != int(sz) {
			t.Fatalf("framed poslist length mismatch: header says %d, got %d bytes", sz, len(body))
		}
		var vals []uint64
		for pos := 0; pos < len(body); {
			v, n := varint.Uvarint(body[pos:])
			vals = append(vals, v)
			pos += n
		}
		docs = append(docs, decodedDoc{rowid: rowid, poslist: vals})
		return nil
	})
	if err != nil {
		t.Fatalf("decodeDocs: %v", err)
	}
	return docs
}

func TestEntrySingleDocSinglePosition(t *testing.T) {
	e := newEntry([]byte("hello"))
	e.Write(5, 0, 3)
	e.backpatch()
	docs := decodeAll(t, e.Payload())
	if len(docs) != 1 || docs[0].rowid != 5 {
		t.Fatalf("got %+v", docs)
	}
	if len(docs[0].poslist) != 1 || docs[0].poslist[0] != 5 { // 3 - 0 + 2
		t.Fatalf("poslist = %v, want [5]", docs[0].poslist)
	}
}

func TestEntryTwoDocsSameTerm(t *testing.T) {
	e := newEntry([]byte("cat"))
	e.Write(1, 0, 0)
	e.Write(1, 0, 4)
	e.Write(3, 0, 2)
	e.backpatch()
	docs := decodeAll(t, e.Payload())
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].rowid != 1 || docs[1].rowid != 3 { // stored as delta 3-1=2, decoded back to absolute 3
		t.Fatalf("rowids = %d, %d", docs[0].rowid, docs[1].rowid)
	}
	if got := docs[0].poslist; len(got) != 2 || got[0] != 2 || got[1] != 6 {
		t.Fatalf("doc0 poslist = %v, want [2 6]", got)
	}
	if got := docs[1].poslist; len(got) != 1 || got[0] != 4 {
		t.Fatalf("doc1 poslist = %v, want [4]", got)
	}
}

func TestEntryMultiColumn(t *testing.T) {
	e := newEntry([]byte("dog"))
	e.Write(7, 0, 1)
	e.Write(7, 2, 5)
	e.backpatch()
	docs := decodeAll(t, e.Payload())
	if len(docs) != 1 || docs[0].rowid != 7 {
		t.Fatalf("got %+v", docs)
	}
	want := []uint64{3, 1, 2, 7}
	got := docs[0].poslist
	if len(got) != len(want) {
		t.Fatalf("poslist = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("poslist = %v, want %v", got, want)
		}
	}
}

func TestEntryDeletionMarker(t *testing.T) {
	e := newEntry([]byte("x"))
	e.Write(9, -1, 0)
	e.backpatch()
	docs := decodeAll(t, e.Payload())
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	if docs[0].rowid != 9 {
		t.Fatalf("rowid = %d, want 9", docs[0].rowid)
	}
	if len(docs[0].poslist) != 0 {
		t.Fatalf("poslist = %v, want empty", docs[0].poslist)
	}
}

func TestEntryGrowthPreservesContent(t *testing.T) {
	e := newEntry([]byte("t"))
	for i := 0; i < 5000; i++ {
		e.Write(int64(i), 0, int32(i%50))
	}
	e.backpatch()
	docs := decodeAll(t, e.Payload())
	if len(docs) != 5000 {
		t.Fatalf("got %d docs, want 5000", len(docs))
	}
	for i, d := range docs {
		if d.rowid != int64(i) {
			t.Fatalf("doc %d rowid = %d", i, d.rowid)
		}
	}
}
