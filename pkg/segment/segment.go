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

// Package segment drains a pending.Accumulator into an on-disk unit: a
// leveldb-backed term->doclist store plus a sidecar Bloom filter over
// the flushed terms. It deliberately stops there — no merging, no
// compaction, no B-tree of its own. Those belong to a real segment
// format, which is out of scope here.
package segment

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"go4.org/jsonconfig"

	"github.com/mpl/ftspending/pkg/pending"
	"github.com/mpl/ftspending/pkg/sorted"
	"github.com/mpl/ftspending/pkg/sorted/buffer"
	ldbkv "github.com/mpl/ftspending/pkg/sorted/leveldb"
	"github.com/mpl/ftspending/pkg/varint"
)

// ErrNoFlush is returned by Flush when the accumulator is empty; there's
// nothing to write, and creating an empty segment directory would just
// confuse a later Lookup.
var ErrNoFlush = errors.New("segment: accumulator has no entries to flush")

// Backend names the physical sorted.KeyValue a Flush writes its terms
// into, resolved through sorted.NewKeyValue the same way pkg/sorted's
// own callers pick a backend from a jsonconfig.Obj.
const (
	BackendLevelDB = "leveldb"
	// BackendMemory is a dry-run backend: terms land in a process-local
	// sorted.KeyValue that's discarded when Flush returns, so a caller
	// gets Stats and an exercised Bloom filter without touching disk.
	// A later Lookup against dir will report every term absent, since
	// nothing was actually persisted.
	BackendMemory = "memory"
)

const (
	termsDBName       = "terms.ldb"
	bloomFilterName   = "terms.bloom"
	bloomFalsePosRate = 0.01

	// bufferFlushBytes caps how much of a Flush's batch is staged in
	// the in-memory write buffer before an early auto-flush to the
	// physical store; see pkg/sorted/buffer. Flush's own CommitBatch
	// is one shot, so in practice this only matters if a future caller
	// starts calling Set directly against the returned buffer.KeyValue.
	bufferFlushBytes = 1 << 20
)

// Stats summarizes a completed Flush.
type Stats struct {
	Terms int
	Docs  int
	Bytes int64
}

// Flush destructively drains acc (via its Iterate) into dir, creating:
//
//   - dir/terms.ldb: a leveldb database, one row per term, value is the
//     term's doclist re-expressed as (rowid-delta varint, framed
//     poslist) pairs concatenated in ascending rowid order — the same
//     shape the accumulator itself uses internally, just copied out of
//     memory and onto disk.
//   - dir/terms.bloom: a single Bloom filter over every flushed term,
//     sized from the accumulator's own entry count, so a caller can
//     skip opening the leveldb database for terms that are definitely
//     absent. One filter per flushed unit, same shape as an SST's
//     bloom block.
//
// Once the drain has started, acc is empty when Flush returns,
// successful or not: Iterate always drains. Errors from creating dir or
// opening the backend are returned before the drain and leave acc
// untouched.
//
// backendType selects the physical store via sorted.NewKeyValue
// (BackendLevelDB or BackendMemory); the empty string defaults to
// BackendLevelDB.
func Flush(acc *pending.Accumulator, dir string, backendType string) (stats *Stats, err error) {
	n := acc.EntryCount()
	if n == 0 {
		return nil, ErrNoFlush
	}
	if backendType == "" {
		backendType = BackendLevelDB
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var cfg jsonconfig.Obj
	switch backendType {
	case BackendLevelDB:
		cfg = jsonconfig.Obj{"type": BackendLevelDB, "file": filepath.Join(dir, termsDBName)}
	case BackendMemory:
		cfg = jsonconfig.Obj{"type": BackendMemory}
	default:
		return nil, fmt.Errorf("segment: unknown backend %q", backendType)
	}
	physical, err := sorted.NewKeyValue(cfg)
	if err != nil {
		return nil, err
	}
	// Writes are staged in an in-memory buffer and flushed to the
	// physical store as one batch on Close, the way pkg/sorted/buffer
	// is meant to front a slower backing store during a bulk load.
	kv := buffer.New(sorted.NewMemoryKeyValue(), physical, bufferFlushBytes)
	defer kv.Close()

	w := &flushWriter{
		batch: kv.BeginBatch(),
		bloom: bloom.NewWithEstimates(uint(n), bloomFalsePosRate),
	}
	if err := acc.Iterate(w); err != nil {
		return nil, err
	}
	if err := w.finishTerm(); err != nil {
		return nil, err
	}
	if err := kv.CommitBatch(w.batch); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, bloomFilterName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if _, err := w.bloom.WriteTo(bw); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}

	return &Stats{Terms: w.terms, Docs: w.docs, Bytes: w.bytes}, nil
}

// flushWriter implements pending.Sink, re-framing each drained term's
// documents into the on-disk value format described in Flush.
type flushWriter struct {
	batch sorted.BatchMutation
	bloom *bloom.BloomFilter

	term      []byte
	buf       []byte
	haveRowid bool
	lastRowid int64

	terms int
	docs  int
	bytes int64
}

func (w *flushWriter) OnTerm(term []byte) error {
	w.term = append(w.term[:0:0], term...)
	w.buf = w.buf[:0]
	w.haveRowid = false
	return nil
}

func (w *flushWriter) OnDoc(rowid int64, framed []byte) error {
	var delta uint64
	if !w.haveRowid {
		delta = uint64(rowid)
		w.haveRowid = true
	} else {
		delta = uint64(rowid - w.lastRowid)
	}
	w.lastRowid = rowid

	var tmp [varint.MaxLen]byte
	n := varint.PutUvarint(tmp[:], delta)
	w.buf = append(w.buf, tmp[:n]...)
	w.buf = append(w.buf, framed...)
	w.docs++
	return nil
}

func (w *flushWriter) OnTermEnd() error {
	return w.finishTerm()
}

// finishTerm commits the term currently being accumulated, if any. It's
// idempotent: called once per OnTermEnd, and once more at the end of
// Flush as a no-op safety net in case Iterate ever stops calling
// OnTermEnd for the final term (it doesn't, but the guard is free).
func (w *flushWriter) finishTerm() error {
	if w.term == nil {
		return nil
	}
	w.batch.Set(string(w.term), string(w.buf))
	w.bloom.Add(w.term)
	w.terms++
	w.bytes += int64(len(w.term) + len(w.buf))
	w.term = nil
	return nil
}

// Lookup opens the segment at dir and returns the raw (rowid-delta,
// framed-poslist) encoded doclist for term, consulting the Bloom
// filter first so an absent term costs no leveldb lookup at all.
func Lookup(dir string, term []byte) (doclist []byte, found bool, err error) {
	f, err := os.Open(filepath.Join(dir, bloomFilterName))
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, false, err
	}
	if !filter.Test(term) {
		return nil, false, nil
	}

	kv, err := ldbkv.NewStorage(filepath.Join(dir, termsDBName))
	if err != nil {
		return nil, false, err
	}
	defer kv.Close()

	v, err := kv.Get(string(term))
	if err == sorted.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(v), true, nil
}
