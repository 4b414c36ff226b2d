/*
Copyright 2011 Google Inc.
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

package sorted

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb/comparer"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/memdb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go4.org/jsonconfig"
)

// NewMemoryKeyValue returns a KeyValue implementation that's backed only
// by memory. Besides tests, pkg/segment uses it as the front of its
// write buffer and as the BackendMemory store.
func NewMemoryKeyValue() KeyValue {
	db := memdb.New(comparer.DefaultComparer, 0)
	return &memKeys{db: db}
}

// memKeys is a simple in-memory implementation of KeyValue; nothing it
// holds survives the process.
type memKeys struct {
	mu sync.Mutex // guards db
	db *memdb.DB
}

// memIter converts from goleveldb's iterator.Iterator interface, which
// operates on []byte, to this package's Iterator, which operates on
// string.
type memIter struct {
	it   iterator.Iterator
	k, v *string // if nil, not stringified yet
}

func (t *memIter) Next() bool {
	t.k, t.v = nil, nil
	return t.it.Next()
}

func (s *memIter) Close() error {
	if s.it == nil {
		// Already closed.
		return nil
	}
	s.it.Release()
	s.it = nil
	return nil
}

func (s *memIter) KeyBytes() []byte {
	return s.it.Key()
}

func (s *memIter) ValueBytes() []byte {
	return s.it.Value()
}

func (s *memIter) Key() string {
	if s.k != nil {
		return *s.k
	}
	str := string(s.KeyBytes())
	s.k = &str
	return str
}

func (s *memIter) Value() string {
	if s.v != nil {
		return *s.v
	}
	str := string(s.ValueBytes())
	s.v = &str
	return str
}

func (mk *memKeys) Get(key string) (string, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	v, err := mk.db.Get([]byte(key))
	if err != nil {
		return "", ErrNotFound
	}
	return string(v), nil
}

func (mk *memKeys) Find(start, end string) Iterator {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	var r util.Range
	if start != "" {
		r.Start = []byte(start)
	}
	if end != "" {
		r.Limit = []byte(end)
	}
	return &memIter{it: mk.db.NewIterator(&r)}
}

func (mk *memKeys) Set(key, value string) error {
	if err := CheckSizes(key, value); err != nil {
		return err
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.db.Put([]byte(key), []byte(value))
}

func (mk *memKeys) Delete(key string) error {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	err := mk.db.Delete([]byte(key))
	if err == memdb.ErrNotFound {
		return nil
	}
	return err
}

func (mk *memKeys) BeginBatch() BatchMutation {
	return &batch{}
}

func (mk *memKeys) CommitBatch(bm BatchMutation) error {
	b, ok := bm.(*batch)
	if !ok {
		return errors.New("invalid batch type; not an instance returned by BeginBatch")
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	for _, m := range b.Mutations() {
		if m.IsDelete() {
			if err := mk.db.Delete([]byte(m.Key())); err != nil && err != memdb.ErrNotFound {
				return err
			}
		} else {
			if err := CheckSizes(m.Key(), m.Value()); err != nil {
				return err
			}
			if err := mk.db.Put([]byte(m.Key()), []byte(m.Value())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (mk *memKeys) Close() error { return nil }

func init() {
	RegisterKeyValue("memory", func(cfg jsonconfig.Obj) (KeyValue, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return NewMemoryKeyValue(), nil
	})
}
