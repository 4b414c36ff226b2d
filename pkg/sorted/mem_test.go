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

package sorted_test

import (
	"testing"

	"github.com/mpl/ftspending/pkg/sorted"
)

func TestMemoryKV(t *testing.T) {
	kv := sorted.NewMemoryKeyValue()
	defer kv.Close()

	if err := kv.Set("b", "2"); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set("c", "3"); err != nil {
		t.Fatal(err)
	}

	if v, err := kv.Get("a"); err != nil || v != "1" {
		t.Fatalf("Get(a) = %q, %v; want 1, nil", v, err)
	}
	if _, err := kv.Get("missing"); err != sorted.ErrNotFound {
		t.Fatalf("Get(missing) err = %v; want ErrNotFound", err)
	}

	var got []string
	it := kv.Find("", "")
	for it.Next() {
		got = append(got, it.Key()+"="+it.Value())
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	want := []string{"a=1", "b=2", "c=3"}
	if len(got) != len(want) {
		t.Fatalf("Find(\"\",\"\") = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Find(\"\",\"\")[%d] = %q; want %q", i, got[i], want[i])
		}
	}

	if err := kv.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := kv.Get("b"); err != sorted.ErrNotFound {
		t.Fatalf("Get(b) after Delete err = %v; want ErrNotFound", err)
	}

	bm := kv.BeginBatch()
	bm.Set("d", "4")
	bm.Delete("a")
	if err := kv.CommitBatch(bm); err != nil {
		t.Fatal(err)
	}
	if v, err := kv.Get("d"); err != nil || v != "4" {
		t.Fatalf("Get(d) after batch = %q, %v; want 4, nil", v, err)
	}
	if _, err := kv.Get("a"); err != sorted.ErrNotFound {
		t.Fatalf("Get(a) after batch delete err = %v; want ErrNotFound", err)
	}
}

func TestMemoryKV_Oversize(t *testing.T) {
	kv := sorted.NewMemoryKeyValue()
	defer kv.Close()

	big := make([]byte, sorted.MaxKeySize+1)
	if err := kv.Set(string(big), "v"); err != sorted.ErrKeyTooLarge {
		t.Fatalf("Set with oversize key err = %v; want ErrKeyTooLarge", err)
	}
}

// TODO(mpl): move this test into a shared conformance helper if more
// than one backend needs it.
func TestMemoryKV_DoubleClose(t *testing.T) {
	kv := sorted.NewMemoryKeyValue()

	it := kv.Find("", "")
	it.Close()
	it.Close()

	kv.Close()
	kv.Close()
}
