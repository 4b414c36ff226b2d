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

/*
Package pending implements the pending-terms accumulator for one
write transaction against an inverted full-text index.

	Write(rowid, col, pos, term) ──▶ hash(term) ──▶ bucket chain ──▶ Entry.Write
	                                                                     │
	PointQuery(term) ───────────────────────────────────────────────────┤ backpatch + borrow
	                                                                     │
	Iterate(sink) / ScanInit+ScanNext ──▶ collectSorted ──▶ 32-slot merge┘

An Entry is the only thing that ever grows; the table only ever adds
or drops whole Entries.

The accumulator is not safe for concurrent use; every operation on a
given Accumulator must be called from a single goroutine. Distinct
Accumulators are fully independent and may be driven concurrently.
*/
package pending
