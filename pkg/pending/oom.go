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

import "runtime"

// recoverOOM turns a runtime allocation panic (the Go runtime's answer
// to a malloc failure, typically from make() being asked for an
// absurd or unsatisfiable size) into ErrOutOfMemory, matching this
// accumulator's one documented failure mode without pretending Go
// allocation failures are ordinary recoverable errors: anything that
// isn't a runtime.Error is re-panicked.
func recoverOOM(errp *error) {
	if r := recover(); r != nil {
		if _, ok := r.(runtime.Error); ok {
			*errp = ErrOutOfMemory
			return
		}
		panic(r)
	}
}

// safeCollect wraps collectSorted with the OOM recovery above: the
// merge allocates one scanNode per matching entry plus a handful of
// temporaries, and spec compliance requires that allocation failure
// there surface as ErrOutOfMemory rather than crash the process.
func (a *Accumulator) safeCollect(prefix []byte) (list *scanNode, err error) {
	defer recoverOOM(&err)
	list = a.collectSorted(prefix)
	return list, nil
}
