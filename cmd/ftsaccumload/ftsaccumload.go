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

// Command ftsaccumload is a demo loader for the pending-terms
// accumulator: it reads a newline-delimited token stream, shards the
// tokens across N independent accumulators driven in parallel, and
// flushes each one to its own on-disk segment directory.
//
// Input lines look like:
//
//	<rowid> <column> <position> <term>
//
// one posting per line, e.g.:
//
//	1 0 0 quick
//	1 0 1 brown
//	3 0 0 quick
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go4.org/jsonconfig"
	"go4.org/syncutil"

	"github.com/mpl/ftspending/pkg/pending"
	"github.com/mpl/ftspending/pkg/segment"
)

var (
	flagInput   = flag.String("input", "-", "Input token stream file, or - for stdin.")
	flagOut     = flag.String("out", "", "Output directory; each accumulator flushes to out/shard-N.")
	flagConfig  = flag.String("config", "", "Optional jsonconfig file overriding -tables, -slots and -backend.")
	flagTables  = flag.Int("tables", 4, "Number of independent accumulators to shard across.")
	flagSlots   = flag.Int("slots", 1024, "Initial slot count for each accumulator's hash table.")
	flagBackend = flag.String("backend", segment.BackendLevelDB, "Flush backend: leveldb, or memory for a dry run that reports Stats without touching disk.")
)

// loadConfig applies an optional jsonconfig file on top of the flag
// defaults, the way pkg/sorted's backends take their settings from a
// jsonconfig.Obj rather than parsing flags themselves.
func loadConfig(tables, slots *int, backend *string) error {
	if *flagConfig == "" {
		return nil
	}
	cfg, err := jsonconfig.ReadFile(*flagConfig)
	if err != nil {
		return fmt.Errorf("reading %s: %v", *flagConfig, err)
	}
	*tables = cfg.OptionalInt("tables", *tables)
	*slots = cfg.OptionalInt("slots", *slots)
	*backend = cfg.OptionalString("backend", *backend)
	return cfg.Validate()
}

type posting struct {
	rowid       int64
	column, pos int32
	term        string
}

func parsePosting(line string) (posting, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return posting{}, fmt.Errorf("want 4 fields, got %d", len(fields))
	}
	rowid, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return posting{}, fmt.Errorf("bad rowid: %v", err)
	}
	column, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return posting{}, fmt.Errorf("bad column: %v", err)
	}
	pos, err := strconv.ParseInt(fields[2], 10, 32)
	if err != nil {
		return posting{}, fmt.Errorf("bad position: %v", err)
	}
	return posting{rowid: rowid, column: int32(column), pos: int32(pos), term: fields[3]}, nil
}

func main() {
	flag.Parse()
	if *flagOut == "" {
		exitf("-out is required")
	}
	tables, slots, backend := *flagTables, *flagSlots, *flagBackend
	if err := loadConfig(&tables, &slots, &backend); err != nil {
		exitf("%v", err)
	}
	if tables < 1 {
		exitf("-tables must be >= 1")
	}
	switch backend {
	case segment.BackendLevelDB, segment.BackendMemory:
	default:
		exitf("-backend must be %q or %q, got %q", segment.BackendLevelDB, segment.BackendMemory, backend)
	}

	in := os.Stdin
	if *flagInput != "-" {
		f, err := os.Open(*flagInput)
		if err != nil {
			exitf("%v", err)
		}
		defer f.Close()
		in = f
	}

	byteCounters := make([]int64, tables)
	accs := make([]*pending.Accumulator, tables)
	for i := range accs {
		accs[i] = pending.NewWithSlots(&byteCounters[i], slots)
	}

	lineNo := 0
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		p, err := parsePosting(line)
		if err != nil {
			exitf("line %d: %v", lineNo, err)
		}
		shard := int(uint64(p.rowid) % uint64(tables))
		if err := accs[shard].Write(p.rowid, p.column, p.pos, []byte(p.term)); err != nil {
			exitf("line %d: %v", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		exitf("reading input: %v", err)
	}

	if err := os.MkdirAll(*flagOut, 0o755); err != nil {
		exitf("%v", err)
	}

	// Each accumulator is independent (spec: distinct accumulators in
	// the same process may be driven in parallel); each Group member
	// owns exactly one end-to-end, write-then-drain.
	var grp syncutil.Group
	for i, acc := range accs {
		i, acc := i, acc
		grp.Go(func() error {
			dir := filepath.Join(*flagOut, fmt.Sprintf("shard-%d", i))
			stats, err := segment.Flush(acc, dir, backend)
			if err == segment.ErrNoFlush {
				log.Printf("shard %d: empty, nothing flushed", i)
				return nil
			}
			if err != nil {
				return fmt.Errorf("shard %d: %v", i, err)
			}
			log.Printf("shard %d: flushed %d terms, %d docs, %d bytes to %s", i, stats.Terms, stats.Docs, stats.Bytes, dir)
			return nil
		})
	}
	if err := grp.Err(); err != nil {
		exitf("%v", err)
	}
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
