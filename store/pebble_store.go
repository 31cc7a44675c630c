// Copyright 2024 The gethimport Authors
// This file is part of gethimport.
//
// gethimport is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// gethimport is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with gethimport. If not, see <http://www.gnu.org/licenses/>.

// Package store provides the destination side of an import: a Pebble-backed
// key/value engine distinct from the LevelDB source, so an import always
// exercises two independent on-disk formats rather than copying bytes
// between two instances of the same one.
package store

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/log"

	"github.com/lithp/gethimport/rawdb"
	"github.com/lithp/gethimport/trie"
)

// Store is a Pebble-backed key/value engine implementing both
// trie.Destination (for CopyOnReadDB) and rawdb.KeyValueRangeStore (for
// anything that wants to range-scan the destination the way it range-scans
// a source LiveStore, e.g. diagnostics).
type Store struct {
	db *pebble.DB
}

// Open opens (creating if necessary) a Pebble store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble store at %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements trie.Destination: a miss is reported as
// trie.ErrDestinationMiss so CopyOnReadDB can fall through to its source.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, trie.ErrDestinationMiss
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

// Put implements trie.Destination and the write half of
// rawdb.KeyValueRangeStore.
func (s *Store) Put(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

// Range satisfies rawdb.KeyValueRangeStore: [start,stop] inclusive, in
// ascending key order.
func (s *Store) Range(start, stop []byte, fn func(key, value []byte) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: start})
	if err != nil {
		return err
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		if bytes.Compare(key, stop) > 0 {
			break
		}
		if !fn(append([]byte(nil), key...), append([]byte(nil), iter.Value()...)) {
			break
		}
	}
	return iter.Error()
}

// Compactor is the narrow interface the "compact" CLI subcommand needs:
// anything that can fold its write-ahead state into a compacted on-disk
// form.
type Compactor interface {
	Compact() error
}

// Compact folds the entire keyspace into Pebble's compacted form,
// mirroring gethimport.py's leveldb.compact_range() call.
func (s *Store) Compact() error {
	log.Info("compacting destination store")
	upper := bytes.Repeat([]byte{0xff}, 32)
	return s.db.Compact(nil, upper, true)
}

var (
	_ trie.Destination         = (*Store)(nil)
	_ rawdb.KeyValueRangeStore = (*Store)(nil)
	_ Compactor                = (*Store)(nil)
)
