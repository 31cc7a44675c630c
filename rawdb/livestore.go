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

package rawdb

import (
	"bytes"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// KeyValueRangeStore is the minimal contract §4.C asks of the live
// key/value tier: point lookups plus a half-open... really closed,
// [start,stop]-inclusive, range scan used by sweep_state. Any sorted
// engine can implement it; LiveStore is the concrete adapter over geth's
// own on-disk format (a LevelDB directory).
type KeyValueRangeStore interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	// Range calls fn for every (key, value) pair with start <= key <= stop,
	// in ascending key order, stopping early if fn returns false.
	Range(start, stop []byte, fn func(key, value []byte) bool) error
}

// LiveStore wraps a read-only (from this tool's point of view) LevelDB
// directory, the "live" half of a geth node's chaindata. Puts are
// supported so the same type can double as a destination store.
type LiveStore struct {
	db *leveldb.DB
}

// OpenLiveStore opens the LevelDB directory at path. readOnly guards
// against accidentally mutating a source database that's still owned by a
// running geth node.
func OpenLiveStore(path string, readOnly bool) (*LiveStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("opening leveldb at %q: %w", path, err)
	}
	return &LiveStore{db: db}, nil
}

func (s *LiveStore) Close() error {
	return s.db.Close()
}

// Get returns ErrNotFound (in place of leveldb.ErrNotFound) on a miss, so
// callers can use errors.Is uniformly across LiveStore and FreezerTable
// fallbacks.
func (s *LiveStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *LiveStore) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

// Range iterates [start, stop] inclusive, matching gethimport.py's
// sweep_state iterator (include_start=True, include_stop=True).
func (s *LiveStore) Range(start, stop []byte, fn func(key, value []byte) bool) error {
	iter := s.db.NewIterator(&util.Range{Start: start}, nil)
	defer iter.Release()

	for iter.Next() {
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
