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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/golang/snappy"
)

// indexEntrySize is the on-disk size of one FreezerIndexEntry: a 2-byte
// file number followed by a 4-byte offset, both big endian.
const indexEntrySize = 6

// indexEntry is the decoded form of one 6-byte anchor in a table's index
// file. Entry i marks the start offset of item i; entry i+1 marks its end.
type indexEntry struct {
	filenum uint32 // stored on disk as 2 bytes, widened here for arithmetic
	offset  uint32
}

func (e *indexEntry) unmarshal(buf []byte) {
	e.filenum = uint32(binary.BigEndian.Uint16(buf[:2]))
	e.offset = binary.BigEndian.Uint32(buf[2:6])
}

// FreezerTable is a read-only view over one column of the ancient freezer:
// a packed index file of 6-byte anchors plus a sequence of numbered data
// shards, optionally snappy-compressed. It never writes to the source
// files; this reader only ever imports data out of a freezer, never into
// one.
type FreezerTable struct {
	name       string
	dir        string
	compressed bool

	entries uint64 // entries = index_size/6 - 1, the usable item count

	index *os.File

	lock      sync.Mutex
	dataFiles map[uint32]*os.File

	readMeter metrics.Meter
}

// indexFileName and dataFileName mirror the teacher's own naming convention: "<table>.<ext>" for
// the index, "<table>.NNNN.<ext>" for data shards, "c"-prefixed extensions
// when compressed.
func (t *FreezerTable) indexFileName() string {
	if t.compressed {
		return fmt.Sprintf("%s.cidx", t.name)
	}
	return fmt.Sprintf("%s.ridx", t.name)
}

func (t *FreezerTable) dataFileName(num uint32) string {
	if t.compressed {
		return fmt.Sprintf("%s.%04d.cdat", t.name, num)
	}
	return fmt.Sprintf("%s.%04d.rdat", t.name, num)
}

// OpenFreezerTable opens the named table inside dir (typically
// "<db_path>/ancient"). It fails with ErrCorrupt if the index size isn't a
// positive multiple of 6 (an empty, well-formed table still carries a
// single 6-byte terminator entry, per the open question in §9).
func OpenFreezerTable(dir, name string, compressed bool, readMeter metrics.Meter) (*FreezerTable, error) {
	t := &FreezerTable{
		name:       name,
		dir:        dir,
		compressed: compressed,
		dataFiles:  make(map[uint32]*os.File),
		readMeter:  readMeter,
	}
	idx, err := os.Open(filepath.Join(dir, t.indexFileName()))
	if err != nil {
		return nil, fmt.Errorf("%w: opening index for table %q: %v", ErrMissingShard, name, err)
	}
	stat, err := idx.Stat()
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("%w: stat index for table %q: %v", ErrCorrupt, name, err)
	}
	size := stat.Size()
	if size == 0 || size%indexEntrySize != 0 {
		idx.Close()
		return nil, fmt.Errorf("%w: table %q index size %d is not a positive multiple of %d", ErrCorrupt, name, size, indexEntrySize)
	}
	t.index = idx
	t.entries = uint64(size/indexEntrySize) - 1

	log.Info("Opened freezer table", "name", name, "compressed", compressed, "entries", t.entries)
	return t, nil
}

// Len returns the number of items in the table.
func (t *FreezerTable) Len() uint64 {
	return t.entries
}

// Close releases the index and every opened data shard.
func (t *FreezerTable) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	var firstErr error
	for _, f := range t.dataFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := t.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (t *FreezerTable) readAnchor(i uint64) (indexEntry, error) {
	var buf [indexEntrySize]byte
	if _, err := t.index.ReadAt(buf[:], int64(i)*indexEntrySize); err != nil {
		return indexEntry{}, fmt.Errorf("%w: short read of anchor %d in table %q: %v", ErrCorrupt, i, t.name, err)
	}
	var e indexEntry
	e.unmarshal(buf[:])
	return e, nil
}

func (t *FreezerTable) dataFile(num uint32) (*os.File, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if f, ok := t.dataFiles[num]; ok {
		return f, nil
	}
	f, err := os.Open(filepath.Join(t.dir, t.dataFileName(num)))
	if err != nil {
		return nil, fmt.Errorf("%w: data shard %d for table %q: %v", ErrMissingShard, num, t.name, err)
	}
	// The handle cache is unbounded: the number of shards is small in
	// practice (fewer than a hundred), so there's no eviction here. See
	// Design Note in spec §9 if that assumption stops holding.
	t.dataFiles[num] = f
	return f, nil
}

// Item returns the raw bytes of item i, decompressing it first if the
// table is compressed. It fails with ErrOutOfRange if i is beyond the
// table's length.
func (t *FreezerTable) Item(i uint64) ([]byte, error) {
	if i >= t.entries {
		return nil, fmt.Errorf("%w: item %d, table %q has %d entries", ErrOutOfRange, i, t.name, t.entries)
	}
	start, err := t.readAnchor(i)
	if err != nil {
		return nil, err
	}
	end, err := t.readAnchor(i + 1)
	if err != nil {
		return nil, err
	}
	// Rollover: if the start and end anchors reference different data
	// files, the item occupies [0, end.offset) of end.filenum.
	if start.filenum != end.filenum {
		start = indexEntry{filenum: end.filenum, offset: 0}
	}
	f, err := t.dataFile(start.filenum)
	if err != nil {
		return nil, err
	}
	if end.offset < start.offset {
		return nil, fmt.Errorf("%w: item %d in table %q has negative length", ErrCorrupt, i, t.name)
	}
	raw := make([]byte, end.offset-start.offset)
	if _, err := f.ReadAt(raw, int64(start.offset)); err != nil {
		return nil, fmt.Errorf("%w: short read of item %d in table %q: %v", ErrCorrupt, i, t.name, err)
	}
	if t.readMeter != nil {
		t.readMeter.Mark(int64(len(raw)))
	}
	if !t.compressed {
		return raw, nil
	}
	decompressed, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy decode of item %d in table %q: %v", ErrCorrupt, i, t.name, err)
	}
	if t.readMeter != nil {
		t.readMeter.Mark(int64(len(decompressed)))
	}
	return decompressed, nil
}

// FirstIndex returns the index file's first anchor, primarily useful for
// diagnostics and consistency checks.
func (t *FreezerTable) FirstIndex() (uint32, uint32, error) {
	e, err := t.readAnchor(0)
	if err != nil {
		return 0, 0, err
	}
	return e.filenum, e.offset, nil
}

// LastIndex returns the index file's terminating anchor (entries+1'th
// anchor), whose offset equals the length of the last data shard per
// invariant I1.
func (t *FreezerTable) LastIndex() (uint32, uint32, error) {
	e, err := t.readAnchor(t.entries)
	if err != nil {
		return 0, 0, err
	}
	return e.filenum, e.offset, nil
}
