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
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"
)

// writeAnchor appends one 6-byte index anchor to buf.
func writeAnchor(buf []byte, filenum uint32, offset uint32) []byte {
	var entry [indexEntrySize]byte
	binary.BigEndian.PutUint16(entry[:2], uint16(filenum))
	binary.BigEndian.PutUint32(entry[2:6], offset)
	return append(buf, entry[:]...)
}

// TestFreezerRollover reproduces scenario S1: an index with anchors
// [(0,0),(0,100),(0,200),(1,50)] over two data shards. Geth only ever
// emits a (newfile, len) anchor on rollover, never a spurious
// (newfile, 0) marker, so there are 3 items, not 4.
func TestFreezerRollover(t *testing.T) {
	dir := t.TempDir()

	var idx []byte
	idx = writeAnchor(idx, 0, 0)
	idx = writeAnchor(idx, 0, 100)
	idx = writeAnchor(idx, 0, 200)
	idx = writeAnchor(idx, 1, 50)
	if err := os.WriteFile(filepath.Join(dir, "items.ridx"), idx, 0o644); err != nil {
		t.Fatal(err)
	}

	shard0 := bytes.Repeat([]byte{0xaa}, 200)
	shard1 := bytes.Repeat([]byte{0xbb}, 50)
	if err := os.WriteFile(filepath.Join(dir, "items.0000.rdat"), shard0, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "items.0001.rdat"), shard1, 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := OpenFreezerTable(dir, "items", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	if got := table.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	// item 1 occupies [100,200) of shard 0
	got, err := table.Item(1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, shard0[100:200]) {
		t.Fatalf("item 1 mismatch")
	}

	// item 2 rolls over: start (0,200) and end (1,50) disagree on filenum,
	// so it occupies [0,50) of shard 1.
	got, err = table.Item(2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, shard1[0:50]) {
		t.Fatalf("item 2 (rollover) mismatch: got %x want %x", got, shard1)
	}
}

func buildTable(t *testing.T, dir, name string, items [][]byte, compressed bool) {
	t.Helper()
	var idx []byte
	idx = writeAnchor(idx, 0, 0)
	var data []byte
	for _, item := range items {
		raw := item
		if compressed {
			raw = snappy.Encode(nil, item)
		}
		data = append(data, raw...)
		idx = writeAnchor(idx, 0, uint32(len(data)))
	}
	ext := "ridx"
	dext := "rdat"
	if compressed {
		ext = "cidx"
		dext = "cdat"
	}
	if err := os.WriteFile(filepath.Join(dir, name+"."+ext), idx, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".0000."+dext), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestFreezerBasics covers P1: Item(i) returns exactly what the producer
// appended, for both compressed and uncompressed tables.
func TestFreezerBasics(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		dir := t.TempDir()
		items := [][]byte{
			[]byte("genesis block payload"),
			bytes.Repeat([]byte{0x42}, 400),
			[]byte(""),
			[]byte("final item"),
		}
		buildTable(t, dir, "blob", items, compressed)

		table, err := OpenFreezerTable(dir, "blob", compressed, nil)
		if err != nil {
			t.Fatal(err)
		}
		if table.Len() != uint64(len(items)) {
			t.Fatalf("Len() = %d, want %d", table.Len(), len(items))
		}
		for i, want := range items {
			got, err := table.Item(uint64(i))
			if err != nil {
				t.Fatalf("Item(%d): %v", i, err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("Item(%d) = %x, want %x", i, got, want)
			}
		}
		table.Close()
	}
}

func TestFreezerOutOfRange(t *testing.T) {
	dir := t.TempDir()
	buildTable(t, dir, "blob", [][]byte{[]byte("only item")}, false)

	table, err := OpenFreezerTable(dir, "blob", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	if _, err := table.Item(1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Item(1) error = %v, want ErrOutOfRange", err)
	}
}

// TestFreezerEmptyIndexIsCorrupt covers the open question in §9: a 0-byte
// index is Corrupt, while a 6-byte (single terminator) index is a
// well-formed, empty table.
func TestFreezerEmptyIndexIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blob.ridx"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFreezerTable(dir, "blob", false, nil); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("OpenFreezerTable with 0-byte index error = %v, want ErrCorrupt", err)
	}
}

func TestFreezerEmptyTableIsWellFormed(t *testing.T) {
	dir := t.TempDir()
	var idx []byte
	idx = writeAnchor(idx, 0, 0)
	if err := os.WriteFile(filepath.Join(dir, "blob.ridx"), idx, 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := OpenFreezerTable(dir, "blob", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()
	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", table.Len())
	}
}

func TestFreezerMissingShard(t *testing.T) {
	dir := t.TempDir()
	var idx []byte
	idx = writeAnchor(idx, 0, 0)
	idx = writeAnchor(idx, 0, 10)
	if err := os.WriteFile(filepath.Join(dir, "blob.ridx"), idx, 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := OpenFreezerTable(dir, "blob", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()
	if _, err := table.Item(0); !errors.Is(err, ErrMissingShard) {
		t.Fatalf("Item(0) error = %v, want ErrMissingShard", err)
	}
}
