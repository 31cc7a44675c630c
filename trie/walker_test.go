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

package trie

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// fakeSource is an in-memory NodeSource for walker tests.
type fakeSource map[common.Hash][]byte

func (f fakeSource) Get(hash common.Hash) ([]byte, error) {
	v, ok := f[hash]
	if !ok {
		return nil, errors.New("fakeSource: not found")
	}
	return v, nil
}

func encodeHexPrefixForTest(nibbles []byte, terminator bool) []byte {
	flag := byte(0)
	if terminator {
		flag = 2
	}
	var buf []byte
	if len(nibbles)%2 == 1 {
		flag |= 1
		buf = append(buf, flag<<4|nibbles[0])
		nibbles = nibbles[1:]
	} else {
		buf = append(buf, flag<<4)
	}
	for i := 0; i < len(nibbles); i += 2 {
		buf = append(buf, nibbles[i]<<4|nibbles[i+1])
	}
	return buf
}

func encodeLeaf(t *testing.T, nibbles []byte, value []byte) []byte {
	t.Helper()
	compact := encodeHexPrefixForTest(nibbles, true)
	enc, err := rlp.EncodeToBytes([][]byte{compact, value})
	if err != nil {
		t.Fatal(err)
	}
	return enc
}

var emptyStringRLP, _ = rlp.EncodeToBytes([]byte{})

// childSlot returns the RLP list-element bytes for a child node: inline
// (the node's own encoding, verbatim) if small enough, otherwise a
// byte-string holding its keccak256 hash, registered in src — matching
// real MPT child-reference rules.
func childSlot(src fakeSource, node []byte) rlp.RawValue {
	if len(node) < 32 {
		return rlp.RawValue(node)
	}
	h := crypto.Keccak256Hash(node)
	src[h] = node
	encoded, _ := rlp.EncodeToBytes(h.Bytes())
	return rlp.RawValue(encoded)
}

// encodeBranchRaw assembles a 17-element branch node. Each child slot is
// already a complete RLP list-element (see childSlot); a nil slot means
// "no child" and a nil value means "no value terminates here".
func encodeBranchRaw(children [16]rlp.RawValue, value []byte) []byte {
	elems := make([]rlp.RawValue, 17)
	for i, c := range children {
		if c == nil {
			elems[i] = rlp.RawValue(emptyStringRLP)
		} else {
			elems[i] = c
		}
	}
	if value == nil {
		elems[16] = rlp.RawValue(emptyStringRLP)
	} else {
		enc, _ := rlp.EncodeToBytes(value)
		elems[16] = rlp.RawValue(enc)
	}
	enc, _ := rlp.EncodeToBytes(elems)
	return enc
}

func TestWalkEmptyRoot(t *testing.T) {
	leaves, err := Leaves(fakeSource{}, EmptyRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(leaves) != 0 {
		t.Fatalf("Leaves(EmptyRoot) = %v, want empty", leaves)
	}
}

func TestWalkInlineAndHashChildren(t *testing.T) {
	src := fakeSource{}

	// nibble 0x1 child: short leaf, small enough to embed inline.
	shortLeaf := encodeLeaf(t, []byte{0x2, 0x3}, []byte("hi"))
	// nibble 0x4 child: leaf with a long value, addressed by hash.
	longLeaf := encodeLeaf(t, []byte{0x5, 0x6, 0x7}, bytes.Repeat([]byte("x"), 40))

	var children [16]rlp.RawValue
	children[0x1] = rlp.RawValue(shortLeaf) // small enough to embed inline
	children[0x4] = childSlot(src, longLeaf)

	root := encodeBranchRaw(children, nil)
	rootHash := crypto.Keccak256Hash(root)
	src[rootHash] = root

	leaves, err := Leaves(src, rootHash)
	if err != nil {
		t.Fatal(err)
	}
	if len(leaves) != 2 {
		t.Fatalf("got %d leaves, want 2: %+v", len(leaves), leaves)
	}
	if !bytes.Equal(leaves[0].Path, []byte{0x1, 0x2, 0x3}) || string(leaves[0].Value) != "hi" {
		t.Fatalf("leaf 0 = %+v", leaves[0])
	}
	wantPath := []byte{0x4, 0x5, 0x6, 0x7}
	if !bytes.Equal(leaves[1].Path, wantPath) {
		t.Fatalf("leaf 1 path = %x, want %x", leaves[1].Path, wantPath)
	}
}

func TestWalkIntegrityMismatch(t *testing.T) {
	src := fakeSource{}
	leaf := encodeLeaf(t, []byte{0xa}, bytes.Repeat([]byte("y"), 40))
	wrongHash := crypto.Keccak256Hash([]byte("not the leaf"))
	src[wrongHash] = leaf

	err := Walk(src, wrongHash, func(path, value []byte) bool { return true })
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("Walk error = %v, want ErrIntegrity", err)
	}
}

func TestWalkMissingNode(t *testing.T) {
	src := fakeSource{}
	missing := common.HexToHash("0xdeadbeef")

	err := Walk(src, missing, func(path, value []byte) bool { return true })
	if err == nil {
		t.Fatal("expected an error for a missing root node")
	}
}

func TestWalkStopsEarly(t *testing.T) {
	src := fakeSource{}
	a := encodeLeaf(t, []byte{0x1}, bytes.Repeat([]byte("a"), 40))
	b := encodeLeaf(t, []byte{0x2}, bytes.Repeat([]byte("b"), 40))

	var children [16]rlp.RawValue
	children[0x1] = childSlot(src, a)
	children[0x2] = childSlot(src, b)
	root := encodeBranchRaw(children, nil)
	rootHash := crypto.Keccak256Hash(root)
	src[rootHash] = root

	count := 0
	err := Walk(src, rootHash, func(path, value []byte) bool {
		count++
		return false // stop after the first leaf
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("visited %d leaves, want 1 (early stop)", count)
	}
}
