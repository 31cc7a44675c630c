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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// EmptyRoot is the root hash of a trie with no entries: keccak256 of the
// RLP encoding of the empty string.
var EmptyRoot = crypto.Keccak256Hash(mustRLPEmptyString())

func mustRLPEmptyString() []byte {
	enc, err := rlp.EncodeToBytes([]byte{})
	if err != nil {
		panic(err)
	}
	return enc
}

// NodeSource maps a node's keccak256 hash to its raw RLP bytes. GethReader
// and CopyOnReadDB both implement it.
type NodeSource interface {
	Get(hash common.Hash) ([]byte, error)
}

// LeafFunc is called once per leaf in path order, carrying the full
// nibble path from the root and the leaf's raw RLP value (an account or a
// storage slot, depending on which trie is being walked). Returning false
// stops the walk early.
type LeafFunc func(path []byte, value []byte) bool

// Walk performs a deterministic, depth-first, lexicographic-by-nibble-path
// traversal of the Merkle-Patricia trie rooted at root, invoking fn for
// every leaf. It is not restartable mid-walk: to retraverse, call Walk
// again from the root. An empty root (EmptyRoot) yields no leaves.
func Walk(source NodeSource, root common.Hash, fn LeafFunc) error {
	if root == EmptyRoot || root == (common.Hash{}) {
		return nil
	}
	raw, err := fetch(source, root)
	if err != nil {
		return err
	}
	_, err = walkNode(source, raw, nil, fn)
	return err
}

// fetch resolves a hash reference through source, verifying the integrity
// invariant I2 (keccak256(bytes) == hash) before returning.
func fetch(source NodeSource, hash common.Hash) ([]byte, error) {
	raw, err := source.Get(hash)
	if err != nil {
		return nil, err
	}
	if crypto.Keccak256Hash(raw) != hash {
		return nil, ErrIntegrity
	}
	return raw, nil
}

// walkNode decodes one node's raw bytes and recurses into its children.
// It returns false if fn asked to stop, stopping the recursion everywhere
// up the call stack.
func walkNode(source NodeSource, raw []byte, path []byte, fn LeafFunc) (bool, error) {
	elems, err := decodeNode(raw)
	if err != nil {
		return false, err
	}
	switch len(elems) {
	case 2:
		return walkShortNode(source, elems, path, fn)
	default: // 17, enforced by decodeNode
		return walkBranchNode(source, elems, path, fn)
	}
}

func walkShortNode(source NodeSource, elems []rlp.RawValue, path []byte, fn LeafFunc) (bool, error) {
	compact, err := decodeValue(elems[0])
	if err != nil {
		return false, err
	}
	nibbles, isLeaf := decodeHexPrefix(compact)
	fullPath := append(append([]byte(nil), path...), nibbles...)

	if isLeaf {
		value, err := decodeValue(elems[1])
		if err != nil {
			return false, err
		}
		return fn(fullPath, value), nil
	}
	// Extension node: elems[1] is a child reference, never a value.
	return walkChild(source, elems[1], fullPath, fn)
}

func walkBranchNode(source NodeSource, elems []rlp.RawValue, path []byte, fn LeafFunc) (bool, error) {
	// A branch node can itself terminate a key (the 17th slot), matching
	// the case where one key is a strict prefix of another.
	if value, err := decodeValue(elems[16]); err != nil {
		return false, err
	} else if len(value) > 0 {
		if !fn(path, value) {
			return false, nil
		}
	}
	for nibble := 0; nibble < 16; nibble++ {
		childPath := append(append([]byte(nil), path...), byte(nibble))
		cont, err := walkChild(source, elems[nibble], childPath, fn)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}
	}
	return true, nil
}

func walkChild(source NodeSource, ref rlp.RawValue, path []byte, fn LeafFunc) (bool, error) {
	kind, hash, inline, err := resolveChildRef(ref)
	if err != nil {
		return false, err
	}
	switch kind {
	case childEmpty:
		return true, nil
	case childHash:
		raw, err := fetch(source, hash)
		if err != nil {
			return false, err
		}
		return walkNode(source, raw, path, fn)
	default: // childInline
		return walkNode(source, inline, path, fn)
	}
}

// Leaf is one (path, value) pair collected by Leaves.
type Leaf struct {
	Path  []byte
	Value []byte
}

// Leaves buffers the entire walk into a slice, for tests and small tries.
// Production callers (the Importer) should use Walk directly to stay
// streaming.
func Leaves(source NodeSource, root common.Hash) ([]Leaf, error) {
	var out []Leaf
	err := Walk(source, root, func(path, value []byte) bool {
		out = append(out, Leaf{Path: append([]byte(nil), path...), Value: append([]byte(nil), value...)})
		return true
	})
	return out, err
}
