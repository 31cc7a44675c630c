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
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// decodeHexPrefix implements the hex-prefix (compact) decoding used by
// leaf and extension nodes: the high nibble of the first byte carries an
// odd-length flag (bit 0) and a terminator flag (bit 1, set for leaves),
// per the Merkle-Patricia trie spec referenced in §3/§4.E.
func decodeHexPrefix(compact []byte) (nibbles []byte, terminator bool) {
	if len(compact) == 0 {
		return nil, false
	}
	flag := compact[0] >> 4
	terminator = flag >= 2
	odd := flag%2 == 1
	if odd {
		nibbles = append(nibbles, compact[0]&0x0F)
	}
	for _, b := range compact[1:] {
		nibbles = append(nibbles, b>>4, b&0x0F)
	}
	return nibbles, terminator
}

// childKind classifies one child slot of a branch or the single child of
// an extension node.
type childKind int

const (
	childEmpty childKind = iota
	childHash
	childInline
)

// resolveChildRef inspects one RLP child slot. A 32-byte string is a hash
// reference requiring a NodeSource fetch; a zero-length string is "no
// child"; anything else must be a nested list, meaning the child was
// small enough (<=31 bytes encoded) to be embedded inline, per §4.E.
func resolveChildRef(raw rlp.RawValue) (childKind, common.Hash, []byte, error) {
	var asString []byte
	if err := rlp.DecodeBytes(raw, &asString); err == nil {
		switch len(asString) {
		case 0:
			return childEmpty, common.Hash{}, nil, nil
		case 32:
			return childHash, common.BytesToHash(asString), nil, nil
		default:
			return childEmpty, common.Hash{}, nil, fmt.Errorf("%w: child reference has invalid length %d", ErrCorruptNode, len(asString))
		}
	}
	// Not a byte string: it must be an embedded list, which is the full
	// RLP encoding of the child node itself.
	return childInline, common.Hash{}, []byte(raw), nil
}

// decodeNode splits raw trie-node bytes into either a 2-element
// (leaf/extension) or 17-element (branch) RLP list. Any other shape is
// corrupt.
func decodeNode(raw []byte) ([]rlp.RawValue, error) {
	var elems []rlp.RawValue
	if err := rlp.DecodeBytes(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptNode, err)
	}
	switch len(elems) {
	case 2, 17:
		return elems, nil
	default:
		return nil, fmt.Errorf("%w: node has %d list elements, want 2 or 17", ErrCorruptNode, len(elems))
	}
}

// decodeValue decodes an RLP element expected to be a plain byte string
// (a leaf value, or a branch's 17th "value at this path" slot).
func decodeValue(raw rlp.RawValue) ([]byte, error) {
	var v []byte
	if err := rlp.DecodeBytes(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: value slot: %v", ErrCorruptNode, err)
	}
	return v, nil
}
