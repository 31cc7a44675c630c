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

import "errors"

var (
	// ErrCorruptNode is returned when a node's RLP shape doesn't match
	// one of the three recognized node kinds (leaf, extension, branch).
	ErrCorruptNode = errors.New("trie: corrupt node")

	// ErrIntegrity is returned when a node fetched from a NodeSource
	// doesn't hash to the key it was requested under (invariant I2).
	ErrIntegrity = errors.New("trie: node hash mismatch")

	// ErrMissingNode is returned when a NodeSource has no value for a
	// referenced hash.
	ErrMissingNode = errors.New("trie: missing node")
)
