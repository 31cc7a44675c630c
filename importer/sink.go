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

// Package importer orchestrates a one-way migration from a GethReader
// source into a destination chain, driven through the narrow ChainSink
// interface rather than any specific destination implementation.
package importer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Head identifies the destination's current canonical tip.
type Head struct {
	Number    uint64
	Hash      common.Hash
	StateRoot common.Hash
}

// ChainSink is the destination side of an import: header persistence,
// block persistence, transactions-trie materialization, and the current
// canonical head query. The importer never touches the destination's
// storage engine directly; everything domain-specific about "what counts
// as a valid chain" is delegated here.
type ChainSink interface {
	// CanonicalHead returns the destination's current tip.
	CanonicalHead() (Head, error)

	// PersistHeader writes one header, per Mode 1.
	PersistHeader(h *types.Header) error

	// PersistBlock writes a full block (header + body) and any
	// additional node-map entries the caller pre-materialized (e.g. a
	// transactions trie), per Mode 4.
	PersistBlock(header *types.Header, body *types.Body, extraNodes map[common.Hash][]byte) error

	// ImportBlock replays a block through full fork validation, per
	// Mode 5. validate is always true in this toolkit's usage but is
	// threaded through explicitly since the sink's own interface
	// exposes it.
	ImportBlock(header *types.Header, body *types.Body, validate bool) error

	// NodeStore exposes the destination's node-keyed store, the
	// destination half of a CopyOnReadDB used during a precise state
	// import (Mode 3).
	NodeStore() Destination
}

// Destination is importer's view of the same contract trie.Destination
// describes; kept as a separate declaration (rather than importing the
// trie package's name directly into this interface) so ChainSink doesn't
// need to know about trie's internals beyond this shape. Concrete
// destination stores (e.g. store.Store) satisfy both.
type Destination interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
}
