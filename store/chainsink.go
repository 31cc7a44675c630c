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

package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/lithp/gethimport/importer"
	"github.com/lithp/gethimport/trie"
)

// Key prefixes for DemoSink's own bookkeeping, distinct from the 32-byte
// hash-keyed trie-node/code entries CopyOnReadDB and SweepState write
// through Put directly.
var (
	demoHeadKey      = []byte("demosink:head")
	demoHeaderPrefix = []byte("demosink:header:")
	demoBodyPrefix   = []byte("demosink:body:")
)

// demoHead is the RLP-encoded shape stored under demoHeadKey.
type demoHead struct {
	Number    uint64
	Hash      common.Hash
	StateRoot common.Hash
}

// DemoSink is a minimal ChainSink over a Store: it persists headers and
// bodies and tracks a canonical head, but performs none of the actual
// fork-choice or transaction validation a real destination chain would —
// that logic is explicitly out of scope (§1 Non-goals), and ChainSink
// exists precisely so this toolkit doesn't need to own it. It exists so
// the CLI has a concrete, runnable destination without pulling in an
// entire second chain implementation.
type DemoSink struct {
	store *Store
}

// NewDemoSink wraps store as a ChainSink.
func NewDemoSink(store *Store) *DemoSink {
	return &DemoSink{store: store}
}

var _ importer.ChainSink = (*DemoSink)(nil)

func (d *DemoSink) CanonicalHead() (importer.Head, error) {
	raw, err := d.store.Get(demoHeadKey)
	if err != nil {
		if errors.Is(err, trie.ErrDestinationMiss) {
			return importer.Head{}, nil // nothing persisted yet: start from genesis
		}
		return importer.Head{}, err
	}
	var h demoHead
	if err := rlp.DecodeBytes(raw, &h); err != nil {
		return importer.Head{}, fmt.Errorf("decoding demosink head: %w", err)
	}
	return importer.Head{Number: h.Number, Hash: h.Hash, StateRoot: h.StateRoot}, nil
}

func (d *DemoSink) setHead(number uint64, hash, stateRoot common.Hash) error {
	enc, err := rlp.EncodeToBytes(demoHead{Number: number, Hash: hash, StateRoot: stateRoot})
	if err != nil {
		return err
	}
	return d.store.Put(demoHeadKey, enc)
}

func headerKey(number uint64, hash common.Hash) []byte {
	var numEnc [8]byte
	binary.BigEndian.PutUint64(numEnc[:], number)
	return append(append(append([]byte{}, demoHeaderPrefix...), numEnc[:]...), hash.Bytes()...)
}

func bodyKey(number uint64, hash common.Hash) []byte {
	var numEnc [8]byte
	binary.BigEndian.PutUint64(numEnc[:], number)
	return append(append(append([]byte{}, demoBodyPrefix...), numEnc[:]...), hash.Bytes()...)
}

func (d *DemoSink) PersistHeader(h *types.Header) error {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		return err
	}
	if err := d.store.Put(headerKey(h.Number.Uint64(), h.Hash()), enc); err != nil {
		return err
	}
	head, err := d.CanonicalHead()
	if err != nil {
		return err
	}
	if h.Number.Uint64() >= head.Number {
		return d.setHead(h.Number.Uint64(), h.Hash(), h.Root)
	}
	return nil
}

func (d *DemoSink) PersistBlock(header *types.Header, body *types.Body, extraNodes map[common.Hash][]byte) error {
	if err := d.PersistHeader(header); err != nil {
		return err
	}
	enc, err := rlp.EncodeToBytes(body)
	if err != nil {
		return err
	}
	if err := d.store.Put(bodyKey(header.Number.Uint64(), header.Hash()), enc); err != nil {
		return err
	}
	for hash, blob := range extraNodes {
		if err := d.store.Put(hash.Bytes(), blob); err != nil {
			return err
		}
	}
	return nil
}

func (d *DemoSink) ImportBlock(header *types.Header, body *types.Body, validate bool) error {
	log.Info("demosink: importing block without real fork-choice or tx validation", "number", header.Number, "validate_requested", validate)
	return d.PersistBlock(header, body, nil)
}

func (d *DemoSink) NodeStore() importer.Destination { return d.store }
