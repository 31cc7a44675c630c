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

package importer

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"github.com/lithp/gethimport/rawdb"
	"github.com/lithp/gethimport/state"
	"github.com/lithp/gethimport/trie"
)

// progressEvery controls how often the long-running modes log progress,
// matching gethimport.py's every-1000-items cadence.
const progressEvery = 1000

// cacheBytes sizes the CopyOnReadDB front cache used during a precise
// state import.
const cacheBytes = 32 << 20

// Importer orchestrates the five migration modes of §4.G over a
// GethReader source and a ChainSink destination.
type Importer struct {
	reader          *rawdb.GethReader
	sink            ChainSink
	verifyIntegrity bool
}

// New constructs an Importer. verifyIntegrity controls whether the
// CopyOnReadDB used by a precise state import keccak256-checks each value
// it copies from the source against its requested hash, before writing it
// to the destination; true is the safe default. trie.Walk checks every
// trie node it fetches either way, so with false a mismatching node is
// still reported, but only after it has been copied, and contract code is
// not checked at all.
func New(reader *rawdb.GethReader, sink ChainSink, verifyIntegrity bool) *Importer {
	return &Importer{reader: reader, sink: sink, verifyIntegrity: verifyIntegrity}
}

// ImportHeaders is Mode 1: copy headers from the destination's current
// head up to min(source head, until), asserting the destination's claimed
// head actually matches what the source reports at that height. A zero
// head hash (a destination with nothing persisted yet) skips that check and
// the import starts from the source's genesis.
func (im *Importer) ImportHeaders(until *uint64) error {
	head, err := im.sink.CanonicalHead()
	if err != nil {
		return fmt.Errorf("reading destination head: %w", err)
	}
	atHead, err := im.reader.Header(head.Number, head.Hash)
	if err != nil {
		return fmt.Errorf("reading source header at destination head: %w", err)
	}
	if head.Hash != (common.Hash{}) && atHead.Hash() != head.Hash {
		return fmt.Errorf("%w: destination head %s, source has %s at height %d", ErrChainDivergence, head.Hash, atHead.Hash(), head.Number)
	}

	sourceHead, err := im.reader.HeadNumber()
	if err != nil {
		return fmt.Errorf("reading source head number: %w", err)
	}
	target := sourceHead
	if until != nil && *until < target {
		target = *until
	}

	for n := head.Number; n <= target; n++ {
		header, err := im.reader.Header(n, common.Hash{})
		if err != nil {
			return fmt.Errorf("reading header %d: %w", n, err)
		}
		if err := im.sink.PersistHeader(header); err != nil {
			return fmt.Errorf("persisting header %d: %w", n, err)
		}
		if n%progressEvery == 0 {
			log.Info("import_headers progress", "number", n, "target", target)
		}
	}

	if until == nil {
		finalHead, err := im.sink.CanonicalHead()
		if err != nil {
			return err
		}
		sourceHeadHash, err := im.reader.HeadHash()
		if err != nil {
			return err
		}
		if finalHead.Hash != sourceHeadHash {
			return fmt.Errorf("%w: after import, destination head %s != source head %s", ErrChainDivergence, finalHead.Hash, sourceHeadHash)
		}
	}
	log.Info("import_headers complete", "from", head.Number, "to", target)
	return nil
}

// SweepState is Mode 2: an over-approximating bulk copy of every 32-byte
// key in the source live store's keyspace into the destination. Keys of
// any other length are skipped, since only trie nodes and code are
// addressed by a 32-byte hash in this schema.
func (im *Importer) SweepState() error {
	start := bytes.Repeat([]byte{0x00}, 32)
	stop := bytes.Repeat([]byte{0xff}, 32)

	var copied uint64
	var failure error
	lastBucket := byte(0)
	rangeErr := im.reader.LiveStore().Range(start, stop, func(key, value []byte) bool {
		if len(key) != 32 {
			return true
		}
		if putErr := im.sink.NodeStore().Put(key, value); putErr != nil {
			failure = fmt.Errorf("writing key %x: %w", key, putErr)
			return false
		}
		copied++
		if key[0] != lastBucket {
			lastBucket = key[0]
			log.Info("sweep_state progress", "bucket", fmt.Sprintf("0x%02x", lastBucket), "copied", copied)
		}
		return true
	})
	if rangeErr != nil {
		return fmt.Errorf("sweeping state: %w", rangeErr)
	}
	if failure != nil {
		return fmt.Errorf("sweeping state: %w", failure)
	}
	log.Info("sweep_state complete", "copied", copied)
	return nil
}

// ImportState is Mode 3: a precise walk of the account trie (and every
// account's storage trie) rooted at the destination's current state root,
// copying every node visited through a CopyOnReadDB, and force-fetching
// contract code for any account whose code_hash isn't the empty hash.
func (im *Importer) ImportState() error {
	head, err := im.sink.CanonicalHead()
	if err != nil {
		return fmt.Errorf("reading destination head: %w", err)
	}
	cor := trie.NewCopyOnReadDB(im.reader, im.sink.NodeStore(), cacheBytes, im.verifyIntegrity)

	var accounts, withCode, withStorage uint64
	var failure error // set from inside the leaf callback; trie.Walk itself
	// returns nil when a LeafFunc merely returns false, so the callback's
	// own error has to be carried out through this variable instead.
	walkErr := trie.Walk(cor, head.StateRoot, func(path, value []byte) bool {
		accounts++
		acc, decodeErr := state.DecodeAccount(value)
		if decodeErr != nil {
			failure = fmt.Errorf("decoding account at %x: %w", path, decodeErr)
			return false
		}
		if !bytes.Equal(acc.CodeHash, state.EmptyCodeHash.Bytes()) {
			withCode++
			if _, getErr := cor.Get(common.BytesToHash(acc.CodeHash)); getErr != nil {
				failure = fmt.Errorf("fetching contract code for account at %x: %w", path, getErr)
				return false
			}
		}
		if acc.Root != trie.EmptyRoot {
			withStorage++
			if storageErr := trie.Walk(cor, acc.Root, func(storagePath, storageValue []byte) bool { return true }); storageErr != nil {
				failure = fmt.Errorf("walking storage trie for account at %x: %w", path, storageErr)
				return false
			}
		}
		if accounts%progressEvery == 0 {
			log.Info("import_state progress", "accounts", accounts, "with_code", withCode, "with_storage", withStorage)
		}
		return true
	})
	if walkErr != nil {
		return fmt.Errorf("walking state trie: %w", walkErr)
	}
	if failure != nil {
		return fmt.Errorf("walking state trie: %w", failure)
	}
	log.Info("import_state complete", "accounts", accounts, "with_code", withCode, "with_storage", withStorage)
	return nil
}

// ImportBodyRange is Mode 4: for each block in [start,end], fetch its
// body, re-derive the transactions trie to verify it matches the header's
// recorded root, and persist the block plus every node the re-derivation
// touched.
func (im *Importer) ImportBodyRange(start, end uint64) error {
	for n := start; n <= end; n++ {
		header, err := im.reader.Header(n, common.Hash{})
		if err != nil {
			return fmt.Errorf("reading header %d: %w", n, err)
		}
		body, err := im.reader.Body(n, header.Hash())
		if err != nil {
			return fmt.Errorf("reading body %d: %w", n, err)
		}
		root, nodes, err := transactionsTrie(body.Transactions)
		if err != nil {
			return fmt.Errorf("deriving transactions trie for block %d: %w", n, err)
		}
		if root != header.TxHash {
			return fmt.Errorf("%w: block %d computed %s, header says %s", ErrBodyRootMismatch, n, root, header.TxHash)
		}
		if err := im.sink.PersistBlock(header, body, nodes); err != nil {
			return fmt.Errorf("persisting block %d: %w", n, err)
		}
		if n%progressEvery == 0 {
			log.Info("import_body_range progress", "number", n, "end", end)
		}
	}
	log.Info("import_body_range complete", "from", start, "to", end)
	return nil
}

// ProcessBlocks is Mode 5: replay mode, reading every block from
// (destination head, end] and handing it to the sink for full
// validation. The importer performs no validation of its own here; it is
// entirely delegated to ChainSink.ImportBlock.
func (im *Importer) ProcessBlocks(end uint64) error {
	head, err := im.sink.CanonicalHead()
	if err != nil {
		return fmt.Errorf("reading destination head: %w", err)
	}
	for n := head.Number + 1; n <= end; n++ {
		header, err := im.reader.Header(n, common.Hash{})
		if err != nil {
			return fmt.Errorf("reading header %d: %w", n, err)
		}
		body, err := im.reader.Body(n, header.Hash())
		if err != nil {
			return fmt.Errorf("reading body %d: %w", n, err)
		}
		if err := im.sink.ImportBlock(header, body, true); err != nil {
			return fmt.Errorf("importing block %d: %w", n, err)
		}
		if n%progressEvery == 0 {
			log.Info("process_blocks progress", "number", n, "end", end)
		}
	}
	log.Info("process_blocks complete", "to", end)
	return nil
}

// ReadReceipts decodes one block's receipt tuples, a read-only diagnostic
// recovered from gethimport.py's read_receipts subcommand.
func (im *Importer) ReadReceipts(number uint64) ([]rawdb.ReceiptTuple, error) {
	raw, err := im.reader.Receipts(number, common.Hash{})
	if err != nil {
		return nil, err
	}
	return rawdb.DecodeReceiptTuples(raw)
}

// Diagnostics passes through the source reader's diagnostics, recovered
// from gethimport.py's read_geth subcommand.
func (im *Importer) Diagnostics() rawdb.Diagnostics {
	return im.reader.Diagnostics()
}

// ReadDestinationHead passes through the destination's current canonical
// head, recovered from gethimport.py's read_trinity subcommand (renamed
// here since the destination isn't tied to any one specific project).
func (im *Importer) ReadDestinationHead() (Head, error) {
	return im.sink.CanonicalHead()
}

// ScanBodies is a read-only diagnostic, recovered from gethimport.py's
// scan_bodies subcommand: for each block in [start,end], it logs the
// RLP-encoded size of the full body next to a transaction-hashes-only
// alternative, to gauge how much a hash-only body format would save.
// It never mutates the destination.
func (im *Importer) ScanBodies(start, end uint64) error {
	for n := start; n <= end; n++ {
		header, err := im.reader.Header(n, common.Hash{})
		if err != nil {
			return fmt.Errorf("reading header %d: %w", n, err)
		}
		body, err := im.reader.Body(n, header.Hash())
		if err != nil {
			return fmt.Errorf("reading body %d: %w", n, err)
		}
		fullEnc, err := rlp.EncodeToBytes(body)
		if err != nil {
			return fmt.Errorf("encoding body %d: %w", n, err)
		}
		hashes := make([]common.Hash, len(body.Transactions))
		for i, tx := range body.Transactions {
			hashes[i] = tx.Hash()
		}
		hashesEnc, err := rlp.EncodeToBytes(hashes)
		if err != nil {
			return fmt.Errorf("encoding tx hashes for body %d: %w", n, err)
		}
		log.Info("scan_bodies", "number", n, "full_bytes", len(fullEnc), "hashes_only_bytes", len(hashesEnc), "tx_count", len(body.Transactions))
	}
	return nil
}

// transactionsTrie re-derives the transactions trie root the same way the
// teacher's own block-insertion path does (types.DeriveSha over a
// StackTrie), additionally capturing every node touched along the way so
// the caller can persist them.
func transactionsTrie(txs types.Transactions) (common.Hash, map[common.Hash][]byte, error) {
	nodes := make(map[common.Hash][]byte)
	st := gethtrie.NewStackTrie(func(path []byte, hash common.Hash, blob []byte) {
		nodes[hash] = append([]byte(nil), blob...)
	})
	root := types.DeriveSha(txs, st)
	return root, nodes, nil
}
