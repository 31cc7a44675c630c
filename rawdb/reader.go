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
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rlp"
)

// supportedVersion is the single DatabaseVersion this reader understands,
// per §6: the RLP-encoded integer 7. Any other value is fatal.
const supportedVersion = 7

// Options configures GethReader.Open.
type Options struct {
	// GenesisHash, if set, is checked against blockHash(header(0)) during
	// Open; a mismatch is reported as ErrChainDivergence. Leaving it unset
	// skips the check, since this reader isn't tied to one specific chain.
	GenesisHash common.Hash
	// Registry, if set, receives the freezer tables' read-byte meters.
	Registry metrics.Registry
}

// GethReader unifies a LiveStore with the four standard freezer tables
// into typed accessors for canonical hashes, headers, bodies, and
// receipts, applying the "live wins, freezer is fallback" policy of §4.D.
type GethReader struct {
	live KeyValueRangeStore

	hashes   *FreezerTable
	headers  *FreezerTable
	bodies   *FreezerTable
	receipts *FreezerTable
}

// Open opens a geth chaindata directory: path/<leveldb files> plus
// path/ancient/<tables>. It fails with ErrUnsupportedVersion if the
// database's DatabaseVersion key isn't the single supported sentinel.
func Open(path string, opts Options) (*GethReader, error) {
	live, err := OpenLiveStore(path, true)
	if err != nil {
		return nil, err
	}
	return OpenWithLiveStore(live, filepath.Join(path, "ancient"), opts)
}

// OpenWithLiveStore is like Open but takes an already-opened live store,
// useful for tests and for composing a GethReader over an in-memory
// KeyValueRangeStore.
func OpenWithLiveStore(live KeyValueRangeStore, ancientDir string, opts Options) (*GethReader, error) {
	raw, err := live.Get(databaseVersionKey)
	if err != nil {
		return nil, fmt.Errorf("reading DatabaseVersion: %w", err)
	}
	var version uint64
	if err := rlp.DecodeBytes(raw, &version); err != nil {
		return nil, fmt.Errorf("%w: DatabaseVersion: %v", ErrDecode, err)
	}
	if version != supportedVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, version, supportedVersion)
	}

	meter := func(name string) metrics.Meter {
		if opts.Registry == nil {
			return nil
		}
		return metrics.NewRegisteredMeter(name, opts.Registry)
	}

	hashes, err := OpenFreezerTable(ancientDir, "hashes", false, meter("gethimport/freezer/hashes/read"))
	if err != nil {
		return nil, err
	}
	headers, err := OpenFreezerTable(ancientDir, "headers", true, meter("gethimport/freezer/headers/read"))
	if err != nil {
		return nil, err
	}
	bodies, err := OpenFreezerTable(ancientDir, "bodies", true, meter("gethimport/freezer/bodies/read"))
	if err != nil {
		return nil, err
	}
	receipts, err := OpenFreezerTable(ancientDir, "receipts", true, meter("gethimport/freezer/receipts/read"))
	if err != nil {
		return nil, err
	}

	r := &GethReader{live: live, hashes: hashes, headers: headers, bodies: bodies, receipts: receipts}

	if opts.GenesisHash != (common.Hash{}) {
		genesis, err := r.Header(0, common.Hash{})
		if err != nil {
			return nil, fmt.Errorf("reading genesis header: %w", err)
		}
		if genesis.Hash() != opts.GenesisHash {
			return nil, fmt.Errorf("%w: genesis hash %s != expected %s", ErrChainDivergence, genesis.Hash(), opts.GenesisHash)
		}
	}
	return r, nil
}

// LiveStore returns the underlying live key/value tier, for callers (like
// the state sweep) that need direct range access.
func (r *GethReader) LiveStore() KeyValueRangeStore { return r.live }

// Get implements trie.NodeSource directly against the live store; state
// trie nodes only ever live there, never in the freezer.
func (r *GethReader) Get(hash common.Hash) ([]byte, error) {
	return r.live.Get(hash.Bytes())
}

// HeadHash returns the canonical chain head, from the "LastBlock" key.
func (r *GethReader) HeadHash() (common.Hash, error) {
	raw, err := r.live.Get(headBlockKey)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

// HeadNumber resolves HeadHash to a block number.
func (r *GethReader) HeadNumber() (uint64, error) {
	head, err := r.HeadHash()
	if err != nil {
		return 0, err
	}
	return r.NumberForHash(head)
}

// NumberForHash decodes the 8-byte big-endian block number stored under
// "H" || hash.
func (r *GethReader) NumberForHash(hash common.Hash) (uint64, error) {
	raw, err := r.live.Get(headerNumberKey(hash))
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: header number key has length %d, want 8", ErrCorrupt, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// CanonicalHash returns the canonical hash at height n: live store first,
// then the uncompressed "hashes" freezer table.
func (r *GethReader) CanonicalHash(number uint64) (common.Hash, error) {
	if raw, err := r.live.Get(headerHashKey(number)); err == nil {
		return common.BytesToHash(raw), nil
	}
	raw, err := r.hashes.Item(number)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

// Header resolves hash via CanonicalHash if it's the zero hash, then
// fetches the header from the live store, falling back to the compressed
// "headers" freezer table.
func (r *GethReader) Header(number uint64, hash common.Hash) (*types.Header, error) {
	if hash == (common.Hash{}) {
		resolved, err := r.CanonicalHash(number)
		if err != nil {
			return nil, err
		}
		hash = resolved
	}
	raw, err := r.live.Get(headerKey(number, hash))
	if err != nil {
		raw, err = r.headers.Item(number)
		if err != nil {
			return nil, err
		}
	}
	var header types.Header
	if err := rlp.DecodeBytes(raw, &header); err != nil {
		return nil, fmt.Errorf("%w: header %d: %v", ErrDecode, number, err)
	}
	return &header, nil
}

// Body is the body-side analogue of Header.
func (r *GethReader) Body(number uint64, hash common.Hash) (*types.Body, error) {
	if hash == (common.Hash{}) {
		resolved, err := r.CanonicalHash(number)
		if err != nil {
			return nil, err
		}
		hash = resolved
	}
	raw, err := r.live.Get(blockBodyKey(number, hash))
	if err != nil {
		raw, err = r.bodies.Item(number)
		if err != nil {
			return nil, err
		}
	}
	var body types.Body
	if err := rlp.DecodeBytes(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: body %d: %v", ErrDecode, number, err)
	}
	return &body, nil
}

// Receipts returns the raw RLP bytes of a block's receipts. Decoding them
// is the caller's job (see DecodeReceiptTuples) because the on-disk shape
// uses a non-standard, variable-width gas_used encoding (§6).
func (r *GethReader) Receipts(number uint64, hash common.Hash) ([]byte, error) {
	if hash == (common.Hash{}) {
		resolved, err := r.CanonicalHash(number)
		if err != nil {
			return nil, err
		}
		hash = resolved
	}
	raw, err := r.live.Get(blockReceiptsKey(number, hash))
	if err == nil {
		return raw, nil
	}
	return r.receipts.Item(number)
}

// Diagnostics reports the database version and ancient entry count,
// grounding gethimport.py's read_geth command.
type Diagnostics struct {
	DatabaseVersion   uint64
	AncientEntryCount uint64
}

func (r *GethReader) Diagnostics() Diagnostics {
	return Diagnostics{
		DatabaseVersion:   supportedVersion,
		AncientEntryCount: r.hashes.Len(),
	}
}

// Close releases the live store and every freezer table.
func (r *GethReader) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{r.hashes, r.headers, r.bodies, r.receipts} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if closer, ok := r.live.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
