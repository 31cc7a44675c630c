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

import "errors"

// Sentinel errors for the geth-compatible reader, per the error taxonomy in
// the design's §7. None of these are retried: every failure here is
// deterministic given the on-disk input.
var (
	// ErrOutOfRange is returned by FreezerTable.Item when the requested
	// index is beyond the table's item count. Callers are expected to
	// keep indices in range; this is a programming error, not a disk
	// fault.
	ErrOutOfRange = errors.New("rawdb: item index out of range")

	// ErrMissingShard is returned when a freezer data shard referenced by
	// the index cannot be opened.
	ErrMissingShard = errors.New("rawdb: freezer data shard missing")

	// ErrCorrupt is returned when the freezer index is malformed (wrong
	// size, short read) or a compressed item fails to decompress.
	ErrCorrupt = errors.New("rawdb: freezer table corrupt")

	// ErrUnsupportedVersion is returned by Open when the source
	// database's DatabaseVersion key doesn't match the one version this
	// reader understands.
	ErrUnsupportedVersion = errors.New("rawdb: unsupported database version")

	// ErrNotFound is returned when a key is absent from the live store.
	// Lookups that fall back to the freezer on a live miss report the
	// freezer's own error instead (ErrOutOfRange past the ancient tier).
	ErrNotFound = errors.New("rawdb: not found")

	// ErrChainDivergence indicates the source database's genesis (or any
	// other cross-checked header) doesn't match what was expected.
	ErrChainDivergence = errors.New("rawdb: chain divergence")

	// ErrDecode wraps RLP decode failures; in diagnostic modes a caller
	// may choose to log and continue instead of aborting.
	ErrDecode = errors.New("rawdb: decode error")
)
