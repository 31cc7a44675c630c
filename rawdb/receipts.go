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

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// receiptTupleRLP mirrors the on-disk receipt shape described in §6: a
// post-state-or-status marker, a variable-width (<=8 bytes) big-endian gas
// used, and the log list. This intentionally does not reuse
// types.ReceiptForStorage, whose RLP shape differs from the legacy
// fixed-field encoding this reader targets.
type receiptTupleRLP struct {
	PostStateOrStatus []byte
	GasUsed           []byte
	Logs              []*types.Log
}

// ReceiptTuple is the decoded, caller-friendly form of one receipt.
type ReceiptTuple struct {
	PostStateOrStatus []byte
	GasUsed           uint64
	Logs              []*types.Log
}

// DecodeReceiptTuples decodes the raw RLP bytes GethReader.Receipts
// returns into the list of per-transaction receipt tuples, left-zero-
// padding each variable-width gas_used field to 8 bytes before parsing it
// as a big-endian uint64, per §6.
func DecodeReceiptTuples(raw []byte) ([]ReceiptTuple, error) {
	var rawTuples []receiptTupleRLP
	if err := rlp.DecodeBytes(raw, &rawTuples); err != nil {
		return nil, fmt.Errorf("%w: receipt list: %v", ErrDecode, err)
	}
	out := make([]ReceiptTuple, len(rawTuples))
	for i, t := range rawTuples {
		if len(t.GasUsed) > 8 {
			return nil, fmt.Errorf("%w: receipt %d has %d-byte gas_used, want <=8", ErrDecode, i, len(t.GasUsed))
		}
		var padded [8]byte
		copy(padded[8-len(t.GasUsed):], t.GasUsed)
		out[i] = ReceiptTuple{
			PostStateOrStatus: t.PostStateOrStatus,
			GasUsed:           binary.BigEndian.Uint64(padded[:]),
			Logs:              t.Logs,
		}
	}
	return out, nil
}
