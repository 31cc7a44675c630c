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

// Package state decodes the account leaves a state-trie walk surfaces.
package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// EmptyCodeHash is keccak256 of the empty byte slice: the code_hash an
// externally-owned account (and any contract with no code) carries.
var EmptyCodeHash = crypto.Keccak256Hash(nil)

// DecodeAccount RLP-decodes a state-trie leaf value into the reused
// upstream account representation (nonce, balance, storage root, code
// hash), per §3's Account product type.
func DecodeAccount(leaf []byte) (*types.StateAccount, error) {
	var acc types.StateAccount
	if err := rlp.DecodeBytes(leaf, &acc); err != nil {
		return nil, fmt.Errorf("decoding account leaf: %w", err)
	}
	return &acc, nil
}
