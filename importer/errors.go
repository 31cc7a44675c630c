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

import "errors"

var (
	// ErrChainDivergence is returned by ImportHeaders when the
	// destination's reported canonical head doesn't match what the
	// source reports at the same height.
	ErrChainDivergence = errors.New("importer: destination head diverges from source")

	// ErrBodyRootMismatch is returned by ImportBodyRange when the
	// locally materialized transactions trie root doesn't match the
	// header's recorded transactions root.
	ErrBodyRootMismatch = errors.New("importer: transactions root mismatch")
)
