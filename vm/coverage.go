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

package vm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// CodeReads is the set of byte positions read out of one contract's code
// during some span of execution, alongside the contract's total size.
// Two CodeReads only combine if they name the same address (P8).
type CodeReads struct {
	Address  common.Address
	Reads    map[uint64]struct{}
	CodeSize uint64
}

// Add returns the union of cr and other's read positions. It panics if
// the two CodeReads disagree on address or code size: merging coverage
// for two different contracts is a programming error, not a runtime
// condition to recover from.
func (cr CodeReads) Add(other CodeReads) CodeReads {
	if cr.Address != other.Address {
		panic(fmt.Sprintf("vm: cannot merge CodeReads for %x and %x", cr.Address, other.Address))
	}
	if cr.CodeSize != other.CodeSize {
		panic(fmt.Sprintf("vm: code size mismatch merging CodeReads for %x: %d vs %d", cr.Address, cr.CodeSize, other.CodeSize))
	}
	merged := make(map[uint64]struct{}, len(cr.Reads)+len(other.Reads))
	for p := range cr.Reads {
		merged[p] = struct{}{}
	}
	for p := range other.Reads {
		merged[p] = struct{}{}
	}
	return CodeReads{Address: cr.Address, Reads: merged, CodeSize: cr.CodeSize}
}

// CodeReadsDict aggregates CodeReads across many contract addresses, e.g.
// across an entire block or a whole replay run.
type CodeReadsDict map[common.Address]CodeReads

// NewCodeReadsDict returns an empty dict.
func NewCodeReadsDict() CodeReadsDict {
	return make(CodeReadsDict)
}

// AddReads merges one CodeReads into the dict, combining with whatever is
// already recorded for its address.
func (d CodeReadsDict) AddReads(cr CodeReads) {
	if existing, ok := d[cr.Address]; ok {
		d[cr.Address] = existing.Add(cr)
	} else {
		d[cr.Address] = cr
	}
}

// Merge combines two dicts key-by-key (per-address union), returning a
// new dict. Merge is associative and commutative (P8): the result does
// not depend on which dicts were combined first or in which order.
func (d CodeReadsDict) Merge(other CodeReadsDict) CodeReadsDict {
	out := make(CodeReadsDict, len(d)+len(other))
	for addr, cr := range d {
		out[addr] = cr
	}
	for addr, cr := range other {
		if existing, ok := out[addr]; ok {
			out[addr] = existing.Add(cr)
		} else {
			out[addr] = cr
		}
	}
	return out
}

// TotalCodeBytes sums CodeSize across every address in the dict.
func (d CodeReadsDict) TotalCodeBytes() uint64 {
	var total uint64
	for _, cr := range d {
		total += cr.CodeSize
	}
	return total
}

// TotalReadBytes sums the number of distinct positions read across every
// address in the dict.
func (d CodeReadsDict) TotalReadBytes() uint64 {
	var total uint64
	for _, cr := range d {
		total += uint64(len(cr.Reads))
	}
	return total
}
