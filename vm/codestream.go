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

// Package vm implements a forward-scanning cursor over EVM contract
// bytecode: jumpdest validity analysis and per-contract read coverage.
// It does not interpret the code; it is consumed by an interpreter.
package vm

import "github.com/ethereum/go-ethereum/common"

// Opcode values relevant to jumpdest analysis. The full opcode table
// belongs to an interpreter, not here; these four names are the only ones
// this package's algorithm needs.
const (
	STOP     = 0x00
	PUSH1    = 0x60
	PUSH32   = 0x7f
	JUMPDEST = 0x5b
)

// CodeStream is a forward-scanning reader over one contract's bytecode.
// Its program counter is free-running: nothing clamps pc to [0,len(code)),
// and setting it negative is undefined behavior, mirroring the teacher's
// own EVM code-stream contract. It is not safe for concurrent use.
type CodeStream struct {
	raw    []byte
	length uint64 // cached, avoids repeated len() calls on a hot path
	pc     uint64

	reads   map[uint64]struct{}
	valid   map[uint64]struct{}
	invalid map[uint64]struct{}

	address    common.Address
	hasAddress bool
}

// NewCodeStream wraps code for sequential reading starting at pc 0.
func NewCodeStream(code []byte) *CodeStream {
	return &CodeStream{
		raw:     code,
		length:  uint64(len(code)),
		reads:   make(map[uint64]struct{}),
		valid:   make(map[uint64]struct{}),
		invalid: make(map[uint64]struct{}),
	}
}

// WithAddress attaches the contract address this code belongs to, so that
// CodeReads can later be extracted for coverage aggregation. It returns
// the receiver for chaining at construction time.
func (cs *CodeStream) WithAddress(addr common.Address) *CodeStream {
	cs.address = addr
	cs.hasAddress = true
	return cs
}

// Len returns the cached code length.
func (cs *CodeStream) Len() uint64 { return cs.length }

// PC returns the current program counter.
func (cs *CodeStream) PC() uint64 { return cs.pc }

// SetPC relocates the cursor. Consumers use this directly to skip
// push-data, or indirectly via Seek for a scoped relocation.
func (cs *CodeStream) SetPC(pc uint64) { cs.pc = pc }

// Read returns code[pc:pc+size], clamped to the end of the code (a short
// read, not an error, when pc+size overflows the code length), recording
// every position actually read and advancing pc by the full requested
// size regardless of how much was actually available.
func (cs *CodeStream) Read(size uint64) []byte {
	start := cs.pc
	cs.pc = start + size

	clampedStart, clampedEnd := start, start+size
	if clampedStart > cs.length {
		clampedStart = cs.length
	}
	if clampedEnd > cs.length {
		clampedEnd = cs.length
	}
	if clampedStart >= clampedEnd {
		return nil
	}
	for i := clampedStart; i < clampedEnd; i++ {
		cs.reads[i] = struct{}{}
	}
	out := make([]byte, clampedEnd-clampedStart)
	copy(out, cs.raw[clampedStart:clampedEnd])
	return out
}

// At returns the byte at absolute position i, recording the read. Callers
// must keep i within [0, len(code)); out-of-range access is a programming
// error, not a recoverable condition.
func (cs *CodeStream) At(i uint64) byte {
	cs.reads[i] = struct{}{}
	return cs.raw[i]
}

// Peek returns the byte at the current pc without advancing it, or STOP
// if pc is at or past the end of the code. It still records the read.
func (cs *CodeStream) Peek() byte {
	if cs.pc < cs.length {
		cs.reads[cs.pc] = struct{}{}
		return cs.raw[cs.pc]
	}
	return STOP
}

// Iterator is the cyclic, re-entrant cursor Iter returns: it advances pc
// one byte per call to Next, and a consumer may reassign the underlying
// CodeStream's pc between calls (e.g. to skip push-data) — the iterator
// has no private copy of the position, so the relocation takes effect on
// the very next Next call.
type Iterator struct {
	cs      *CodeStream
	stopped bool
}

// Iter returns a fresh Iterator over cs, starting from cs's current pc.
func (cs *CodeStream) Iter() *Iterator {
	return &Iterator{cs: cs}
}

// Next returns the opcode at the current pc and advances it by one. Once
// pc reaches the end of the code, Next yields a single synthetic STOP and
// then reports ok=false on every subsequent call.
func (it *Iterator) Next() (op byte, ok bool) {
	if it.stopped {
		return 0, false
	}
	pc := it.cs.pc
	if pc < it.cs.length {
		it.cs.reads[pc] = struct{}{}
		op = it.cs.raw[pc]
		it.cs.pc = pc + 1
		return op, true
	}
	it.stopped = true
	return STOP, true
}

// Seek is a scoped cursor relocation: it saves the current pc, sets pc to
// target, runs fn, and restores the saved pc on every exit path —
// including a panic inside fn — regardless of what fn itself did to pc in
// the meantime. fn may read or mutate pc freely; only the final restore
// is guaranteed.
func (cs *CodeStream) Seek(target uint64, fn func()) {
	saved := cs.pc
	cs.pc = target
	defer func() { cs.pc = saved }()
	fn()
}

// IsValidOpcode implements the jumpdest-validity algorithm of §4.H: a
// position is invalid iff it is the data portion of a PUSH1..PUSH32
// opcode that is itself valid. Decisions are memoized in valid/invalid,
// which are monotone — once a position is classified it is never
// reclassified (invariant I3).
func (cs *CodeStream) IsValidOpcode(position uint64) bool {
	if position >= cs.length {
		return false
	}
	if _, bad := cs.invalid[position]; bad {
		return false
	}
	if _, ok := cs.valid[position]; ok {
		return true
	}

	deepest := position
	if deepest > 32 {
		deepest = 32
	}
	// Walk backwards from 32 bytes (PUSH32 is the most common, so check
	// it first) down to 1.
	for back := deepest; back >= 1; back-- {
		earlier := position - back
		op := cs.raw[earlier]
		threshold := uint64(PUSH1) + (back - 1)
		if uint64(op) >= threshold && uint64(op) <= PUSH32 {
			if cs.IsValidOpcode(earlier) {
				cs.invalid[position] = struct{}{}
				return false
			}
		}
	}
	cs.valid[position] = struct{}{}
	return true
}

// CodeReads returns the coverage this CodeStream has accumulated so far,
// or nil if WithAddress was never called (there's no address to key the
// aggregation by).
func (cs *CodeStream) CodeReads() *CodeReads {
	if !cs.hasAddress {
		return nil
	}
	reads := make(map[uint64]struct{}, len(cs.reads))
	for k := range cs.reads {
		reads[k] = struct{}{}
	}
	return &CodeReads{Address: cs.address, Reads: reads, CodeSize: cs.length}
}
