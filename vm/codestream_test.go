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
	"bytes"
	"testing"
)

// S2: PUSH1 0x01 PUSH1 0x02 JUMPDEST — the trailing JUMPDEST (position 4)
// is a real opcode, not push-data, so it's valid; positions 1 and 3 are
// push-data and therefore invalid even though their byte value (0x01,
// 0x02) isn't itself JUMPDEST.
func TestIsValidOpcodeScenarioS2(t *testing.T) {
	code := []byte{PUSH1, 0x01, PUSH1, 0x02, JUMPDEST}
	cs := NewCodeStream(code)

	want := []bool{true, false, true, false, true}
	for pos, w := range want {
		if got := cs.IsValidOpcode(uint64(pos)); got != w {
			t.Errorf("IsValidOpcode(%d) = %v, want %v", pos, got, w)
		}
	}
}

// S3: PUSH1 0x5B — the byte 0x5B is JUMPDEST's own opcode value, but here
// it's push-data for the preceding PUSH1, so position 1 must be invalid.
func TestIsValidOpcodeScenarioS3(t *testing.T) {
	code := []byte{PUSH1, JUMPDEST}
	cs := NewCodeStream(code)

	if cs.IsValidOpcode(0) != true {
		t.Error("position 0 (PUSH1 itself) should be valid")
	}
	if cs.IsValidOpcode(1) != false {
		t.Error("position 1 (push-data disguised as JUMPDEST) should be invalid")
	}
}

// S4: a PUSH32 whose 32 bytes of data are all 0x5B, followed by a real
// trailing JUMPDEST. Every byte in the data window is invalid; the byte
// right after it is valid.
func TestIsValidOpcodeScenarioS4(t *testing.T) {
	code := make([]byte, 0, 1+32+1)
	code = append(code, PUSH32)
	code = append(code, bytes.Repeat([]byte{JUMPDEST}, 32)...)
	code = append(code, JUMPDEST)
	cs := NewCodeStream(code)

	if !cs.IsValidOpcode(0) {
		t.Error("position 0 (PUSH32 itself) should be valid")
	}
	for i := 1; i <= 32; i++ {
		if cs.IsValidOpcode(uint64(i)) {
			t.Errorf("position %d (push-data) should be invalid", i)
		}
	}
	if !cs.IsValidOpcode(33) {
		t.Error("position 33 (real trailing JUMPDEST) should be valid")
	}
}

// P6/P7: classification is stable (idempotent) however many times it's
// asked, and doesn't depend on query order.
func TestIsValidOpcodeStableUnderRepeatAndOrder(t *testing.T) {
	code := []byte{PUSH32}
	code = append(code, bytes.Repeat([]byte{0x01}, 32)...)
	code = append(code, JUMPDEST)

	forward := NewCodeStream(append([]byte(nil), code...))
	var forwardResults []bool
	for i := 0; i < len(code); i++ {
		forwardResults = append(forwardResults, forward.IsValidOpcode(uint64(i)))
	}

	backward := NewCodeStream(append([]byte(nil), code...))
	var backwardResults []bool
	for i := len(code) - 1; i >= 0; i-- {
		backwardResults = append([]bool{backward.IsValidOpcode(uint64(i))}, backwardResults...)
	}

	for i := range forwardResults {
		if forwardResults[i] != backwardResults[i] {
			t.Fatalf("position %d: forward-order=%v backward-order=%v", i, forwardResults[i], backwardResults[i])
		}
		// asking twice gives the same answer
		if again := forward.IsValidOpcode(uint64(i)); again != forwardResults[i] {
			t.Fatalf("position %d: repeated query changed answer", i)
		}
	}
}

func TestIsValidOpcodeOutOfRange(t *testing.T) {
	cs := NewCodeStream([]byte{PUSH1, 0x01})
	if cs.IsValidOpcode(2) {
		t.Error("position past the end of the code should never be valid")
	}
	if cs.IsValidOpcode(1000) {
		t.Error("position far past the end of the code should never be valid")
	}
}

func TestReadClampsAtEndOfCode(t *testing.T) {
	cs := NewCodeStream([]byte{0x01, 0x02, 0x03})
	cs.SetPC(2)
	got := cs.Read(10)
	if !bytes.Equal(got, []byte{0x03}) {
		t.Fatalf("Read past end = %x, want [03]", got)
	}
	if cs.PC() != 12 {
		t.Fatalf("pc after short read = %d, want 12 (advances by the full requested size)", cs.PC())
	}
}

func TestReadPastEndReturnsEmpty(t *testing.T) {
	cs := NewCodeStream([]byte{0x01})
	cs.SetPC(5)
	got := cs.Read(3)
	if len(got) != 0 {
		t.Fatalf("Read from past the end = %x, want empty", got)
	}
}

func TestPeekReturnsStopAtEnd(t *testing.T) {
	cs := NewCodeStream([]byte{0x01})
	cs.SetPC(1)
	if cs.Peek() != STOP {
		t.Fatal("Peek at end of code should return STOP")
	}
}

func TestIterYieldsTrailingStopOnce(t *testing.T) {
	cs := NewCodeStream([]byte{0x11, 0x22})
	it := cs.Iter()

	var ops []byte
	for {
		op, ok := it.Next()
		if !ok {
			break
		}
		ops = append(ops, op)
	}
	want := []byte{0x11, 0x22, STOP}
	if !bytes.Equal(ops, want) {
		t.Fatalf("iteration = %x, want %x", ops, want)
	}
}

func TestIterObservesMidIterationPCMutation(t *testing.T) {
	// PUSH1 0x99 JUMPDEST — a consumer driving the iterator skips the
	// push-data by relocating pc after consuming the PUSH1.
	cs := NewCodeStream([]byte{PUSH1, 0x99, JUMPDEST})
	it := cs.Iter()

	op, _ := it.Next()
	if op != PUSH1 {
		t.Fatalf("first op = %x, want PUSH1", op)
	}
	cs.SetPC(cs.PC() + 1) // skip the push-data byte

	op, _ = it.Next()
	if op != JUMPDEST {
		t.Fatalf("second op after skip = %x, want JUMPDEST", op)
	}
}

func TestSeekRestoresPCOnPanic(t *testing.T) {
	cs := NewCodeStream([]byte{0x01, 0x02, 0x03})
	cs.SetPC(1)

	func() {
		defer func() { recover() }()
		cs.Seek(2, func() { panic("boom") })
	}()

	if cs.PC() != 1 {
		t.Fatalf("pc after Seek panic = %d, want 1 (restored)", cs.PC())
	}
}

func TestCodeReadsNilWithoutAddress(t *testing.T) {
	cs := NewCodeStream([]byte{0x01})
	if cs.CodeReads() != nil {
		t.Fatal("CodeReads should be nil when WithAddress was never called")
	}
}
