// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

import (
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// MaxScriptElementSize is the maximum number of bytes a single data
	// push is allowed to be when using the canonical builder methods.
	MaxScriptElementSize = 520

	// MaxScriptSize is the maximum number of bytes the canonical builder
	// methods allow a script to grow to.
	MaxScriptSize = 10000
)

// elementKind identifies which variant of the element union is populated.
type elementKind uint8

const (
	// elemOpcode is a single instruction byte.
	elemOpcode elementKind = iota

	// elemInt is a signed integer to be encoded with the minimal push
	// rules at compile time.
	elemInt

	// elemBytes is a raw byte sequence to be length-prefixed and pushed.
	elemBytes

	// elemScript is an embedded sub-script shared by reference.  The
	// referenced tree is encoded independently and spliced inline with no
	// additional framing.
	elemScript
)

// element is one leaf unit of a script tree.  Exactly one of the variant
// fields is meaningful, selected by kind.
type element struct {
	kind elementKind
	op   byte
	num  int64
	data []byte
	sub  *Script
}

// Script is an ordered sequence of script elements, possibly referencing
// embedded sub-scripts.  Scripts are produced by a ScriptBuilder and are
// immutable once returned, which makes it safe to share one script as a
// sub-script of several parents and to read it from multiple goroutines
// without synchronization.  All compile-time control flow has already been
// expanded by the time a Script exists; the only branching in a compiled
// script is whatever conditional opcodes the author emitted explicitly.
type Script struct {
	name  string
	elems []element
	size  int
}

// Name returns the debug identifier associated with the script.  It is only
// used for diagnostics and may be empty.
func (s *Script) Name() string {
	return s.name
}

// Size returns the exact number of bytes the script will occupy once
// compiled without optimization.  It is suitable for pre-sizing buffers.
// Embedded sub-scripts are counted at every reference site since each
// reference is spliced into the output separately.
func (s *Script) Size() int {
	return s.size
}

// NumElements returns the number of top-level elements in the script.
// Elements inside embedded sub-scripts are not counted.
func (s *Script) NumElements() int {
	return len(s.elems)
}

// Hash returns the hash of the script's compiled, unoptimized bytes.  Two
// structurally distinct trees that compile to the same bytes hash equal,
// which makes the hash usable for content-addressed deduplication of
// sub-scripts.
func (s *Script) Hash() (chainhash.Hash, error) {
	compiled, err := Compile(s, false)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.HashH(compiled), nil
}

// String returns a one-line disassembly of the compiled script.  It is
// intended for debugging output and returns a description of the failure
// when the script cannot be compiled.
func (s *Script) String() string {
	compiled, err := Compile(s, false)
	if err != nil {
		return "[error: " + err.Error() + "]"
	}
	disasm, err := DisasmString(compiled)
	if err != nil {
		return disasm + " [error]"
	}
	return disasm
}

// elementSize returns the number of bytes the element occupies in the
// compiled script.
func elementSize(e element) int {
	switch e.kind {
	case elemOpcode:
		return 1

	case elemInt:
		return intPushSize(e.num)

	case elemBytes:
		return dataPushSize(e.data)

	case elemScript:
		return e.sub.size
	}

	panic("unknown element kind")
}

// intPushSize returns the number of bytes the canonical push of the passed
// integer occupies.  math.MinInt64 has no canonical encoding and is reported
// at its would-be width so buffer pre-sizing stays an upper bound; the
// compile step rejects the value itself.
func intPushSize(val int64) int {
	if val == 0 || val == -1 || (val >= 1 && val <= 16) {
		return 1
	}
	payload, err := scriptNumBytes(val)
	if err != nil {
		return 10
	}
	return 1 + len(payload)
}

// dataPushSize returns the number of bytes the canonical push of the passed
// data occupies, including the length prefix opcode bytes.
func dataPushSize(data []byte) int {
	dataLen := len(data)
	switch {
	// The data is interpreted as a small integer or OP_1NEGATE and pushed
	// as a single opcode.
	case dataLen == 0:
		return 1
	case dataLen == 1 && (data[0] <= 16 || data[0] == 0x81):
		return 1

	case dataLen <= 75:
		return 1 + dataLen
	case dataLen <= 0xff:
		return 2 + dataLen
	case dataLen <= 0xffff:
		return 3 + dataLen
	}
	return 5 + dataLen
}

// FromBytes parses a compiled script back into a flat script tree with one
// element per instruction.  Data pushes are recorded as data elements, so
// recompiling the result produces the canonical form of the script even when
// the input used a non-minimal push encoding.
func FromBytes(script []byte) (*Script, error) {
	s := &Script{}
	tokenizer := MakeScriptTokenizer(script)
	for tokenizer.Next() {
		op := tokenizer.Opcode()
		if data := tokenizer.Data(); data != nil ||
			(op >= OP_DATA_1 && op <= OP_PUSHDATA4) {

			dup := make([]byte, len(data))
			copy(dup, data)
			s.elems = append(s.elems, element{kind: elemBytes, data: dup})
			s.size += dataPushSize(dup)
			continue
		}
		s.elems = append(s.elems, element{kind: elemOpcode, op: op})
		s.size++
	}
	if err := tokenizer.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// DisasmString formats a compiled script as one line of human-readable
// disassembly with a compact representation for data pushes and small
// integers.  The disassembly of everything successfully parsed up to the
// point of failure is returned along with the error for malformed scripts.
func DisasmString(script []byte) (string, error) {
	var disbuf strings.Builder
	tokenizer := MakeScriptTokenizer(script)
	if tokenizer.Next() {
		disasmOpcode(&disbuf, tokenizer.op, tokenizer.Data(), true)
	}
	for tokenizer.Next() {
		disbuf.WriteByte(' ')
		disasmOpcode(&disbuf, tokenizer.op, tokenizer.Data(), true)
	}
	if tokenizer.Err() != nil {
		if tokenizer.ByteIndex() != 0 {
			disbuf.WriteByte(' ')
		}
		disbuf.WriteString("[error]")
	}
	return disbuf.String(), tokenizer.Err()
}
