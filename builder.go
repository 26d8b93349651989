// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// defaultElementAlloc is the default number of elements a script
	// builder pre-allocates room for.  The value chosen keeps typical
	// scripts from needing to grow the backing array while wasting little
	// for small scripts.
	defaultElementAlloc = 64
)

// ScriptBuilder provides a facility for building custom scripts.  It allows
// you to push opcodes, ints, and data while respecting the canonical form
// rules, and to compose previously built scripts and expand compile-time
// control flow.
//
// For example, the following would build a 2-of-3 multisig script for usage
// in a pay-to-script-hash:
//
//	builder := bscript.NewScriptBuilder()
//	builder.AddOp(bscript.OP_2).AddData(pubKey1).AddData(pubKey2)
//	builder.AddData(pubKey3).AddOp(bscript.OP_3)
//	builder.AddOp(bscript.OP_CHECKMULTISIG)
//	script, err := builder.Script()
//	if err != nil {
//		// Handle the error.
//		return
//	}
//	fmt.Printf("Final multi-sig script: %x\n", script)
//
// Builder methods record elements in a script tree rather than serializing
// immediately; the tree is retrieved with Finish and turned into bytes with
// Compile.  The Repeat and Branch methods expand compile-time control flow
// eagerly while the builder runs, so the finished tree never contains any
// unresolved directives.
//
// The methods maintain a sticky error: once any method fails, all further
// calls are no-ops and the first error is reported by Script and Finish.
type ScriptBuilder struct {
	script *Script
	err    error
}

// NewScriptBuilder returns a new instance of a script builder.  See
// ScriptBuilder for details.
func NewScriptBuilder() *ScriptBuilder {
	return &ScriptBuilder{
		script: &Script{elems: make([]element, 0, defaultElementAlloc)},
	}
}

// Reset resets the script so it has no content.
func (b *ScriptBuilder) Reset() *ScriptBuilder {
	b.script = &Script{elems: make([]element, 0, defaultElementAlloc)}
	b.err = nil
	return b
}

// SetName attaches a debug identifier to the script under construction.  The
// name shows up in diagnostics only and has no effect on the compiled bytes.
func (b *ScriptBuilder) SetName(name string) *ScriptBuilder {
	b.script.name = name
	return b
}

// AddOp pushes the passed opcode to the end of the script.  The script will
// not be modified if pushing the opcode would cause the script to exceed the
// maximum allowed script size.
func (b *ScriptBuilder) AddOp(opcode byte) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	// Pushes that would cause the script to exceed the largest allowed
	// script size would result in a non-canonical script.
	if b.script.size+1 > MaxScriptSize {
		str := fmt.Sprintf("adding an opcode would exceed the maximum "+
			"allowed canonical script length of %d", MaxScriptSize)
		b.err = ErrScriptNotCanonical(str)
		return b
	}

	b.script.elems = append(b.script.elems, element{kind: elemOpcode, op: opcode})
	b.script.size++
	return b
}

// AddOps pushes the passed opcodes to the end of the script.  The script will
// not be modified if pushing the opcodes would cause the script to exceed the
// maximum allowed script size.
func (b *ScriptBuilder) AddOps(opcodes []byte) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	// Pushes that would cause the script to exceed the largest allowed
	// script size would result in a non-canonical script.
	if b.script.size+len(opcodes) > MaxScriptSize {
		str := fmt.Sprintf("adding opcodes would exceed the maximum "+
			"allowed canonical script length of %d", MaxScriptSize)
		b.err = ErrScriptNotCanonical(str)
		return b
	}

	for _, opcode := range opcodes {
		b.script.elems = append(b.script.elems,
			element{kind: elemOpcode, op: opcode})
	}
	b.script.size += len(opcodes)
	return b
}

// AddOpName looks the passed mnemonic up in the opcode table and pushes the
// resulting opcode to the end of the script.  Unknown mnemonics fail the
// builder with an ErrUnknownOpcode.
func (b *ScriptBuilder) AddOpName(name string) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	opcode, err := LookupOpcode(name)
	if err != nil {
		b.err = err
		return b
	}
	return b.AddOp(opcode)
}

// AddInt64 pushes the passed integer to the end of the script.  The script
// will not be modified if pushing the data would cause the script to exceed
// the maximum allowed script size.
//
// Zero and the values -1 and 1 through 16 compile to their dedicated single
// opcode; everything else compiles to a minimal sign-magnitude data push.
func (b *ScriptBuilder) AddInt64(val int64) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	// Pushes that would cause the script to exceed the largest allowed
	// script size would result in a non-canonical script.
	if b.script.size+intPushSize(val) > MaxScriptSize {
		str := fmt.Sprintf("adding an integer would exceed the "+
			"maximum allowed canonical script length of %d",
			MaxScriptSize)
		b.err = ErrScriptNotCanonical(str)
		return b
	}

	b.script.elems = append(b.script.elems, element{kind: elemInt, num: val})
	b.script.size += intPushSize(val)
	return b
}

// addData is the internal function that actually records the passed data
// as an element.  It automatically chooses canonical opcodes at compile time
// depending on the length of the data.  A zero length buffer will lead to a
// push of empty data onto the stack (OP_0).  No data limits are enforced
// with this function.
func (b *ScriptBuilder) addData(data []byte) *ScriptBuilder {
	// Copy the bytes so later mutation of the caller's slice cannot
	// change an already built, supposedly immutable script.
	dup := make([]byte, len(data))
	copy(dup, data)

	b.script.elems = append(b.script.elems, element{kind: elemBytes, data: dup})
	b.script.size += dataPushSize(dup)
	return b
}

// AddFullData should not typically be used by ordinary users as it does not
// include the checks which prevent data pushes larger than the maximum
// allowed sizes which leads to scripts that can't be executed.  This is
// provided for testing purposes such as regression tests where sizes are
// intentionally made larger than allowed.
//
// Use AddData instead.
func (b *ScriptBuilder) AddFullData(data []byte) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	return b.addData(data)
}

// AddData pushes the passed data to the end of the script.  It automatically
// chooses canonical opcodes at compile time depending on the length of the
// data.  A zero length buffer will lead to a push of empty data onto the
// stack (OP_0) and any push of data greater than MaxScriptElementSize will
// not modify the script since that is not allowed by the script engine.
// Also, the script will not be modified if pushing the data would cause the
// script to exceed the maximum allowed script size.
func (b *ScriptBuilder) AddData(data []byte) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	// Pushes that would cause the script to exceed the largest allowed
	// script size would result in a non-canonical script.
	dataSize := dataPushSize(data)
	if b.script.size+dataSize > MaxScriptSize {
		str := fmt.Sprintf("adding %d bytes of data would exceed the "+
			"maximum allowed canonical script length of %d",
			dataSize, MaxScriptSize)
		b.err = ErrScriptNotCanonical(str)
		return b
	}

	// Pushes larger than the max script element size would result in a
	// script that is not canonical.
	dataLen := len(data)
	if dataLen > MaxScriptElementSize {
		str := fmt.Sprintf("adding a data element of %d bytes would "+
			"exceed the maximum allowed script element size of %d",
			dataLen, MaxScriptElementSize)
		b.err = ErrScriptNotCanonical(str)
		return b
	}

	return b.addData(data)
}

// AddPubKey pushes the compressed serialization of the passed public key to
// the end of the script.
func (b *ScriptBuilder) AddPubKey(key *btcec.PublicKey) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	return b.AddData(key.SerializeCompressed())
}

// AddXOnlyPubKey pushes the 32-byte x-only serialization of the passed
// public key to the end of the script, as used within taproot leaf scripts.
func (b *ScriptBuilder) AddXOnlyPubKey(key *btcec.PublicKey) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	return b.AddData(schnorr.SerializePubKey(key))
}

// AddHash pushes the passed hash to the end of the script.
func (b *ScriptBuilder) AddHash(hash *chainhash.Hash) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	return b.AddData(hash[:])
}

// AddScript embeds the passed script at the end of the script by reference.
// The embedded script is NOT copied: the same tree may be embedded into any
// number of parents and is only encoded when a parent is compiled, at which
// point its bytes are spliced inline at every reference site.  The embedded
// script must not be modified after this call, which the builder guarantees
// for scripts it returned.
//
// Composition is exempt from the canonical script size limit since script
// trees commonly exceed it and taproot leaf scripts have no such cap; the
// primitive push methods retain the limit.
func (b *ScriptBuilder) AddScript(script *Script) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	b.script.elems = append(b.script.elems, element{kind: elemScript, sub: script})
	b.script.size += script.size
	return b
}

// AddScriptCopy splices the top-level elements of the passed script into the
// script being built by value.  Unlike AddScript no reference is retained,
// so the result compiles as if each element had been added individually.
func (b *ScriptBuilder) AddScriptCopy(script *Script) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	b.script.elems = append(b.script.elems, script.elems...)
	b.script.size += script.size
	return b
}

// Repeat invokes body exactly count times, passing the zero-based iteration
// index.  Elements the body adds to the builder are appended in invocation
// order, so the result is count concatenations of the body's output.  A
// count of zero adds nothing.  A negative count fails the builder with an
// ErrInvalidRepeatCount.
//
// This is compile-time macro expansion over values known to the caller, not
// a loop primitive in the output script: the compiled script contains only
// the elements the body emitted.
func (b *ScriptBuilder) Repeat(count int, body func(i int)) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	if count < 0 {
		b.err = ErrInvalidRepeatCount{Count: count}
		return b
	}

	for i := 0; i < count; i++ {
		body(i)
		if b.err != nil {
			return b
		}
	}
	return b
}

// Branch evaluates cond once and invokes exactly one of then/els, appending
// whatever elements the chosen body adds.  A nil els with a false cond adds
// nothing.  Like Repeat this is compile-time selection: no conditional
// opcode is emitted unless a body explicitly adds one (e.g. OP_IF), which is
// an entirely separate, runtime construct.
func (b *ScriptBuilder) Branch(cond bool, then func(), els func()) *ScriptBuilder {
	if b.err != nil {
		return b
	}

	switch {
	case cond:
		then()
	case els != nil:
		els()
	}
	return b
}

// Finish returns the built script tree.  The builder is reset so the
// returned tree can never be mutated through it, making the tree safe to
// embed into other builders and to read concurrently.
func (b *ScriptBuilder) Finish() (*Script, error) {
	if b.err != nil {
		return nil, b.err
	}

	script := b.script
	b.script = &Script{elems: make([]element, 0, defaultElementAlloc)}
	return script, nil
}

// Err returns the first error encountered by the builder, if any.  It can
// be used mid-construction; Script and Finish report the same error.
func (b *ScriptBuilder) Err() error {
	return b.err
}

// Script returns the currently built script compiled to bytes without
// optimization.  When any errors occurred while building the script, the
// script built up to the first failure is returned along with the error.
func (b *ScriptBuilder) Script() ([]byte, error) {
	compiled, err := Compile(b.script, false)
	if err != nil {
		return compiled, err
	}
	return compiled, b.err
}
