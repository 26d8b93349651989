// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// TestBuilderRepeat ensures the compile-time repetition directive expands the
// body the requested number of times with the running index.
func TestBuilderRepeat(t *testing.T) {
	t.Parallel()

	builder := NewScriptBuilder()
	builder.Repeat(3, func(i int) {
		builder.AddInt64(int64(i)).AddOp(OP_ADD)
	})
	compiled, err := builder.Script()
	require.NoError(t, err)
	require.Equal(t, []byte{OP_0, OP_ADD, OP_1, OP_ADD, OP_2, OP_ADD},
		compiled)
}

// TestBuilderRepeatZero ensures a zero iteration count adds nothing.
func TestBuilderRepeatZero(t *testing.T) {
	t.Parallel()

	builder := NewScriptBuilder().AddOp(OP_DUP)
	builder.Repeat(0, func(i int) {
		builder.AddOp(OP_DROP)
	})
	compiled, err := builder.Script()
	require.NoError(t, err)
	require.Equal(t, []byte{OP_DUP}, compiled)
}

// TestBuilderRepeatNegative ensures a negative iteration count fails the
// builder without invoking the body and that the failure is sticky.
func TestBuilderRepeatNegative(t *testing.T) {
	t.Parallel()

	builder := NewScriptBuilder().AddOp(OP_DUP)
	invoked := false
	builder.Repeat(-2, func(i int) {
		invoked = true
	})
	require.False(t, invoked)

	var countErr ErrInvalidRepeatCount
	require.ErrorAs(t, builder.Err(), &countErr)
	require.Equal(t, -2, countErr.Count)

	// Later additions are no-ops and the script so far is preserved.
	compiled, err := builder.AddOp(OP_DROP).Script()
	require.Error(t, err)
	require.Equal(t, []byte{OP_DUP}, compiled)

	_, err = builder.Finish()
	require.ErrorAs(t, err, &countErr)
}

// TestBuilderBranch ensures exactly one branch body runs and that a nil else
// with a false condition adds nothing.
func TestBuilderBranch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cond     bool
		nilElse  bool
		expected []byte
	}{
		{name: "true picks then", cond: true, expected: []byte{OP_DUP}},
		{name: "false picks else", cond: false, expected: []byte{OP_DROP}},
		{name: "false with nil else", cond: false, nilElse: true,
			expected: []byte{}},
	}

	for _, test := range tests {
		builder := NewScriptBuilder()
		els := func() { builder.AddOp(OP_DROP) }
		if test.nilElse {
			els = nil
		}
		builder.Branch(test.cond, func() {
			builder.AddOp(OP_DUP)
		}, els)
		compiled, err := builder.Script()
		require.NoError(t, err, test.name)
		require.Equal(t, test.expected, compiled, test.name)
	}
}

// TestBuilderNestedDirectives ensures repetition and branching compose, since
// both expand eagerly while the builder runs.
func TestBuilderNestedDirectives(t *testing.T) {
	t.Parallel()

	builder := NewScriptBuilder()
	builder.Repeat(4, func(i int) {
		builder.Branch(i%2 == 0, func() {
			builder.AddOp(OP_TOALTSTACK)
		}, func() {
			builder.AddOp(OP_FROMALTSTACK)
		})
	})
	compiled, err := builder.Script()
	require.NoError(t, err)
	require.Equal(t, []byte{OP_TOALTSTACK, OP_FROMALTSTACK,
		OP_TOALTSTACK, OP_FROMALTSTACK}, compiled)
}

// TestBuilderAddOpName ensures mnemonic lookup covers aliases and rejects
// unknown names with the offending name attached.
func TestBuilderAddOpName(t *testing.T) {
	t.Parallel()

	compiled, err := NewScriptBuilder().
		AddOpName("OP_DUP").
		AddOpName("OP_TRUE").
		AddOpName("OP_NOP2").
		Script()
	require.NoError(t, err)
	require.Equal(t, []byte{OP_DUP, OP_TRUE, OP_CHECKLOCKTIMEVERIFY},
		compiled)

	builder := NewScriptBuilder().AddOpName("OP_BOGUS")
	var unknownErr ErrUnknownOpcode
	require.ErrorAs(t, builder.Err(), &unknownErr)
	require.Equal(t, "OP_BOGUS", unknownErr.Name)
}

// TestBuilderTypedPushes ensures the key and hash helpers push the expected
// serializations.
func TestBuilderTypedPushes(t *testing.T) {
	t.Parallel()

	privKeyBytes := bytes.Repeat([]byte{0x2a}, 32)
	_, pubKey := btcec.PrivKeyFromBytes(privKeyBytes)

	var hash chainhash.Hash
	copy(hash[:], bytes.Repeat([]byte{0x77}, chainhash.HashSize))

	compiled, err := NewScriptBuilder().
		AddPubKey(pubKey).
		AddXOnlyPubKey(pubKey).
		AddHash(&hash).
		Script()
	require.NoError(t, err)

	var expected []byte
	expected = append(expected, OP_DATA_33)
	expected = append(expected, pubKey.SerializeCompressed()...)
	expected = append(expected, OP_DATA_32)
	expected = append(expected, schnorr.SerializePubKey(pubKey)...)
	expected = append(expected, OP_DATA_32)
	expected = append(expected, hash[:]...)
	require.Equal(t, expected, compiled)
}

// TestBuilderFinishDetaches ensures a finished script is immune to further
// builder use.
func TestBuilderFinishDetaches(t *testing.T) {
	t.Parallel()

	builder := NewScriptBuilder().AddOp(OP_DUP)
	script, err := builder.Finish()
	require.NoError(t, err)
	require.Equal(t, 1, script.NumElements())

	// The builder starts over; the finished tree is unaffected.
	builder.AddOp(OP_DROP)
	require.Equal(t, 1, script.NumElements())

	compiled, err := Compile(script, false)
	require.NoError(t, err)
	require.Equal(t, []byte{OP_DUP}, compiled)

	compiled, err = builder.Script()
	require.NoError(t, err)
	require.Equal(t, []byte{OP_DROP}, compiled)
}

// TestBuilderAddScriptCopy ensures splicing by value is equivalent to adding
// the elements directly and retains no reference to the source tree.
func TestBuilderAddScriptCopy(t *testing.T) {
	t.Parallel()

	src := NewScriptBuilder().AddInt64(5).AddOp(OP_ADD)
	srcScript, err := src.Finish()
	require.NoError(t, err)

	builder := NewScriptBuilder().AddScriptCopy(srcScript).AddOp(OP_VERIFY)
	copied, err := builder.Finish()
	require.NoError(t, err)
	require.Equal(t, 3, copied.NumElements())

	compiled, err := Compile(copied, false)
	require.NoError(t, err)
	require.Equal(t, []byte{OP_5, OP_ADD, OP_VERIFY}, compiled)
}

// TestBuilderDataImmutability ensures mutating a caller slice after AddData
// does not alter the built script.
func TestBuilderDataImmutability(t *testing.T) {
	t.Parallel()

	data := []byte{0xaa, 0xbb, 0xcc}
	builder := NewScriptBuilder().AddData(data)
	data[0] = 0x00

	compiled, err := builder.Script()
	require.NoError(t, err)
	require.Equal(t, []byte{OP_DATA_3, 0xaa, 0xbb, 0xcc}, compiled)
}

// TestBuilderSetName ensures the debug identifier is carried onto the
// finished script and has no effect on the compiled bytes.
func TestBuilderSetName(t *testing.T) {
	t.Parallel()

	named, err := NewScriptBuilder().SetName("preimage check").
		AddOp(OP_SHA256).Finish()
	require.NoError(t, err)
	require.Equal(t, "preimage check", named.Name())

	anon, err := NewScriptBuilder().AddOp(OP_SHA256).Finish()
	require.NoError(t, err)

	namedBytes, err := Compile(named, false)
	require.NoError(t, err)
	anonBytes, err := Compile(anon, false)
	require.NoError(t, err)
	require.Equal(t, anonBytes, namedBytes)
}
