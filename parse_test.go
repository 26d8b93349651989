// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

import (
	"bytes"
	"testing"
)

// TestParseShortForm ensures the short textual format compiles to the
// expected bytes across all of its token classes.
func TestParseShortForm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script string
		want   []byte
	}{{
		name:   "empty",
		script: "",
		want:   []byte{},
	}, {
		name:   "bare mnemonics",
		script: "DUP HASH160 EQUALVERIFY CHECKSIG",
		want:   []byte{OP_DUP, OP_HASH160, OP_EQUALVERIFY, OP_CHECKSIG},
	}, {
		name:   "prefixed mnemonics",
		script: "OP_DUP OP_HASH160",
		want:   []byte{OP_DUP, OP_HASH160},
	}, {
		name:   "aliases",
		script: "TRUE FALSE NOP2",
		want:   []byte{OP_TRUE, OP_FALSE, OP_CHECKLOCKTIMEVERIFY},
	}, {
		name:   "small integers",
		script: "0 1 16",
		want:   []byte{OP_0, OP_1, OP_16},
	}, {
		name:   "negative and wide integers",
		script: "-1 17 255",
		want: []byte{OP_1NEGATE, OP_DATA_1, 0x11, OP_DATA_2, 0xff,
			0x00},
	}, {
		name:   "raw hex inserted as-is",
		script: "0x14",
		want:   []byte{0x14},
	}, {
		name:   "raw hex splices between builder output",
		script: "DUP 0x03010203 EQUAL",
		want: []byte{OP_DUP, OP_DATA_3, 0x01, 0x02, 0x03,
			OP_EQUAL},
	}, {
		name:   "quoted string",
		script: "'abc'",
		want:   []byte{OP_DATA_3, 'a', 'b', 'c'},
	}, {
		name:   "whitespace forms",
		script: "DUP\nHASH160\tEQUAL",
		want:   []byte{OP_DUP, OP_HASH160, OP_EQUAL},
	}}

	for _, test := range tests {
		got, err := ParseShortForm(test.script)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", test.name, err)
		}
		if !bytes.Equal(got, test.want) {
			t.Fatalf("%q: got %x, want %x", test.name, got,
				test.want)
		}
	}
}

// TestParseShortFormErrors ensures unknown tokens are rejected.
func TestParseShortFormErrors(t *testing.T) {
	t.Parallel()

	scripts := []string{
		"NOTANOPCODE",
		"OP_UNKNOWN187",
		"0xzz",
		"1 2 BOGUS 3",
	}
	for _, script := range scripts {
		if _, err := ParseShortForm(script); err == nil {
			t.Fatalf("ParseShortForm(%q): expected error", script)
		}
	}
}

// TestParseShortFormDisasmRoundTrip ensures a parsed script disassembles back
// to an equivalent textual form that reparses to the same bytes.
func TestParseShortFormDisasmRoundTrip(t *testing.T) {
	t.Parallel()

	const src = "DUP HASH160 0x03aabbcc EQUALVERIFY 5"
	compiled, err := ParseShortForm(src)
	if err != nil {
		t.Fatalf("ParseShortForm: %v", err)
	}

	disasm, err := DisasmString(compiled)
	if err != nil {
		t.Fatalf("DisasmString: %v", err)
	}
	if disasm != "OP_DUP OP_HASH160 aabbcc OP_EQUALVERIFY 5" {
		t.Fatalf("unexpected disassembly %q", disasm)
	}
}
