// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// shortFormOps holds a map of opcode names to values for populating scripts
// from the short-form textual format.
var (
	shortFormOps     map[string]byte
	shortFormOpsOnce sync.Once
)

// shortFormOpcodes returns the mnemonic lookup table used by ParseShortForm,
// building it on first use.  Every opcode is present under its full OP_NAME
// and, where it cannot be confused with a plain number, under the bare NAME
// as well.
func shortFormOpcodes() map[string]byte {
	shortFormOpsOnce.Do(func() {
		ops := make(map[string]byte)
		for opcodeName, opcodeValue := range OpcodeByName {
			if strings.Contains(opcodeName, "OP_UNKNOWN") {
				continue
			}
			ops[opcodeName] = opcodeValue

			// The opcodes named OP_# can't have the OP_ prefix
			// stripped or they would conflict with the plain
			// numbers.  Also, since OP_FALSE and OP_TRUE are
			// aliases for the OP_0, and OP_1, respectively, they
			// have the same value, so detect those by name and
			// allow them.
			if (opcodeName == "OP_FALSE" || opcodeName == "OP_TRUE") ||
				(opcodeValue != OP_0 && (opcodeValue < OP_1 ||
					opcodeValue > OP_16)) {

				ops[strings.TrimPrefix(opcodeName, "OP_")] = opcodeValue
			}
		}
		shortFormOps = ops
	})
	return shortFormOps
}

// parseHex parses the passed short-form hex token, which must carry the 0x
// prefix, into raw bytes.
func parseHex(tok string) ([]byte, error) {
	if !strings.HasPrefix(tok, "0x") {
		return nil, fmt.Errorf("not a hex number")
	}
	return hex.DecodeString(tok[2:])
}

// ParseShortForm parses a script written in the short-form textual format
// into its compiled byte form.
//
// The format is simple if ad-hoc:
//   - Opcodes other than the push opcodes and unknown are present as either
//     OP_NAME or just NAME
//   - Plain numbers are made into minimal integer push operations
//   - Numbers beginning with 0x are inserted into the script as-is (so 0x14
//     is OP_DATA_20), with no canonical form or size checks applied
//   - Single quoted strings are pushed as data, again with no size checks
//   - Anything else is an error
//
// Since raw hex tokens bypass the builder entirely, the format can express
// non-canonical and intentionally malformed scripts, which makes it suitable
// for negative test vectors as well as ordinary scripts.
func ParseShortForm(script string) ([]byte, error) {
	ops := shortFormOpcodes()

	// Split only does one separator so convert all \n and tab into space.
	script = strings.Replace(script, "\n", " ", -1)
	script = strings.Replace(script, "\t", " ", -1)
	tokens := strings.Split(script, " ")

	// Tree-building and raw byte insertion don't mix, so the builder is
	// flushed to the output whenever a raw hex token appears and the
	// remaining tokens continue in a fresh builder.
	var out []byte
	builder := NewScriptBuilder()
	flush := func() error {
		compiled, err := builder.Script()
		if err != nil {
			return err
		}
		out = append(out, compiled...)
		builder.Reset()
		return nil
	}

	for _, tok := range tokens {
		if len(tok) == 0 {
			continue
		}
		// if parses as a plain number
		if num, err := strconv.ParseInt(tok, 10, 64); err == nil {
			builder.AddInt64(num)
			continue
		} else if bts, err := parseHex(tok); err == nil {
			if err := flush(); err != nil {
				return nil, err
			}
			out = append(out, bts...)
		} else if len(tok) >= 2 &&
			tok[0] == '\'' && tok[len(tok)-1] == '\'' {
			builder.AddFullData([]byte(tok[1 : len(tok)-1]))
		} else if opcode, ok := ops[tok]; ok {
			builder.AddOp(opcode)
		} else {
			return nil, fmt.Errorf("bad token %q", tok)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
