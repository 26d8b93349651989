// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

// Compile serializes the passed script tree into its canonical byte form.
// Embedded sub-scripts are expanded in place, depth first and in authoring
// order, with each reference site receiving its own copy of the sub-script
// bytes.  When optimize is true the flattened element sequence is run
// through the peephole pass before serialization; see the optimizer rule
// table for the rewrites applied.
//
// Compiling the same tree is deterministic: repeated calls always produce
// byte-identical output.  On failure no partial output is returned.
//
// The walk uses an explicit stack rather than recursion so deeply nested or
// heavily repeated trees cannot exhaust the call stack.
func Compile(script *Script, optimize bool) ([]byte, error) {
	if optimize {
		return compileOptimized(script)
	}

	// Frames track the in-progress position within each script on the
	// path from the root to the element currently being serialized.  The
	// start offset records where a sub-script's encoding begins in the
	// output so completed sub-scripts can be cached and shared reference
	// sites can splice the already encoded bytes instead of re-encoding
	// the interior.
	type frame struct {
		script *Script
		idx    int
		start  int
	}

	buf := make([]byte, 0, script.size)
	cache := make(map[*Script][]byte)
	stack := []frame{{script: script}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.idx == len(f.script.elems) {
			if len(stack) > 1 {
				cache[f.script] = buf[f.start:len(buf):len(buf)]
			}
			stack = stack[:len(stack)-1]
			continue
		}

		e := f.script.elems[f.idx]
		f.idx++

		if e.kind == elemScript {
			if encoded, ok := cache[e.sub]; ok {
				buf = append(buf, encoded...)
				continue
			}
			stack = append(stack, frame{script: e.sub, start: len(buf)})
			continue
		}

		var err error
		buf, err = appendElement(buf, e)
		if err != nil {
			return nil, err
		}
	}

	log.Tracef("compiled script %q to %d bytes", script.name, len(buf))
	return buf, nil
}

// compileOptimized flattens the tree into a single element sequence, applies
// the peephole pass, and serializes the result.
func compileOptimized(script *Script) ([]byte, error) {
	flat := flattenElements(script)
	flat = optimizeElements(flat)

	size := 0
	for _, e := range flat {
		size += elementSize(e)
	}

	buf := make([]byte, 0, size)
	var err error
	for _, e := range flat {
		buf, err = appendElement(buf, e)
		if err != nil {
			return nil, err
		}
	}

	log.Tracef("compiled script %q to %d bytes (optimized)", script.name,
		len(buf))
	return buf, nil
}

// flattenElements returns the depth-first, order-preserving expansion of the
// tree into a flat element sequence with every sub-script reference replaced
// by the referenced elements.  The walk uses an explicit stack for the same
// reason Compile does.
func flattenElements(script *Script) []element {
	type frame struct {
		script *Script
		idx    int
	}

	out := make([]element, 0, len(script.elems))
	stack := []frame{{script: script}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.idx == len(f.script.elems) {
			stack = stack[:len(stack)-1]
			continue
		}

		e := f.script.elems[f.idx]
		f.idx++

		if e.kind == elemScript {
			stack = append(stack, frame{script: e.sub})
			continue
		}
		out = append(out, e)
	}
	return out
}

// appendElement serializes a single non-sub-script element onto buf using
// the canonical minimal encoding and returns the extended buffer.
func appendElement(buf []byte, e element) ([]byte, error) {
	switch e.kind {
	case elemOpcode:
		return append(buf, e.op), nil

	case elemInt:
		return appendIntPush(buf, e.num)

	case elemBytes:
		return appendDataPush(buf, e.data), nil
	}

	panic("sub-script element reached the serializer")
}

// appendIntPush serializes the minimal push of the passed integer onto buf.
// Fast paths cover the dedicated small integer opcodes; everything else is
// encoded as a sign-magnitude data push.
func appendIntPush(buf []byte, val int64) ([]byte, error) {
	if val == 0 {
		return append(buf, OP_0), nil
	}
	if val == -1 || (val >= 1 && val <= 16) {
		return append(buf, byte((OP_1-1)+val)), nil
	}

	payload, err := scriptNumBytes(val)
	if err != nil {
		return nil, err
	}
	return appendDataPush(buf, payload), nil
}

// appendDataPush serializes the canonical push of the passed data onto buf.
// The minimal possible opcode is selected: single byte values that have a
// dedicated opcode use it, and the smallest length prefix that fits is used
// otherwise, per BIP0062.
func appendDataPush(buf []byte, data []byte) []byte {
	dataLen := len(data)

	// When the data consists of a single number that can be represented
	// by one of the "small integer" opcodes, use that opcode instead of
	// a data push opcode followed by the number.
	if dataLen == 0 || (dataLen == 1 && data[0] == 0) {
		return append(buf, OP_0)
	}
	if dataLen == 1 && data[0] <= 16 {
		return append(buf, byte((OP_1-1)+data[0]))
	}
	if dataLen == 1 && data[0] == 0x81 {
		return append(buf, OP_1NEGATE)
	}

	// Use one of the OP_DATA_# opcodes if the length of the data is small
	// enough so the data push instruction is only a single byte.
	// Otherwise, choose the smallest possible OP_PUSHDATA# opcode that
	// can represent the length of the data.
	switch {
	case dataLen < OP_PUSHDATA1:
		buf = append(buf, byte(dataLen))

	case dataLen <= 0xff:
		buf = append(buf, OP_PUSHDATA1, byte(dataLen))

	case dataLen <= 0xffff:
		buf = append(buf, OP_PUSHDATA2, byte(dataLen), byte(dataLen>>8))

	default:
		buf = append(buf, OP_PUSHDATA4, byte(dataLen), byte(dataLen>>8),
			byte(dataLen>>16), byte(dataLen>>24))
	}

	return append(buf, data...)
}
