// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

// The peephole pass rewrites short windows of the flattened element sequence
// into smaller equivalents.  A rule is only admitted to the table when the
// rewrite preserves the resulting stack for every possible starting stack,
// independent of any data pushed earlier in the script.  Like the stack
// opcodes they replace, rewritten sequences may no longer abort on stacks
// too shallow for the original sequence; values on the stack are never
// affected.
//
// The pass operates on elements rather than raw bytes so a matcher can
// recognize a constant push regardless of whether it was authored as an
// opcode, an integer literal, or a byte literal.

// peepholeRule describes a single local rewrite.  The matcher inspects a
// fixed-size window and reports the replacement sequence when it applies.
type peepholeRule struct {
	name    string
	window  int
	rewrite func(w []element) ([]element, bool)
}

// isConstantPush returns whether the element compiles to a push of the small
// integer n.  All three authoring forms of the constant are recognized.
func isConstantPush(e element, n int64) bool {
	switch e.kind {
	case elemOpcode:
		return isSmallIntOp(e.op) && int64(asSmallInt(e.op)) == n

	case elemInt:
		return e.num == n

	case elemBytes:
		if n == 0 {
			return len(e.data) == 0 ||
				(len(e.data) == 1 && e.data[0] == 0)
		}
		return n >= 1 && n <= 16 && len(e.data) == 1 &&
			int64(e.data[0]) == n
	}
	return false
}

// isOp returns whether the element is the single opcode op.
func isOp(e element, op byte) bool {
	return e.kind == elemOpcode && e.op == op
}

// peepholeRules is the fixed rewrite table.  Every entry notes why it is
// stack-independent.
var peepholeRules = []peepholeRule{
	{
		// Rolling the top element to the top moves nothing.
		name:   "drop 0 OP_ROLL",
		window: 2,
		rewrite: func(w []element) ([]element, bool) {
			if isConstantPush(w[0], 0) && isOp(w[1], OP_ROLL) {
				return nil, true
			}
			return nil, false
		},
	},
	{
		// Picking the top element copies it, which is OP_DUP.
		name:   "0 OP_PICK -> OP_DUP",
		window: 2,
		rewrite: func(w []element) ([]element, bool) {
			if isConstantPush(w[0], 0) && isOp(w[1], OP_PICK) {
				return []element{{kind: elemOpcode, op: OP_DUP}}, true
			}
			return nil, false
		},
	},
	{
		// Rolling the second element to the top is OP_SWAP.
		name:   "1 OP_ROLL -> OP_SWAP",
		window: 2,
		rewrite: func(w []element) ([]element, bool) {
			if isConstantPush(w[0], 1) && isOp(w[1], OP_ROLL) {
				return []element{{kind: elemOpcode, op: OP_SWAP}}, true
			}
			return nil, false
		},
	},
	{
		// Picking the second element copies it, which is OP_OVER.
		name:   "1 OP_PICK -> OP_OVER",
		window: 2,
		rewrite: func(w []element) ([]element, bool) {
			if isConstantPush(w[0], 1) && isOp(w[1], OP_PICK) {
				return []element{{kind: elemOpcode, op: OP_OVER}}, true
			}
			return nil, false
		},
	},
	{
		// Duplicating the top element and dropping the duplicate leaves
		// every stack unchanged.
		name:   "drop OP_DUP OP_DROP",
		window: 2,
		rewrite: func(w []element) ([]element, bool) {
			if isOp(w[0], OP_DUP) && isOp(w[1], OP_DROP) {
				return nil, true
			}
			return nil, false
		},
	},
	{
		// Moving the top element to the altstack and immediately back
		// leaves both stacks unchanged.
		name:   "drop OP_TOALTSTACK OP_FROMALTSTACK",
		window: 2,
		rewrite: func(w []element) ([]element, bool) {
			if isOp(w[0], OP_TOALTSTACK) &&
				isOp(w[1], OP_FROMALTSTACK) {

				return nil, true
			}
			return nil, false
		},
	},
}

// maxPeepholeWindow is the widest window any rule in the table inspects.
// Rewrites rescan from this far back so sequences formed by a rewrite are
// themselves rewritten.
var maxPeepholeWindow = func() int {
	max := 1
	for _, rule := range peepholeRules {
		if rule.window > max {
			max = rule.window
		}
	}
	return max
}()

// optimizeElements applies the peephole rule table to the flattened element
// sequence until no rule matches anywhere, rescanning from just before each
// rewrite point so newly adjacent elements are reconsidered.  The returned
// sequence is a fixed point: optimizing it again changes nothing.
func optimizeElements(elems []element) []element {
	out := make([]element, len(elems))
	copy(out, elems)

	i := 0
	for i < len(out) {
		applied := false
		for _, rule := range peepholeRules {
			if i+rule.window > len(out) {
				continue
			}
			repl, ok := rule.rewrite(out[i : i+rule.window])
			if !ok {
				continue
			}

			log.Debugf("peephole rule %q applied at element %d",
				rule.name, i)

			merged := make([]element, 0,
				len(out)-rule.window+len(repl))
			merged = append(merged, out[:i]...)
			merged = append(merged, repl...)
			merged = append(merged, out[i+rule.window:]...)
			out = merged

			if i > maxPeepholeWindow-1 {
				i -= maxPeepholeWindow - 1
			} else {
				i = 0
			}
			applied = true
			break
		}
		if !applied {
			i++
		}
	}
	return out
}
