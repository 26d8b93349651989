// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

import (
	"errors"
	"fmt"
)

// ErrUnanalyzable is returned when the stack usage of a script cannot be
// determined statically, for example when OP_PICK is used with a depth
// computed at runtime or when the branches of a conditional have different
// net stack effects.
var ErrUnanalyzable = errors.New("script stack usage cannot be determined " +
	"statically")

// StackInfo summarizes the stack usage of a script.
type StackInfo struct {
	// DeepestAccess is the deepest position on the starting stack the
	// script reads, expressed as a non-positive offset from the top.  A
	// value of -2 means the script touches the two topmost starting
	// elements and nothing below them; zero means the script never reads
	// the starting stack at all.
	DeepestAccess int

	// NetChange is the difference between the stack height after the
	// script runs and the height before it, assuming no branch aborts.
	NetChange int
}

// ifFrame tracks the stack effect observed so far inside one conditional.
// Until OP_ELSE is seen the if branch fields accumulate; afterwards the else
// branch fields do.
type ifFrame struct {
	inElse     bool
	ifAccess   int
	ifChange   int
	elseAccess int
	elseChange int
}

// stackAnalyzer walks a script tree and accumulates stack usage.  Sub-script
// results are memoized per tree node, so a sub-script shared by many
// reference sites is analyzed once.
type stackAnalyzer struct {
	deepestAccess int
	netChange     int
	ifStack       []ifFrame

	// lastConstant tracks the value of the most recent push when it is a
	// small non-negative constant, which lets OP_PICK and OP_ROLL be
	// resolved to a concrete depth.
	lastConstant    int64
	hasLastConstant bool

	memo map[*Script]StackInfo
}

// AnalyzeStack computes the stack usage of the passed script tree.  The
// analysis is conservative: when it succeeds, running the compiled script on
// any stack no shallower than -DeepestAccess cannot underflow, and the stack
// height afterwards differs from the starting height by exactly NetChange.
//
// Scripts whose stack usage depends on runtime data fail with an error
// wrapping ErrUnanalyzable.  OP_PICK and OP_ROLL are the common case and are
// supported when immediately preceded by a constant push of at most
// maxTrackedConstant.
func AnalyzeStack(script *Script) (StackInfo, error) {
	a := &stackAnalyzer{memo: make(map[*Script]StackInfo)}
	return a.analyzeScript(script)
}

// maxTrackedConstant bounds the constants remembered for resolving OP_PICK
// and OP_ROLL depths.  Larger pushes are almost certainly data rather than a
// depth operand.
const maxTrackedConstant = 1000

// analyzeScript analyzes a single tree node with a fresh accumulator, using
// and filling the shared memo table.
func (a *stackAnalyzer) analyzeScript(script *Script) (StackInfo, error) {
	if info, ok := a.memo[script]; ok {
		return info, nil
	}

	sub := &stackAnalyzer{memo: a.memo}
	for _, e := range script.elems {
		if err := sub.handleElement(e); err != nil {
			return StackInfo{}, err
		}
	}
	if len(sub.ifStack) != 0 {
		return StackInfo{}, fmt.Errorf("%w: %d unterminated "+
			"conditionals", ErrUnanalyzable, len(sub.ifStack))
	}

	info := StackInfo{
		DeepestAccess: sub.deepestAccess,
		NetChange:     sub.netChange,
	}
	a.memo[script] = info
	return info, nil
}

func (a *stackAnalyzer) handleElement(e element) error {
	switch e.kind {
	case elemOpcode:
		return a.handleOpcode(e.op)

	case elemInt:
		if e.num >= 0 && e.num <= maxTrackedConstant {
			a.setLastConstant(e.num)
		} else {
			a.clearLastConstant()
		}
		a.stackChange(0, 1)
		return nil

	case elemBytes:
		// A byte push that decodes as a small minimal number is
		// indistinguishable from an integer push once compiled.
		num, err := makeScriptNum(e.data, true, defaultScriptNumLen)
		if err == nil && num >= 0 && int64(num) <= maxTrackedConstant {
			a.setLastConstant(int64(num))
		} else {
			a.clearLastConstant()
		}
		a.stackChange(0, 1)
		return nil

	case elemScript:
		info, err := a.analyzeScript(e.sub)
		if err != nil {
			return err
		}
		a.clearLastConstant()
		a.stackChange(info.DeepestAccess, info.NetChange)
		return nil
	}

	panic("unknown element kind")
}

func (a *stackAnalyzer) handleOpcode(op byte) error {
	switch op {
	case OP_IF, OP_NOTIF:
		a.stackChange(-1, -1)
		a.ifStack = append(a.ifStack, ifFrame{})

	case OP_ELSE:
		if len(a.ifStack) == 0 {
			return fmt.Errorf("%w: OP_ELSE with no matching OP_IF",
				ErrUnanalyzable)
		}
		frame := &a.ifStack[len(a.ifStack)-1]
		if frame.inElse {
			return fmt.Errorf("%w: multiple OP_ELSE in one "+
				"conditional", ErrUnanalyzable)
		}
		frame.inElse = true

	case OP_ENDIF:
		if len(a.ifStack) == 0 {
			return fmt.Errorf("%w: OP_ENDIF with no matching OP_IF",
				ErrUnanalyzable)
		}
		frame := a.ifStack[len(a.ifStack)-1]
		a.ifStack = a.ifStack[:len(a.ifStack)-1]
		if !frame.inElse {
			// Without an else branch the script may skip the if
			// branch entirely, so the branch must be stack
			// neutral for the net change to be well defined.
			if frame.ifChange != 0 {
				return fmt.Errorf("%w: conditional without "+
					"OP_ELSE changes the stack by %d",
					ErrUnanalyzable, frame.ifChange)
			}
			a.stackChange(frame.ifAccess, 0)
			break
		}
		if frame.ifChange != frame.elseChange {
			return fmt.Errorf("%w: conditional branches change "+
				"the stack by %d and %d", ErrUnanalyzable,
				frame.ifChange, frame.elseChange)
		}
		a.stackChange(minInt(frame.ifAccess, frame.elseAccess),
			frame.ifChange)

	// The depth operand sits on top when OP_PICK and OP_ROLL execute
	// and is popped before the depth is measured, so an operand of n
	// reaches n+2 below the pre-opcode top.
	case OP_PICK:
		if !a.hasLastConstant {
			return fmt.Errorf("%w: OP_PICK depth is not a "+
				"preceding constant", ErrUnanalyzable)
		}
		a.stackChange(-int(a.lastConstant)-2, 0)

	case OP_ROLL:
		if !a.hasLastConstant {
			return fmt.Errorf("%w: OP_ROLL depth is not a "+
				"preceding constant", ErrUnanalyzable)
		}
		a.stackChange(-int(a.lastConstant)-2, -1)

	default:
		access, change, err := opcodeStackEffect(op)
		if err != nil {
			return err
		}
		a.stackChange(access, change)
	}

	// Small integer opcodes feed the depth operand tracking for OP_PICK
	// and OP_ROLL; every other opcode invalidates it.
	if op >= OP_1 && op <= OP_16 {
		a.setLastConstant(int64(asSmallInt(op)))
	} else {
		a.clearLastConstant()
	}
	return nil
}

func (a *stackAnalyzer) setLastConstant(v int64) {
	a.lastConstant = v
	a.hasLastConstant = true
}

func (a *stackAnalyzer) clearLastConstant() {
	a.hasLastConstant = false
}

// stackChange folds the effect of one operation into the accumulator.  Inside
// a conditional the effect is attributed to the active branch; the branch
// totals are folded into the outer accumulator at OP_ENDIF.
func (a *stackAnalyzer) stackChange(access, change int) {
	if len(a.ifStack) > 0 {
		frame := &a.ifStack[len(a.ifStack)-1]
		if frame.inElse {
			frame.elseAccess = minInt(frame.elseAccess,
				frame.elseChange+access)
			frame.elseChange += change
		} else {
			frame.ifAccess = minInt(frame.ifAccess,
				frame.ifChange+access)
			frame.ifChange += change
		}
		return
	}

	a.deepestAccess = minInt(a.deepestAccess, access+a.netChange)
	a.netChange += change
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// opcodeStackEffect returns the deepest stack access and net stack change of
// a single opcode, both relative to the stack as it stands when the opcode
// executes.  Opcodes whose effect depends on runtime data and opcodes the
// analysis does not model fail with an error wrapping ErrUnanalyzable.
func opcodeStackEffect(op byte) (int, int, error) {
	// Fixed-length data pushes and the push length prefixes all push one
	// element.
	if op >= OP_DATA_1 && op <= OP_PUSHDATA4 {
		return 0, 1, nil
	}
	if op == OP_1NEGATE || (op >= OP_1 && op <= OP_16) {
		return 0, 1, nil
	}

	switch op {
	case OP_0:
		return 0, 1, nil
	case OP_NOP, OP_NOP1, OP_NOP4, OP_NOP5, OP_NOP6, OP_NOP7, OP_NOP8,
		OP_NOP9, OP_NOP10:
		return 0, 0, nil
	case OP_CHECKLOCKTIMEVERIFY, OP_CHECKSEQUENCEVERIFY:
		return -1, 0, nil
	case OP_VERIFY:
		return -1, -1, nil
	case OP_RETURN:
		return 0, 0, nil
	case OP_TOALTSTACK:
		return -1, -1, nil
	case OP_FROMALTSTACK:
		return 0, 1, nil
	case OP_2DROP:
		return -2, -2, nil
	case OP_2DUP:
		return -2, 2, nil
	case OP_3DUP:
		return -3, 3, nil
	case OP_2OVER:
		return -4, 2, nil
	case OP_2ROT:
		return -6, 0, nil
	case OP_2SWAP:
		return -4, 0, nil
	case OP_DEPTH:
		return 0, 1, nil
	case OP_DROP:
		return -1, -1, nil
	case OP_DUP:
		return -1, 1, nil
	case OP_NIP:
		return -2, -1, nil
	case OP_OVER:
		return -2, 1, nil
	case OP_ROT:
		return -3, 0, nil
	case OP_SWAP:
		return -2, 0, nil
	case OP_TUCK:
		return -2, 1, nil
	case OP_SIZE:
		return -1, 1, nil
	case OP_EQUAL, OP_ADD, OP_SUB, OP_BOOLAND, OP_BOOLOR, OP_NUMEQUAL,
		OP_NUMNOTEQUAL, OP_LESSTHAN, OP_GREATERTHAN,
		OP_LESSTHANOREQUAL, OP_GREATERTHANOREQUAL, OP_MIN, OP_MAX:
		return -2, -1, nil
	case OP_EQUALVERIFY, OP_NUMEQUALVERIFY:
		return -2, -2, nil
	case OP_1ADD, OP_1SUB, OP_NEGATE, OP_ABS, OP_NOT, OP_0NOTEQUAL:
		return -1, 0, nil
	case OP_WITHIN:
		return -3, -2, nil
	case OP_RIPEMD160, OP_SHA1, OP_SHA256, OP_HASH160, OP_HASH256:
		return -1, 0, nil
	case OP_CODESEPARATOR:
		return 0, 0, nil
	case OP_CHECKSIG:
		return -2, -1, nil
	case OP_CHECKSIGVERIFY:
		return -2, -2, nil
	case OP_CHECKSIGADD:
		return -3, -2, nil
	case OP_IFDUP:
		// Pushes a copy only when the top is truthy.
		return 0, 0, fmt.Errorf("%w: %s stack effect depends on "+
			"runtime data", ErrUnanalyzable, opcodeName(op))
	}

	return 0, 0, fmt.Errorf("%w: %s is not modeled", ErrUnanalyzable,
		opcodeName(op))
}
