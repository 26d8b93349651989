// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

import (
	"errors"
	"fmt"
)

// Script construction and encoding errors.
var (
	// ErrMalformedPush is returned when a data push opcode claims more
	// bytes than remain in the script being tokenized.
	ErrMalformedPush = errors.New("malformed data push")

	// ErrMinimalData is returned when a decoded script number is not
	// encoded with the fewest possible bytes.
	ErrMinimalData = errors.New("non-minimally encoded script number")

	// ErrNumberTooBig is returned when a decoded script number payload is
	// longer than the maximum allowed for its interpretation context.
	ErrNumberTooBig = errors.New("script number is too big")
)

// ErrScriptNotCanonical identifies a non-canonical script.  The caller can use
// a type assertion to detect this error type.
type ErrScriptNotCanonical string

// Error implements the error interface.
func (e ErrScriptNotCanonical) Error() string {
	return string(e)
}

// ErrUnknownOpcode is returned when an opcode mnemonic is not present in the
// opcode table.
type ErrUnknownOpcode struct {
	Name string
}

// Error implements the error interface.
func (e ErrUnknownOpcode) Error() string {
	return fmt.Sprintf("unknown opcode %q", e.Name)
}

// ErrInvalidRepeatCount is returned when a Repeat directive is given a
// negative iteration count.
type ErrInvalidRepeatCount struct {
	Count int
}

// Error implements the error interface.
func (e ErrInvalidRepeatCount) Error() string {
	return fmt.Sprintf("invalid repeat count %d", e.Count)
}

// ErrIntegerOverflow is returned when an integer literal has no valid
// sign-magnitude script encoding.  The only such value is math.MinInt64 since
// its positive magnitude does not fit in an int64.
type ErrIntegerOverflow struct {
	Value int64
}

// Error implements the error interface.
func (e ErrIntegerOverflow) Error() string {
	return fmt.Sprintf("integer %d has no script number encoding", e.Value)
}
