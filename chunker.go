// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bscript

import (
	"errors"
)

// ErrUnchunkable is returned when a script tree cannot be split into chunks
// within the configured size bounds, which happens when a run of leaf
// elements with no sub-script boundaries is too large to fit a chunk.
var ErrUnchunkable = errors.New("unable to chunk with set parameters")

// Chunker splits a script tree into consecutive chunks of compiled size
// within [targetChunkSize-tolerance, targetChunkSize].  Chunk boundaries are
// only placed between elements, never inside a data push, and descend into
// embedded sub-scripts when a tree node is too large to fit a chunk whole.
//
// Concatenating the compiled chunks in order reproduces the compiled form of
// the original tree exactly.
type Chunker struct {
	targetChunkSize int
	tolerance       int

	chunks [][]*Script

	// callStack holds the script nodes remaining to be placed, topmost
	// entry next in script order.
	callStack []*Script
}

// NewChunker returns a chunker that splits the passed script tree into
// chunks no larger than targetChunkSize and, except possibly for the final
// chunk, no smaller than targetChunkSize-tolerance.
func NewChunker(script *Script, targetChunkSize, tolerance int) *Chunker {
	return &Chunker{
		targetChunkSize: targetChunkSize,
		tolerance:       tolerance,
		callStack:       []*Script{script},
	}
}

// Chunks returns the chunks found so far.  Each chunk is the ordered list of
// script nodes whose concatenated compiled bytes form the chunk.
func (c *Chunker) Chunks() [][]*Script {
	return c.chunks
}

// findNextChunk pops script nodes off the call stack into a new chunk until
// the chunk reaches the target window, splitting oversized nodes into their
// parts as needed.
func (c *Chunker) findNextChunk() ([]*Script, int, error) {
	var result []*Script
	resultLen := 0
	for len(c.callStack) > 0 {
		script := c.callStack[len(c.callStack)-1]
		c.callStack = c.callStack[:len(c.callStack)-1]

		scriptLen := script.size
		switch {
		case resultLen+scriptLen < c.targetChunkSize-c.tolerance:
			result = append(result, script)
			resultLen += scriptLen

		case resultLen+scriptLen > c.targetChunkSize:
			// The node does not fit, so split it into its parts
			// and retry with those on the call stack.  Runs of
			// leaf elements between sub-script references stay
			// together since a chunk boundary can always go
			// between parts but never needs to go inside a run
			// that fits.
			parts, err := splitScript(script)
			if err != nil {
				return nil, 0, err
			}
			for i := len(parts) - 1; i >= 0; i-- {
				c.callStack = append(c.callStack, parts[i])
			}

		default:
			result = append(result, script)
			resultLen += scriptLen
			return result, resultLen, nil
		}
	}
	return result, resultLen, nil
}

// splitScript breaks a tree node into its sub-script references and the leaf
// element runs between them.  A node with no sub-script references cannot be
// split any further.
func splitScript(script *Script) ([]*Script, error) {
	var parts []*Script
	var run []element
	runSize := 0
	flushRun := func() {
		if len(run) == 0 {
			return
		}
		parts = append(parts, &Script{
			name:  script.name,
			elems: run,
			size:  runSize,
		})
		run = nil
		runSize = 0
	}

	containsCall := false
	for _, e := range script.elems {
		if e.kind == elemScript {
			flushRun()
			parts = append(parts, e.sub)
			containsCall = true
			continue
		}
		run = append(run, e)
		runSize += elementSize(e)
	}
	flushRun()

	if !containsCall {
		return nil, ErrUnchunkable
	}
	return parts, nil
}

// FindChunks consumes the remaining script tree and returns the compiled
// size of each chunk found.  The chunks themselves are available from Chunks
// afterwards.
func (c *Chunker) FindChunks() ([]int, error) {
	var sizes []int
	for len(c.callStack) > 0 {
		chunk, size, err := c.findNextChunk()
		if err != nil {
			return nil, err
		}
		c.chunks = append(c.chunks, chunk)
		sizes = append(sizes, size)
	}
	return sizes, nil
}
