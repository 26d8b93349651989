// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package bscript implements a compiler for the Bitcoin transaction script
language.

Bitcoin transaction scripts are written in a stack-based, FORTH-like language
consisting of a number of opcodes which fall into several categories such as
pushing and popping data to and from the stack, performing basic and bitwise
arithmetic, conditional branching, comparing hashes, and checking
cryptographic signatures.  Scripts are processed from left to right and
intentionally do not provide loops.

This package is concerned with constructing such scripts rather than
executing them.  A ScriptBuilder records opcodes, integers, and data pushes
into a script tree, expanding compile-time repetition and branching as it
goes, and the Compile function serializes a tree into the canonical byte form
in which every push uses the smallest possible encoding.  Because sub-scripts
are embedded by reference, a fragment built once can be composed into many
larger scripts without re-encoding it each time.

An opt-in peephole pass rewrites short stack manipulation sequences into
smaller equivalents during compilation.  The rewrites never change what any
script leaves on the stack.

Static analysis helpers round out the package: AnalyzeStack bounds the stack
usage of a tree, Chunker splits an oversized tree into consecutive pieces,
and DisasmString and ParseShortForm convert between compiled bytes and a
human-readable textual form.
*/
package bscript
