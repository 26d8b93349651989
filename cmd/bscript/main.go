// Copyright (c) 2024 The bscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"

	"github.com/bscript/bscript"
)

type config struct {
	Disasm   bool `short:"d" long:"disasm" description:"Treat the input as a hex-encoded compiled script and disassemble it"`
	Optimize bool `short:"O" long:"optimize" description:"Run the peephole optimizer on the script before output"`
	Analyze  bool `short:"a" long:"analyze" description:"Print the static stack usage of the script"`
	Verbose  bool `short:"v" long:"verbose" description:"Enable debug logging to stderr"`
}

// readInput returns the script text, either from the remaining command line
// arguments or from standard input when no arguments are given.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// scriptTree turns the input text into a script tree, either by parsing the
// short textual form and reparsing the compiled result, or by decoding hex
// when disassembly was requested.
func scriptTree(cfg *config, input string) (*bscript.Script, error) {
	if cfg.Disasm {
		compiled, err := hex.DecodeString(strings.TrimSpace(input))
		if err != nil {
			return nil, fmt.Errorf("invalid hex script: %w", err)
		}
		return bscript.FromBytes(compiled)
	}

	compiled, err := bscript.ParseShortForm(input)
	if err != nil {
		return nil, err
	}
	return bscript.FromBytes(compiled)
}

func realMain() error {
	cfg := config{}
	parser := flags.NewParser(&cfg, flags.Default)
	parser.Usage = "[OPTIONS] [SCRIPT...]"
	args, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return nil
		}
		return err
	}

	if cfg.Verbose {
		backend := btclog.NewBackend(os.Stderr)
		logger := backend.Logger("BSCR")
		logger.SetLevel(btclog.LevelTrace)
		bscript.UseLogger(logger)
	}

	input, err := readInput(args)
	if err != nil {
		return err
	}

	script, err := scriptTree(&cfg, input)
	if err != nil {
		return err
	}

	compiled, err := bscript.Compile(script, cfg.Optimize)
	if err != nil {
		return err
	}

	if cfg.Analyze {
		info, err := bscript.AnalyzeStack(script)
		if err != nil {
			return err
		}
		fmt.Printf("deepest stack access: %d\n", info.DeepestAccess)
		fmt.Printf("net stack change:     %d\n", info.NetChange)
	}

	if cfg.Disasm {
		disasm, err := bscript.DisasmString(compiled)
		if err != nil {
			return err
		}
		fmt.Println(disasm)
		return nil
	}

	fmt.Printf("%x\n", compiled)
	return nil
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
