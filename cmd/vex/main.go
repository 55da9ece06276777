// Command vex is the embedding shell: it compiles and runs vex
// programs, writes bytecode dumps, and prints disassembly.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vexlang/vex/internal/compiler"
	"github.com/vexlang/vex/internal/interp"
	"github.com/vexlang/vex/internal/parser"
)

func main() {
	root := &cobra.Command{
		Use:          "vex",
		Short:        "vex scripting engine",
		SilenceUsage: true,
	}
	root.AddCommand(runCmd(), compileCmd(), disasmCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func compileFile(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := parser.New(nil)
	if err != nil {
		return nil, err
	}
	return interp.CompileText(p, string(src))
}

func runCmd() *cobra.Command {
	var showTime bool
	var dumpPath string
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Compile and execute a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			compileStart := time.Now()
			it, err := interp.NewFromSource(string(src))
			if err != nil {
				return err
			}
			compileDur := time.Since(compileStart)

			if dumpPath != "" {
				if err := os.WriteFile(dumpPath, it.DumpCode(), 0o644); err != nil {
					return err
				}
			}

			it.InsertDefaultBindings()
			runStart := time.Now()
			err = it.StepCachedUntilErrorOrExit()
			runDur := time.Since(runStart)
			if err != nil {
				fmt.Fprintln(os.Stderr, it.LastError())
				return err
			}
			if showTime {
				fmt.Fprintf(os.Stderr, "compile: %v\nrun: %v\n", compileDur, runDur)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTime, "time", false, "report compile and run wall-clock time")
	cmd.Flags().StringVar(&dumpPath, "dump", "", "write the raw bytecode buffer to this path")
	return cmd
}

func compileCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a program to a bytecode dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			code, err := compileFile(args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = args[0] + "c"
			}
			return os.WriteFile(outPath, code, 0o644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output path (default: <file>c)")
	return cmd
}

func disasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file>",
		Short: "Compile a program and print its disassembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			code, err := compileFile(args[0])
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(compiler.Disassemble(code, 0, 0), "\n"))
			return nil
		},
	}
}
