package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/quorlang/quorc/pkg/ast"
	"github.com/quorlang/quorc/pkg/emit/arm64"
	"github.com/quorlang/quorc/pkg/emit/x86"
	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/target"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Debug flags for dumping intermediate stages.
var (
	dAlias bool
	dQual  bool
	dMIR   bool
	dLIR   bool
	dAsm   bool
)

var (
	targetName  string
	outputPath  string
	emitAsmOnly bool
	compileOnly bool // -c: assemble but don't link
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		if code, ok := err.(exitCoder); ok {
			return code.ExitCode()
		}
		return 1
	}
	return 0
}

// exitCoder lets a RunE error carry a specific process exit code
// (spec §6: non-zero codes propagated verbatim from the assembler or
// linker, distinct from the generic "1" used for front-end/IR errors).
type exitCoder interface {
	error
	ExitCode() int
}

type toolchainError struct {
	code int
	err  error
}

func (e *toolchainError) Error() string { return e.err.Error() }
func (e *toolchainError) ExitCode() int { return e.code }

// debugFlagNames lists every debug flag that should accept CompCert's
// single-dash spelling alongside cobra's double-dash one.
var debugFlagNames = []string{"dalias", "dqual", "dmir", "dlir", "dasm"}

// normalizeFlags rewrites single-dash debug flags like -dmir to --dmir
// so pflag parses them as long flags instead of a bundle of shorthands.
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range debugFlagNames {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quorc [file]",
		Short: "quorc compiles a single quorc translation unit to assembly",
		Long: `quorc is the middle and back end of a small ahead-of-time compiler:
it qualifies cross-module names, builds a mid-level IR, lowers it to a
register-allocated low-level IR, and emits AArch64 or x86-64 assembly.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVarP(&dAlias, "dalias", "", false, "Dump the alias manager's module table")
	rootCmd.Flags().BoolVarP(&dQual, "dqual", "", false, "Dump the qualified AST")
	rootCmd.Flags().BoolVarP(&dMIR, "dmir", "", false, "Dump the MIR")
	rootCmd.Flags().BoolVarP(&dLIR, "dlir", "", false, "Dump the LIR")
	rootCmd.Flags().BoolVarP(&dAsm, "dasm", "", false, "Dump the emitted assembly")

	rootCmd.Flags().StringVar(&targetName, "target", defaultTargetName(), "target architecture: arm64 or x86-64")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output executable path")
	rootCmd.Flags().BoolVarP(&emitAsmOnly, "asm-only", "S", false, "emit assembly only, skip assembler and linker")
	rootCmd.Flags().BoolVarP(&compileOnly, "compile-only", "c", false, "assemble but do not link")

	return rootCmd
}

func defaultTargetName() string {
	if runtime.GOARCH == "arm64" {
		return "arm64"
	}
	return "x86-64"
}

func emitterFor(rf target.RegisterFile) target.Emitter {
	if rf.Name == "arm64" {
		return arm64.New()
	}
	return x86.New()
}

func runCompile(filename string, out, errOut io.Writer) error {
	rf, ok := target.ByName(targetName)
	if !ok {
		return fmt.Errorf("quorc: unknown target %q", targetName)
	}
	em := emitterFor(rf)

	result, err := compile(filename, rf, em)
	if err != nil {
		fmt.Fprintf(errOut, "quorc: %v\n", err)
		return err
	}

	switch {
	case dAlias:
		dumpAlias(result, out)
		return nil
	case dQual:
		ast.NewPrinter(out).PrintProgram(result.merged)
		return nil
	case dMIR:
		mir.NewPrinter(out).PrintProgram(result.mirProg)
		return nil
	case dLIR:
		lir.NewPrinter(out).PrintProgram(result.lirProg)
		return nil
	case dAsm:
		fmt.Fprint(out, result.asmText)
		return nil
	}

	if emitAsmOnly {
		asmPath, _, _ := objectAndOutputPaths(filename, outputPath)
		if err := os.WriteFile(asmPath, []byte(result.asmText), 0644); err != nil {
			return err
		}
		return nil
	}

	asmPath, objPath, outPath := objectAndOutputPaths(filename, outputPath)
	if err := assemble(result.asmText, asmPath, objPath, rf.Name); err != nil {
		return &toolchainError{code: exitCodeOf(err), err: err}
	}
	if compileOnly {
		return nil
	}
	if err := link(objPath, outPath); err != nil {
		return &toolchainError{code: exitCodeOf(err), err: err}
	}
	return nil
}

// dumpAlias prints each registered module's canonical file, dense id,
// and import aliases in the order modules finished loading: every module
// is listed after the modules it imports.
func dumpAlias(result *compileResult, out io.Writer) {
	for _, file := range result.modules.order {
		id, _ := result.modules.mgr.ModuleID(file)
		fmt.Fprintf(out, "module %d: %s\n", id, file)
		mod, _ := result.modules.mgr.Module(file)
		for aliasName, canonical := range mod.Aliases {
			fmt.Fprintf(out, "  %s -> %s\n", aliasName, canonical)
		}
	}
}
