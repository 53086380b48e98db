package main

// toolchain shells out to the external assembler and linker named in
// spec §6: nasm assembles, then the host's C compiler driver links
// (clang on Darwin, gcc on Linux). Both are genuinely external
// collaborators — the core never invokes them itself.
import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// assemble runs nasm over asmText, producing an object file at objPath.
// arch selects the nasm output format: "arm64"/"aarch64" has no nasm
// backend (nasm is x86-only), so ARM builds skip straight to the system
// assembler `as` instead; x86-64 uses nasm per spec §6.
func assemble(asmText, asmPath, objPath, archName string) error {
	if err := os.WriteFile(asmPath, []byte(asmText), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", asmPath, err)
	}

	var cmd *exec.Cmd
	switch archName {
	case "arm64", "aarch64":
		cmd = exec.Command("as", "-o", objPath, asmPath)
	default:
		format := "elf64"
		if runtime.GOOS == "darwin" {
			format = "macho64"
		}
		cmd = exec.Command("nasm", "-f", format, "-o", objPath, asmPath)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("assembler failed: %w\n%s", err, out)
	}
	return nil
}

// link invokes the host C compiler driver to turn an object file into an
// executable: clang on Darwin (with MACOSX_DEPLOYMENT_TARGET pinned to
// 15.0 per spec §6), gcc -no-pie on Linux.
func link(objPath, outPath string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		cmd = exec.Command("clang", objPath, "-o", outPath)
		cmd.Env = append(os.Environ(), "MACOSX_DEPLOYMENT_TARGET=15.0")
	} else {
		cmd = exec.Command("gcc", "-no-pie", objPath, "-o", outPath)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("linker failed: %w\n%s", err, out)
	}
	return nil
}

// exitCodeOf extracts the wrapped process's exit status so the driver
// can propagate it verbatim (spec §6: "non-zero propagated from the
// assembler or linker").
func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func objectAndOutputPaths(entryFile, outFlag string) (asmPath, objPath, outPath string) {
	base := strings.TrimSuffix(entryFile, ".yaml")
	base = strings.TrimSuffix(base, ".yml")
	asmPath = base + ".s"
	objPath = base + ".o"
	outPath = outFlag
	if outPath == "" {
		outPath = base
	}
	return
}
