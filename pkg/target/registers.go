package target

// AArch64 returns the AAPCS64 register file: x0-x7 argument/caller-saved,
// x19-x28 callee-saved, x9-x15 caller-saved scratch, d0-d7 float args,
// d8-d15 callee-saved float.
func AArch64() RegisterFile {
	callerGPR := []PhysReg{"x9", "x10", "x11", "x12", "x13", "x14", "x15"}
	calleeGPR := []PhysReg{"x19", "x20", "x21", "x22", "x23", "x24", "x25", "x26", "x27", "x28"}
	callerFPR := []PhysReg{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7", "d16", "d17"}
	calleeFPR := []PhysReg{"d8", "d9", "d10", "d11", "d12", "d13", "d14", "d15"}

	return RegisterFile{
		Name:                "arm64",
		AllocatableGPR:      append(append([]PhysReg{}, callerGPR...), calleeGPR...),
		AllocatableFPR:      append(append([]PhysReg{}, callerFPR...), calleeFPR...),
		CallerSavedGPRCount: len(callerGPR),
		CallerSavedFPRCount: len(callerFPR),
		ArgGPR:              []PhysReg{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"},
		ArgFPR:              []PhysReg{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7"},
		RetGPR:              "x0",
		RetFPR:              "d0",
		SP:                  "sp",
		FP:                  "x29",
		LR:                  "x30",
		Scratch:             "x16",
		Scratch2:            "x17",
	}
}

// X86_64 returns the System V AMD64 register file. rax and rdx are kept
// out of the allocatable set entirely: Mul/Div/Mod lower to instructions
// that use them implicitly, so pkg/emit/x86 needs them free as scratch.
func X86_64() RegisterFile {
	callerGPR := []PhysReg{"rcx", "rsi", "rdi", "r8", "r9", "r10"}
	calleeGPR := []PhysReg{"rbx", "r12", "r13", "r14", "r15"}
	callerFPR := []PhysReg{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7",
		"xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14", "xmm15"}

	return RegisterFile{
		Name:                "x86-64",
		AllocatableGPR:      append(append([]PhysReg{}, callerGPR...), calleeGPR...),
		AllocatableFPR:      callerFPR,
		CallerSavedGPRCount: len(callerGPR),
		CallerSavedFPRCount: len(callerFPR),
		ArgGPR:              []PhysReg{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
		ArgFPR:              []PhysReg{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"},
		RetGPR:              "rax",
		RetFPR:              "xmm0",
		SP:                  "rsp",
		FP:                  "rbp",
		LR:                  "",
		Scratch:             "r11",
		Scratch2:            "rax",
	}
}

// ByName looks up a RegisterFile by the -target flag's architecture name.
func ByName(name string) (RegisterFile, bool) {
	switch name {
	case "arm64", "aarch64":
		return AArch64(), true
	case "amd64", "x86-64", "x86_64":
		return X86_64(), true
	default:
		return RegisterFile{}, false
	}
}
