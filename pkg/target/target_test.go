package target

import "testing"

func TestAArch64RegisterFileShape(t *testing.T) {
	rf := AArch64()
	if len(rf.AllocatableGPR) != rf.CallerSavedGPRCount+10 {
		t.Fatalf("expected 10 callee-saved GPRs after the caller-saved ones")
	}
	if rf.FP != "x29" || rf.LR != "x30" {
		t.Fatalf("unexpected frame registers: fp=%s lr=%s", rf.FP, rf.LR)
	}
}

func TestX86_64ExcludesRaxAndRdxFromAllocatable(t *testing.T) {
	rf := X86_64()
	for _, r := range rf.AllocatableGPR {
		if r == "rax" || r == "rdx" {
			t.Fatalf("rax/rdx must stay out of the allocatable set, found %s", r)
		}
	}
	if rf.LR != "" {
		t.Fatalf("x86-64 has no link register, got %q", rf.LR)
	}
}

func TestByName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"arm64", true},
		{"aarch64", true},
		{"amd64", true},
		{"x86-64", true},
		{"riscv64", false},
	}
	for _, c := range cases {
		_, ok := ByName(c.name)
		if ok != c.ok {
			t.Errorf("ByName(%q) ok = %v, want %v", c.name, ok, c.ok)
		}
	}
}
