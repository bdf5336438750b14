package image

import (
	"strings"
	"testing"
)

func TestTDXKernelIncludesBaselineDefaults(t *testing.T) {
	k := TDXKernel(nil)
	if k.Config["CONFIG_INTEL_TDX_GUEST"] != "y" {
		t.Errorf("CONFIG_INTEL_TDX_GUEST = %q, want y", k.Config["CONFIG_INTEL_TDX_GUEST"])
	}
	if k.EffectiveCmdline() != defaultCmdline {
		t.Errorf("EffectiveCmdline = %q, want %q", k.EffectiveCmdline(), defaultCmdline)
	}
}

func TestTDXKernelExtraOverridesBaseline(t *testing.T) {
	k := TDXKernel(map[string]string{"CONFIG_MODULES": "y"})
	if k.Config["CONFIG_MODULES"] != "y" {
		t.Errorf("CONFIG_MODULES = %q, want y (extra should override baseline)", k.Config["CONFIG_MODULES"])
	}
}

func TestToKconfigSortedWithoutBase(t *testing.T) {
	k := Kernel{Config: map[string]string{"CONFIG_B": "y", "CONFIG_A": "n"}}
	out := k.ToKconfig("")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", lines)
	}
	if !strings.HasPrefix(lines[0], "# CONFIG_A is not set") {
		t.Errorf("lines[0] = %q, want CONFIG_A first (sorted)", lines[0])
	}
	if lines[1] != "CONFIG_B=y" {
		t.Errorf("lines[1] = %q, want CONFIG_B=y", lines[1])
	}
}

func TestToKconfigOverlaysBaseFile(t *testing.T) {
	base := "CONFIG_A=n\n# unrelated comment\nCONFIG_B=n\n"
	k := Kernel{Config: map[string]string{"CONFIG_A": "y", "CONFIG_C": "y"}}
	out := k.ToKconfig(base)
	if !strings.Contains(out, "CONFIG_A=y") {
		t.Errorf("overlay did not override CONFIG_A: %s", out)
	}
	if !strings.Contains(out, "# unrelated comment") {
		t.Errorf("overlay dropped unrelated line: %s", out)
	}
	if !strings.Contains(out, "CONFIG_B=n") {
		t.Errorf("overlay should leave CONFIG_B untouched: %s", out)
	}
	if !strings.Contains(out, "CONFIG_C=y") {
		t.Errorf("overlay should append CONFIG_C: %s", out)
	}
}
