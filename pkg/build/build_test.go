package build

import (
	"strings"
	"testing"
)

func TestGoScriptDeterministic(t *testing.T) {
	a, err := Go("agent", "/src/agent", "/usr/local/bin/agent", GoOptions{Version: "1.22.5"})
	if err != nil {
		t.Fatalf("Go: %v", err)
	}
	s1, err := a.Script()
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	s2, err := a.Script()
	if err != nil {
		t.Fatalf("Script (again): %v", err)
	}
	if s1 != s2 {
		t.Errorf("Script is not deterministic:\n%s\n---\n%s", s1, s2)
	}
	if !strings.Contains(s1, "go build -trimpath -ldflags '-s -w' -o '/usr/local/bin/agent' .") {
		t.Errorf("Script missing expected go build invocation: %s", s1)
	}
}

func TestGoRejectsInvalidVersion(t *testing.T) {
	if _, err := Go("agent", "/src", "/out", GoOptions{Version: "not-a-version"}); err == nil {
		t.Fatal("expected error for invalid go version")
	}
}

func TestRustScriptIncludesFeaturesSorted(t *testing.T) {
	a, err := Rust("agent", "/src/agent", "/usr/local/bin/agent", RustOptions{
		Toolchain: "1.83.0",
		Features:  []string{"zeta", "alpha"},
	})
	if err != nil {
		t.Fatalf("Rust: %v", err)
	}
	s, err := a.Script()
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if !strings.Contains(s, "--features alpha,zeta") {
		t.Errorf("Script missing sorted features: %s", s)
	}
	if !strings.Contains(s, "RUSTFLAGS='--remap-path-prefix=$PWD=.'") {
		t.Errorf("Script missing RUSTFLAGS: %s", s)
	}
}

func TestScriptRequiresOutput(t *testing.T) {
	if _, err := Script("custom", "/src", nil, "", ScriptOptions{}); err != ErrNoBuildOutput {
		t.Fatalf("err = %v, want ErrNoBuildOutput", err)
	}
}

func TestCScriptIncludesDebugPrefixMap(t *testing.T) {
	a, err := C("lib", "/src/lib", nil, "/usr/local/lib/libfoo.so", COptions{})
	if err != nil {
		t.Fatalf("C: %v", err)
	}
	s, err := a.Script()
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if !strings.Contains(s, "-fdebug-prefix-map=$PWD=.") {
		t.Errorf("Script missing reproducibility flag: %s", s)
	}
}

func TestDotnetScriptDefaultsRuntimeAndSelfContained(t *testing.T) {
	a := Dotnet("agent", "/src/agent", "/out/agent", DotnetOptions{})
	s, err := a.Script()
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if !strings.Contains(s, "-r linux-x64") {
		t.Errorf("Script missing default runtime: %s", s)
	}
	if !strings.Contains(s, "--no-self-contained") {
		t.Errorf("Script should default to --no-self-contained: %s", s)
	}
	if !strings.Contains(s, "/p:Deterministic=true") {
		t.Errorf("Script missing deterministic publish flag: %s", s)
	}
}

func TestDotnetScriptSelfContainedAndProject(t *testing.T) {
	a := Dotnet("agent", "/src/agent", "/out/agent", DotnetOptions{
		Project:       "agent.csproj",
		SelfContained: true,
		Runtime:       "linux-arm64",
	})
	s, err := a.Script()
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if !strings.Contains(s, "dotnet publish agent.csproj") {
		t.Errorf("Script missing project path: %s", s)
	}
	if !strings.Contains(s, "-r linux-arm64") {
		t.Errorf("Script missing explicit runtime: %s", s)
	}
	if !strings.Contains(s, "--self-contained") || strings.Contains(s, "--no-self-contained") {
		t.Errorf("Script should use --self-contained, not --no-self-contained: %s", s)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	a := &Artifact{Name: "x", Kind: Kind(99)}
	if _, err := a.Script(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
