package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tdx-vm/sdk/pkg/image"
)

func TestRunBuildEmitMkosiSkipsAssembler(t *testing.T) {
	img := image.New("test-image")
	outDir := filepath.Join(t.TempDir(), "out")

	err := runBuild(img, Options{Assembler: "/nonexistent/mkosi-binary-that-must-not-run"}, "", outDir, "")
	if err != nil {
		t.Fatalf("runBuild: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "mkosi.conf")); err != nil {
		t.Fatalf("expected mkosi.conf to be written: %v", err)
	}
}

func TestRunBuildUnknownProfileFails(t *testing.T) {
	img := image.New("test-image")
	outDir := filepath.Join(t.TempDir(), "out")
	if err := runBuild(img, Options{}, "missing-profile", outDir, ""); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestRunInspectResolvesSuccessfully(t *testing.T) {
	img := image.New("test-image").Install("curl")
	if err := runInspect(img, ""); err != nil {
		t.Fatalf("runInspect: %v", err)
	}
}
