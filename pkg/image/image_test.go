package image

import (
	"errors"
	"testing"

	"github.com/tdx-vm/sdk/pkg/build"
)

func TestNewDefaults(t *testing.T) {
	img := New("test-image")

	if img.InitSystem != "systemd" {
		t.Errorf("InitSystem = %q, want systemd", img.InitSystem)
	}
	if img.Firmware != "ovmf" {
		t.Errorf("Firmware = %q, want ovmf", img.Firmware)
	}
	if img.SecureBoot {
		t.Error("SecureBoot = true, want false by default")
	}
	if len(img.partitions) != 1 || img.partitions[0].Mountpoint != "/" {
		t.Fatalf("expected single root partition, got %+v", img.partitions)
	}
}

func TestInstallWithoutProfile(t *testing.T) {
	img := New("test-image").Install("curl", "jq")
	r, err := img.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(r.Packages) != 2 {
		t.Fatalf("Packages = %v, want 2 entries", r.Packages)
	}
}

func TestProfileOverlayIsolatesBase(t *testing.T) {
	img := New("test-image").Install("base-pkg")

	scope, err := img.Profile("gpu")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	img.Install("cuda-drivers")
	if err := scope.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	base, err := img.Resolve("")
	if err != nil {
		t.Fatalf("Resolve(base): %v", err)
	}
	if len(base.Packages) != 1 || base.Packages[0] != "base-pkg" {
		t.Errorf("base Packages = %v, want [base-pkg]", base.Packages)
	}

	gpu, err := img.Resolve("gpu")
	if err != nil {
		t.Fatalf("Resolve(gpu): %v", err)
	}
	want := map[string]bool{"base-pkg": true, "cuda-drivers": true}
	if len(gpu.Packages) != 2 {
		t.Fatalf("gpu Packages = %v, want 2 entries", gpu.Packages)
	}
	for _, p := range gpu.Packages {
		if !want[p] {
			t.Errorf("unexpected package %q in gpu profile", p)
		}
	}
}

func TestResolveUnknownProfile(t *testing.T) {
	img := New("test-image")
	if _, err := img.Resolve("missing"); err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
}

func TestDuplicateProfileScope(t *testing.T) {
	img := New("test-image")
	scope, err := img.Profile("a")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	defer scope.Close()

	if _, err := img.Profile("b"); err == nil {
		t.Fatal("expected ErrDuplicateProfileScope, got nil")
	}
}

func TestOverrideAppliesOnlyToSelectedProfile(t *testing.T) {
	img := New("test-image")
	scope, err := img.Profile("minimal")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	scope.Override("DefaultTarget", "rescue.target")
	if err := scope.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	base, _ := img.Resolve("")
	if base.DefaultTarget != "multi-user.target" {
		t.Errorf("base DefaultTarget = %q, want multi-user.target", base.DefaultTarget)
	}

	minimal, err := img.Resolve("minimal")
	if err != nil {
		t.Fatalf("Resolve(minimal): %v", err)
	}
	if minimal.DefaultTarget != "rescue.target" {
		t.Errorf("minimal DefaultTarget = %q, want rescue.target", minimal.DefaultTarget)
	}
}

func TestServiceReplacesByName(t *testing.T) {
	img := New("test-image")
	img.Service(Service{Name: "app", ExecStart: "/usr/bin/app-v1"})
	img.Service(Service{Name: "app", ExecStart: "/usr/bin/app-v2"})

	r, err := img.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(r.Services) != 1 {
		t.Fatalf("Services = %v, want 1 entry", r.Services)
	}
	if r.Services[0].ExecStart != "/usr/bin/app-v2" {
		t.Errorf("ExecStart = %q, want /usr/bin/app-v2", r.Services[0].ExecStart)
	}
}

func TestServiceByNameFound(t *testing.T) {
	img := New("test-image")
	img.Service(Service{Name: "app", ExecStart: "/usr/bin/app"})
	r, err := img.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	svc, err := r.ServiceByName("app")
	if err != nil {
		t.Fatalf("ServiceByName: %v", err)
	}
	if svc.ExecStart != "/usr/bin/app" {
		t.Errorf("ExecStart = %q, want /usr/bin/app", svc.ExecStart)
	}
}

func TestServiceByNameMissing(t *testing.T) {
	img := New("test-image")
	r, err := img.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := r.ServiceByName("nope"); !errors.Is(err, ErrNoSuchService) {
		t.Fatalf("err = %v, want ErrNoSuchService", err)
	}
}

func TestSortedServiceNames(t *testing.T) {
	got := SortedServiceNames([]Service{{Name: "zeta"}, {Name: "alpha"}})
	if got[0] != "alpha" || got[1] != "zeta" {
		t.Errorf("SortedServiceNames = %v, want [alpha zeta]", got)
	}
}

func TestFileRequiresContentOrSrc(t *testing.T) {
	img := New("test-image")
	if _, err := img.File(FileEntry{Path: "/etc/x"}); err != ErrMissingContent {
		t.Fatalf("err = %v, want ErrMissingContent", err)
	}
}

func TestBuildArtifactCarriesThroughResolve(t *testing.T) {
	img := New("test-image")
	artifact, err := build.Go("agent", "/src/agent", "/usr/local/bin/agent", build.GoOptions{Version: "1.22.5"})
	if err != nil {
		t.Fatalf("build.Go: %v", err)
	}
	img.Build(artifact)

	r, err := img.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(r.Builds) != 1 || r.Builds[0].Name != "agent" {
		t.Fatalf("Builds = %v, want [agent]", r.Builds)
	}
}

func TestRunTagsPostInst(t *testing.T) {
	img := New("test-image").Run("echo hi")
	r, err := img.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(r.RunCommands) != 1 {
		t.Fatalf("RunCommands = %v, want 1 entry", r.RunCommands)
	}
	got := r.RunCommands[0]
	if got.Phase != PhasePostInst {
		t.Errorf("Phase = %q, want %q", got.Phase, PhasePostInst)
	}
	if got.Command != "echo hi" || got.Script != "" {
		t.Errorf("RunCommand = %+v, want Command set and Script empty", got)
	}
}

func TestRunScriptSetsScriptNotCommand(t *testing.T) {
	img := New("test-image").RunScript("/defs/postinst.sh")
	r, err := img.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := r.RunCommands[0]
	if got.Script != "/defs/postinst.sh" || got.Command != "" {
		t.Errorf("RunCommand = %+v, want Script set and Command empty", got)
	}
}

// TestBuildUserSecretAreBaseOnly confirms Build/User/Secret always land
// on the base image even when registered inside an open profile scope,
// matching spec.md's base-only mutator contract.
func TestBuildUserSecretAreBaseOnly(t *testing.T) {
	img := New("test-image")

	scope, err := img.Profile("gpu")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	artifact, err := build.Go("agent", "/src/agent", "/usr/local/bin/agent", build.GoOptions{Version: "1.22.5"})
	if err != nil {
		t.Fatalf("build.Go: %v", err)
	}
	img.Build(artifact)
	img.User(UserEntry{Name: "svc", System: true})
	img.Secret(SecretEntry{Name: "API_KEY", Destination: "/etc/api/key"})
	if err := scope.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	base, err := img.Resolve("")
	if err != nil {
		t.Fatalf("Resolve(base): %v", err)
	}
	if len(base.Builds) != 1 || len(base.Users) != 1 || len(base.Secrets) != 1 {
		t.Fatalf("base Builds/Users/Secrets = %d/%d/%d, want 1/1/1 even though registered under a profile scope",
			len(base.Builds), len(base.Users), len(base.Secrets))
	}

	gpu, err := img.Resolve("gpu")
	if err != nil {
		t.Fatalf("Resolve(gpu): %v", err)
	}
	if len(gpu.Builds) != 1 || len(gpu.Users) != 1 || len(gpu.Secrets) != 1 {
		t.Fatalf("gpu Builds/Users/Secrets = %d/%d/%d, want 1/1/1 (no duplication from the overlay)",
			len(gpu.Builds), len(gpu.Users), len(gpu.Secrets))
	}
}
