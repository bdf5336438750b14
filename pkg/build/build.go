// Package build provides typed constructors for per-language build
// artifacts. Each artifact knows how to render the shell fragment that
// performs its own build inside the mkosi.build.d phase; the compiler
// never needs to know anything about Go, Rust, .NET, C, or raw scripts.
package build

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// Kind identifies which builder renders a BuildArtifact's script. It is a
// closed enum rather than a string so Script() can switch over it
// exhaustively instead of dispatching through a string-keyed map.
type Kind int

const (
	// KindGo builds a Go module with `go build`.
	KindGo Kind = iota
	// KindRust builds a Cargo project with `cargo build --release`.
	KindRust
	// KindDotnet publishes a .NET project with `dotnet publish`.
	KindDotnet
	// KindC runs a user-supplied make-like build script for C/C++ projects.
	KindC
	// KindScript is the universal fallback: an arbitrary shell command.
	KindScript
)

func (k Kind) String() string {
	switch k {
	case KindGo:
		return "go"
	case KindRust:
		return "rust"
	case KindDotnet:
		return "dotnet"
	case KindC:
		return "c"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// ErrUnknownBuilder is returned by Script when the artifact's Kind isn't
// one of the recognized values.
var ErrUnknownBuilder = errors.New("build: unknown builder kind")

// ErrNoBuildOutput is returned by the C and Script constructors when
// neither a single output nor an artifacts map was supplied.
var ErrNoBuildOutput = errors.New("build: artifact has no output or artifacts map")

// ErrInvalidVersion is returned by the Go/Rust constructors when the
// supplied toolchain version doesn't parse as semver.
var ErrInvalidVersion = errors.New("build: invalid toolchain version")

// Artifact is one compiled payload to be installed into the image. It is
// a value type: same fields in, byte-identical script out.
//
// Output is either a single string (one build_path == one image_path,
// inferred to be the same) or, via Artifacts, a map from a path inside
// the build environment to an absolute path inside the image.
type Artifact struct {
	Name      string
	Src       string
	Output    string
	Artifacts map[string]string
	Kind      Kind
	BuildDeps []string
	Env       map[string]string

	// Kind-specific configuration, populated by the Go/Rust/Dotnet/C/Script
	// constructors below.
	Go         GoOptions
	Rust       RustOptions
	Dotnet     DotnetOptions
	C          COptions
	ScriptOpts ScriptOptions
}

// GoOptions configures the Go builder.
type GoOptions struct {
	Version  string // precompiled release version, e.g. "1.22.5"
	Compiler *GoCompilerSource
	Ldflags  string
	Tags     []string
}

// GoCompilerSource selects how the Go toolchain itself is provisioned:
// a precompiled tarball already on disk, or a from-source bootstrap
// build. When Compiler is nil, GoOptions.Version selects the third
// strategy, downloading the precompiled release for that version.
type GoCompilerSource struct {
	TarballPath      string // local path to a pre-fetched Go release tarball
	FromSource       bool
	SourceVersion    string
	BootstrapVersion string
	SourceURL        string
	BootstrapURL     string
}

// RustOptions configures the Rust builder.
type RustOptions struct {
	Toolchain          string // rustup toolchain selector, e.g. "1.83.0"
	Compiler           string // local path to a prebuilt rustup-style tarball
	Features           []string
	NoDefaultFeatures  bool
	Target             string
}

// DotnetOptions configures the .NET builder.
type DotnetOptions struct {
	SDKVersion     string
	Project        string
	SelfContained  bool
	Runtime        string
}

// COptions configures the C/C++ builder.
type COptions struct {
	BuildScript     string // defaults to "make"
	CompilerSource  string // local path to a compiler source tree to build+install
	CompilerArchive string // local path to a prebuilt compiler archive
	CC, CXX         string
	CFlags          string
}

// ScriptOptions configures the universal fallback builder.
type ScriptOptions struct {
	BuildScript string // defaults to "make"
}

const goReleaseURLTemplate = "https://go.dev/dl/go%s.linux-amd64.tar.gz"

// Go constructs a Go build artifact. output is the absolute path inside
// the image the compiled binary is installed to.
func Go(name, src, output string, opts GoOptions) (*Artifact, error) {
	if opts.Version != "" {
		if _, err := semver.NewVersion(opts.Version); err != nil {
			return nil, errors.Wrapf(ErrInvalidVersion, "go_version %q: %v", opts.Version, err)
		}
	}
	if opts.Ldflags == "" {
		opts.Ldflags = "-s -w"
	}
	return &Artifact{Name: name, Src: src, Output: output, Kind: KindGo, Go: opts}, nil
}

// Rust constructs a Rust build artifact.
func Rust(name, src, output string, opts RustOptions) (*Artifact, error) {
	if opts.Toolchain != "" {
		if _, err := semver.NewVersion(opts.Toolchain); err != nil {
			return nil, errors.Wrapf(ErrInvalidVersion, "toolchain %q: %v", opts.Toolchain, err)
		}
	}
	return &Artifact{Name: name, Src: src, Output: output, Kind: KindRust, Rust: opts}, nil
}

// Dotnet constructs a .NET build artifact.
func Dotnet(name, src, output string, opts DotnetOptions) *Artifact {
	if opts.Runtime == "" {
		opts.Runtime = "linux-x64"
	}
	return &Artifact{Name: name, Src: src, Output: output, Kind: KindDotnet, Dotnet: opts}
}

// C constructs a C/C++ build artifact. At least one of output or
// artifacts must describe where build products land.
func C(name, src string, artifacts map[string]string, output string, opts COptions) (*Artifact, error) {
	if len(artifacts) == 0 && output == "" {
		return nil, ErrNoBuildOutput
	}
	if opts.BuildScript == "" {
		opts.BuildScript = "make"
	}
	return &Artifact{
		Name: name, Src: src, Output: output, Artifacts: artifacts,
		Kind: KindC, C: opts,
	}, nil
}

// Script constructs the universal fallback build artifact: an arbitrary
// shell command plus artifact copy.
func Script(name, src string, artifacts map[string]string, output string, opts ScriptOptions) (*Artifact, error) {
	if len(artifacts) == 0 && output == "" {
		return nil, ErrNoBuildOutput
	}
	if opts.BuildScript == "" {
		opts.BuildScript = "make"
	}
	return &Artifact{
		Name: name, Src: src, Output: output, Artifacts: artifacts,
		Kind: KindScript, ScriptOpts: opts,
	}, nil
}

// Script generates the shell fragment that builds this artifact. Same
// fields in, byte-identical output out — no clock, PRNG, or map-iteration
// dependence.
func (a *Artifact) Script() (string, error) {
	switch a.Kind {
	case KindGo:
		return a.renderGo(), nil
	case KindRust:
		return a.renderRust(), nil
	case KindDotnet:
		return a.renderDotnet(), nil
	case KindC:
		return a.renderC(), nil
	case KindScript:
		return a.renderScript(), nil
	default:
		return "", errors.Wrapf(ErrUnknownBuilder, "kind %v", a.Kind)
	}
}

func (a *Artifact) envExports() []string {
	lines := []string{"export SOURCE_DATE_EPOCH=0"}
	for _, k := range sortedKeys(a.Env) {
		lines = append(lines, fmt.Sprintf("export %s=%s", k, shellQuote(a.Env[k])))
	}
	return lines
}

func (a *Artifact) installDeps() []string {
	if len(a.BuildDeps) == 0 {
		return nil
	}
	deps := append([]string(nil), a.BuildDeps...)
	sort.Strings(deps)
	return []string{"apt-get install -y --no-install-recommends " + strings.Join(deps, " ")}
}

func (a *Artifact) copyArtifacts() []string {
	if len(a.Artifacts) == 0 {
		return nil
	}
	var lines []string
	for _, buildPath := range sortedKeys(a.Artifacts) {
		lines = append(lines, fmt.Sprintf("cp %s %s", shellQuote(buildPath), shellQuote(a.Artifacts[buildPath])))
	}
	return lines
}

func (a *Artifact) renderGo() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("# Build: %s (Go)", a.Name))
	parts = append(parts, a.goCompilerSetup()...)
	parts = append(parts, a.envExports()...)
	parts = append(parts, a.installDeps()...)
	parts = append(parts, fmt.Sprintf("cd %s", shellQuote(a.Src)))

	cmd := "go build -trimpath -ldflags " + shellQuote(a.Go.Ldflags)
	if len(a.Go.Tags) > 0 {
		tags := append([]string(nil), a.Go.Tags...)
		sort.Strings(tags)
		cmd += " -tags " + strings.Join(tags, ",")
	}
	cmd += fmt.Sprintf(" -o %s .", shellQuote(a.Output))
	parts = append(parts, cmd)
	return joinNonEmpty(parts)
}

func (a *Artifact) goCompilerSetup() []string {
	c := a.Go.Compiler
	switch {
	case c != nil && c.FromSource:
		srcVer := c.SourceVersion
		if srcVer == "" {
			srcVer = a.Go.Version
		}
		bootVer := c.BootstrapVersion
		if bootVer == "" {
			bootVer = "1.21.0"
		}
		srcURL := c.SourceURL
		if srcURL == "" {
			srcURL = fmt.Sprintf(goReleaseURLTemplate, srcVer)
		}
		bootURL := c.BootstrapURL
		if bootURL == "" {
			bootURL = fmt.Sprintf(goReleaseURLTemplate, bootVer)
		}
		return []string{
			fmt.Sprintf("# Build Go %s from source (bootstrap %s)", srcVer, bootVer),
			"export GOROOT_BOOTSTRAP=/tmp/go-bootstrap",
			"mkdir -p /tmp/go-bootstrap",
			fmt.Sprintf("curl -fsSL %s | tar -C /tmp/go-bootstrap --strip-components=1 -xz", shellQuote(bootURL)),
			"mkdir -p /tmp/go-source",
			fmt.Sprintf("curl -fsSL %s | tar -C /tmp/go-source --strip-components=1 -xz", shellQuote(srcURL)),
			"cd /tmp/go-source/src",
			"GOROOT=/tmp/go-source ./make.bash",
			"rm -rf /usr/local/go",
			"mv /tmp/go-source /usr/local/go",
			"ln -sf /usr/local/go/bin/go /usr/local/bin/go",
			"rm -rf /tmp/go-bootstrap",
			"export PATH=/usr/local/go/bin:$PATH",
		}
	case c != nil && c.TarballPath != "":
		return []string{
			"# Install Go from provided tarball",
			fmt.Sprintf("tar -C /usr/local -xzf %s", shellQuote(c.TarballPath)),
			"export PATH=/usr/local/go/bin:$PATH",
		}
	case a.Go.Version != "":
		url := fmt.Sprintf(goReleaseURLTemplate, a.Go.Version)
		return []string{
			fmt.Sprintf("# Install Go %s (precompiled)", a.Go.Version),
			fmt.Sprintf("curl -fsSL %s | tar -C /usr/local -xz", shellQuote(url)),
			"export PATH=/usr/local/go/bin:$PATH",
		}
	default:
		return nil
	}
}

func (a *Artifact) renderRust() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("# Build: %s (Rust)", a.Name))
	parts = append(parts, a.rustCompilerSetup()...)
	parts = append(parts, a.envExports()...)
	parts = append(parts, "export RUSTFLAGS='--remap-path-prefix=$PWD=.'")
	parts = append(parts, a.installDeps()...)
	parts = append(parts, fmt.Sprintf("cd %s", shellQuote(a.Src)))

	cmd := "cargo build --release"
	if len(a.Rust.Features) > 0 {
		feats := append([]string(nil), a.Rust.Features...)
		sort.Strings(feats)
		cmd += " --features " + strings.Join(feats, ",")
	}
	if a.Rust.NoDefaultFeatures {
		cmd += " --no-default-features"
	}
	if a.Rust.Target != "" {
		cmd += " --target " + a.Rust.Target
	}
	parts = append(parts, cmd)

	binary := a.Output
	if idx := strings.LastIndexByte(binary, '/'); idx >= 0 {
		binary = binary[idx+1:]
	}
	if a.Rust.Target != "" {
		parts = append(parts, fmt.Sprintf("cp target/%s/release/%s %s", a.Rust.Target, binary, shellQuote(a.Output)))
	} else {
		parts = append(parts, fmt.Sprintf("cp target/release/%s %s", binary, shellQuote(a.Output)))
	}
	return joinNonEmpty(parts)
}

func (a *Artifact) rustCompilerSetup() []string {
	switch {
	case a.Rust.Compiler != "":
		return []string{
			"# Install Rust from provided tarball",
			fmt.Sprintf("tar -xf %s -C /tmp/rust-install", shellQuote(a.Rust.Compiler)),
			"/tmp/rust-install/*/install.sh --prefix=/usr/local",
			"rm -rf /tmp/rust-install",
		}
	case a.Rust.Toolchain != "":
		return []string{
			fmt.Sprintf("rustup default %s", a.Rust.Toolchain),
		}
	default:
		return nil
	}
}

func (a *Artifact) renderDotnet() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("# Build: %s (.NET)", a.Name))
	if a.Dotnet.SDKVersion != "" {
		parts = append(parts, fmt.Sprintf("# Using .NET SDK %s", a.Dotnet.SDKVersion))
	}
	parts = append(parts, a.envExports()...)
	parts = append(parts, "export DOTNET_CLI_TELEMETRY_OPTOUT=1")
	parts = append(parts, a.installDeps()...)
	project := a.Dotnet.Project
	if project == "" {
		project = "."
	}
	parts = append(parts, fmt.Sprintf("cd %s", shellQuote(a.Src)))
	scFlag := "--self-contained"
	if !a.Dotnet.SelfContained {
		scFlag = "--no-self-contained"
	}
	cmd := fmt.Sprintf("dotnet publish %s -c Release -o %s -r %s %s /p:Deterministic=true",
		project, shellQuote(a.Output), a.Dotnet.Runtime, scFlag)
	parts = append(parts, cmd)
	return joinNonEmpty(parts)
}

func (a *Artifact) renderC() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("# Build: %s (C/C++)", a.Name))
	parts = append(parts, a.cCompilerSetup()...)
	parts = append(parts, a.envExports()...)
	if a.C.CC != "" {
		parts = append(parts, fmt.Sprintf("export CC=%s", shellQuote(a.C.CC)))
	}
	if a.C.CXX != "" {
		parts = append(parts, fmt.Sprintf("export CXX=%s", shellQuote(a.C.CXX)))
	}
	flags := strings.TrimSpace(a.C.CFlags)
	if !strings.Contains(flags, "-fdebug-prefix-map") {
		flags = strings.TrimSpace(flags + " -fdebug-prefix-map=$PWD=.")
	}
	if flags != "" {
		parts = append(parts, fmt.Sprintf("export CFLAGS=%s", shellQuote(flags)))
		parts = append(parts, fmt.Sprintf("export CXXFLAGS=%s", shellQuote(flags)))
	}
	parts = append(parts, a.installDeps()...)
	parts = append(parts, fmt.Sprintf("cd %s", shellQuote(a.Src)))
	parts = append(parts, a.C.BuildScript)
	parts = append(parts, a.copyArtifacts()...)
	return joinNonEmpty(parts)
}

func (a *Artifact) cCompilerSetup() []string {
	switch {
	case a.C.CompilerSource != "":
		return []string{
			"# Build compiler from source",
			fmt.Sprintf("cd %s", shellQuote(a.C.CompilerSource)),
			"./configure --prefix=/opt/custom-gcc --disable-multilib",
			"make -j$(nproc)",
			"make install",
			"export PATH=/opt/custom-gcc/bin:$PATH",
			"cd -",
		}
	case a.C.CompilerArchive != "":
		return []string{
			"# Install compiler from archive",
			fmt.Sprintf("tar -xf %s -C /opt/custom-compiler", shellQuote(a.C.CompilerArchive)),
			"export PATH=/opt/custom-compiler/bin:$PATH",
		}
	default:
		return nil
	}
}

func (a *Artifact) renderScript() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("# Build: %s (custom script)", a.Name))
	parts = append(parts, a.envExports()...)
	parts = append(parts, a.installDeps()...)
	parts = append(parts, fmt.Sprintf("cd %s", shellQuote(a.Src)))
	parts = append(parts, a.ScriptOpts.BuildScript)
	parts = append(parts, a.copyArtifacts()...)
	return joinNonEmpty(parts)
}

func joinNonEmpty(parts []string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
