// Package compiler translates a resolved image definition into the
// on-disk input tree consumed by the mkosi assembler: one main
// configuration file, per-phase scripts, partition specs, skeleton/extra
// trees, systemd units, kernel config, and the secrets manifest and
// delivery service.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/tdx-vm/sdk/pkg/build"
	"github.com/tdx-vm/sdk/pkg/image"
)

// ErrUnknownBuilder is returned when a build artifact's Kind can't be
// rendered; it is the same value as build.ErrUnknownBuilder, re-exported
// for callers that only import this package.
var ErrUnknownBuilder = build.ErrUnknownBuilder

// Compile writes the assembler input tree for r into outDir. It is a
// pure function of r: running it twice against the same r (even into
// different directories) produces byte-identical trees, and it never
// touches anything outside outDir.
func Compile(r *image.Resolved, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrapf(err, "compiler: create output directory %s", outDir)
	}

	writers := []func(*image.Resolved, string) error{
		writeMkosiConf,
		writeKernelConfig,
		writePartitions,
		writeRepositories,
		writeSkeleton,
		writeBuildScripts,
		writeServiceUnits,
		writeFiles,
		writeTemplates,
		writePhaseScripts,
		writeBootPhase,
		writeSecrets,
	}
	for _, w := range writers {
		if err := w(r, outDir); err != nil {
			return err
		}
	}
	return nil
}

func writeFileMode(path string, content string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "compiler: mkdir for %s", path)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return errors.Wrapf(err, "compiler: write %s", path)
	}
	return nil
}

func sortedUniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// distMap normalizes a small set of known distro names; anything else
// passes through unchanged so less common mkosi-supported distros still
// work.
var distMap = map[string]string{"debian": "debian", "ubuntu": "ubuntu", "alpine": "alpine"}

// distRelease splits r.Base ("distro/release") into its two parts,
// defaulting to debian/bookworm if unset.
func distRelease(r *image.Resolved) (distribution, release string) {
	base := r.Base
	if base == "" {
		base = "debian/bookworm"
	}
	parts := strings.SplitN(base, "/", 2)
	distribution = parts[0]
	if len(parts) > 1 {
		release = parts[1]
	}
	if mapped, ok := distMap[distribution]; ok {
		distribution = mapped
	}
	return distribution, release
}

func writeMkosiConf(r *image.Resolved, outDir string) error {
	var b strings.Builder

	distribution, release := distRelease(r)

	b.WriteString("[Distribution]\n")
	fmt.Fprintf(&b, "Distribution=%s\n", distribution)
	fmt.Fprintf(&b, "Release=%s\n", release)

	b.WriteString("\n[Output]\n")
	fmt.Fprintf(&b, "ImageId=%s\n", r.Name)
	b.WriteString("Format=disk\n")

	b.WriteString("\n[Content]\n")
	if len(r.Packages) > 0 {
		fmt.Fprintf(&b, "Packages=%s\n", strings.Join(r.Packages, "\n"))
	}
	if r.Docs {
		b.WriteString("WithDocs=yes\n")
	} else {
		b.WriteString("WithDocs=no\n")
	}
	locale := r.Locale
	if locale == "" {
		locale = "C.UTF-8"
	}
	fmt.Fprintf(&b, "Locale=%s\n", locale)

	var deps []string
	for _, a := range r.Builds {
		deps = append(deps, a.BuildDeps...)
	}
	if unique := sortedUniqueStrings(deps); len(unique) > 0 {
		fmt.Fprintf(&b, "BuildPackages=%s\n", strings.Join(unique, "\n"))
	}

	b.WriteString("\n[Validation]\n")
	if r.SecureBoot {
		b.WriteString("SecureBoot=yes\n")
	} else {
		b.WriteString("SecureBoot=no\n")
	}

	return writeFileMode(filepath.Join(outDir, "mkosi.conf"), b.String(), 0o644)
}

func writeKernelConfig(r *image.Resolved, outDir string) error {
	kconfig := r.Kernel.ToKconfig("")
	if err := writeFileMode(filepath.Join(outDir, "mkosi.kernel", ".config"), kconfig, 0o644); err != nil {
		return err
	}
	cmdline := r.Kernel.EffectiveCmdline() + "\n"
	return writeFileMode(filepath.Join(outDir, "mkosi.extra", "etc", "kernel", "cmdline"), cmdline, 0o644)
}
