// Package image implements the definition model: a fluent, mutable
// builder describing a VM image, plus profile overlays and the resolver
// that flattens a profile selection into a concrete, compiler-ready
// Resolved value.
package image

import (
	"github.com/pkg/errors"
	"github.com/tdx-vm/sdk/pkg/build"
)

// Image is the root of a definition file. It is built up by chained
// mutator calls and finalized with Resolve. The zero value is not
// ready to use; construct one with New.
type Image struct {
	Name           string
	Base           string // "distro/release", e.g. "debian/bookworm"
	InitSystem     string
	DefaultTarget  string
	Firmware       string
	SecureBoot     bool
	Locale         string
	Docs           bool
	Kernel         Kernel

	partitions  []Partition
	encryption  []EncryptionConfig
	network     []NetworkConfig
	ssh         []SSHConfig
	packages    []string
	builds      []*build.Artifact
	services    []Service
	files       []FileEntry
	templates   []TemplateEntry
	skeleton    []SkeletonEntry
	runCommands []RunCommand
	users       []UserEntry
	secrets     []SecretEntry
	repos       []RepositoryEntry

	profiles      map[string]*profileOverlay
	activeProfile *ProfileScope
}

// profileOverlay accumulates the additions made while a ProfileScope for
// this profile name is active. Only the mutators the resolver extends a
// profile with — install, service, file, run and its siblings — ever
// write here; build/user/secret/template/skeleton/partitions/encryption/
// network/ssh always target the base image directly.
type profileOverlay struct {
	packages    []string
	services    []Service
	files       []FileEntry
	runCommands []RunCommand
	overrides   map[string]any
}

// New returns an Image with the SDK's standard defaults: a single 2GiB
// ext4 root partition, systemd init, OVMF firmware, secure boot off.
func New(name string) *Image {
	return &Image{
		Name:          name,
		Base:          "debian/bookworm",
		InitSystem:    "systemd",
		DefaultTarget: "multi-user.target",
		Firmware:      "ovmf",
		SecureBoot:    false,
		Docs:          false,
		Kernel:        TDXKernel(nil),
		partitions: []Partition{
			{Label: "root", Type: "root", SizeMinMB: 2048, Format: "ext4", Mountpoint: "/"},
		},
		profiles: make(map[string]*profileOverlay),
	}
}

// dest returns the overlay this mutation should land in: the active
// profile's overlay if a ProfileScope is open, otherwise the base image.
func (img *Image) dest() *profileOverlay {
	if img.activeProfile != nil {
		return img.profiles[img.activeProfile.name]
	}
	return nil
}

// Install adds one or more packages to be installed via the
// distribution's package manager.
func (img *Image) Install(packages ...string) *Image {
	if dst := img.dest(); dst != nil {
		dst.packages = append(dst.packages, packages...)
	} else {
		img.packages = append(img.packages, packages...)
	}
	return img
}

// Build registers a compiled build artifact to install into the image.
// Unlike Install/Service/File, Build always applies to the base image:
// profile overlays do not extend the build-artifact list.
func (img *Image) Build(a *build.Artifact) *Image {
	img.builds = append(img.builds, a)
	return img
}

// Service installs and enables a systemd unit. Unlike most mutators,
// repeated calls for the same Name replace the previous entry rather
// than duplicating it, so a profile overlay can refine a base service.
func (img *Image) Service(s Service) *Image {
	if dst := img.dest(); dst != nil {
		dst.services = append(dst.services, s)
	} else {
		img.services = replaceOrAppendService(img.services, s)
	}
	return img
}

func replaceOrAppendService(services []Service, s Service) []Service {
	for i, existing := range services {
		if existing.Name == s.Name {
			services[i] = s
			return services
		}
	}
	return append(services, s)
}

// File places a file in the image, verbatim copy or literal content.
func (img *Image) File(f FileEntry) (*Image, error) {
	if f.Src == "" && f.Content == nil {
		return img, ErrMissingContent
	}
	if dst := img.dest(); dst != nil {
		dst.files = append(dst.files, f)
	} else {
		img.files = append(img.files, f)
	}
	return img, nil
}

// Template places a rendered template in the image. Templates are
// always applied to the base image regardless of the active profile
// scope, matching the resolver's treatment of templates as
// profile-independent assets.
func (img *Image) Template(t TemplateEntry) (*Image, error) {
	if t.Src == "" && t.Content == nil {
		return img, ErrMissingContent
	}
	img.templates = append(img.templates, t)
	return img, nil
}

// Skeleton seeds a directory tree into mkosi.skeleton before package
// installation. Like Template, skeleton entries always apply to the
// base image.
func (img *Image) Skeleton(s SkeletonEntry) *Image {
	img.skeleton = append(img.skeleton, s)
	return img
}

// User creates a system user account in the image. Like Partitions,
// Encryption, and Skeleton, User always applies to the base image.
func (img *Image) User(u UserEntry) *Image {
	img.users = append(img.users, u)
	return img
}

// Secret declares a value delivered to the running instance out-of-band
// rather than baked into the image. Secret always applies to the base
// image.
func (img *Image) Secret(s SecretEntry) *Image {
	img.secrets = append(img.secrets, s)
	return img
}

// Repository adds an extra package source. Repositories always apply to
// the base image: they must be in place before any profile's package
// set is installed.
func (img *Image) Repository(r RepositoryEntry) *Image {
	img.repos = append(img.repos, r)
	return img
}

// Partitions replaces the default partition table.
func (img *Image) Partitions(parts ...Partition) *Image {
	img.partitions = parts
	return img
}

// Encryption adds a LUKS2 encryption configuration.
func (img *Image) Encryption(e EncryptionConfig) *Image {
	img.encryption = append(img.encryption, e)
	return img
}

// Network sets the image's default network configuration.
func (img *Image) Network(n NetworkConfig) *Image {
	img.network = append(img.network, n)
	return img
}

// SSH configures sshd reachability.
func (img *Image) SSH(s SSHConfig) *Image {
	img.ssh = append(img.ssh, s)
	return img
}

func (img *Image) addRun(phase string, rc RunCommand) *Image {
	rc.Phase = phase
	if img.activeProfile != nil {
		rc.Profile = img.activeProfile.name
		dst := img.profiles[img.activeProfile.name]
		dst.runCommands = append(dst.runCommands, rc)
	} else {
		img.runCommands = append(img.runCommands, rc)
	}
	return img
}

// Sync registers a command to run in mkosi's sync phase (before any
// package manager cache refresh).
func (img *Image) Sync(command string) *Image { return img.addRun(PhaseSync, RunCommand{Command: command}) }

// SyncScript registers a script file to run in mkosi's sync phase.
func (img *Image) SyncScript(path string) *Image { return img.addRun(PhaseSync, RunCommand{Script: path}) }

// Prepare registers a command to run in mkosi's prepare phase (after
// packages are installed, before postinst).
func (img *Image) Prepare(command string) *Image {
	return img.addRun(PhasePrepare, RunCommand{Command: command})
}

// PrepareScript registers a script file to run in mkosi's prepare phase.
func (img *Image) PrepareScript(path string) *Image {
	return img.addRun(PhasePrepare, RunCommand{Script: path})
}

// Run registers a command to run in mkosi's postinst phase, after build
// artifacts are installed — the right place for most image
// customization: creating users, enabling services, debloating,
// hardening, etc.
func (img *Image) Run(command string) *Image {
	return img.addRun(PhasePostInst, RunCommand{Command: command})
}

// RunScript registers a script file to run in mkosi's postinst phase.
func (img *Image) RunScript(path string) *Image {
	return img.addRun(PhasePostInst, RunCommand{Script: path})
}

// Finalize registers a command to run in mkosi's finalize phase (runs on
// the host, after postinst, with $BUILDROOT pointing at the image root).
func (img *Image) Finalize(command string) *Image {
	return img.addRun(PhaseFinalize, RunCommand{Command: command})
}

// FinalizeScript registers a script file to run in mkosi's finalize phase.
func (img *Image) FinalizeScript(path string) *Image {
	return img.addRun(PhaseFinalize, RunCommand{Script: path})
}

// Postoutput registers a command to run after the image has been
// generated (signing, measurement, checksums, upload).
func (img *Image) Postoutput(command string) *Image {
	return img.addRun(PhasePostOutput, RunCommand{Command: command})
}

// PostoutputScript registers a script file to run in mkosi's postoutput phase.
func (img *Image) PostoutputScript(path string) *Image {
	return img.addRun(PhasePostOutput, RunCommand{Script: path})
}

// Clean registers a command to run when `mkosi clean` is invoked.
func (img *Image) Clean(command string) *Image { return img.addRun(PhaseClean, RunCommand{Command: command}) }

// CleanScript registers a script file to run in mkosi's clean phase.
func (img *Image) CleanScript(path string) *Image { return img.addRun(PhaseClean, RunCommand{Script: path}) }

// OnBoot registers a command to run once, early in the booted instance's
// first startup, via a dedicated oneshot unit ordered before
// sysinit.target. Unlike the lifecycle phases above, OnBoot always
// applies to the base image regardless of the active profile scope —
// it is not an mkosi build phase.
func (img *Image) OnBoot(command string) *Image {
	img.runCommands = append(img.runCommands, RunCommand{Phase: PhaseBoot, Command: command})
	return img
}

// ErrNoSuchService is returned when a caller looks up a service by name
// that was never registered.
var ErrNoSuchService = errors.New("image: no such service")
