package image

import (
	"reflect"

	"github.com/pkg/errors"
	"github.com/tdx-vm/sdk/pkg/build"
)

// Resolved is the flattened, compiler-ready form of an Image: the base
// definition plus one profile's overlay merged in, with scalar
// overrides applied. The compiler package only ever sees a Resolved
// value, never an Image.
type Resolved struct {
	Name          string
	Base          string
	InitSystem    string
	DefaultTarget string
	Firmware      string
	SecureBoot    bool
	Locale        string
	Docs          bool
	Kernel        Kernel

	Partitions  []Partition
	Encryption  []EncryptionConfig
	Network     []NetworkConfig
	SSH         []SSHConfig
	Packages    []string
	Builds      []*build.Artifact
	Services    []Service
	Files       []FileEntry
	Templates   []TemplateEntry
	Skeleton    []SkeletonEntry
	RunCommands []RunCommand
	Users       []UserEntry
	Secrets     []SecretEntry
	Repositories []RepositoryEntry

	Profile string
}

// Resolve flattens the image into a Resolved value. An empty profile
// name resolves the base image with no overlay. A non-empty name that
// was never opened via Profile returns ErrUnknownProfile.
func (img *Image) Resolve(profile string) (*Resolved, error) {
	r := &Resolved{
		Name:          img.Name,
		Base:          img.Base,
		InitSystem:    img.InitSystem,
		DefaultTarget: img.DefaultTarget,
		Firmware:      img.Firmware,
		SecureBoot:    img.SecureBoot,
		Locale:        img.Locale,
		Docs:          img.Docs,
		Kernel:        img.Kernel,
		Profile:       profile,

		Partitions:   append([]Partition(nil), img.partitions...),
		Encryption:   append([]EncryptionConfig(nil), img.encryption...),
		Network:      append([]NetworkConfig(nil), img.network...),
		SSH:          append([]SSHConfig(nil), img.ssh...),
		Packages:     append([]string(nil), img.packages...),
		Builds:       append([]*build.Artifact(nil), img.builds...),
		Services:     append([]Service(nil), img.services...),
		Files:        append([]FileEntry(nil), img.files...),
		Templates:    append([]TemplateEntry(nil), img.templates...),
		Skeleton:     append([]SkeletonEntry(nil), img.skeleton...),
		RunCommands:  append([]RunCommand(nil), img.runCommands...),
		Users:        append([]UserEntry(nil), img.users...),
		Secrets:      append([]SecretEntry(nil), img.secrets...),
		Repositories: append([]RepositoryEntry(nil), img.repos...),
	}

	if profile == "" {
		return r, nil
	}

	overlay, ok := img.profiles[profile]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProfile, "profile %q", profile)
	}

	r.Packages = append(r.Packages, overlay.packages...)
	r.Services = overlay.mergeServices(r.Services)
	r.Files = append(r.Files, overlay.files...)
	r.RunCommands = append(r.RunCommands, overlay.runCommands...)

	if err := applyOverrides(r, overlay.overrides); err != nil {
		return nil, err
	}
	return r, nil
}

// ServiceByName looks up a resolved service unit by name, for callers
// (such as the inspect verb) that need one service's detail rather than
// the whole list.
func (r *Resolved) ServiceByName(name string) (Service, error) {
	for _, s := range r.Services {
		if s.Name == name {
			return s, nil
		}
	}
	return Service{}, errors.Wrapf(ErrNoSuchService, "service %q", name)
}

func (ov *profileOverlay) mergeServices(base []Service) []Service {
	out := append([]Service(nil), base...)
	for _, s := range ov.services {
		out = replaceOrAppendService(out, s)
	}
	return out
}

// applyOverrides sets named scalar fields on Resolved using the same
// late-bound-by-name semantics as the original Python overrides dict,
// implemented with reflection since Go has no setattr.
func applyOverrides(r *Resolved, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	rv := reflect.ValueOf(r).Elem()
	for field, value := range overrides {
		fv := rv.FieldByName(field)
		if !fv.IsValid() || !fv.CanSet() {
			return errors.Errorf("image: unknown override field %q", field)
		}
		vv := reflect.ValueOf(value)
		if !vv.Type().AssignableTo(fv.Type()) {
			return errors.Errorf("image: override field %q expects %s, got %s", field, fv.Type(), vv.Type())
		}
		fv.Set(vv)
	}
	return nil
}
