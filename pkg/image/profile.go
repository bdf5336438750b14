package image

// ProfileScope borrows the Image for the duration of one profile's
// definition. While it is open, Install, Service, File and the
// run-command mutators (Run, Sync, Prepare, Finalize, Postoutput, Clean
// and their *Script siblings) on the owning Image land in the profile's
// overlay instead of the base image; every other mutator still writes
// to the base image. Callers
// must Close it (typically via defer) before opening another profile
// scope or resolving the image.
type ProfileScope struct {
	img  *Image
	name string
}

// Profile opens a scope for the named profile. Overlay accumulation for
// a given profile name is cumulative across multiple Profile calls:
// calling Profile("gpu") twice and closing between them extends the
// same overlay rather than replacing it.
func (img *Image) Profile(name string) (*ProfileScope, error) {
	if img.activeProfile != nil {
		return nil, ErrDuplicateProfileScope
	}
	if img.profiles == nil {
		img.profiles = make(map[string]*profileOverlay)
	}
	overlay, ok := img.profiles[name]
	if !ok {
		overlay = &profileOverlay{overrides: make(map[string]any)}
		img.profiles[name] = overlay
	}
	scope := &ProfileScope{img: img, name: name}
	img.activeProfile = scope
	return scope, nil
}

// Override records a scalar field override applied to the resolved
// image when this profile is selected. field names a top-level Image
// field by name (e.g. "DefaultTarget", "SecureBoot").
func (s *ProfileScope) Override(field string, value any) *ProfileScope {
	s.img.profiles[s.name].overrides[field] = value
	return s
}

// Close ends the profile scope, returning subsequent mutator calls on
// the owning Image to the base image. It is idempotent: closing an
// already-closed scope is a no-op.
func (s *ProfileScope) Close() error {
	if s == nil || s.img == nil {
		return nil
	}
	if s.img.activeProfile == s {
		s.img.activeProfile = nil
	}
	s.img = nil
	return nil
}
