package image

import "github.com/pkg/errors"

// Sentinel errors returned by the definition model. Callers should use
// errors.Is to test for these rather than comparing messages.
var (
	// ErrUnknownProfile is returned by Resolve when the named profile was
	// never created via Profile().
	ErrUnknownProfile = errors.New("image: unknown profile")

	// ErrMissingContent is returned by File/Template when neither src nor
	// content is supplied.
	ErrMissingContent = errors.New("image: file entry requires src or content")

	// ErrDuplicateProfileScope is returned by Profile when a profile scope
	// is already active.
	ErrDuplicateProfileScope = errors.New("image: a profile scope is already active")
)
