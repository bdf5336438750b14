// Package fetch implements a content-addressed, cache-backed fetcher for
// both plain URLs and git repositories, verified against a caller-
// supplied sha256 digest before it is ever used by the compiler.
package fetch

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMissingRef is returned by FetchGit when none of Tag, Branch, or Rev
// is supplied: a git fetch must pin to something.
var ErrMissingRef = errors.New("fetch: git fetch requires one of tag, branch, or rev")

// ErrFetchFailed wraps a failed HTTP download in Fetch (network error or
// non-200 response), after any retries. FetchGit's git subprocess
// failures are returned as plain wrapped errors, not as ErrFetchFailed.
var ErrFetchFailed = errors.New("fetch: download failed")

// HashMismatchError is returned when a fetched artifact's computed
// digest doesn't match the digest the caller pinned.
type HashMismatchError struct {
	Source   string
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf(
		"fetch: hash mismatch for %s: expected sha256:%s, got sha256:%s (if this is intentional, update the pinned hash)",
		e.Source, e.Expected, e.Actual)
}

// Is allows errors.Is(err, ErrHashMismatch) to match any *HashMismatchError.
func (e *HashMismatchError) Is(target error) bool {
	return target == ErrHashMismatch
}

// ErrHashMismatch is the sentinel matched by HashMismatchError.Is, so
// callers can test for the failure class without caring about source
// paths or digest values.
var ErrHashMismatch = errors.New("fetch: hash mismatch")
