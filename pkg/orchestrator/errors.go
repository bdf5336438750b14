// Package orchestrator is the entry point a definition file's main()
// calls into: it parses the CLI verb, resolves and compiles the image,
// and for the build verb invokes the external assembler.
package orchestrator

import "github.com/pkg/errors"

// ErrLoadFailed names the failure of a definition program that could not
// be run at all — the Go equivalent of a definition file that fails to
// parse or defines no Image. No function in this module returns it: a
// definition program that does not compile fails inside `go run`, and
// cmd/tdx passes that process's exit code through.
var ErrLoadFailed = errors.New("orchestrator: definition program failed to load")

// AssemblerFailedError wraps a non-zero exit from the external
// assembler (mkosi).
type AssemblerFailedError struct {
	ExitCode int
}

func (e *AssemblerFailedError) Error() string {
	return errors.Errorf("orchestrator: assembler exited with status %d", e.ExitCode).Error()
}
