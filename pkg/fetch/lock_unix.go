//go:build !windows

package fetch

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// fileLock is an advisory, process-exclusive lock backed by flock(2),
// used to serialize access to a bare git mirror across concurrent tdx
// processes on the same host.
type fileLock struct {
	f *os.File
}

// lockFile acquires an exclusive advisory lock on path, creating it if
// necessary. It blocks until the lock is available.
func lockFile(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch: open lock file %s", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "fetch: flock %s", path)
	}
	return &fileLock{f: f}, nil
}

// Unlock releases the lock and closes the underlying file.
func (l *fileLock) Unlock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return errors.Wrap(err, "fetch: unlock")
	}
	return l.f.Close()
}
