package fetch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tonistiigi/fsutil"
)

// CopyTree copies every regular file and symlink under src into dst,
// skipping any path with a ".git"-prefixed component the same way
// Dirhash does. Unlike Dirhash, which skips symlinks, it recreates them
// in dst. The compiler uses it to copy a directory skeleton entry into
// its mkosi.skeleton tree.
func CopyTree(ctx context.Context, src, dst string) error {
	filter := fsutil.FilterFunc(func(path string, fi os.FileInfo) bool {
		return !hasGitComponentFiltered(path)
	})
	return fsutil.Walk(ctx, src, &fsutil.WalkOpt{IncludePatterns: nil, Filter: filter}, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		return copyEntry(path, target, info)
	})
}

func copyEntry(path, target string, info os.FileInfo) error {
	switch {
	case info.IsDir():
		return os.MkdirAll(target, info.Mode().Perm())
	case info.Mode()&os.ModeSymlink != 0:
		link, err := os.Readlink(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Symlink(link, target)
	default:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "fetch: open %s", path)
		}
		defer src.Close()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return errors.Wrapf(err, "fetch: create %s", target)
		}
		defer out.Close()
		_, err = io.Copy(out, src)
		return err
	}
}

// hasGitComponentFiltered adapts hasGitComponent to fsutil's relative,
// slash-separated path form used during Walk filtering.
func hasGitComponentFiltered(path string) bool {
	return hasGitComponent(strings.TrimPrefix(path, "/"))
}
