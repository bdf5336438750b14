package fetch

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const defaultCacheDirName = ".cache/tdx"

// CacheDir returns the root of the content-addressed cache, honoring
// $TDX_CACHE_DIR and falling back to ~/.cache/tdx.
func CacheDir() (string, error) {
	if v := os.Getenv("TDX_CACHE_DIR"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "fetch: resolve home directory")
	}
	return filepath.Join(home, defaultCacheDirName), nil
}

// blobCacheDir returns $cache/fetch, the directory holding plain
// downloaded files keyed by their sha256 digest.
func blobCacheDir() (string, error) {
	root, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "fetch"), nil
}

// gitTreeCacheDir returns $cache/fetch/git-trees, the directory holding
// checked-out git working trees keyed by their content digest.
func gitTreeCacheDir() (string, error) {
	root, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "fetch", "git-trees"), nil
}

// gitMirrorDir returns $cache/git, the directory holding bare git
// mirrors keyed by host and repository slug.
func gitMirrorDir() (string, error) {
	root, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "git"), nil
}

// ensureDir creates dir (and parents) if it doesn't already exist.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// atomicWrite renames tmpPath to finalPath, the last step that publishes
// a verified download or checkout into the cache. The rename is atomic
// on any POSIX filesystem where both paths share a device, which is
// guaranteed here because tmpPath is always created alongside finalPath.
func atomicWrite(tmpPath, finalPath string) error {
	if err := ensureDir(filepath.Dir(finalPath)); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return errors.Wrapf(err, "fetch: publish %s", finalPath)
	}
	return nil
}
