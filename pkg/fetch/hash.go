package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// sha256File returns the lowercase hex sha256 digest of the file at
// path.
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "fetch: open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "fetch: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Dirhash computes a deterministic digest over every regular file in a
// directory tree: relative paths are collected, any path component
// beginning with ".git" is excluded, symlinks are skipped, paths are
// sorted byte-wise, and the outer digest is sha256 over the
// concatenation of each file's sha256(relpath + 0x00 + contents).
func Dirhash(root string) (string, error) {
	var relpaths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if hasGitComponent(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		relpaths = append(relpaths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "fetch: walk %s", root)
	}
	sort.Strings(relpaths)

	outer := sha256.New()
	for _, rel := range relpaths {
		full := filepath.Join(root, filepath.FromSlash(rel))
		contents, err := os.ReadFile(full)
		if err != nil {
			return "", errors.Wrapf(err, "fetch: read %s", full)
		}
		inner := sha256.New()
		inner.Write([]byte(rel))
		inner.Write([]byte{0})
		inner.Write(contents)
		outer.Write(inner.Sum(nil))
	}
	return hex.EncodeToString(outer.Sum(nil)), nil
}

func hasGitComponent(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".git") {
			return true
		}
	}
	return false
}

// HashOf returns the sha256 digest of a local file as a "sha256:<hex>"
// string, in go-digest's canonical form.
func HashOf(path string) (string, error) {
	hex, err := sha256File(path)
	if err != nil {
		return "", err
	}
	return digest.NewDigestFromEncoded(digest.SHA256, hex).String(), nil
}

// HashDir returns the Dirhash of a local directory as a "sha256:<hex>"
// string.
func HashDir(dir string) (string, error) {
	hex, err := Dirhash(dir)
	if err != nil {
		return "", err
	}
	return digest.NewDigestFromEncoded(digest.SHA256, hex).String(), nil
}

// normalizeDigest strips an optional "sha256:" prefix, returning the
// bare hex digest callers compare against computed hashes.
func normalizeDigest(d string) string {
	return strings.TrimPrefix(d, "sha256:")
}
