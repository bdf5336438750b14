package fetch

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// FetchTarGz downloads a gzip-compressed tarball the same way Fetch
// does (cached and hash-verified), then extracts it into destDir,
// which must not already exist. It returns destDir on success.
func FetchTarGz(ctx context.Context, url, expectedHash, destDir string) (string, error) {
	archivePath, err := Fetch(ctx, url, expectedHash)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(destDir); err == nil {
		return "", errors.Errorf("fetch: extraction target %s already exists", destDir)
	}
	if err := ensureDir(destDir); err != nil {
		return "", err
	}
	if err := extractTarGz(archivePath, destDir); err != nil {
		os.RemoveAll(destDir)
		return "", err
	}
	return destDir, nil
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, "fetch: open archive %s", archivePath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "fetch: gzip reader for %s", archivePath)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "fetch: read tar entry from %s", archivePath)
		}

		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !withinDir(destDir, target) {
			return errors.Errorf("fetch: archive entry %q escapes extraction directory", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func withinDir(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
