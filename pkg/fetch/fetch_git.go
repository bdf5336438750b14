package fetch

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var gitGroup singleflight.Group

// GitRef pins a git fetch to exactly one of a tag, branch, or commit.
type GitRef struct {
	Tag    string
	Branch string
	Rev    string
}

func (r GitRef) refspec() (string, error) {
	switch {
	case r.Rev != "":
		return r.Rev, nil
	case r.Tag != "":
		return "refs/tags/" + r.Tag, nil
	case r.Branch != "":
		return "refs/heads/" + r.Branch, nil
	default:
		return "", ErrMissingRef
	}
}

// FetchGit clones repoURL (using a shared bare mirror cached per host
// and repository), resolves ref to a commit, checks out a working tree
// verified against expectedHash (the tree's Dirhash), and returns the
// path to that cached, verified checkout.
func FetchGit(ctx context.Context, repoURL string, ref GitRef, expectedHash string) (string, error) {
	spec, err := ref.refspec()
	if err != nil {
		return "", err
	}
	want := normalizeDigest(expectedHash)
	if want == "" {
		return "", errors.New("fetch: expected hash must not be empty")
	}

	result, err, _ := gitGroup.Do(want, func() (any, error) {
		return fetchGitLocked(ctx, repoURL, spec, want)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func fetchGitLocked(ctx context.Context, repoURL, spec, want string) (string, error) {
	treeDir, err := gitTreeCacheDir()
	if err != nil {
		return "", err
	}
	finalPath := filepath.Join(treeDir, want)
	if st, err := os.Stat(finalPath); err == nil && st.IsDir() {
		actual, err := Dirhash(finalPath)
		if err != nil {
			return "", err
		}
		if actual != want {
			return "", &HashMismatchError{Source: repoURL, Expected: want, Actual: actual}
		}
		return finalPath, nil
	}

	mirror, err := mirrorPath(repoURL)
	if err != nil {
		return "", err
	}
	if err := syncMirror(ctx, repoURL, mirror); err != nil {
		return "", err
	}

	commit, err := resolveCommit(ctx, mirror, spec)
	if err != nil {
		return "", err
	}

	if err := ensureDir(treeDir); err != nil {
		return "", err
	}
	tmpDir, err := os.MkdirTemp(treeDir, ".checkout-*")
	if err != nil {
		return "", errors.Wrap(err, "fetch: create temp checkout dir")
	}
	defer os.RemoveAll(tmpDir)

	if err := checkoutInto(ctx, mirror, commit, tmpDir); err != nil {
		return "", err
	}

	actual, err := Dirhash(tmpDir)
	if err != nil {
		return "", err
	}
	if actual != want {
		return "", &HashMismatchError{Source: repoURL, Expected: want, Actual: actual}
	}

	if err := atomicWrite(tmpDir, finalPath); err != nil {
		return "", err
	}
	return finalPath, nil
}

// mirrorPath returns the bare-mirror path for repoURL, named
// "<host>-<reposlug>.git" the way the original fetcher lays them out.
func mirrorPath(repoURL string) (string, error) {
	dir, err := gitMirrorDir()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", errors.Wrapf(err, "fetch: parse git url %s", repoURL)
	}
	slug := strings.Trim(u.Path, "/")
	slug = strings.TrimSuffix(slug, ".git")
	slug = strings.ReplaceAll(slug, "/", "-")
	host := u.Hostname()
	if host == "" {
		host = "local"
	}
	return filepath.Join(dir, host+"-"+slug+".git"), nil
}

// syncMirror clones repoURL as a bare mirror if absent, otherwise fetches
// updates into the existing mirror. Access is serialized with an
// advisory flock so two tdx processes never race on the same mirror.
func syncMirror(ctx context.Context, repoURL, mirror string) error {
	if err := ensureDir(filepath.Dir(mirror)); err != nil {
		return err
	}
	lock, err := lockFile(mirror + ".lock")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if _, err := os.Stat(mirror); os.IsNotExist(err) {
		cmd := exec.CommandContext(ctx, "git", "clone", "--mirror", repoURL, mirror)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Wrapf(err, "fetch: git clone --mirror %s: %s", repoURL, out)
		}
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", "--git-dir", mirror, "fetch", "--prune", "origin", "+refs/*:refs/*")
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "fetch: git fetch %s: %s", repoURL, out)
	}
	return nil
}

func resolveCommit(ctx context.Context, mirror, spec string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "--git-dir", mirror, "rev-parse", spec)
	out, err := cmd.Output()
	if err != nil {
		return "", errors.Wrapf(err, "fetch: resolve ref %q in %s", spec, mirror)
	}
	return strings.TrimSpace(string(out)), nil
}

func checkoutInto(ctx context.Context, mirror, commit, dest string) error {
	cmd := exec.CommandContext(ctx, "git", "--git-dir", mirror, "--work-tree", dest, "checkout", commit, "--", ".")
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "fetch: checkout %s into %s: %s", commit, dest, out)
	}
	// `git checkout` with --work-tree doesn't clear files removed between
	// commits; each checkout lands in a fresh temp dir, so dest never
	// holds stale files here.
	return nil
}
