package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var fetchGroup singleflight.Group

// Fetch downloads url, verifies its sha256 digest against expectedHash
// (either bare hex or "sha256:<hex>"), and returns the path to the
// cached, verified file. Concurrent calls for the same expectedHash
// within one process are deduplicated; across processes, the atomic
// rename into the cache makes the final result race-safe even if two
// processes fetch the same artifact at once.
func Fetch(ctx context.Context, url, expectedHash string) (string, error) {
	want := normalizeDigest(expectedHash)
	if want == "" {
		return "", errors.New("fetch: expected hash must not be empty")
	}

	result, err, _ := fetchGroup.Do(want, func() (any, error) {
		return fetchLocked(ctx, url, want)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func fetchLocked(ctx context.Context, url, want string) (string, error) {
	cacheDir, err := blobCacheDir()
	if err != nil {
		return "", err
	}
	finalPath := filepath.Join(cacheDir, want)

	if _, err := os.Stat(finalPath); err == nil {
		actual, err := sha256File(finalPath)
		if err != nil {
			return "", err
		}
		if actual != want {
			return "", &HashMismatchError{Source: url, Expected: want, Actual: actual}
		}
		return finalPath, nil
	}

	if err := ensureDir(cacheDir); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(cacheDir, ".download-*")
	if err != nil {
		return "", errors.Wrap(err, "fetch: create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	client := NewRetryableHTTPClient()
	err = RetryWithBackoff(ctx, client.Config, func(ctx context.Context, attempt int) error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := tmp.Truncate(0); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if IsHTTPRetryable(resp.StatusCode) {
			return &retryableStatusError{statusCode: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("fetch: %s: unexpected status %d", url, resp.StatusCode)
		}
		_, err = io.Copy(tmp, resp.Body)
		return err
	})
	tmp.Close()
	if err != nil {
		return "", errors.Wrapf(ErrFetchFailed, "%s: %v", url, err)
	}

	actual, err := sha256File(tmpPath)
	if err != nil {
		return "", err
	}
	if actual != want {
		return "", &HashMismatchError{Source: url, Expected: want, Actual: actual}
	}

	if err := atomicWrite(tmpPath, finalPath); err != nil {
		return "", err
	}
	return finalPath, nil
}
