package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func withCacheDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TDX_CACHE_DIR", dir)
	return dir
}

func TestFetchVerifiesAndCaches(t *testing.T) {
	withCacheDir(t)

	const body = "artifact contents"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	want, err := (func() (string, error) {
		tmp := filepath.Join(t.TempDir(), "ref")
		if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
			return "", err
		}
		return sha256File(tmp)
	})()
	if err != nil {
		t.Fatal(err)
	}

	path, err := Fetch(context.Background(), srv.URL, want)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Errorf("fetched content = %q, want %q", got, body)
	}

	// Second call should hit the cache without re-requesting.
	var hits int
	srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(body))
	})
	path2, err := Fetch(context.Background(), srv.URL, want)
	if err != nil {
		t.Fatalf("Fetch (cached): %v", err)
	}
	if path2 != path {
		t.Errorf("cached path = %q, want %q", path2, path)
	}
	if hits != 0 {
		t.Errorf("expected cache hit to avoid network, got %d requests", hits)
	}
}

func TestFetchRejectsHashMismatch(t *testing.T) {
	withCacheDir(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("actual content"))
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.URL, "0000000000000000000000000000000000000000000000000000000000000000")
	if err == nil {
		t.Fatal("expected hash mismatch error, got nil")
	}
	var mismatch *HashMismatchError
	if !errors.As(err, &mismatch) {
		t.Errorf("error = %v, want *HashMismatchError", err)
	}
}
