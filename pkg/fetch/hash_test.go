package fetch

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirhashDeterministic(t *testing.T) {
	dir1 := t.TempDir()
	writeFile(t, filepath.Join(dir1, "a.txt"), "hello")
	writeFile(t, filepath.Join(dir1, "sub", "b.txt"), "world")

	dir2 := t.TempDir()
	writeFile(t, filepath.Join(dir2, "sub", "b.txt"), "world")
	writeFile(t, filepath.Join(dir2, "a.txt"), "hello")

	h1, err := Dirhash(dir1)
	if err != nil {
		t.Fatalf("Dirhash(dir1): %v", err)
	}
	h2, err := Dirhash(dir2)
	if err != nil {
		t.Fatalf("Dirhash(dir2): %v", err)
	}
	if h1 != h2 {
		t.Errorf("Dirhash differs for identical trees written in different orders: %s != %s", h1, h2)
	}
}

func TestDirhashIgnoresGitComponents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	before, err := Dirhash(dir)
	if err != nil {
		t.Fatalf("Dirhash before: %v", err)
	}

	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(dir, ".gitignore"), "*.log")

	after, err := Dirhash(dir)
	if err != nil {
		t.Fatalf("Dirhash after: %v", err)
	}
	if before != after {
		t.Errorf("Dirhash changed after adding .git content: %s != %s", before, after)
	}
}

func TestDirhashSensitiveToContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	h1, _ := Dirhash(dir)

	writeFile(t, filepath.Join(dir, "a.txt"), "goodbye")
	h2, _ := Dirhash(dir)

	if h1 == h2 {
		t.Error("Dirhash did not change after file content changed")
	}
}

func TestHashOfMatchesSha256sum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	writeFile(t, path, "the quick brown fox")

	got, err := HashOf(path)
	if err != nil {
		t.Fatalf("HashOf: %v", err)
	}
	if len(got) < len("sha256:") || got[:7] != "sha256:" {
		t.Errorf("HashOf = %q, want sha256:<hex> prefix", got)
	}
	// sha256sum of the bytes "the quick brown fox" (no trailing newline).
	const want = "sha256:9ecb36561341d18eb65484e833efea61edc74b84cf5e6ae1b81c63533e25fc8f"
	if got != want {
		t.Errorf("HashOf = %q, want %q", got, want)
	}

	got2, err := HashOf(path)
	if err != nil {
		t.Fatalf("HashOf (again): %v", err)
	}
	if got != got2 {
		t.Errorf("HashOf not deterministic: %s != %s", got, got2)
	}
}
