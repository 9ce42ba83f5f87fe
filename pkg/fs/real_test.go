package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRealExists(t *testing.T) {
	t.Parallel()

	fsys := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	exists, err := fsys.Exists(path)
	if err != nil {
		t.Fatal(err)
	}

	if exists {
		t.Error("file should not exist yet")
	}

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	exists, err = fsys.Exists(path)
	if err != nil {
		t.Fatal(err)
	}

	if !exists {
		t.Error("file should exist")
	}
}

func TestRealRenameReplacesDestination(t *testing.T) {
	t.Parallel()

	fsys := NewReal()
	dir := t.TempDir()

	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := fsys.Rename(src, dst); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "new" {
		t.Errorf("destination = %q, want %q", data, "new")
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source should be gone, stat returned %v", err)
	}
}

func TestRealChtimes(t *testing.T) {
	t.Parallel()

	fsys := NewReal()
	path := filepath.Join(t.TempDir(), "file.txt")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	want := time.Now().Add(-2 * time.Hour).Truncate(time.Second)

	if err := fsys.Chtimes(path, want, want); err != nil {
		t.Fatal(err)
	}

	info, err := fsys.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if !info.ModTime().Truncate(time.Second).Equal(want) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), want)
	}
}
