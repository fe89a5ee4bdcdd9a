package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRootDirUsesXDGDataHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	root, err := DefaultRootDir("codequal-test")
	if err != nil {
		t.Fatalf("DefaultRootDir: %v", err)
	}
	want := filepath.Join(dir, "codequal-test")
	if root != want {
		t.Fatalf("root = %q, want %q", root, want)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("expected root dir to exist, stat err=%v", err)
	}
	if RootDir != root {
		t.Fatalf("RootDir global = %q, want %q", RootDir, root)
	}
}

func TestDefaultRootDirFallsBackToHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)

	root, err := DefaultRootDir("codequal-test")
	if err != nil {
		t.Fatalf("DefaultRootDir: %v", err)
	}
	want := filepath.Join(home, ".codequal-test")
	if root != want {
		t.Fatalf("root = %q, want %q", root, want)
	}
}

func TestSubdirCreatesNestedDirectory(t *testing.T) {
	root := t.TempDir()
	path, err := Subdir(root, "cache")
	if err != nil {
		t.Fatalf("Subdir: %v", err)
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		t.Fatalf("expected subdir to exist, stat err=%v", err)
	}
	if path != filepath.Join(root, "cache") {
		t.Fatalf("path = %q, want %q", path, filepath.Join(root, "cache"))
	}
}

func TestSubdirFailsWhenRootMissing(t *testing.T) {
	if _, err := Subdir(filepath.Join(t.TempDir(), "missing"), "cache"); err == nil {
		t.Fatal("expected error for missing root")
	}
}
