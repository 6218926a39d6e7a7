package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataFilePathPrefersXDGDataHome(t *testing.T) {
	os.Setenv("XDG_DATA_HOME", "/tmp/xdgtest")
	defer os.Unsetenv("XDG_DATA_HOME")

	p, err := dataFilePath()
	if err != nil {
		t.Fatalf("dataFilePath: %v", err)
	}
	want := filepath.Join("/tmp/xdgtest", "wluma", "data")
	if p != want {
		t.Fatalf("dataFilePath = %q, want %q", p, want)
	}
}

func TestDataFilePathFallsBackToHome(t *testing.T) {
	os.Unsetenv("XDG_DATA_HOME")
	home := t.TempDir()
	os.Setenv("HOME", home)

	p, err := dataFilePath()
	if err != nil {
		t.Fatalf("dataFilePath: %v", err)
	}
	want := filepath.Join(home, ".local", "share", "wluma", "data")
	if p != want {
		t.Fatalf("dataFilePath = %q, want %q", p, want)
	}
}

func TestEnsureDataDirCreatesParentWithRestrictedMode(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "wluma", "data")
	if err := ensureDataDir(path); err != nil {
		t.Fatalf("ensureDataDir: %v", err)
	}
	info, err := os.Stat(filepath.Join(base, "wluma"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected directory")
	}
	if info.Mode().Perm() != 0700 {
		t.Fatalf("mode = %v, want 0700", info.Mode().Perm())
	}
}
