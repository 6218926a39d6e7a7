package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// memDeviceFile is an in-memory fileIO double standing in for the
// brightness sysfs attribute.
type memDeviceFile struct {
	content []byte
	pos     int64
	closed  bool
}

func (m *memDeviceFile) Seek(offset int64, whence int) (int64, error) {
	m.pos = 0
	return 0, nil
}

func (m *memDeviceFile) Read(b []byte) (int, error) {
	n := copy(b, m.content)
	return n, nil
}

func (m *memDeviceFile) Write(b []byte) (int, error) {
	m.content = append([]byte(nil), b...)
	return len(b), nil
}

func (m *memDeviceFile) Truncate(size int64) error {
	m.content = m.content[:0]
	return nil
}

func (m *memDeviceFile) Close() error {
	m.closed = true
	return nil
}

func setupBacklightDir(t *testing.T, max int) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "max_brightness"), []byte(strconv.Itoa(max)+"\n"), 0644); err != nil {
		t.Fatalf("write max_brightness: %v", err)
	}
	return dir
}

func TestOpenBacklightAtReadsMax(t *testing.T) {
	dir := setupBacklightDir(t, 255)
	mem := &memDeviceFile{content: []byte("128")}
	orig := openDeviceFile
	openDeviceFile = func(path string, flag int) (fileIO, error) { return mem, nil }
	defer func() { openDeviceFile = orig }()

	b, err := openBacklightAt(dir)
	if err != nil {
		t.Fatalf("openBacklightAt: %v", err)
	}
	if b.maxRaw() != 255 {
		t.Fatalf("maxRaw = %d, want 255", b.maxRaw())
	}
}

func TestSysfsBacklightWriteRawClampsToDeviceRange(t *testing.T) {
	dir := setupBacklightDir(t, 100)
	mem := &memDeviceFile{}
	orig := openDeviceFile
	openDeviceFile = func(path string, flag int) (fileIO, error) { return mem, nil }
	defer func() { openDeviceFile = orig }()

	b, err := openBacklightAt(dir)
	if err != nil {
		t.Fatalf("openBacklightAt: %v", err)
	}

	if err := b.writeRaw(-5); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
	if strings.TrimSpace(string(mem.content)) != "0" {
		t.Fatalf("content = %q, want clamped to 0", mem.content)
	}

	if err := b.writeRaw(500); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
	if strings.TrimSpace(string(mem.content)) != "100" {
		t.Fatalf("content = %q, want clamped to max 100", mem.content)
	}
}

func TestSysfsBacklightCurrentConvertsToPercent(t *testing.T) {
	dir := setupBacklightDir(t, 200)
	mem := &memDeviceFile{content: []byte("100")}
	orig := openDeviceFile
	openDeviceFile = func(path string, flag int) (fileIO, error) { return mem, nil }
	defer func() { openDeviceFile = orig }()

	b, err := openBacklightAt(dir)
	if err != nil {
		t.Fatalf("openBacklightAt: %v", err)
	}
	pct, err := b.current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if pct != 50 {
		t.Fatalf("current = %d, want 50", pct)
	}
}

func TestOpenBacklightAtRejectsMissingMaxBrightness(t *testing.T) {
	dir := t.TempDir()
	if _, err := openBacklightAt(dir); err == nil {
		t.Fatalf("expected error for missing max_brightness")
	}
}
