package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeIIODevice(t *testing.T, base, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for k, v := range files {
		if err := os.WriteFile(filepath.Join(dir, k), []byte(v), 0644); err != nil {
			t.Fatalf("write %s: %v", k, err)
		}
	}
	return dir
}

func TestOpenIlluminanceSensorFindsALSDevice(t *testing.T) {
	base := t.TempDir()
	writeIIODevice(t, base, "iio:device0", map[string]string{
		"name":              "accel\n",
		"in_illuminance_raw": "100",
	})
	writeIIODevice(t, base, "iio:device1", map[string]string{
		"name":                "als\n",
		"in_illuminance_raw":  "500",
		"in_illuminance_scale": "0.1",
	})

	os.Setenv("WLUMA_IIO_ROOT", base)
	defer os.Unsetenv("WLUMA_IIO_ROOT")

	s, err := openIlluminanceSensor()
	if err != nil {
		t.Fatalf("openIlluminanceSensor: %v", err)
	}
	if s.scale != 0.1 {
		t.Fatalf("scale = %v, want 0.1", s.scale)
	}
	if got := s.sense(); got != 50 {
		t.Fatalf("sense() = %d, want 50", got)
	}
}

func TestOpenIlluminanceSensorRejectsWhenNoneMatch(t *testing.T) {
	base := t.TempDir()
	writeIIODevice(t, base, "iio:device0", map[string]string{
		"name":               "accel\n",
		"in_illuminance_raw": "100",
	})
	os.Setenv("WLUMA_IIO_ROOT", base)
	defer os.Unsetenv("WLUMA_IIO_ROOT")

	if _, err := openIlluminanceSensor(); err == nil {
		t.Fatalf("expected error when no als device is present")
	}
}

func TestSenseAppliesOffsetAndScale(t *testing.T) {
	base := t.TempDir()
	dir := writeIIODevice(t, base, "iio:device0", map[string]string{
		"name":                 "als\n",
		"in_illuminance_raw":   "200",
		"in_illuminance_offset": "10",
		"in_illuminance_scale":  "2",
	})
	s, err := openIlluminanceAt(dir)
	if err != nil {
		t.Fatalf("openIlluminanceAt: %v", err)
	}
	if got := s.sense(); got != 420 {
		t.Fatalf("sense() = %d, want 420", got)
	}
}

func TestSenseReturnsZeroOnReadFailure(t *testing.T) {
	base := t.TempDir()
	dir := writeIIODevice(t, base, "iio:device0", map[string]string{
		"name":               "als\n",
		"in_illuminance_raw": "50",
	})
	s, err := openIlluminanceAt(dir)
	if err != nil {
		t.Fatalf("openIlluminanceAt: %v", err)
	}
	os.Remove(filepath.Join(dir, "in_illuminance_raw"))
	if got := s.sense(); got != 0 {
		t.Fatalf("sense() after removal = %d, want 0", got)
	}
}
