package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const iioBusRoot = "/sys/bus/iio/devices"

// sysfsIlluminance is the ambient-light sensor read via the kernel's
// generic IIO sysfs ABI: discover the device by its "name" attribute,
// then poll its raw/scale/offset triple to compute lux.
type sysfsIlluminance struct {
	root   string
	scale  float64
	offset float64
}

// openIlluminanceSensor scans root (env WLUMA_IIO_ROOT overrides
// iioBusRoot) for the device whose name file reads exactly "als".
func openIlluminanceSensor() (*sysfsIlluminance, error) {
	root := iioBusRoot
	if v := os.Getenv("WLUMA_IIO_ROOT"); v != "" {
		root = v
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("illuminance: %w: %v", errDeviceMissing, err)
	}
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		name, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(name)) != "als" {
			continue
		}
		return openIlluminanceAt(dir)
	}
	return nil, fmt.Errorf("illuminance: %w: no device named \"als\" under %s", errDeviceMissing, root)
}

func openIlluminanceAt(dir string) (*sysfsIlluminance, error) {
	s := &sysfsIlluminance{root: dir, scale: 1.0, offset: 0.0}
	if v, ok := readIIOFloat(dir, "in_illuminance_scale"); ok {
		s.scale = v
	}
	if v, ok := readIIOFloat(dir, "in_illuminance_offset"); ok {
		s.offset = v
	}
	// in_illuminance_raw must exist; probe it once so a missing sensor
	// fails at startup rather than silently on the first tick.
	if _, err := os.ReadFile(filepath.Join(dir, "in_illuminance_raw")); err != nil {
		return nil, fmt.Errorf("illuminance: %w: %v", errDeviceMissing, err)
	}
	return s, nil
}

func readIIOFloat(dir, name string) (float64, bool) {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// sense reads a fresh lux value. A read or parse failure is not reported
// to the caller: it yields lux 0, which the calling tick cannot tell
// apart from a real reading of 0 lux and smooths in like any other
// sample.
func (s *sysfsIlluminance) sense() int {
	b, err := os.ReadFile(filepath.Join(s.root, "in_illuminance_raw"))
	if err != nil {
		return 0
	}
	raw, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0
	}
	lux := (raw + s.offset) * s.scale
	return int(lux + 0.5)
}
