package main

import (
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func sortedPoints(s *store) []dataPoint {
	out := append([]dataPoint(nil), s.points...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].lux != out[j].lux {
			return out[i].lux < out[j].lux
		}
		return out[i].luma < out[j].luma
	})
	return out
}

func TestStoreAddDuplicateLuxLumaKeepsLatest(t *testing.T) {
	s := newStore("")
	s.add(100, 40, 30)
	s.add(100, 40, 70)

	got := sortedPoints(s)
	want := []dataPoint{{100, 40, 70}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStoreAddPredicate3RemovesDominatedPoint(t *testing.T) {
	s := newStore("")
	s.add(100, 60, 70)
	s.add(200, 60, 40)

	got := sortedPoints(s)
	want := []dataPoint{{200, 60, 40}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStoreInvariantsHoldAfterRandomInserts(t *testing.T) {
	s := newStore("")
	inserts := []dataPoint{
		{10, 50, 50}, {20, 50, 40}, {10, 60, 60}, {30, 40, 20},
		{10, 50, 55}, {5, 70, 90}, {40, 30, 10},
	}
	for _, p := range inserts {
		s.add(p.lux, p.luma, p.backlight)
	}
	assertStoreInvariants(t, s)
}

func assertStoreInvariants(t *testing.T, s *store) {
	t.Helper()
	pts := s.points
	for i := range pts {
		for j := range pts {
			if i == j {
				continue
			}
			a, b := pts[i], pts[j]
			if a.lux == b.lux && a.luma == b.luma {
				t.Fatalf("duplicate (lux,luma) survived: %v and %v", a, b)
			}
			if a.lux == b.lux && a.luma < b.luma && a.backlight > b.backlight {
				t.Fatalf("luma monotonicity violated at fixed lux: %v then %v", a, b)
			}
			if a.luma == b.luma && a.lux < b.lux && a.backlight < b.backlight {
				t.Fatalf("lux monotonicity violated at fixed luma: %v then %v", a, b)
			}
		}
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")

	s1 := newStore(path)
	s1.add(10, 20, 30)
	s1.add(100, 5, 90)
	s1.add(50, 50, 50)
	if err := s1.save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	s2 := newStore(path)
	if err := s2.load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	got := sortedPoints(s2)
	want := sortedPoints(s1)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, want)
	}
	if s2.maxLux < 100 {
		t.Errorf("maxLux = %d, want >= 100", s2.maxLux)
	}
}

func TestStoreLoadMissingFileIsEmpty(t *testing.T) {
	s := newStore(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := s.load(); err != nil {
		t.Fatalf("load of missing file returned error: %v", err)
	}
	if !s.empty() {
		t.Fatalf("expected empty store")
	}
	if s.maxLux != 1 {
		t.Errorf("maxLux = %d, want 1", s.maxLux)
	}
}
