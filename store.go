package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// dataPoint is a recorded user preference: how bright the user chose the
// backlight under one (ambient lux, screen luma) situation. Identity is
// the (lux, luma) pair; it is never mutated after creation.
type dataPoint struct {
	lux       int
	luma      int
	backlight int
}

// store is the self-pruning set of dataPoints: every insertion removes
// any existing point the new one dominates, keeping only the Pareto
// frontier of observed (lux, luma, backlight) choices. A flat slice,
// filtered in place so surviving points keep their order, is used
// rather than a linked list, since the set stays small and pruning is
// O(n) either way.
type store struct {
	points   []dataPoint
	maxLux   int // MaxSeenLux, always >= 1
	filePath string
}

func newStore(filePath string) *store {
	return &store{maxLux: 1, filePath: filePath}
}

func (s *store) empty() bool {
	return len(s.points) == 0
}

// add inserts a new point and prunes every existing point it dominates,
// applying the six predicates below in order. The new point is never
// compared against itself.
func (s *store) add(lux, luma, backlight int) {
	n := dataPoint{lux: lux, luma: luma, backlight: backlight}

	kept := s.points[:0]
	for _, e := range s.points {
		if dominated(e, n) {
			continue
		}
		kept = append(kept, e)
	}
	s.points = append(kept, n)

	if lux > s.maxLux {
		s.maxLux = lux
	}
}

// dominated reports whether e must be removed because of the newly
// inserted point n, per the six predicates below.
func dominated(e, n dataPoint) bool {
	switch {
	case e.lux == n.lux && e.luma == n.luma: // 1: duplicate, new point wins
		return true
	case e.lux > n.lux && e.luma == n.luma: // 2
		return true
	case e.lux < n.lux && e.luma >= n.luma && e.backlight > n.backlight: // 3
		return true
	case e.lux == n.lux && e.luma < n.luma && e.backlight < n.backlight: // 4
		return true
	case e.lux > n.lux && e.luma <= n.luma && e.backlight < n.backlight: // 5
		return true
	case e.lux == n.lux && e.luma > n.luma && e.backlight > n.backlight: // 6
		return true
	default:
		return false
	}
}

// save rewrites the data file from scratch, one "lux luma backlight"
// record per line, in the store's current order. The file is truncated
// first and opened for synchronous writes so a crash mid-write never
// leaves a partial trailing record visible to the next load.
func (s *store) save() error {
	f, err := os.OpenFile(s.filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_SYNC, 0o600)
	if err != nil {
		return fmt.Errorf("store: open for save: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range s.points {
		if _, err := fmt.Fprintf(w, "%d %d %d\n", p.lux, p.luma, p.backlight); err != nil {
			return fmt.Errorf("store: write record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("store: flush: %w", err)
	}
	return f.Sync()
}

// load parses the same format, inserting every record without dominance
// pruning (a previously saved set is assumed already pruned), and raises
// MaxSeenLux to at least the largest lux seen, or 1 if the file is empty.
// A missing file is not an error: the store simply starts empty.
func (s *store) load() error {
	f, err := os.Open(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: open for load: %w", err)
	}
	defer f.Close()

	s.points = s.points[:0]
	s.maxLux = 1

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		var lux, luma, backlight int
		if _, err := fmt.Sscanf(line, "%d %d %d", &lux, &luma, &backlight); err != nil {
			return fmt.Errorf("store: parse record %q: %w", line, err)
		}
		s.points = append(s.points, dataPoint{lux: lux, luma: luma, backlight: backlight})
		if lux > s.maxLux {
			s.maxLux = lux
		}
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("store: scan: %w", err)
	}
	return nil
}
