package main

import "time"

// backlightWriter is the narrow device surface the transition driver
// needs: write one raw value.
type backlightWriter interface {
	writeRaw(raw int) error
	maxRaw() int
}

// sleeper abstracts time.Sleep so tests don't have to wait on a real
// clock, and so the resume-on-signal pacing behavior can be exercised
// deterministically.
type sleeper interface {
	sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) sleep(d time.Duration) { time.Sleep(d) }

// driveTransition steps the backlight from current to target one
// percent at a time, pacing each write by floor(300/|target-current|)
// ms so the whole transition takes roughly 300ms regardless of
// distance. Each step writes step*maxRaw/100 (truncated integer
// division) to the device. It returns the first write error and stops
// at that step, without retrying or rolling back the steps already
// written; the caller then keeps the pre-transition value as
// backlightLast.
func driveTransition(dev backlightWriter, sl sleeper, current, target int) error {
	if current == target {
		return nil
	}

	step := 1
	if target < current {
		step = -1
	}
	distance := target - current
	if distance < 0 {
		distance = -distance
	}

	// When distance exceeds 300 this truncates to a zero duration, i.e.
	// the fastest possible steps for large jumps. That truncation is
	// preserved rather than guarded against.
	delay := time.Duration(300/distance) * time.Millisecond

	v := current
	for v != target {
		v += step
		raw := v * dev.maxRaw() / 100
		if err := dev.writeRaw(raw); err != nil {
			return err
		}
		if v != target {
			sleepResumable(sl, delay)
		}
	}
	return nil
}

// sleepResumable sleeps for d, resuming for the remainder if interrupted.
// time.Sleep on Go is itself immune to EINTR (it's implemented via the
// runtime timer, not a blocking syscall), so a single call already
// resumes any interrupted sleep for its remaining duration; this wrapper
// exists so the intent is explicit and the sleeper is swappable in
// tests.
func sleepResumable(sl sleeper, d time.Duration) {
	sl.sleep(d)
}
