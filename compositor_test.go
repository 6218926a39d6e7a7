package main

import "testing"

func TestCompositorSessionReadyProducesFrame(t *testing.T) {
	var released []uintptr
	s := newCompositorSession(func(h uintptr) { released = append(released, h) })

	s.onStart(800, 600, 1)
	s.onObject(0, 0x42, 10, 0, 4)
	s.onReady(12345)

	f, reason, rearm, err := s.result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if rearm {
		t.Fatalf("ready path should not report rearm")
	}
	_ = reason
	if f == nil || f.width != 800 {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestCompositorSessionTemporaryCancelRearms(t *testing.T) {
	s := newCompositorSession(nil)
	s.onStart(800, 600, 1)
	s.onCancel(cancelTemporary)

	f, reason, rearm, err := s.result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if f != nil {
		t.Fatalf("cancel path must not produce a frame")
	}
	if !rearm || reason != cancelTemporary {
		t.Fatalf("expected rearm with temporary reason, got rearm=%v reason=%v", rearm, reason)
	}
}

func TestCompositorSessionPermanentCancelDoesNotRearmImplicitly(t *testing.T) {
	s := newCompositorSession(nil)
	s.onStart(800, 600, 1)
	s.onCancel(cancelPermanent)

	_, reason, rearm, err := s.result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if !rearm {
		t.Fatalf("result always reports that a cancel happened; caller decides whether to rearm")
	}
	if reason != cancelPermanent {
		t.Fatalf("reason = %v, want permanent", reason)
	}
}
