package main

import "fmt"

// compositorBackend is the cgo-free seam between the frame-assembly state
// machine above and a real transport. A Linux build registers "wayland"
// (compositor_wayland.go, grounded on the zwlr_export_dmabuf_manager_v1
// protocol); the headless build registers a synthetic generator instead
// (compositor_headless.go) so the control loop runs without a compositor.
type compositorBackend interface {
	captureOnce(s *compositorSession) error
	Close()
}

var compositorBackends = map[string]func() (compositorBackend, error){}

func registerCompositorBackend(name string, ctor func() (compositorBackend, error)) {
	compositorBackends[name] = ctor
}

func newCompositorBackend() (compositorBackend, error) {
	for _, ctor := range compositorBackends {
		return ctor()
	}
	return nil, fmt.Errorf("compositor: no backend registered for this build")
}

// captureListener is the compositor frame capture protocol: four events
// per capture, delivered in order start, object×numObjects, then
// exactly one of ready or cancel. Implementations must register exactly
// one listener per capture and request the next capture only after
// ready or a temporary cancel (never after a permanent one).
type captureListener interface {
	onStart(width, height, numObjects int)
	onObject(index int, handle uintptr, size, offset, stride uint32)
	onReady(timestamp uint64)
	onCancel(reason cancelReason)
}

// compositorSession owns one display connection and the single listener
// that is live at any moment, and bridges its callbacks into a
// frameAssembler.
type compositorSession struct {
	assembler frameAssembler
	release   func(handle uintptr)

	pendingFrame *frame
	pendingErr   error
	cancelled    cancelReason
	gotCancel    bool
	gotReady     bool
}

func newCompositorSession(release func(handle uintptr)) *compositorSession {
	return &compositorSession{release: release}
}

func (s *compositorSession) onStart(width, height, numObjects int) {
	s.gotReady, s.gotCancel = false, false
	s.pendingFrame, s.pendingErr = nil, nil
	if err := s.assembler.start(width, height, numObjects, s.release); err != nil {
		s.pendingErr = err
	}
}

func (s *compositorSession) onObject(index int, handle uintptr, size, offset, stride uint32) {
	if s.pendingErr != nil {
		return
	}
	if err := s.assembler.object(index, handle, size, offset, stride); err != nil {
		s.pendingErr = err
	}
}

func (s *compositorSession) onReady(timestamp uint64) {
	s.gotReady = true
	if s.pendingErr != nil {
		return
	}
	f, err := s.assembler.ready()
	if err != nil {
		s.pendingErr = err
		return
	}
	s.pendingFrame = f
}

func (s *compositorSession) onCancel(reason cancelReason) {
	s.gotCancel = true
	s.cancelled = reason
	s.assembler.cancel()
}

// result drains the outcome of the capture that just completed a
// start/object*/ready-or-cancel cycle. Exactly one of (frame, error,
// "rearm") results: a ready frame, a propagated assembly error, or a
// cancellation the caller classifies by reason.
func (s *compositorSession) result() (*frame, cancelReason, bool, error) {
	switch {
	case s.gotCancel:
		return nil, s.cancelled, true, nil
	case s.pendingErr != nil:
		return nil, 0, false, s.pendingErr
	case s.gotReady:
		return s.pendingFrame, 0, false, nil
	default:
		return nil, 0, false, fmt.Errorf("compositor: result() called before capture completed")
	}
}
