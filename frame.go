package main

import "fmt"

// plane is one per-plane descriptor of a captured GPU frame: an external
// buffer handle shared by the compositor, its size, and the layout
// parameters needed to interpret it.
type plane struct {
	handle uintptr
	size   uint32
	offset uint32
	stride uint32
}

// frame is the transient descriptor of one captured GPU frame. Only
// plane 0 is read by the frame reducer; the others are tracked purely
// so their handles can be released when the frame is freed.
type frame struct {
	width, height int
	planes        []plane

	release func(handle uintptr)
}

// free releases every plane handle this frame owns; a slot still holding
// the zero handle was never filled and is skipped. Safe to call once;
// a frame must never be read from after free.
func (f *frame) free() {
	if f.release == nil {
		return
	}
	for _, p := range f.planes {
		if p.handle == 0 {
			continue
		}
		f.release(p.handle)
	}
	f.planes = nil
}

// assemblyState names the states of the capture protocol's handshake:
// Awaiting-start, Collecting-objects(k/n), Ready.
type assemblyState int

const (
	assemblyAwaitingStart assemblyState = iota
	assemblyCollecting
	assemblyReady
)

// frameAssembler turns the compositor's four callbacks (start, object,
// ready, cancel) into a completed frame by modeling the handshake as an
// explicit state machine instead of threading state through the
// callback closures directly. It has no cgo dependency, so it is
// unit-tested without a real compositor.
type frameAssembler struct {
	state     assemblyState
	current   *frame
	wantSlots int
	filled    int
}

// start begins assembling a new frame. Any frame already in progress is
// discarded (the compositor contract never starts a new capture without
// cancelling or completing the previous one, but discarding defensively
// avoids leaking state into a misbehaving sequence).
func (a *frameAssembler) start(width, height, numObjects int, release func(uintptr)) error {
	if numObjects < 1 || numObjects > 4 {
		return fmt.Errorf("frame: invalid plane count %d", numObjects)
	}
	a.current = &frame{
		width:   width,
		height:  height,
		planes:  make([]plane, numObjects),
		release: release,
	}
	a.wantSlots = numObjects
	a.filled = 0
	a.state = assemblyCollecting
	return nil
}

// object fills one plane slot. index must be in [0, numObjects).
func (a *frameAssembler) object(index int, handle uintptr, size, offset, stride uint32) error {
	if a.state != assemblyCollecting {
		return fmt.Errorf("frame: object() called outside Collecting state")
	}
	if index < 0 || index >= a.wantSlots {
		return fmt.Errorf("frame: object index %d out of range [0,%d)", index, a.wantSlots)
	}
	a.current.planes[index] = plane{handle: handle, size: size, offset: offset, stride: stride}
	a.filled++
	if a.filled == a.wantSlots {
		a.state = assemblyReady
	}
	return nil
}

// ready returns the completed frame and resets the assembler to
// Awaiting-start. Must only be called when the state is Ready.
func (a *frameAssembler) ready() (*frame, error) {
	if a.state != assemblyReady {
		return nil, fmt.Errorf("frame: ready() called before all planes were collected")
	}
	f := a.current
	a.current = nil
	a.state = assemblyAwaitingStart
	return f, nil
}

// cancel aborts any in-progress assembly, releasing whatever plane
// handles had already been collected, and resets to Awaiting-start.
func (a *frameAssembler) cancel() {
	if a.current != nil {
		a.current.free()
	}
	a.current = nil
	a.wantSlots = 0
	a.filled = 0
	a.state = assemblyAwaitingStart
}
