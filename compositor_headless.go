//go:build headless

package main

// headlessCompositor stands in for a real Wayland session when no
// compositor is available (CI, development). It manufactures a
// deterministic single-plane frame on every capture instead of talking
// to zwlr_export_dmabuf_manager_v1.
type headlessCompositor struct{}

func init() {
	registerCompositorBackend("headless", newHeadlessCompositor)
}

func newHeadlessCompositor() (compositorBackend, error) {
	return &headlessCompositor{}, nil
}

func (h *headlessCompositor) captureOnce(s *compositorSession) error {
	s.onStart(64, 64, 1)
	s.onObject(0, 0, 64*64*4, 0, 64*4)
	s.onReady(0)
	return nil
}

func (h *headlessCompositor) Close() {}
