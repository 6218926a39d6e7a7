//go:build headless

package main

import "fmt"

// headlessGPU stands in for vulkanDevice when no GPU is available. It
// performs the mip cascade against a synthetic constant-gray source
// instead of a real dmabuf import, so the control loop can run
// end-to-end in CI without Vulkan.
type headlessGPU struct {
	next   gpuImage
	extent map[gpuImage][2]int
}

func newHeadlessGPU() (*headlessGPU, error) {
	return &headlessGPU{extent: make(map[gpuImage][2]int)}, nil
}

func (h *headlessGPU) importExternal(p plane, width, height int) (gpuImage, error) {
	return h.alloc(width, height)
}

func (h *headlessGPU) newTarget(width, height int) (gpuImage, error) {
	return h.alloc(width, height)
}

func (h *headlessGPU) alloc(width, height int) (gpuImage, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("headless gpu: invalid extent %dx%d", width, height)
	}
	h.next++
	h.extent[h.next] = [2]int{width, height}
	return h.next, nil
}

func (h *headlessGPU) blitHalf(dst, src gpuImage) error {
	if _, ok := h.extent[dst]; !ok {
		return fmt.Errorf("headless gpu: unknown dst handle")
	}
	if _, ok := h.extent[src]; !ok {
		return fmt.Errorf("headless gpu: unknown src handle")
	}
	return nil
}

// readPixel always reports a mid-gray pixel; the headless backend exists
// to exercise the reducer's control flow, not to produce real readings.
func (h *headlessGPU) readPixel(img gpuImage) (uint8, uint8, uint8, error) {
	if _, ok := h.extent[img]; !ok {
		return 0, 0, 0, fmt.Errorf("headless gpu: unknown handle")
	}
	return 128, 128, 128, nil
}

func (h *headlessGPU) release(img gpuImage) {
	delete(h.extent, img)
}

func (h *headlessGPU) Close() {}

func newGPUDevice() (gpuDevice, func(), error) {
	d, err := newHeadlessGPU()
	if err != nil {
		return nil, nil, err
	}
	return d, d.Close, nil
}
