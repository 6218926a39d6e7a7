package main

import "math/bits"

// gpuImage is an opaque handle into a gpuDevice's own image pool. The
// Frame Reducer never inspects its value, only passes it back to the
// device that issued it.
type gpuImage uint64

// gpuDevice is the seam between the Frame Reducer's mip-cascade algorithm
// (reducer.go) and a real GPU backend. gpu_vulkan.go implements it against
// github.com/goki/vulkan; gpu_headless.go implements it in plain Go so the
// reducer is unit-testable without a GPU or display server attached.
type gpuDevice interface {
	// importExternal wraps one captured dmabuf plane as a sampled source
	// image without a copy.
	importExternal(p plane, width, height int) (gpuImage, error)

	// newTarget allocates a blit destination of the given size.
	newTarget(width, height int) (gpuImage, error)

	// blitHalf downsamples src into dst with linear filtering. dst must
	// be exactly half of src's extent in both dimensions (or 1, at the
	// base of the mip cascade).
	blitHalf(dst, src gpuImage) error

	// readPixel reads back the single texel of a 1x1 image as 8-bit
	// RGB, blocking until the GPU work that produced it has completed.
	readPixel(img gpuImage) (r, g, b uint8, err error)

	// release returns an image to the device's pool.
	release(img gpuImage)
}

// mipLevelsFor returns the depth of the mip cascade used to reduce a
// width×height image down to a single average pixel: floor(log2(longest
// side)), clamped to at least 1 so even a source no larger than 2x2
// still gets one halving blit.
func mipLevelsFor(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	longest := width
	if height > longest {
		longest = height
	}
	levels := bits.Len(uint(longest)) - 1
	if levels < 1 {
		levels = 1
	}
	return levels
}

// mipExtent computes the width/height of the n-th mip level (0-indexed,
// level 0 being the source), each level floor-halving the previous and
// never going below 1.
func mipExtent(width, height, level int) (int, int) {
	w, h := width, height
	for i := 0; i < level; i++ {
		if w > 1 {
			w /= 2
		}
		if h > 1 {
			h /= 2
		}
	}
	return w, h
}
