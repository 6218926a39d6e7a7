package main

import "fmt"

// frameReducer turns one captured frame into a single average-luma sample
// entirely on the GPU: a half-resolution blit followed by a mip cascade
// down to 1x1, the same blit-chain technique a renderer uses to read back
// its own framebuffer, generalized here from "render target" to "arbitrary
// imported external frame". Since frame dimensions never change for the
// life of a run, the mip-chain target images are allocated once, lazily,
// on the first call and reused for every later tick; only the imported
// source image (the compositor's own dmabuf, different every tick) is
// released at the end of each reduce call.
type frameReducer struct {
	dev gpuDevice

	chainW, chainH int
	chain          []gpuImage
}

func newFrameReducer(dev gpuDevice) *frameReducer {
	return &frameReducer{dev: dev}
}

// ensureChain lazily builds the mip-cascade target chain for width x
// height on the first call. A later call with different dimensions is
// rejected rather than silently rebuilt, since a resize mid-run is not
// expected to happen and would otherwise mask a real bug in the capture
// path as a silent reallocation.
func (r *frameReducer) ensureChain(width, height, levels int) error {
	if r.chain != nil {
		if width != r.chainW || height != r.chainH {
			return fmt.Errorf("reducer: frame size changed from %dx%d to %dx%d mid-run", r.chainW, r.chainH, width, height)
		}
		return nil
	}

	chain := make([]gpuImage, 0, levels)
	for level := 0; level < levels; level++ {
		w, h := mipExtent(width, height, level+1)
		img, err := r.dev.newTarget(w, h)
		if err != nil {
			for _, im := range chain {
				r.dev.release(im)
			}
			return fmt.Errorf("reducer: mip level %d alloc failed: %w", level, err)
		}
		chain = append(chain, img)
	}
	r.chain = chain
	r.chainW, r.chainH = width, height
	return nil
}

// close releases the cached mip chain. Call once at shutdown.
func (r *frameReducer) close() {
	for _, img := range r.chain {
		r.dev.release(img)
	}
	r.chain = nil
	r.chainW, r.chainH = 0, 0
}

// reduce imports f's first plane, blits it down through the cached mip
// cascade, and reads back the final 1x1 texel's HSP luma. The imported
// source image is released on every exit path, success or failure. On
// any failure it returns sentinelLuma rather than propagating a zero
// value that could be mistaken for a real reading.
func (r *frameReducer) reduce(f *frame) (int, error) {
	if f == nil || len(f.planes) == 0 {
		return sentinelLuma, fmt.Errorf("reducer: frame has no planes")
	}
	if f.width <= 0 || f.height <= 0 {
		return sentinelLuma, fmt.Errorf("reducer: invalid frame extent %dx%d", f.width, f.height)
	}

	levels := mipLevelsFor(f.width, f.height)
	if levels == 0 {
		return sentinelLuma, fmt.Errorf("reducer: degenerate frame extent %dx%d", f.width, f.height)
	}

	src, err := r.dev.importExternal(f.planes[0], f.width, f.height)
	if err != nil {
		return sentinelLuma, fmt.Errorf("reducer: import failed: %w", err)
	}
	defer r.dev.release(src)

	if err := r.ensureChain(f.width, f.height, levels); err != nil {
		return sentinelLuma, err
	}

	cur := src
	for level := 0; level < levels; level++ {
		dst := r.chain[level]
		if err := r.dev.blitHalf(dst, cur); err != nil {
			return sentinelLuma, fmt.Errorf("reducer: mip level %d blit failed: %w", level, err)
		}
		cur = dst
	}

	finalW, finalH := mipExtent(f.width, f.height, levels)
	if finalW != 1 || finalH != 1 {
		return sentinelLuma, fmt.Errorf("reducer: mip cascade ended at %dx%d, want 1x1", finalW, finalH)
	}

	red, green, blue, err := r.dev.readPixel(cur)
	if err != nil {
		return sentinelLuma, fmt.Errorf("reducer: readback failed: %w", err)
	}

	return lumaPercent(red, green, blue), nil
}
