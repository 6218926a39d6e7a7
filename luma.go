package main

import "math"

// sentinelLuma is returned whenever a tick's reduction failed and no
// decision should be made from it.
const sentinelLuma = -1

// lumaPercent converts one RGB pixel to a perceptual luminance percentage
// in [0, 100] using the HSP color model. Intermediate squares are computed
// in double precision before the weighted sum.
func lumaPercent(r, g, b uint8) int {
	rf, gf, bf := float64(r), float64(g), float64(b)
	mix := 0.241*rf*rf + 0.691*gf*gf + 0.068*bf*bf
	pct := math.Sqrt(mix) / 255.0 * 100.0
	return int(math.Round(pct))
}
