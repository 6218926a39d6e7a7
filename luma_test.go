package main

import "testing"

func TestLumaPercentBounds(t *testing.T) {
	if got := lumaPercent(0, 0, 0); got != 0 {
		t.Errorf("luma(0,0,0) = %d, want 0", got)
	}
	if got := lumaPercent(255, 255, 255); got != 100 {
		t.Errorf("luma(255,255,255) = %d, want 100", got)
	}
}

func TestLumaPercentChannelWeights(t *testing.T) {
	// Green is weighted far higher than blue in the HSP model, so a
	// pure-green pixel must read brighter than a pure-blue one.
	green := lumaPercent(0, 255, 0)
	blue := lumaPercent(0, 0, 255)
	if green <= blue {
		t.Errorf("luma(green)=%d should exceed luma(blue)=%d", green, blue)
	}
}

func TestLumaPercentRange(t *testing.T) {
	for r := 0; r <= 255; r += 17 {
		for g := 0; g <= 255; g += 17 {
			for b := 0; b <= 255; b += 17 {
				got := lumaPercent(uint8(r), uint8(g), uint8(b))
				if got < 0 || got > 100 {
					t.Fatalf("luma(%d,%d,%d) = %d out of [0,100]", r, g, b, got)
				}
			}
		}
	}
}
