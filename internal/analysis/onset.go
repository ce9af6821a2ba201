// SPDX-License-Identifier: MIT
package analysis

import "math"

// OnsetDetector flags sudden level increases such as drum hits.
type OnsetDetector struct {
	threshold      float64 // Minimum RMS to consider.
	minEnergyRatio float64 // Required increase over the previous block.
	lastEnergy     float64
}

func NewOnsetDetector(threshold, minEnergyRatio float64) *OnsetDetector {
	return &OnsetDetector{threshold: threshold, minEnergyRatio: minEnergyRatio}
}

// Detect consumes the RMS of the next block.
func (d *OnsetDetector) Detect(rms float64) bool {
	hit := rms > d.threshold && (d.lastEnergy == 0 || rms/d.lastEnergy > d.minEnergyRatio)
	d.lastEnergy = rms
	return hit
}

// levels returns RMS and absolute peak of a block.
func levels(buf []float32) (rms, peak float64) {
	if len(buf) == 0 {
		return 0, 0
	}
	var sumSquare float64
	for _, s := range buf {
		v := float64(s)
		sumSquare += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return math.Sqrt(sumSquare / float64(len(buf))), peak
}
