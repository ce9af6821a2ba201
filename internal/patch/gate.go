// SPDX-License-Identifier: MIT
package patch

import (
	"math"
	"sync/atomic"

	"jackconnector/internal/audio"
)

// Gate silences every capture buffer for a period whose peak stays at or
// below the threshold. It sits in front of a consumer as a middleware.
type Gate struct {
	enabled   atomic.Bool
	threshold atomic.Uint32 // float32 bits

	zeros  []float32
	gated  map[string][]float32
	closed atomic.Uint64
}

func NewGate(threshold float64) *Gate {
	g := &Gate{gated: make(map[string][]float32)}
	g.SetThreshold(threshold)
	g.Enable()
	return g
}

func (g *Gate) Enable()  { g.enabled.Store(true) }
func (g *Gate) Disable() { g.enabled.Store(false) }

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold.Store(math.Float32bits(float32(threshold)))
}

// Threshold returns the current gate threshold in the range 0.0-1.0.
func (g *Gate) Threshold() float64 {
	return float64(math.Float32frombits(g.threshold.Load()))
}

// Closed reports how many periods the gate has silenced.
func (g *Gate) Closed() uint64 { return g.closed.Load() }

func (g *Gate) Middleware(next audio.ProcessFunc) audio.ProcessFunc {
	return func(req audio.PeriodRequest) (audio.PeriodResponse, error) {
		if !g.enabled.Load() || len(req.Capture) == 0 {
			return next(req)
		}
		limit := math.Float32frombits(g.threshold.Load())
		if limit < 1 && peak(req.Capture) > limit {
			return next(req)
		}

		g.closed.Add(1)
		if cap(g.zeros) < req.Frames {
			g.zeros = make([]float32, req.Frames)
		}
		zeros := g.zeros[:req.Frames]
		clear(g.gated)
		for name := range req.Capture {
			g.gated[name] = zeros
		}
		req.Capture = g.gated
		return next(req)
	}
}

func peak(capture map[string][]float32) float32 {
	var p float32
	for _, buf := range capture {
		for _, s := range buf {
			if s < 0 {
				s = -s
			}
			if s > p {
				p = s
			}
		}
	}
	return p
}
