// SPDX-License-Identifier: MIT
package patch

import "time"

// Sweep is a stairway of frequencies: an oscillator that climbs from Min to
// Max by Step every Interval, then starts over at Min.
type Sweep struct {
	osc      *Oscillator
	min      float64
	max      float64
	step     float64
	interval int // samples between steps
	count    int
}

func NewSweep(w Waveform, sampleRate, min, max, step float64, interval time.Duration) *Sweep {
	samples := int(interval.Seconds() * sampleRate)
	if samples < 1 {
		samples = 1
	}
	return &Sweep{
		osc:      NewOscillator(w, sampleRate, min),
		min:      min,
		max:      max,
		step:     step,
		interval: samples,
	}
}

func (s *Sweep) Frequency() float64 { return s.osc.Frequency() }

func (s *Sweep) advance() {
	next := s.osc.Frequency() + s.step
	if next > s.max {
		next = s.min
	}
	s.osc.SetFrequency(next)
}

// Fill renders one period. At most one step happens per period, at the
// sample where the interval elapsed.
func (s *Sweep) Fill(buf []float32, gain float32) {
	stepAt := -1
	s.count += len(buf)
	if s.count >= s.interval {
		s.count -= s.interval
		stepAt = s.count
	}
	for i := range buf {
		if i == stepAt {
			s.advance()
		}
		buf[i] = s.osc.Next() * gain
	}
}
