// SPDX-License-Identifier: MIT
package patch

import (
	"fmt"
	"math"
	"strings"
)

const twoPi = 2 * math.Pi

// Waveform selects the shape an Oscillator produces.
type Waveform int

const (
	Sine Waveform = iota
	Saw
	Square
	Triangle
)

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Saw:
		return "saw"
	case Square:
		return "square"
	case Triangle:
		return "triangle"
	default:
		return "unknown"
	}
}

// ParseWaveform accepts the waveform name, case-insensitively.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sine", "sin", "":
		return Sine, nil
	case "saw", "sawtooth":
		return Saw, nil
	case "square":
		return Square, nil
	case "triangle", "tri":
		return Triangle, nil
	}
	return Sine, fmt.Errorf("%w: %q", ErrUnknownWaveform, s)
}

// Oscillator is a phase accumulator. It is not safe for concurrent use; the
// bridge never calls a consumer concurrently.
type Oscillator struct {
	waveform   Waveform
	sampleRate float64
	frequency  float64
	phase      float64
	inc        float64
}

func NewOscillator(w Waveform, sampleRate, frequency float64) *Oscillator {
	o := &Oscillator{waveform: w, sampleRate: sampleRate}
	o.SetFrequency(frequency)
	return o
}

// SetFrequency changes pitch without resetting the phase.
func (o *Oscillator) SetFrequency(hz float64) {
	o.frequency = hz
	o.inc = twoPi * hz / o.sampleRate
}

func (o *Oscillator) Frequency() float64 { return o.frequency }

// Next returns one sample in [-1, 1] and advances the phase.
func (o *Oscillator) Next() float32 {
	var v float64
	switch o.waveform {
	case Sine:
		v = math.Sin(o.phase)
	case Saw:
		v = 1 - 2*o.phase/twoPi
	case Square:
		if o.phase <= math.Pi {
			v = 1
		} else {
			v = -1
		}
	case Triangle:
		v = 2 * (math.Abs(-1+2*o.phase/twoPi) - 0.5)
	}

	o.phase += o.inc
	for o.phase >= twoPi {
		o.phase -= twoPi
	}
	return float32(v)
}

// Fill writes len(buf) consecutive samples scaled by gain.
func (o *Oscillator) Fill(buf []float32, gain float32) {
	for i := range buf {
		buf[i] = o.Next() * gain
	}
}
