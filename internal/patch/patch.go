// SPDX-License-Identifier: MIT

// Package patch holds the consumers the CLI can bind to a client: capture
// forwarding and a few signal generators.
package patch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"jackconnector/internal/audio"
	"jackconnector/internal/config"
)

var (
	ErrUnknownPatch    = errors.New("unknown patch")
	ErrUnknownWaveform = errors.New("unknown waveform")
	ErrBadRoute        = errors.New("invalid route")
	ErrBadSweep        = errors.New("invalid sweep")
)

// Names lists the patches New understands.
var Names = []string{"forward", "sine", "noise", "sweep", "silence"}

// filler renders one period of a generator.
type filler interface {
	Fill(buf []float32, gain float32)
}

// generator writes the same signal to every output port.
type generator struct {
	src     filler
	outputs []string
	gain    float32
	buf     []float32
	resp    audio.PeriodResponse
}

func newGenerator(src filler, outputs []string, gain float32) *generator {
	return &generator{
		src:     src,
		outputs: outputs,
		gain:    gain,
		resp:    make(audio.PeriodResponse, len(outputs)),
	}
}

func (g *generator) Process(req audio.PeriodRequest) (audio.PeriodResponse, error) {
	if cap(g.buf) < req.Frames {
		g.buf = make([]float32, req.Frames)
	}
	buf := g.buf[:req.Frames]
	g.src.Fill(buf, g.gain)
	for _, name := range g.outputs {
		g.resp[name] = buf
	}
	return g.resp, nil
}

// New builds the consumer named by cfg.Name for the given port short names.
func New(cfg config.PatchConfig, sampleRate int, inputs, outputs []string) (audio.ProcessFunc, error) {
	gain := float32(cfg.Gain)
	sr := float64(sampleRate)
	if sampleRate <= 0 {
		return nil, fmt.Errorf("patch %q: sample rate %d", cfg.Name, sampleRate)
	}

	switch strings.ToLower(cfg.Name) {
	case "forward", "":
		f, err := NewForward(cfg.Routes, inputs, outputs, gain)
		if err != nil {
			return nil, err
		}
		return f.Process, nil

	case "sine", "tone":
		w, err := ParseWaveform(cfg.Waveform)
		if err != nil {
			return nil, err
		}
		if cfg.Frequency <= 0 || cfg.Frequency >= sr/2 {
			return nil, fmt.Errorf("patch %q: frequency %.1f Hz outside (0, %.0f)", cfg.Name, cfg.Frequency, sr/2)
		}
		return newGenerator(NewOscillator(w, sr, cfg.Frequency), outputs, gain).Process, nil

	case "noise":
		return newGenerator(NewNoise(uint64(time.Now().UnixNano())), outputs, gain).Process, nil

	case "sweep", "stairway":
		w, err := ParseWaveform(cfg.Waveform)
		if err != nil {
			return nil, err
		}
		if cfg.SweepMin <= 0 || cfg.SweepMax < cfg.SweepMin || cfg.SweepStep <= 0 || cfg.SweepInterval <= 0 {
			return nil, fmt.Errorf("%w: min %.1f max %.1f step %.1f every %s",
				ErrBadSweep, cfg.SweepMin, cfg.SweepMax, cfg.SweepStep, cfg.SweepInterval)
		}
		s := NewSweep(w, sr, cfg.SweepMin, cfg.SweepMax, cfg.SweepStep, cfg.SweepInterval)
		return newGenerator(s, outputs, gain).Process, nil

	case "silence":
		return func(audio.PeriodRequest) (audio.PeriodResponse, error) { return nil, nil }, nil
	}
	return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownPatch, cfg.Name, strings.Join(Names, ", "))
}
