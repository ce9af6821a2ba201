// SPDX-License-Identifier: MIT
package analysis

import "math"

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range the way mixing engineers usually
// talk about it. The top band ends at Nyquist.
func DefaultBands(sampleRate float64) []FrequencyBand {
	return []FrequencyBand{
		{Name: "sub", LowHz: 20, HighHz: 60},
		{Name: "bass", LowHz: 60, HighHz: 250},
		{Name: "lowMid", LowHz: 250, HighHz: 500},
		{Name: "mid", LowHz: 500, HighHz: 2000},
		{Name: "highMid", LowHz: 2000, HighHz: 4000},
		{Name: "treble", LowHz: 4000, HighHz: sampleRate / 2},
	}
}

// BandEnergy reduces a spectrum to one RMS magnitude per band, in [0, 1].
type BandEnergy struct {
	provider SpectrumProvider
	bands    []FrequencyBand
	// bandOf maps each bin to its band index, -1 for none.
	bandOf     []int
	magnitudes []float64
	energy     []float64
	counts     []int
}

func NewBandEnergy(provider SpectrumProvider, bands []FrequencyBand) *BandEnergy {
	if bands == nil {
		bands = DefaultBands(provider.SampleRate())
	}
	bins := provider.Bins()
	be := &BandEnergy{
		provider:   provider,
		bands:      bands,
		bandOf:     make([]int, bins),
		magnitudes: make([]float64, bins),
		energy:     make([]float64, len(bands)),
		counts:     make([]int, len(bands)),
	}
	for i := range bins {
		be.bandOf[i] = -1
		freq := provider.FrequencyForBin(i)
		for b, band := range bands {
			if freq >= band.LowHz && freq < band.HighHz {
				be.bandOf[i] = b
				break
			}
		}
	}
	return be
}

func (be *BandEnergy) Bands() []FrequencyBand { return be.bands }

// Compute writes the current band levels into out, keyed by band name.
func (be *BandEnergy) Compute(out map[string]float64) error {
	if err := be.provider.MagnitudesInto(be.magnitudes); err != nil {
		return err
	}
	clear(be.energy)
	clear(be.counts)
	for i, m := range be.magnitudes {
		if b := be.bandOf[i]; b >= 0 {
			be.energy[b] += m * m
			be.counts[b]++
		}
	}
	for b, band := range be.bands {
		level := 0.0
		if be.counts[b] > 0 {
			level = math.Sqrt(be.energy[b] / float64(be.counts[b]))
		}
		out[band.Name] = math.Min(1.0, level)
	}
	return nil
}
