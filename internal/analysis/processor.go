// SPDX-License-Identifier: MIT

// Package analysis watches one capture port off the consumer path and turns
// its samples into level, spectrum and band energy frames for a transport.
package analysis

// SpectrumProvider exposes the latest FFT magnitudes. It decouples readers
// such as BandEnergy and the UDP publisher from the Spectrum implementation.
type SpectrumProvider interface {
	Magnitudes() []float64                // Magnitudes returns a copy of the latest spectrum.
	MagnitudesInto(dest []float64) error  // MagnitudesInto copies without allocating.
	FrequencyForBin(binIndex int) float64 // FrequencyForBin returns the bin centre frequency (Hz).
	Bins() int                            // Bins is Size()/2 + 1.
	SampleRate() float64                  // SampleRate used for the analysis.
}

// Frame is one monitor update as sent to transports.
type Frame struct {
	Type  string             `json:"type" msgpack:"type"`
	Seq   uint64             `json:"seq" msgpack:"seq"`
	Port  string             `json:"port" msgpack:"port"`
	RMS   float64            `json:"rms" msgpack:"rms"`
	Peak  float64            `json:"peak" msgpack:"peak"`
	Bands map[string]float64 `json:"bands,omitempty" msgpack:"bands,omitempty"`
}

// Frame types.
const (
	FrameLevel = "level"
	FrameOnset = "onset"
)
