// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"
	"sync"

	applog "jackconnector/internal/log"
	"jackconnector/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // Windowed input signal.
	fftOutput []complex128 // FFT complex results.
	magnitude []float64    // Smoothed magnitudes, guarded by mu.
	window    []float64    // Pre-calculated window coefficients.
	mu        sync.RWMutex
}

// Spectrum performs windowed FFT analysis of float32 sample blocks. Process
// and the readers may run on different goroutines.
type Spectrum struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	smoothing  float64 // 0 keeps only the newest block.
	norm       float64
	workspace  fftWorkspace
}

var _ SpectrumProvider = (*Spectrum)(nil)

// NewSpectrum builds an analyser for blocks of size samples. size must be a
// power of two. smoothing in [0, 1) blends each new spectrum with the
// previous one.
func NewSpectrum(size int, sampleRate float64, windowType WindowFunc, smoothing float64) (*Spectrum, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if smoothing < 0 || smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %f", smoothing)
	}

	coeffs := make([]float64, size)
	applyWindow(coeffs, windowType)

	// Scale so a full-scale sine on a bin centre reads as the window's
	// coherent gain rather than size/2.
	var sum float64
	for _, c := range coeffs {
		sum += c
	}

	// Real input gives N/2 + 1 complex values.
	bins := size/2 + 1

	applog.Debugf("analysis: spectrum size %d, sample rate %.1f Hz, window %v", size, sampleRate, windowType)

	return &Spectrum{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		smoothing:  smoothing,
		norm:       2 / sum,
		workspace: fftWorkspace{
			input:     make([]float64, size),
			fftOutput: make([]complex128, bins),
			magnitude: make([]float64, bins),
			window:    coeffs,
		},
	}, nil
}

// Process windows the block, zero-padding or truncating it to Size, and
// updates the magnitudes.
func (s *Spectrum) Process(samples []float32) {
	ws := &s.workspace
	for i := range s.size {
		if i < len(samples) {
			ws.input[i] = float64(samples[i]) * ws.window[i]
		} else {
			ws.input[i] = 0
		}
	}

	s.fft.Coefficients(ws.fftOutput, ws.input)

	ws.mu.Lock()
	for i, c := range ws.fftOutput {
		m := cmplx.Abs(c) * s.norm
		ws.magnitude[i] = s.smoothing*ws.magnitude[i] + (1-s.smoothing)*m
	}
	ws.mu.Unlock()
}

// Magnitudes allocates a copy; use MagnitudesInto on hot paths.
func (s *Spectrum) Magnitudes() []float64 {
	s.workspace.mu.RLock()
	defer s.workspace.mu.RUnlock()
	return append([]float64(nil), s.workspace.magnitude...)
}

// MagnitudesInto copies the latest magnitudes into dest, which must have
// exactly Bins() elements.
func (s *Spectrum) MagnitudesInto(dest []float64) error {
	s.workspace.mu.RLock()
	defer s.workspace.mu.RUnlock()

	if len(dest) != len(s.workspace.magnitude) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dest), len(s.workspace.magnitude))
	}
	copy(dest, s.workspace.magnitude)
	return nil
}

// FrequencyForBin returns 0 for an out of range bin.
func (s *Spectrum) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= len(s.workspace.fftOutput) {
		return 0.0
	}
	return float64(binIndex) * (s.sampleRate / float64(s.size))
}

func (s *Spectrum) Size() int           { return s.size }
func (s *Spectrum) Bins() int           { return s.size/2 + 1 }
func (s *Spectrum) SampleRate() float64 { return s.sampleRate }

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window, Hann for unknown types.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum window funcs scale their argument in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("analysis: unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}
