// SPDX-License-Identifier: MIT

// Package utils holds signal generators and transport doubles shared by tests.
package utils

import (
	"math"
	"sync"
)

// MockTransport implements transport.Transport for testing. Every value sent
// is kept and also offered on Sent when a reader is waiting.
type MockTransport struct {
	mu     sync.Mutex
	data   []any
	closed bool

	Sent chan any
}

func NewMockTransport() *MockTransport {
	return &MockTransport{Sent: make(chan any, 64)}
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	m.data = append(m.data, data)
	m.mu.Unlock()
	if m.Sent != nil {
		select {
		case m.Sent <- data:
		default:
		}
	}
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// All returns a copy of everything sent so far.
func (m *MockTransport) All() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.data...)
}

func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateComplexWave is a 440 Hz fundamental with two harmonics, peaking
// below full scale.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * 0.9)
	}
	return buffer
}

func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
