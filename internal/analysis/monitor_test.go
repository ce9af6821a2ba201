// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"
	"time"

	"jackconnector/internal/audio"
	"jackconnector/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(frames int, port string, buf []float32) audio.PeriodRequest {
	return audio.PeriodRequest{
		Frames:  frames,
		Inputs:  []string{port},
		Capture: map[string][]float32{port: buf},
	}
}

func nextLevel(t *testing.T, mt *utils.MockTransport) Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-mt.Sent:
			f, ok := v.(Frame)
			require.True(t, ok, "sent %T", v)
			if f.Type == FrameLevel {
				return f
			}
		case <-deadline:
			t.Fatal("no level frame within 2s")
		}
	}
}

func TestMonitorPublishesFrames(t *testing.T) {
	mt := utils.NewMockTransport()
	m, err := NewMonitor(Options{Port: "in_r", FFTSize: 256}, testSampleRate, mt)
	require.NoError(t, err)
	m.Start()
	defer m.Stop()

	called := 0
	fn := m.Middleware(func(req audio.PeriodRequest) (audio.PeriodResponse, error) {
		called++
		return audio.PeriodResponse{"out": req.Capture["in_r"]}, nil
	})

	sine := utils.GenerateSineWave(256, testSampleRate, 1500)
	req := audio.PeriodRequest{
		Frames:  256,
		Inputs:  []string{"in_l", "in_r"},
		Capture: map[string][]float32{"in_l": make([]float32, 256), "in_r": sine},
	}
	resp, err := fn(req)
	require.NoError(t, err)
	assert.Equal(t, 1, called)
	assert.Equal(t, sine, resp["out"])

	f := nextLevel(t, mt)
	assert.Equal(t, "in_r", f.Port)
	assert.InDelta(t, 0.9/1.414, f.RMS, 0.05)
	assert.InDelta(t, 0.9, f.Peak, 0.01)
	assert.Len(t, f.Bands, len(DefaultBands(testSampleRate)))
	assert.Positive(t, f.Seq)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, f.Seq, latest.Seq)
}

func TestMonitorFollowsFirstInput(t *testing.T) {
	mt := utils.NewMockTransport()
	m, err := NewMonitor(Options{FFTSize: 128}, testSampleRate, mt)
	require.NoError(t, err)
	m.Start()
	defer m.Stop()

	fn := m.Middleware(func(audio.PeriodRequest) (audio.PeriodResponse, error) { return nil, nil })
	_, err = fn(block(64, "mic", utils.GenerateSineWave(64, testSampleRate, 440)))
	require.NoError(t, err)
	assert.Equal(t, "mic", nextLevel(t, mt).Port)
}

func TestMonitorSendsOnset(t *testing.T) {
	mt := utils.NewMockTransport()
	m, err := NewMonitor(Options{FFTSize: 128, Interval: time.Hour}, testSampleRate, mt)
	require.NoError(t, err)
	m.Start()
	defer m.Stop()

	fn := m.Middleware(func(audio.PeriodRequest) (audio.PeriodResponse, error) { return nil, nil })
	_, err = fn(block(64, "in", utils.GenerateSineWave(64, testSampleRate, 440)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, v := range mt.All() {
			if f, ok := v.(Frame); ok && f.Type == FrameOnset {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMonitorRateLimits(t *testing.T) {
	mt := utils.NewMockTransport()
	m, err := NewMonitor(Options{FFTSize: 128, Interval: time.Hour}, testSampleRate, mt)
	require.NoError(t, err)

	// Drive the worker side directly so no goroutine races the count.
	quiet := make([]float32, 64)
	for range 5 {
		m.analyse("in", quiet)
	}
	levels := 0
	for _, v := range mt.All() {
		if v.(Frame).Type == FrameLevel {
			levels++
		}
	}
	assert.Equal(t, 1, levels)
}

func TestMonitorCountsDrops(t *testing.T) {
	m, err := NewMonitor(Options{FFTSize: 128}, testSampleRate)
	require.NoError(t, err)

	// Not started: nothing drains the slot.
	fn := m.Middleware(func(audio.PeriodRequest) (audio.PeriodResponse, error) { return nil, nil })
	for range 3 {
		_, err := fn(block(32, "in", make([]float32, 32)))
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(2), m.Drops())

	m.Stop()
	_, err = fn(block(32, "in", make([]float32, 32)))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.Drops())
}

func TestMonitorTapAllocs(t *testing.T) {
	m, err := NewMonitor(Options{FFTSize: 128}, testSampleRate)
	require.NoError(t, err)
	fn := m.Middleware(func(audio.PeriodRequest) (audio.PeriodResponse, error) { return nil, nil })
	req := block(64, "in", make([]float32, 64))
	_, _ = fn(req)

	allocs := testing.AllocsPerRun(100, func() {
		_, _ = fn(req)
	})
	assert.Zero(t, allocs)
}

func TestNewMonitorErrors(t *testing.T) {
	_, err := NewMonitor(Options{FFTSize: 1000}, testSampleRate)
	assert.Error(t, err)
	_, err = NewMonitor(Options{Interval: -time.Second}, testSampleRate)
	assert.Error(t, err)
}
