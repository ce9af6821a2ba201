// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 48000

func stereoRequest(frames int, left, right float32) PeriodRequest {
	l := make([]float32, frames)
	r := make([]float32, frames)
	fill(l, left)
	fill(r, right)
	return PeriodRequest{
		Frames:  frames,
		Inputs:  []string{"in_l", "in_r"},
		Capture: map[string][]float32{"in_l": l, "in_r": r},
	}
}

func TestRecorderStartStop(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "take.wav")
	rec := NewRecorder(testSampleRate, 16)

	require.NoError(t, rec.Start(filename, 2))
	assert.True(t, rec.Recording())
	assert.ErrorIs(t, rec.Start(filename, 2), ErrAlreadyRecording)

	require.NoError(t, rec.Stop())
	assert.False(t, rec.Recording())
	require.NoError(t, rec.Stop(), "stopping an idle recorder is a no-op")

	_, err := os.Stat(filename)
	assert.NoError(t, err)
}

func TestRecorderErrorCases(t *testing.T) {
	tests := []struct {
		desc     string
		filename string
		channels int
	}{
		{"Invalid path", "/nonexistent/path/file.wav", 2},
		{"No channels", filepath.Join(t.TempDir(), "valid.wav"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			rec := NewRecorder(testSampleRate, 16)
			assert.Error(t, rec.Start(tt.filename, tt.channels))
			assert.False(t, rec.Recording())
		})
	}
}

func TestRecorderMiddlewareWritesInterleaved(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "tap.wav")
	rec := NewRecorder(testSampleRate, 16)
	require.NoError(t, rec.Start(filename, 2))

	var calls int
	process := rec.Middleware(func(req PeriodRequest) (PeriodResponse, error) {
		calls++
		return nil, nil
	})

	for range 3 {
		_, err := process(stereoRequest(testFrames, 0.5, 2))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
	assert.EqualValues(t, 3*testFrames, rec.Frames())
	require.NoError(t, rec.Stop())

	// Periods after Stop are passed through untouched.
	_, err := process(stereoRequest(testFrames, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 4, calls)

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.EqualValues(t, 2, dec.NumChans)
	assert.EqualValues(t, testSampleRate, dec.SampleRate)
	assert.EqualValues(t, 16, dec.BitDepth)

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Len(t, buf.Data, 2*3*testFrames)
	assert.Equal(t, 16383, buf.Data[0]) // left at 0.5
	assert.Equal(t, 32767, buf.Data[1]) // right clamped from 2
}

func TestRecorderPadsMissingChannels(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "mono.wav")
	rec := NewRecorder(testSampleRate, 16)
	require.NoError(t, rec.Start(filename, 2))

	req := stereoRequest(16, 0.25, 0)
	req.Inputs = req.Inputs[:1]
	_, err := rec.Middleware(func(PeriodRequest) (PeriodResponse, error) { return nil, nil })(req)
	require.NoError(t, err)
	require.NoError(t, rec.Stop())

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	require.Len(t, buf.Data, 32)
	assert.Equal(t, 8191, buf.Data[0])
	assert.Equal(t, 0, buf.Data[1])
}

func TestClampUnit(t *testing.T) {
	nan := float32(math.NaN())
	assert.Equal(t, float32(1), clampUnit(3))
	assert.Equal(t, float32(-1), clampUnit(-3))
	assert.Equal(t, float32(0.5), clampUnit(0.5))
	assert.Equal(t, float32(0), clampUnit(nan))
}
