// SPDX-License-Identifier: MIT
package patch

import (
	"testing"

	"jackconnector/internal/audio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateThreshold(t *testing.T) {
	g := NewGate(0.25)
	assert.InDelta(t, 0.25, g.Threshold(), 1e-6)

	g.SetThreshold(-1)
	assert.Equal(t, 0.0, g.Threshold())
	g.SetThreshold(2)
	assert.Equal(t, 1.0, g.Threshold())
}

func TestGateMiddleware(t *testing.T) {
	var seen []float32
	next := func(req audio.PeriodRequest) (audio.PeriodResponse, error) {
		seen = req.Capture["in"]
		return nil, nil
	}

	g := NewGate(0.1)
	fn := g.Middleware(next)

	quiet := []float32{0.01, -0.05, 0.09, 0}
	_, err := fn(request(len(quiet), map[string][]float32{"in": quiet}))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, seen)
	assert.Equal(t, uint64(1), g.Closed())
	assert.Equal(t, float32(0.01), quiet[0], "capture must not be modified")

	loud := []float32{0.01, -0.5, 0, 0}
	_, err = fn(request(len(loud), map[string][]float32{"in": loud}))
	require.NoError(t, err)
	assert.Equal(t, loud, seen)

	g.Disable()
	_, err = fn(request(len(quiet), map[string][]float32{"in": quiet}))
	require.NoError(t, err)
	assert.Equal(t, quiet, seen)
	assert.Equal(t, uint64(1), g.Closed())
}

func TestGateFullyClosed(t *testing.T) {
	var seen []float32
	g := NewGate(1)
	fn := g.Middleware(func(req audio.PeriodRequest) (audio.PeriodResponse, error) {
		seen = req.Capture["in"]
		return nil, nil
	})
	_, err := fn(request(2, map[string][]float32{"in": {1, -1}}))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, seen)
}
