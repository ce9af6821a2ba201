// SPDX-License-Identifier: MIT
package pa

import (
	"sync/atomic"
	"testing"
	"time"

	"jackconnector/internal/audio"
	"jackconnector/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFrames = 64

func newTestServer() *Server {
	cfg := config.NewConfig().PortAudio
	cfg.FramesPerBuffer = testFrames
	return newServer("me", cfg, nil, nil)
}

func channels(n int, fill func(ch, i int) float32) [][]float32 {
	bufs := make([][]float32, n)
	for ch := range bufs {
		bufs[ch] = make([]float32, testFrames)
		for i := range bufs[ch] {
			bufs[ch][i] = fill(ch, i)
		}
	}
	return bufs
}

func TestServerPorts(t *testing.T) {
	s := newTestServer()
	_, err := s.RegisterPort("in", audio.Capture)
	require.NoError(t, err)
	_, err = s.RegisterPort("out", audio.Playback)
	require.NoError(t, err)
	_, err = s.RegisterPort("out", audio.Playback)
	assert.ErrorIs(t, err, errPortExists)

	assert.Equal(t, []string{
		"system:capture_1", "system:capture_2",
		"system:playback_1", "system:playback_2",
		"me:in", "me:out",
	}, s.Ports(audio.AllPorts))
	assert.Equal(t, []string{"system:playback_1", "system:playback_2", "me:in"}, s.Ports(audio.CapturePorts))
	assert.Equal(t, []string{"system:capture_1", "system:capture_2", "me:out"}, s.Ports(audio.PlaybackPorts))
	assert.Equal(t, []string{"me:in"}, s.OwnPorts(audio.Capture))

	p, ok := s.OwnPort("me:out")
	require.True(t, ok)
	assert.Equal(t, "out", p.ShortName())
	assert.Len(t, p.Buffer(testFrames), testFrames)
}

func TestServerConnectRules(t *testing.T) {
	s := newTestServer()
	_, err := s.RegisterPort("in", audio.Capture)
	require.NoError(t, err)
	out, err := s.RegisterPort("out", audio.Playback)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Connect("system:playback_1", "me:in"), errBadRoute)
	assert.ErrorIs(t, s.Connect("system:capture_3", "me:in"), errBadRoute)
	assert.ErrorIs(t, s.Connect("me:out", "me:in"), errBadRoute)
	assert.ErrorIs(t, s.Disconnect("me:out", "system:playback_1"), errNotConnected)

	require.NoError(t, s.Connect("me:out", "system:playback_1"))
	require.NoError(t, s.Connect("me:out", "system:playback_1"))
	links, err := s.Connections("system:playback_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"me:out"}, links)

	_, err = s.Connections("ghost:port")
	assert.ErrorIs(t, err, errNoSuchPort)

	require.NoError(t, s.UnregisterPort(out))
	links, err = s.Connections("system:playback_1")
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.ErrorIs(t, s.UnregisterPort(out), errNoSuchPort)
}

func TestServerRoutesThroughBridge(t *testing.T) {
	s := newTestServer()
	c := audio.NewClient(func(string) (audio.Server, error) { return s, nil })
	require.NoError(t, c.Open("me"))
	defer c.Close()

	_, err := c.RegisterInPort("in")
	require.NoError(t, err)
	_, err = c.RegisterOutPort("out")
	require.NoError(t, err)
	require.NoError(t, s.Connect("system:capture_1", "me:in"))
	require.NoError(t, s.Connect("me:out", "system:playback_2"))
	require.NoError(t, s.Connect("system:capture_2", "system:playback_1"))

	var called atomic.Bool
	c.BindProcess(func(req audio.PeriodRequest) (audio.PeriodResponse, error) {
		doubled := make([]float32, req.Frames)
		for i, v := range req.Capture["in"] {
			doubled[i] = 2 * v
		}
		called.Store(true)
		return audio.PeriodResponse{"out": doubled}, nil
	}, nil)

	in := channels(2, func(ch, i int) float32 { return float32(ch+1) * float32(i) / testFrames })
	out := channels(2, func(int, int) float32 { return 9 })

	// Periods are silent until the bridge's goroutine is serving.
	require.Eventually(t, func() bool {
		s.callback(in, out)
		return called.Load()
	}, time.Second, time.Millisecond)

	for i := range testFrames {
		assert.InDelta(t, 2*in[0][i], out[1][i], 1e-6)
		assert.InDelta(t, in[1][i], out[0][i], 1e-6)
	}

	n, err := c.BufferSize()
	require.NoError(t, err)
	assert.Equal(t, testFrames, n)
}

func TestServerSilentWithoutHandler(t *testing.T) {
	s := newTestServer()
	out := channels(2, func(int, int) float32 { return 1 })
	s.callback(nil, out)
	for ch := range out {
		assert.Equal(t, make([]float32, testFrames), out[ch])
	}
}

func TestServerCloseWithoutStream(t *testing.T) {
	s := newTestServer()
	assert.NoError(t, s.Deactivate())
	assert.NoError(t, s.Close())
}
