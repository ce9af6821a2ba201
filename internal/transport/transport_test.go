// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"testing"
	"time"

	applog "jackconnector/internal/log"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	sent   []any
	err    error
	closed bool
}

func (r *recorder) Send(data any) error { r.sent = append(r.sent, data); return r.err }
func (r *recorder) Close() error        { r.closed = true; return r.err }

func TestMultiFansOut(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{}, &recorder{err: boom}
	m := Multi{a, b}

	err := m.Send(1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []any{1}, a.sent)
	assert.Equal(t, []any{1}, b.sent)

	assert.ErrorIs(t, m.Close(), boom)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	prev := applog.GetLevel()
	applog.SetLevel(applog.LevelDebug)
	defer applog.SetLevel(prev)

	assert.NoError(t, lt.Send(map[string]int{"a": 1}))
	assert.NoError(t, lt.Send(func() {}), "unmarshalable values are logged, not rejected")
	assert.NoError(t, lt.Close())
}

type frame struct {
	Type string  `json:"type"`
	Seq  int     `json:"seq"`
	RMS  float64 `json:"rms"`
}

func dial(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr()+WebSocketPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketBroadcast(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer wst.Close()

	c1, c2 := dial(t, wst), dial(t, wst)
	require.Eventually(t, func() bool { return wst.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, wst.Send(frame{Type: "level", Seq: 7, RMS: 0.5}))

	for _, c := range []*websocket.Conn{c1, c2} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got frame
		require.NoError(t, c.ReadJSON(&got))
		assert.Equal(t, frame{Type: "level", Seq: 7, RMS: 0.5}, got)
	}
}

func TestWebSocketClientLeaves(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer wst.Close()

	c := dial(t, wst)
	require.Eventually(t, func() bool { return wst.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	c.Close()
	require.Eventually(t, func() bool { return wst.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketClose(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, wst.Close())
	assert.NoError(t, wst.Close())
	assert.ErrorIs(t, wst.Send(1), ErrClosed)

	_, _, err = websocket.DefaultDialer.Dial("ws://"+wst.Addr()+WebSocketPath, nil)
	assert.Error(t, err)
}

func TestWebSocketBadAddr(t *testing.T) {
	_, err := NewWebSocketTransport("not-an-address")
	assert.Error(t, err)
}
