// SPDX-License-Identifier: MIT
package metric

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"jackconnector/internal/audio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerExposesBridgeMetrics(t *testing.T) {
	reg := NewRegistry("1.2.3", "abc123")
	_, err := audio.NewMetrics(reg)
	require.NoError(t, err)

	s := NewServer("127.0.0.1:0", "", reg)
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.ErrorIs(t, s.Start(), ErrServerRunning)

	url := s.Address()
	require.True(t, strings.HasSuffix(url, "/metrics"), url)

	code, body := get(t, url)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `jackconnector_build_info{commit="abc123",version="1.2.3"} 1`)
	assert.Contains(t, body, "jackconnector_bridge_rendezvous_seconds")
	assert.Contains(t, body, "go_goroutines")

	code, body = get(t, strings.TrimSuffix(url, "/metrics")+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)
}

func TestServerRestart(t *testing.T) {
	s := NewServer("127.0.0.1:0", "/m", NewRegistry("dev", "none"))
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	assert.Empty(t, s.Address())
	require.NoError(t, s.Stop())

	require.NoError(t, s.Start())
	defer s.Stop()
	code, _ := get(t, s.Address())
	assert.Equal(t, http.StatusOK, code)
}

func TestServerErrors(t *testing.T) {
	assert.Error(t, NewServer("127.0.0.1:0", "", nil).Start())
	assert.Error(t, NewServer("bad address", "", NewRegistry("dev", "none")).Start())
}
