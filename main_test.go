// SPDX-License-Identifier: MIT
package main

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"jackconnector/cmd"
	"jackconnector/internal/config"
	applog "jackconnector/internal/log"
	"jackconnector/pkg/build"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsInReverse(t *testing.T) {
	var logs bytes.Buffer
	applog.SetOutput(&logs)
	defer applog.SetOutput(os.Stderr)

	var order []string
	var s shutdown
	s.add(func() error { order = append(order, "metrics"); return nil })
	s.add(func() error { order = append(order, "recorder"); return errors.New("disk full") })
	s.add(func() error { order = append(order, "client"); return nil })

	s.run(applog.With("main"))

	assert.Equal(t, []string{"client", "recorder", "metrics"}, order)
	assert.Contains(t, logs.String(), "shutdown: disk full")
}

func TestExecuteVersion(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Command = cmd.CommandVersion

	var out bytes.Buffer
	require.NoError(t, executeCommand(cfg, &out))
	assert.Equal(t, build.GetBuildFlags().String()+"\n", out.String())
}

func TestDialerFollowsBackend(t *testing.T) {
	cfg := config.NewConfig()
	assert.NotNil(t, dialer(cfg))

	cfg.Client.Backend = config.BackendPortAudio
	assert.NotNil(t, dialer(cfg))
}
