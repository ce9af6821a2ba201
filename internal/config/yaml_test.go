// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Client.Name != DefaultClientName {
		t.Errorf("client name = %q, want %q", cfg.Client.Name, DefaultClientName)
	}
	if cfg.PortLimit() != MaxPorts {
		t.Errorf("port limit = %d, want %d", cfg.PortLimit(), MaxPorts)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
client:
  name: mixer
  backend: portaudio
  inputs: [cap]
  outputs: [out_1, out_2]
  connections:
    - source: "@:out_1"
      destination: system:playback_1
patch:
  name: sweep
  waveform: square
  sweep_interval: 10ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Client.Name != "mixer" || cfg.Client.Backend != BackendPortAudio {
		t.Errorf("client = %+v", cfg.Client)
	}
	if len(cfg.Client.Outputs) != 2 || cfg.Client.Inputs[0] != "cap" {
		t.Errorf("ports = %v / %v", cfg.Client.Inputs, cfg.Client.Outputs)
	}
	if cfg.Patch.SweepInterval != 10*time.Millisecond {
		t.Errorf("sweep interval = %s", cfg.Patch.SweepInterval)
	}
	// Unset fields keep their defaults.
	if cfg.PortAudio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("frames per buffer = %d", cfg.PortAudio.FramesPerBuffer)
	}
	if got := cfg.ResolvePort(cfg.Client.Name, cfg.Client.Connections[0].Source); got != "mixer:out_1" {
		t.Errorf("ResolvePort = %q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"empty name", func(c *Config) { c.Client.Name = " " }, "client.name"},
		{"colon in name", func(c *Config) { c.Client.Name = "a:b" }, "must not contain"},
		{"unknown backend", func(c *Config) { c.Client.Backend = "alsa" }, "client.backend"},
		{"too many ports", func(c *Config) { c.Client.MaxPorts = MaxPorts + 1 }, "max_ports"},
		{"bad bit depth", func(c *Config) { c.Recording.BitDepth = 8 }, "bit_depth"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"udp without port", func(c *Config) {
			c.Monitor.Enabled = true
			c.Monitor.UDPEnabled = true
			c.Monitor.UDPTargetAddress = "localhost"
		}, "missing port"},
		{"half connection", func(c *Config) {
			c.Client.Connections = []Connection{{Source: "a:b"}}
		}, "destination"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("error %q does not mention %q", err, tt.substr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_CLIENT_NAME", "from-env")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_MONITOR_INTERVAL", "50ms")
	t.Setenv("ENV_DEBUG", "not-a-bool")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Client.Name != "from-env" {
		t.Errorf("client name = %q", cfg.Client.Name)
	}
	if !cfg.Monitor.UDPEnabled || cfg.Monitor.Interval != 50*time.Millisecond {
		t.Errorf("monitor = %+v", cfg.Monitor)
	}
	if cfg.Debug {
		t.Error("unparseable ENV_DEBUG should be ignored")
	}
}

func TestRecordingFile(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if got := cfg.RecordingFile(now); got != "recording-04-03-2026-050607.wav" {
		t.Errorf("RecordingFile = %q", got)
	}
	cfg.Recording.OutputFile = "take.wav"
	if got := cfg.RecordingFile(now); got != "take.wav" {
		t.Errorf("RecordingFile = %q", got)
	}
}
