// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	applog "jackconnector/internal/log"
	"jackconnector/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig loads configuration from the YAML file at path. If path is
// empty it looks for "config.yaml" in the working directory and falls back
// to built-in defaults when none exists. Environment overrides are applied
// after the file, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the client or the backends
// would reject later with a less helpful error.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}

	if strings.TrimSpace(c.Client.Name) == "" {
		return fmt.Errorf("%w: client.name must not be empty", ErrInvalidConfig)
	}
	if strings.Contains(c.Client.Name, ":") {
		return fmt.Errorf("%w: client.name %q must not contain ':'", ErrInvalidConfig, c.Client.Name)
	}
	switch c.Client.Backend {
	case BackendJack, BackendPortAudio:
	default:
		return fmt.Errorf("%w: unknown client.backend %q", ErrInvalidConfig, c.Client.Backend)
	}
	if c.Client.MaxPorts > MaxPorts {
		return fmt.Errorf("%w: client.max_ports %d exceeds %d", ErrInvalidConfig, c.Client.MaxPorts, MaxPorts)
	}
	if len(c.Client.Inputs) > c.PortLimit() || len(c.Client.Outputs) > c.PortLimit() {
		return fmt.Errorf("%w: more than %d ports in one direction", ErrInvalidConfig, c.PortLimit())
	}
	for _, conn := range c.Client.Connections {
		if conn.Source == "" || conn.Destination == "" {
			return fmt.Errorf("%w: connection needs both source and destination", ErrInvalidConfig)
		}
	}

	if c.Client.Backend == BackendPortAudio {
		if c.PortAudio.SampleRate < 8000 || c.PortAudio.SampleRate > 192000 {
			return fmt.Errorf("%w: portaudio.sample_rate %.0f out of range", ErrInvalidConfig, c.PortAudio.SampleRate)
		}
		if c.PortAudio.FramesPerBuffer <= 0 || c.PortAudio.FramesPerBuffer > 8192 {
			return fmt.Errorf("%w: portaudio.frames_per_buffer %d out of range", ErrInvalidConfig, c.PortAudio.FramesPerBuffer)
		}
	}

	if c.Patch.Gate < 0 || c.Patch.Gate > 1 {
		return fmt.Errorf("%w: patch.gate must be in [0, 1]", ErrInvalidConfig)
	}

	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: recording.bit_depth must be 16, 24 or 32", ErrInvalidConfig)
	}

	if c.Monitor.Enabled {
		if !bitint.IsPowerOfTwo(c.Monitor.FFTSize) {
			return fmt.Errorf("%w: monitor.fft_size %d must be a power of two (e.g. %d)",
				ErrInvalidConfig, c.Monitor.FFTSize, bitint.NextPowerOfTwo(c.Monitor.FFTSize))
		}
		if c.Monitor.Smoothing < 0 || c.Monitor.Smoothing >= 1 {
			return fmt.Errorf("%w: monitor.smoothing must be in [0, 1)", ErrInvalidConfig)
		}
		if c.Monitor.Interval <= 0 {
			return fmt.Errorf("%w: monitor.interval must be positive", ErrInvalidConfig)
		}
		if c.Monitor.UDPEnabled && !strings.Contains(c.Monitor.UDPTargetAddress, ":") {
			return fmt.Errorf("%w: monitor.udp_target_address %q appears invalid (missing port?)",
				ErrInvalidConfig, c.Monitor.UDPTargetAddress)
		}
		switch c.Monitor.UDPFormat {
		case "binary", "msgpack":
		default:
			return fmt.Errorf("%w: unknown monitor.udp_format %q", ErrInvalidConfig, c.Monitor.UDPFormat)
		}
	}

	return nil
}

// applyEnvOverrides reads ENV_* variables. Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Debugf("configuration: overriding debug from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("configuration: overriding log_level from env: %s", val)
	}

	// ENV_CLIENT_{...}
	if val, ok := os.LookupEnv("ENV_CLIENT_NAME"); ok && val != "" {
		c.Client.Name = val
		applog.Debugf("configuration: overriding client.name from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_BACKEND"); ok && val != "" {
		c.Client.Backend = val
		applog.Debugf("configuration: overriding client.backend from env: %s", val)
	}

	// ENV_UDP_{...} and ENV_MONITOR_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Monitor.UDPEnabled = bVal
			applog.Debugf("configuration: overriding monitor.udp_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Monitor.UDPTargetAddress = val
		applog.Debugf("configuration: overriding monitor.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_MONITOR_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Monitor.Interval = dur
			applog.Debugf("configuration: overriding monitor.interval from env: %s", dur)
		}
	}
}
