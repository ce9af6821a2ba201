// SPDX-License-Identifier: MIT
package config

import "time"

// Limits shared by the client, the port registry and the bridge's buffer
// table. A full port name ("client:short") must fit in MaxNameLength bytes.
const (
	MaxNameLength = 255
	MaxPorts      = 64
)

// DefaultDeviceID selects the host's default PortAudio device.
const DefaultDeviceID = -1

// Default values for a freshly constructed configuration.
const (
	DefaultClientName      = "jackconnector"
	DefaultBackend         = BackendJack
	DefaultLogLevel        = "info"
	DefaultPatch           = "forward"
	DefaultSampleRate      = 48000
	DefaultFramesPerBuffer = 256
	DefaultBitDepth        = 16
	DefaultFrequency       = 440.0
	DefaultSweepMin        = 20.0
	DefaultSweepMax        = 20000.0
	DefaultSweepStep       = 8.0
	DefaultSweepInterval   = 5 * time.Millisecond
	DefaultMonitorInterval = 33 * time.Millisecond
	DefaultFFTWindow       = "Hann"
	DefaultFFTSize         = 2048
	DefaultSmoothing       = 0.3
	DefaultWebSocketAddr   = ":8080"
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultUDPFormat       = "binary"
	DefaultMetricsAddr     = ":9100"
	DefaultMetricsPath     = "/metrics"
)

// Audio server backends.
const (
	BackendJack      = "jack"
	BackendPortAudio = "portaudio"
)

// Config represents the main application configuration, loaded from YAML and
// then overridden by environment variables and command line flags.
type Config struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`

	// Command and Args select a one-off CLI command ("ports", "connect", ...)
	// instead of running the bridge. Never read from YAML.
	Command string   `yaml:"-"`
	Args    []string `yaml:"-"`
	TUI     bool     `yaml:"-"` // ports: interactive browser.
	WithOwn bool     `yaml:"-"` // ports: include this client's own ports.

	Client    ClientConfig    `yaml:"client"`
	PortAudio PortAudioConfig `yaml:"portaudio"`
	Patch     PatchConfig     `yaml:"patch"`
	Recording RecordingConfig `yaml:"recording"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ClientConfig describes the audio graph client: its name, backend, the ports
// it owns and the connections made once it is active.
type ClientConfig struct {
	Name          string       `yaml:"name"`
	Backend       string       `yaml:"backend"`         // "jack" or "portaudio".
	NoStartServer bool         `yaml:"no_start_server"` // Do not autostart jackd.
	MaxPorts      int          `yaml:"max_ports"`       // Per direction, at most MaxPorts.
	Inputs        []string     `yaml:"inputs"`          // Capture port short names.
	Outputs       []string     `yaml:"outputs"`         // Playback port short names.
	Connections   []Connection `yaml:"connections"`
}

// Connection is a pair of full port names. Either side may use the "@" prefix
// as a shorthand for this client's name, e.g. "@:out_l".
type Connection struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// PortAudioConfig holds device settings for the PortAudio backend.
type PortAudioConfig struct {
	InputDevice     int     `yaml:"input_device"`  // -1 for the default device.
	OutputDevice    int     `yaml:"output_device"` // -1 for the default device.
	InputChannels   int     `yaml:"input_channels"`
	OutputChannels  int     `yaml:"output_channels"`
	SampleRate      float64 `yaml:"sample_rate"`
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
	LowLatency      bool    `yaml:"low_latency"`
}

// PatchConfig selects and parameterises the consumer run on every period.
type PatchConfig struct {
	Name          string        `yaml:"name"`     // forward, sine, noise, sweep, silence.
	Waveform      string        `yaml:"waveform"` // sine, saw, square, triangle.
	Frequency     float64       `yaml:"frequency"`
	Gain          float64       `yaml:"gain"`
	SweepMin      float64       `yaml:"sweep_min"`
	SweepMax      float64       `yaml:"sweep_max"`
	SweepStep     float64       `yaml:"sweep_step"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Routes        []Route       `yaml:"routes"` // forward only; empty pairs ports by position.
	Gate          float64       `yaml:"gate"`   // Mute capture below this peak; 0 disables.
}

// Route maps a capture port to a playback port by short name.
type Route struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// RecordingConfig controls the WAV tap on capture ports.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"` // Empty: recording-DD-MM-YYYY-HHMMSS.wav
	BitDepth   int    `yaml:"bit_depth"`   // 16, 24 or 32.
}

// MonitorConfig controls spectrum analysis of one capture port.
type MonitorConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Port             string        `yaml:"port"` // Capture short name; empty means the first.
	FFTWindow        string        `yaml:"fft_window"`
	FFTSize          int           `yaml:"fft_size"`  // Power of two.
	Smoothing        float64       `yaml:"smoothing"` // [0, 1).
	Interval         time.Duration `yaml:"interval"`
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddr    string        `yaml:"websocket_addr"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPFormat        string        `yaml:"udp_format"` // "binary" or "msgpack".
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// NewConfig returns a Config populated with defaults. It is the base that
// LoadConfig unmarshals into.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Client: ClientConfig{
			Name:     DefaultClientName,
			Backend:  DefaultBackend,
			MaxPorts: MaxPorts,
			Inputs:   []string{"in_l", "in_r"},
			Outputs:  []string{"out_l", "out_r"},
		},
		PortAudio: PortAudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			InputChannels:   2,
			OutputChannels:  2,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
		},
		Patch: PatchConfig{
			Name:          DefaultPatch,
			Waveform:      "sine",
			Frequency:     DefaultFrequency,
			Gain:          1.0,
			SweepMin:      DefaultSweepMin,
			SweepMax:      DefaultSweepMax,
			SweepStep:     DefaultSweepStep,
			SweepInterval: DefaultSweepInterval,
		},
		Recording: RecordingConfig{
			BitDepth: DefaultBitDepth,
		},
		Monitor: MonitorConfig{
			FFTWindow:        DefaultFFTWindow,
			FFTSize:          DefaultFFTSize,
			Smoothing:        DefaultSmoothing,
			Interval:         DefaultMonitorInterval,
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTarget,
			UDPFormat:        DefaultUDPFormat,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
			Path: DefaultMetricsPath,
		},
	}
}
