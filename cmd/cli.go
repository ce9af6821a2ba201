// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"

	"jackconnector/internal/config"
	"jackconnector/pkg/build"

	"github.com/spf13/cobra"
)

// Commands that do not run the bridge.
const (
	CommandPorts      = "ports"
	CommandConnect    = "connect"
	CommandDisconnect = "disconnect"
	CommandDevices    = "devices"
	CommandVersion    = "version"
)

// flagValues holds raw flag values. They only override the loaded
// configuration when the flag was given.
type flagValues struct {
	configPath    string
	name          string
	backend       string
	patch         string
	waveform      string
	frequency     float64
	gain          float64
	gate          float64
	inputs        []string
	outputs       []string
	connections   []string
	record        bool
	outputFile    string
	monitor       bool
	websocketAddr string
	udpTarget     string
	metrics       bool
	metricsAddr   string
	noStartServer bool
	verbose       bool
}

// ParseArgs builds the configuration from the config file, the environment
// and args, in increasing precedence.
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	var (
		fv      flagValues
		options *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(fv.configPath)
			if err != nil {
				return err
			}
			if err := fv.apply(cmd, cfg); err != nil {
				return err
			}
			options = cfg
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "List the ports of the audio graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandPorts
			options.TUI, _ = cmd.Flags().GetBool("tui")
			options.WithOwn, _ = cmd.Flags().GetBool("own")
			return nil
		},
	}
	portsCmd.Flags().Bool("tui", false, "Browse ports and connections interactively")
	portsCmd.Flags().Bool("own", false, "Include this client's own ports")

	connectCmd := &cobra.Command{
		Use:   "connect SOURCE DESTINATION",
		Short: "Connect an output port to an input port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command, options.Args = CommandConnect, args
			return nil
		},
	}

	disconnectCmd := &cobra.Command{
		Use:   "disconnect SOURCE DESTINATION",
		Short: "Disconnect two ports",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command, options.Args = CommandDisconnect, args
			return nil
		},
	}

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List PortAudio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandDevices
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandVersion
			return nil
		},
	}

	rootCmd.AddCommand(portsCmd, connectCmd, disconnectCmd, devicesCmd, versionCmd)

	pf := rootCmd.PersistentFlags()

	// Configuration
	pf.StringVarP(&fv.configPath, "config", "c", "",
		"YAML configuration file. Default is ./config.yaml when present")
	pf.BoolVarP(&fv.verbose, "verbose", "v", false,
		"Show verbose output")

	// Client
	pf.StringVarP(&fv.name, "name", "n", config.DefaultClientName,
		"Client name registered with the audio server")
	pf.StringVarP(&fv.backend, "backend", "B", config.DefaultBackend,
		"Audio server backend: jack or portaudio")
	pf.BoolVar(&fv.noStartServer, "no-start-server", false,
		"Fail instead of starting a JACK server")
	pf.StringSliceVarP(&fv.inputs, "in", "i", nil,
		"Capture port short names (comma separated)")
	pf.StringSliceVarP(&fv.outputs, "out", "O", nil,
		"Playback port short names (comma separated)")
	pf.StringArrayVarP(&fv.connections, "connect", "C", nil,
		"Connection SOURCE=DESTINATION made once active; '@:' stands for this client. Repeatable")

	// Patch
	pf.StringVarP(&fv.patch, "patch", "p", config.DefaultPatch,
		"Consumer to run: forward, sine, noise, sweep or silence")
	pf.StringVarP(&fv.waveform, "waveform", "w", "sine",
		"Oscillator shape for sine and sweep: sine, saw, square or triangle")
	pf.Float64VarP(&fv.frequency, "frequency", "f", config.DefaultFrequency,
		"Oscillator frequency, measured in Hertz (Hz)")
	pf.Float64VarP(&fv.gain, "gain", "g", 1.0,
		"Linear output gain")
	pf.Float64Var(&fv.gate, "gate", 0,
		"Mute capture periods whose peak is below this level (0 disables)")

	// Recording Configuration
	pf.BoolVarP(&fv.record, "record", "r", false,
		"Record the capture ports to a WAV file")
	pf.StringVarP(&fv.outputFile, "output", "o", "",
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Monitor and metrics
	pf.BoolVarP(&fv.monitor, "monitor", "m", false,
		"Analyse a capture port and publish level frames")
	pf.StringVar(&fv.websocketAddr, "websocket", "",
		"Serve monitor frames over WebSocket on this address")
	pf.StringVar(&fv.udpTarget, "udp", "",
		"Send monitor spectra over UDP to host:port")
	pf.BoolVar(&fv.metrics, "metrics", false,
		"Serve Prometheus metrics")
	pf.StringVar(&fv.metricsAddr, "metrics-addr", config.DefaultMetricsAddr,
		"Prometheus listen address")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if options == nil {
		// --help and --version stop before any command runs.
		return nil, ErrHelp
	}
	return options, nil
}

// ErrHelp is returned when cobra printed help or the version and nothing
// should run.
var ErrHelp = errors.New("help requested")

func (fv *flagValues) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if fv.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if changed("name") {
		cfg.Client.Name = fv.name
	}
	if changed("backend") {
		cfg.Client.Backend = fv.backend
	}
	if changed("no-start-server") {
		cfg.Client.NoStartServer = fv.noStartServer
	}
	if changed("in") {
		cfg.Client.Inputs = fv.inputs
	}
	if changed("out") {
		cfg.Client.Outputs = fv.outputs
	}
	for _, c := range fv.connections {
		conn, err := parseConnection(c)
		if err != nil {
			return err
		}
		cfg.Client.Connections = append(cfg.Client.Connections, conn)
	}

	if changed("patch") {
		cfg.Patch.Name = fv.patch
	}
	if changed("waveform") {
		cfg.Patch.Waveform = fv.waveform
	}
	if changed("frequency") {
		cfg.Patch.Frequency = fv.frequency
	}
	if changed("gain") {
		cfg.Patch.Gain = fv.gain
	}

	if changed("gate") {
		cfg.Patch.Gate = fv.gate
	}

	if changed("record") {
		cfg.Recording.Enabled = fv.record
	}
	if changed("output") {
		cfg.Recording.OutputFile = fv.outputFile
		cfg.Recording.Enabled = true
	}

	if changed("monitor") {
		cfg.Monitor.Enabled = fv.monitor
	}
	if changed("websocket") {
		cfg.Monitor.Enabled = true
		cfg.Monitor.WebSocketEnabled = true
		cfg.Monitor.WebSocketAddr = fv.websocketAddr
	}
	if changed("udp") {
		cfg.Monitor.Enabled = true
		cfg.Monitor.UDPEnabled = true
		cfg.Monitor.UDPTargetAddress = fv.udpTarget
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = fv.metrics
	}
	if changed("metrics-addr") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = fv.metricsAddr
	}
	return nil
}

func parseConnection(s string) (config.Connection, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '=' {
			if i == 0 || i == len(s)-1 {
				break
			}
			return config.Connection{Source: s[:i], Destination: s[i+1:]}, nil
		}
	}
	return config.Connection{}, fmt.Errorf("connection %q: want SOURCE=DESTINATION", s)
}
