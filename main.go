// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"jackconnector/cmd"
	"jackconnector/internal/analysis"
	"jackconnector/internal/audio"
	"jackconnector/internal/backend/jackd"
	"jackconnector/internal/backend/pa"
	"jackconnector/internal/config"
	applog "jackconnector/internal/log"
	"jackconnector/internal/metric"
	"jackconnector/internal/patch"
	"jackconnector/internal/transport"
	"jackconnector/internal/transport/udp"
	"jackconnector/internal/tui"
	"jackconnector/pkg/bitint"
	"jackconnector/pkg/build"
)

// main runs in three phases:
//
// 1. Startup (cold path):
//   - Initialize build information
//   - Parse flags on top of the configuration file and environment
//   - Run a one-off command if one was given
//
// 2. Serving (hot path):
//   - Open the client, register ports and bind the patch chain
//   - Activate; from here the server drives the bridge every period
//
// 3. Shutdown (cold path):
//   - Wait for SIGINT or SIGTERM
//   - Close the client, then stop recording and publishing
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("build info: %v", err)
	}

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if errors.Is(err, cmd.ErrHelp) {
		return
	}
	if err != nil {
		applog.Error(err)
		os.Exit(2)
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Command != "" {
		err = executeCommand(cfg, os.Stdout)
	} else {
		err = run(ctx, cfg)
	}
	if err != nil {
		stop()
		applog.Fatal(err)
	}
}

func dialer(cfg *config.Config) audio.Dialer {
	if cfg.Client.Backend == config.BackendPortAudio {
		return pa.Dialer(cfg.PortAudio)
	}
	return jackd.Dialer(cfg.Client.NoStartServer)
}

// executeCommand handles one-off commands that don't run the bridge.
func executeCommand(cfg *config.Config, w io.Writer) error {
	switch cfg.Command {
	case cmd.CommandVersion:
		fmt.Fprintln(w, build.GetBuildFlags())
		return nil
	case cmd.CommandDevices:
		if err := pa.Initialize(); err != nil {
			return err
		}
		defer pa.Terminate()
		return pa.ListDevices(w)
	}

	client := audio.NewClient(dialer(cfg), audio.WithNameLimit(config.MaxNameLength))
	if err := client.Open(cfg.Client.Name); err != nil {
		return err
	}
	defer client.Close()

	switch cfg.Command {
	case cmd.CommandPorts:
		if cfg.TUI {
			// Disconnecting from the browser needs an active client.
			if err := client.Activate(); err != nil {
				return err
			}
			return tui.StartPortBrowser(client, func(notify func()) error {
				return client.WatchPorts(func(string, bool) { notify() })
			})
		}
		return listPorts(client, cfg.WithOwn, w)

	case cmd.CommandConnect, cmd.CommandDisconnect:
		if err := client.Activate(); err != nil {
			return err
		}
		src := cfg.ResolvePort(client.Name(), cfg.Args[0])
		dst := cfg.ResolvePort(client.Name(), cfg.Args[1])
		if cfg.Command == cmd.CommandConnect {
			return client.Connect(src, dst)
		}
		return client.Disconnect(src, dst)
	}
	return fmt.Errorf("unknown command %q", cfg.Command)
}

// listPorts prints every port with its direction and connections.
func listPorts(client *audio.Client, withOwn bool, w io.Writer) error {
	names, err := client.Ports(withOwn)
	if err != nil {
		return err
	}
	inputs, err := client.InPorts(withOwn)
	if err != nil {
		return err
	}
	for _, name := range names {
		dir := "out"
		if slices.Contains(inputs, name) {
			dir = "in "
		}
		fmt.Fprintf(w, "%s %s\n", dir, name)
		conns, err := client.Connections(name)
		if err != nil {
			return err
		}
		for _, c := range conns {
			fmt.Fprintf(w, "      <-> %s\n", c)
		}
	}
	return nil
}

// shutdown collects cleanup steps and runs them in reverse order.
type shutdown []func() error

func (s *shutdown) add(fn func() error) { *s = append(*s, fn) }

func (s shutdown) run(logger *applog.Logger) {
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i](); err != nil {
			logger.Errorf("shutdown: %v", err)
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := applog.With("main")
	info := build.GetBuildFlags()
	logger.Infof("%s, instance %s", info, info.InstanceID)

	var cleanup shutdown
	defer func() { cleanup.run(logger) }()

	registry := metric.NewRegistry(info.Version, info.Commit)
	metrics, err := audio.NewMetrics(registry)
	if err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		srv := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry)
		if err := srv.Start(); err != nil {
			return err
		}
		cleanup.add(srv.Stop)
		logger.Infof("metrics at %s", srv.Address())
	}

	client := audio.NewClient(dialer(cfg),
		audio.WithPortCapacity(cfg.PortLimit()),
		audio.WithNameLimit(config.MaxNameLength),
		audio.WithMetrics(metrics),
	)
	if err := client.Open(cfg.Client.Name); err != nil {
		return err
	}
	for _, name := range cfg.Client.Inputs {
		if _, err := client.RegisterInPort(name); err != nil {
			client.Close()
			return err
		}
	}
	for _, name := range cfg.Client.Outputs {
		if _, err := client.RegisterOutPort(name); err != nil {
			client.Close()
			return err
		}
	}
	inputs, outputs, err := ownShortNames(client)
	if err != nil {
		client.Close()
		return err
	}

	sampleRate, err := client.SampleRate()
	if err != nil {
		client.Close()
		return err
	}
	process, err := patch.New(cfg.Patch, sampleRate, inputs, outputs)
	if err != nil {
		client.Close()
		return err
	}

	var mws []audio.Middleware
	if cfg.Monitor.Enabled && len(inputs) > 0 {
		monitor, err := startMonitor(cfg, float64(sampleRate), &cleanup)
		if err != nil {
			client.Close()
			return err
		}
		mws = append(mws, monitor.Middleware)
	}
	if cfg.Recording.Enabled && len(inputs) > 0 {
		rec := audio.NewRecorder(sampleRate, cfg.Recording.BitDepth)
		file := cfg.RecordingFile(time.Now())
		if err := rec.Start(file, len(inputs)); err != nil {
			client.Close()
			return err
		}
		cleanup.add(func() error {
			if err := rec.Stop(); err != nil {
				return err
			}
			applog.Info("recording saved to ", file)
			return nil
		})
		mws = append(mws, rec.Middleware)
	}
	if cfg.Patch.Gate > 0 {
		mws = append(mws, patch.NewGate(cfg.Patch.Gate).Middleware)
	}

	// Registered last so it runs first: no period is in flight once the
	// recorder and the monitor stop.
	cleanup.add(client.Close)

	var failures atomic.Int64
	client.BindProcess(audio.Chain(process, mws...), func(err error) {
		if n := failures.Add(1); bitint.IsPowerOfTwo64(n) {
			logger.Warnf("period failed (%d so far): %v", n, err)
		}
	})

	// ==================== SERVING PHASE (Hot Path) ====================

	if err := client.Activate(); err != nil {
		return err
	}
	for _, conn := range cfg.Client.Connections {
		src := cfg.ResolvePort(client.Name(), conn.Source)
		dst := cfg.ResolvePort(client.Name(), conn.Destination)
		if err := client.Connect(src, dst); err != nil {
			logger.Warnf("connect %s -> %s: %v", src, dst, err)
			continue
		}
		logger.Infof("connected %s -> %s", src, dst)
	}

	logger.Infof("running patch %q on %d inputs and %d outputs; Ctrl+C to stop",
		cfg.Patch.Name, len(inputs), len(outputs))
	<-ctx.Done()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	logger.Infof("shutting down")
	return nil
}

// ownShortNames lists the registered port names, which may be truncated
// versions of the configured ones.
func ownShortNames(client *audio.Client) (inputs, outputs []string, err error) {
	in, err := client.OwnPorts(audio.Capture)
	if err != nil {
		return nil, nil, err
	}
	out, err := client.OwnPorts(audio.Playback)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range in {
		inputs = append(inputs, p.ShortName)
	}
	for _, p := range out {
		outputs = append(outputs, p.ShortName)
	}
	return inputs, outputs, nil
}

// startMonitor builds the monitor and its transports. Without a network
// transport frames go to the debug log.
func startMonitor(cfg *config.Config, sampleRate float64, cleanup *shutdown) (*analysis.Monitor, error) {
	window, err := analysis.ParseWindowFunc(cfg.Monitor.FFTWindow)
	if err != nil {
		return nil, err
	}

	var transports transport.Multi
	if cfg.Monitor.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Monitor.WebSocketAddr)
		if err != nil {
			return nil, err
		}
		transports = append(transports, ws)
	}
	if len(transports) == 0 && !cfg.Monitor.UDPEnabled {
		transports = append(transports, transport.NewLoggingTransport())
	}

	monitor, err := analysis.NewMonitor(analysis.Options{
		Port:      cfg.Monitor.Port,
		FFTSize:   cfg.Monitor.FFTSize,
		Window:    window,
		Smoothing: cfg.Monitor.Smoothing,
		Interval:  cfg.Monitor.Interval,
	}, sampleRate, transports...)
	if err != nil {
		transports.Close()
		return nil, err
	}
	cleanup.add(transports.Close)
	monitor.Start()
	cleanup.add(monitor.Close)

	if cfg.Monitor.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Monitor.UDPTargetAddress)
		if err != nil {
			return nil, err
		}
		cleanup.add(sender.Close)
		publisher, err := udp.NewUDPPublisher(cfg.Monitor.Interval, sender, monitor, cfg.Monitor.UDPFormat)
		if err != nil {
			return nil, err
		}
		publisher.Start()
		cleanup.add(publisher.Stop)
	}
	return monitor, nil
}
