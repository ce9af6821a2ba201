// SPDX-License-Identifier: MIT
/*
Package audio implements a low-latency audio graph client with:
- Port registry mirroring the ports the server reports as ours
- Realtime process bridge handing each period to a Go consumer
- Open/activate/connect lifecycle over a pluggable audio server
- WAV capture tap with atomic state management

Thread Safety:
- Lifecycle calls are serialized by an operation mutex; the state mutex is
  never held across a server call or a wait on the bridge, so a consumer
  may query the client while a port is being removed
- Port tables are immutable snapshots swapped atomically
- The audio thread blocks only on the per-period rendezvous
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"jackconnector/internal/config"
	applog "jackconnector/internal/log"
)

type clientState int32

const (
	stateClosed clientState = iota
	stateOpened
	stateActivated
	stateClosing
)

func (s clientState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpened:
		return "opened"
	case stateActivated:
		return "activated"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Option configures a Client.
type Option func(*Client)

// WithPortCapacity bounds each port direction. Values above config.MaxPorts
// are capped.
func WithPortCapacity(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= config.MaxPorts {
			c.capacity = n
		}
	}
}

// WithNameLimit bounds client and full port names in bytes.
func WithNameLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.nameLimit = n
		}
	}
}

// WithMetrics records bridge activity into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client is one connection to the audio server. The zero value is not
// usable; create clients with NewClient. A closed client may be opened
// again.
type Client struct {
	dial      Dialer
	capacity  int
	nameLimit int
	metrics   *Metrics
	logger    *applog.Logger

	// ops serializes Open, Close, Activate, Deactivate and port changes.
	// It is taken before mu, and mu is released before anything that may
	// wait for a period to finish.
	ops sync.Mutex

	mu       sync.Mutex
	state    clientState
	active   bool // server is calling the process handler
	server   Server
	registry *PortRegistry
	bridge   *Bridge
	cancel   context.CancelFunc
	served   chan struct{}

	pending *binding
	watch   PortRegistrationHandler
}

// NewClient returns a closed client that opens connections with dial.
func NewClient(dial Dialer, opts ...Option) *Client {
	c := &Client{
		dial:      dial,
		capacity:  config.MaxPorts,
		nameLimit: config.MaxNameLength,
		logger:    applog.With("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open connects to the server as name and starts serving periods. The name
// is truncated to the name limit at a rune boundary.
func (c *Client) Open(name string) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateClosed {
		return ErrAlreadyOpen
	}
	name = TruncateName(name, c.nameLimit)
	if name == "" {
		return fmt.Errorf("open client: %w", ErrEmptyName)
	}

	server, err := c.dial(name)
	if err != nil {
		return serverError("open client "+name, err)
	}

	registry := NewPortRegistry(server, c.capacity, c.nameLimit)
	bridge := NewBridge(registry, c.metrics)
	if err := server.SetProcessHandler(bridge.Tick); err != nil {
		server.Close()
		return serverError("set process handler", err)
	}
	if c.watch != nil {
		if err := server.SetPortRegistrationHandler(c.watch); err != nil {
			c.logger.Warnf("port registration handler not installed: %v", err)
		}
	}
	if c.pending != nil {
		bridge.Bind(c.pending.process, c.pending.onError)
	}
	// Ports left over from a previous process with the same name.
	registry.Rebuild()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := bridge.Serve(ctx); err != nil && ctx.Err() == nil {
			c.logger.Errorf("bridge stopped: %v", err)
		}
	}()

	c.server, c.registry, c.bridge = server, registry, bridge
	c.cancel, c.served = cancel, served
	c.state = stateOpened
	c.active = false
	c.logger.Infof("opened client %q (sample rate %d Hz)", server.Name(), server.SampleRate())
	return nil
}

// Close releases the connection. It blocks until any period in flight has
// completed, so it must not be called from inside a ProcessFunc.
func (c *Client) Close() error {
	c.mu.Lock()
	switch c.state {
	case stateClosed:
		c.mu.Unlock()
		return ErrNotOpen
	case stateClosing:
		c.mu.Unlock()
		return ErrAlreadyClosing
	}
	c.state = stateClosing
	server, registry, bridge := c.server, c.registry, c.bridge
	cancel, served := c.cancel, c.served
	c.mu.Unlock()

	// Lets an Activate, Deactivate or port change already under way finish.
	c.ops.Lock()
	defer c.ops.Unlock()
	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.mu.Unlock()

	// Later ticks go silent; the one in flight, if any, finishes first.
	bridge.Disable()
	var errs []error
	if wasActive {
		if err := server.Deactivate(); err != nil {
			errs = append(errs, serverError("deactivate", err))
		}
	}
	bridge.WaitIdle()

	for _, p := range append(registry.Capture(), registry.Playback()...) {
		if err := registry.Unregister(p.FullName); err != nil {
			errs = append(errs, err)
		}
	}

	cancel()
	bridge.Stop()
	<-served
	if err := server.Close(); err != nil {
		errs = append(errs, serverError("close client", err))
	}

	c.mu.Lock()
	c.server, c.registry, c.bridge = nil, nil, nil
	c.cancel, c.served = nil, nil
	c.state = stateClosed
	c.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("close client: %w", errors.Join(errs...))
	}
	c.logger.Infof("closed client")
	return nil
}

// IsOpened reports whether the client holds a server connection. A client
// that is closing is not opened.
func (c *Client) IsOpened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpened || c.state == stateActivated
}

// IsActive reports whether the server is calling the process handler.
func (c *Client) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateActivated
}

// Name returns the name granted by the server, or "" when closed.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server == nil {
		return ""
	}
	return c.server.Name()
}

// Activate asks the server to start calling the process handler.
func (c *Client) Activate() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	state, server := c.state, c.server
	c.mu.Unlock()
	switch state {
	case stateClosed, stateClosing:
		return ErrNotOpen
	case stateActivated:
		return ErrAlreadyActive
	}
	if err := server.Activate(); err != nil {
		return serverError("activate", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	if c.state == stateOpened {
		c.state = stateActivated
	}
	return nil
}

// Deactivate stops the process handler. The server may wait for the
// current period, so it must not be called from inside a ProcessFunc.
func (c *Client) Deactivate() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	state, server := c.state, c.server
	c.mu.Unlock()
	switch state {
	case stateClosed, stateClosing:
		return ErrNotOpen
	case stateOpened:
		return ErrNotActive
	}
	if err := server.Deactivate(); err != nil {
		return serverError("deactivate", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	if c.state == stateActivated {
		c.state = stateOpened
	}
	return nil
}

// opened returns the live components or ErrNotOpen.
func (c *Client) opened() (Server, *PortRegistry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOpened && c.state != stateActivated {
		return nil, nil, ErrNotOpen
	}
	return c.server, c.registry, nil
}

// RegisterInPort registers a capture port.
func (c *Client) RegisterInPort(shortName string) (Port, error) {
	return c.register(shortName, Capture)
}

// RegisterOutPort registers a playback port.
func (c *Client) RegisterOutPort(shortName string) (Port, error) {
	return c.register(shortName, Playback)
}

func (c *Client) register(shortName string, dir Direction) (Port, error) {
	c.ops.Lock()
	defer c.ops.Unlock()
	_, registry, err := c.opened()
	if err != nil {
		return Port{}, err
	}
	return registry.Register(shortName, dir)
}

// UnregisterPort removes one of our ports by short name. It waits for the
// period in flight, so it must not be called from inside a ProcessFunc.
func (c *Client) UnregisterPort(shortName string) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	server, registry, err := c.opened()
	if err != nil {
		return err
	}
	return registry.Unregister(FullPortName(server.Name(), shortName))
}

// OwnPorts returns our registered ports of one direction in slot order.
func (c *Client) OwnPorts(dir Direction) ([]Port, error) {
	_, registry, err := c.opened()
	if err != nil {
		return nil, err
	}
	return registry.Ports(dir), nil
}

// Ports lists every port in the graph. Unless withOwn is set, ports
// belonging to this client are left out.
func (c *Client) Ports(withOwn bool) ([]string, error) {
	return c.listPorts(AllPorts, withOwn)
}

// InPorts lists ports that accept audio (JACK input ports).
func (c *Client) InPorts(withOwn bool) ([]string, error) {
	return c.listPorts(CapturePorts, withOwn)
}

// OutPorts lists ports that emit audio (JACK output ports).
func (c *Client) OutPorts(withOwn bool) ([]string, error) {
	return c.listPorts(PlaybackPorts, withOwn)
}

func (c *Client) listPorts(set PortSet, withOwn bool) ([]string, error) {
	server, _, err := c.opened()
	if err != nil {
		return nil, err
	}
	return FilterOwn(server.Ports(set), server.Name(), withOwn), nil
}

// PortExists reports whether fullName is a port in the graph.
func (c *Client) PortExists(fullName string) (bool, error) {
	return c.portExists(AllPorts, fullName)
}

// InPortExists reports whether fullName is a port that accepts audio.
func (c *Client) InPortExists(fullName string) (bool, error) {
	return c.portExists(CapturePorts, fullName)
}

// OutPortExists reports whether fullName is a port that emits audio.
func (c *Client) OutPortExists(fullName string) (bool, error) {
	return c.portExists(PlaybackPorts, fullName)
}

func (c *Client) portExists(set PortSet, fullName string) (bool, error) {
	server, _, err := c.opened()
	if err != nil {
		return false, err
	}
	return slices.Contains(server.Ports(set), fullName), nil
}

// activeServer checks that the client is active and that both ports exist.
func (c *Client) activeServer(src, dst string) (Server, error) {
	c.mu.Lock()
	state, server := c.state, c.server
	c.mu.Unlock()

	if state == stateClosed || state == stateClosing {
		return nil, ErrNotOpen
	}
	if state != stateActivated {
		return nil, ErrNotActive
	}
	ports := server.Ports(AllPorts)
	for _, name := range []string{src, dst} {
		if !slices.Contains(ports, name) {
			return nil, fmt.Errorf("port %q: %w", name, ErrPortNotFound)
		}
	}
	return server, nil
}

// Connect links src to dst. Connecting an already connected pair succeeds.
func (c *Client) Connect(src, dst string) error {
	server, err := c.activeServer(src, dst)
	if err != nil {
		return fmt.Errorf("connect %s -> %s: %w", src, dst, err)
	}
	return serverError("connect "+src+" -> "+dst, server.Connect(src, dst))
}

// Disconnect unlinks src from dst. Pairs that are not connected are left
// alone.
func (c *Client) Disconnect(src, dst string) error {
	server, err := c.activeServer(src, dst)
	if err != nil {
		return fmt.Errorf("disconnect %s -> %s: %w", src, dst, err)
	}
	connected, err := server.Connections(src)
	if err != nil {
		return serverError("connections of "+src, err)
	}
	if !slices.Contains(connected, dst) {
		return nil
	}
	return serverError("disconnect "+src+" -> "+dst, server.Disconnect(src, dst))
}

// IsConnected reports whether src is linked to dst.
func (c *Client) IsConnected(src, dst string) (bool, error) {
	server, _, err := c.opened()
	if err != nil {
		return false, err
	}
	connected, err := server.Connections(src)
	if err != nil {
		return false, serverError("connections of "+src, err)
	}
	return slices.Contains(connected, dst), nil
}

// Connections lists the ports linked to fullName.
func (c *Client) Connections(fullName string) ([]string, error) {
	server, _, err := c.opened()
	if err != nil {
		return nil, err
	}
	names, err := server.Connections(fullName)
	return names, serverError("connections of "+fullName, err)
}

// SampleRate returns the server's sample rate in Hz.
func (c *Client) SampleRate() (int, error) {
	server, _, err := c.opened()
	if err != nil {
		return 0, err
	}
	return server.SampleRate(), nil
}

// BufferSize returns the frame count of the last period, 0 before the first.
func (c *Client) BufferSize() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOpened && c.state != stateActivated {
		return 0, ErrNotOpen
	}
	return c.bridge.Frames(), nil
}

// BindProcess installs the consumer. It may be called before Open, in which
// case the binding takes effect when the client opens, and survives Close.
func (c *Client) BindProcess(fn ProcessFunc, onError ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn == nil {
		c.pending = nil
	} else {
		c.pending = &binding{process: fn, onError: onError}
	}
	if c.bridge != nil {
		c.bridge.Bind(fn, onError)
	}
}

// UnbindProcess removes the consumer; periods go silent.
func (c *Client) UnbindProcess() {
	c.BindProcess(nil, nil)
}

// WatchPorts installs a handler for port registration events in the whole
// graph. It runs on a server notification thread.
func (c *Client) WatchPorts(fn PortRegistrationHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watch = fn
	if c.server == nil {
		return nil
	}
	return serverError("watch ports", c.server.SetPortRegistrationHandler(fn))
}

// BridgeState reports the state of the current bridge; idle when closed.
func (c *Client) BridgeState() BridgeState {
	c.mu.Lock()
	bridge := c.bridge
	c.mu.Unlock()
	if bridge == nil {
		return StateIdle
	}
	return bridge.State()
}
