// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync/atomic"
)

// Port is one port owned by the local client.
type Port struct {
	FullName  string
	ShortName string
	Direction Direction

	handle ServerPort
}

// portTable is an immutable snapshot of both port lists. Index i of capture
// is capture buffer slot i, index i of playback is playback slot i.
type portTable struct {
	capture  []Port
	playback []Port

	// inputs and captureMap are handed to the consumer inside every
	// PeriodRequest built from this table. captureMap is rewritten in place
	// each period, so consumers must not retain it.
	inputs     []string
	captureMap map[string][]float32
}

func newPortTable(capture, playback []Port) *portTable {
	t := &portTable{
		capture:    capture,
		playback:   playback,
		inputs:     make([]string, len(capture)),
		captureMap: make(map[string][]float32, len(capture)),
	}
	for i, p := range capture {
		t.inputs[i] = p.ShortName
	}
	return t
}

// silence zero-fills every playback buffer for the period.
func (t *portTable) silence(frames int) {
	for i := range t.playback {
		clear(t.playback[i].handle.Buffer(frames))
	}
}

// PortRegistry mirrors the ports the audio server reports as owned by this
// client. Readers get a consistent snapshot without locking; writers replace
// the snapshot wholesale.
//
// Mutating methods must not be called concurrently with each other. They are
// safe against a running bridge: a removed port's server handle is only freed
// once the bridge has finished the period that might still be using it.
type PortRegistry struct {
	server    Server
	capacity  int
	nameLimit int
	quiesce   func()
	metrics   *Metrics

	table atomic.Pointer[portTable]
}

// NewPortRegistry creates an empty registry bound to server. capacity bounds
// each direction; nameLimit bounds full port names in bytes.
func NewPortRegistry(server Server, capacity, nameLimit int) *PortRegistry {
	r := &PortRegistry{
		server:    server,
		capacity:  capacity,
		nameLimit: nameLimit,
		quiesce:   func() {},
	}
	r.table.Store(newPortTable(nil, nil))
	return r
}

func (r *PortRegistry) snapshot() *portTable {
	return r.table.Load()
}

// Register creates a port on the server and rebuilds the registry.
func (r *PortRegistry) Register(shortName string, dir Direction) (Port, error) {
	if shortName == "" {
		return Port{}, fmt.Errorf("register %s port: %w", dir, ErrEmptyName)
	}
	full := FullPortName(r.server.Name(), shortName)
	if r.nameLimit > 0 && len(full) > r.nameLimit {
		return Port{}, fmt.Errorf("register %s port %q: %w (%d > %d bytes)", dir, full, ErrNameTooLong, len(full), r.nameLimit)
	}
	if n := len(r.list(r.snapshot(), dir)); n >= r.capacity {
		return Port{}, fmt.Errorf("register %s port %q: %w (%d of %d)", dir, full, ErrCapacityExceeded, n, r.capacity)
	}

	handle, err := r.server.RegisterPort(shortName, dir)
	if err != nil {
		return Port{}, serverError("register port "+full, err)
	}
	r.Rebuild()

	return Port{
		FullName:  handle.Name(),
		ShortName: StripClientPrefix(handle.Name(), r.nameLimit),
		Direction: dir,
		handle:    handle,
	}, nil
}

// Unregister removes the port with the given full name.
func (r *PortRegistry) Unregister(fullName string) error {
	old := r.snapshot()
	var (
		victim  Port
		found   bool
		keepCap = make([]Port, 0, len(old.capture))
		keepPb  = make([]Port, 0, len(old.playback))
	)
	for _, p := range old.capture {
		if !found && p.FullName == fullName {
			victim, found = p, true
			continue
		}
		keepCap = append(keepCap, p)
	}
	for _, p := range old.playback {
		if !found && p.FullName == fullName {
			victim, found = p, true
			continue
		}
		keepPb = append(keepPb, p)
	}
	if !found {
		return fmt.Errorf("unregister %q: %w", fullName, ErrPortNotFound)
	}

	r.publish(newPortTable(keepCap, keepPb))
	r.quiesce()

	err := r.server.UnregisterPort(victim.handle)
	r.Rebuild()
	return serverError("unregister port "+fullName, err)
}

// Rebuild re-scans the server's owned ports and replaces both lists.
func (r *PortRegistry) Rebuild() {
	r.publish(newPortTable(r.scan(Capture), r.scan(Playback)))
}

func (r *PortRegistry) publish(t *portTable) {
	r.table.Store(t)
	r.metrics.ports(len(t.capture), len(t.playback))
}

func (r *PortRegistry) scan(dir Direction) []Port {
	names := r.server.OwnPorts(dir)
	if len(names) > r.capacity {
		names = names[:r.capacity]
	}
	ports := make([]Port, 0, len(names))
	for _, name := range names {
		handle, ok := r.server.OwnPort(name)
		if !ok {
			continue
		}
		ports = append(ports, Port{
			FullName:  name,
			ShortName: StripClientPrefix(name, r.nameLimit),
			Direction: dir,
			handle:    handle,
		})
	}
	return ports
}

// Clear drops every entry without touching the server.
func (r *PortRegistry) Clear() {
	r.publish(newPortTable(nil, nil))
}

func (r *PortRegistry) list(t *portTable, dir Direction) []Port {
	if dir == Capture {
		return t.capture
	}
	return t.playback
}

// Ports returns a copy of the list for one direction.
func (r *PortRegistry) Ports(dir Direction) []Port {
	return append([]Port(nil), r.list(r.snapshot(), dir)...)
}

// Capture returns the capture ports in registration order.
func (r *PortRegistry) Capture() []Port { return r.Ports(Capture) }

// Playback returns the playback ports in registration order.
func (r *PortRegistry) Playback() []Port { return r.Ports(Playback) }

// FindOutputIndex resolves a short name to its playback slot.
func (r *PortRegistry) FindOutputIndex(shortName string) (int, error) {
	if i, ok := findPort(r.snapshot().playback, shortName); ok {
		return i, nil
	}
	return -1, fmt.Errorf("output %q: %w", shortName, ErrPortNotFound)
}

// FindInputIndex resolves a short name to its capture slot.
func (r *PortRegistry) FindInputIndex(shortName string) (int, error) {
	if i, ok := findPort(r.snapshot().capture, shortName); ok {
		return i, nil
	}
	return -1, fmt.Errorf("input %q: %w", shortName, ErrPortNotFound)
}

// Lookup returns the owned port with the given short name.
func (r *PortRegistry) Lookup(shortName string) (Port, bool) {
	t := r.snapshot()
	if i, ok := findPort(t.capture, shortName); ok {
		return t.capture[i], true
	}
	if i, ok := findPort(t.playback, shortName); ok {
		return t.playback[i], true
	}
	return Port{}, false
}
