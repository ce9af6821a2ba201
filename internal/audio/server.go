// SPDX-License-Identifier: MIT
package audio

// Direction is the direction of a port as seen by the audio server.
type Direction int8

const (
	// Capture ports receive audio from the graph (JACK input ports).
	Capture Direction = iota
	// Playback ports emit audio into the graph (JACK output ports).
	Playback
)

func (d Direction) String() string {
	switch d {
	case Capture:
		return "capture"
	case Playback:
		return "playback"
	default:
		return "unknown"
	}
}

// PortSet selects which server ports a listing returns.
type PortSet int8

const (
	AllPorts PortSet = iota
	CapturePorts
	PlaybackPorts
)

// ProcessHandler is invoked by the server once per period on its realtime
// thread. It must return 0 on success.
type ProcessHandler func(frames int) int

// PortRegistrationHandler is notified when any port in the graph appears or
// disappears. It runs on a server notification thread.
type PortRegistrationHandler func(fullName string, registered bool)

// ServerPort is a handle to a port owned by the connected client.
type ServerPort interface {
	Name() string
	ShortName() string
	// Buffer returns the port's sample memory for the current period. The
	// slice aliases server memory and is valid only until the process
	// handler returns.
	Buffer(frames int) []float32
}

// Server is the audio server boundary: one connection per open client.
type Server interface {
	// Name is the client name granted by the server, which may differ from
	// the requested one.
	Name() string
	SampleRate() int

	SetProcessHandler(fn ProcessHandler) error
	SetPortRegistrationHandler(fn PortRegistrationHandler) error

	RegisterPort(shortName string, dir Direction) (ServerPort, error)
	UnregisterPort(port ServerPort) error
	// OwnPort returns the handle of a port this client registered.
	OwnPort(fullName string) (ServerPort, bool)
	// OwnPorts lists this client's ports of one direction in registration order.
	OwnPorts(dir Direction) []string

	// Ports lists full names of every port in the graph.
	Ports(set PortSet) []string
	// Connections lists the full names connected to port.
	Connections(fullName string) ([]string, error)
	// Connect is idempotent: connecting an existing pair returns nil.
	Connect(src, dst string) error
	Disconnect(src, dst string) error

	Activate() error
	Deactivate() error
	Close() error
}

// Dialer opens a server connection for the given client name.
type Dialer func(clientName string) (Server, error)
