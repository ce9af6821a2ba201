// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"slices"
	"sync"
)

const fakeBufferFrames = 4096

var errFakeExists = errors.New("port already exists")

type fakePort struct {
	name  string
	short string
	dir   Direction
	buf   []float32
}

func (p *fakePort) Name() string                { return p.name }
func (p *fakePort) ShortName() string           { return p.short }
func (p *fakePort) Buffer(frames int) []float32 { return p.buf[:frames] }

// fakeServer is an in-memory audio server. Tick plays the role of the
// server's realtime thread.
type fakeServer struct {
	// cycle is read-held by Tick; Deactivate takes it to wait out the
	// period in flight, as jack_deactivate does.
	cycle sync.RWMutex

	mu          sync.Mutex
	name        string
	sampleRate  int
	own         map[string]*fakePort
	order       []string
	external    map[string]PortSet
	links       map[[2]string]bool
	process     ProcessHandler
	onPort      PortRegistrationHandler
	active      bool
	closed      bool
	registerErr error
	unregisters int
}

func newFakeServer(name string) *fakeServer {
	return &fakeServer{
		name:       name,
		sampleRate: 48000,
		own:        make(map[string]*fakePort),
		external: map[string]PortSet{
			"system:capture_1":  PlaybackPorts,
			"system:capture_2":  PlaybackPorts,
			"system:playback_1": CapturePorts,
			"system:playback_2": CapturePorts,
		},
		links: make(map[[2]string]bool),
	}
}

// dialer returns the server for any name, recording the requested one.
func (s *fakeServer) dialer(requested *string) Dialer {
	return func(name string) (Server, error) {
		if requested != nil {
			*requested = name
		}
		s.mu.Lock()
		s.closed = false
		s.mu.Unlock()
		return s, nil
	}
}

func (s *fakeServer) Name() string    { return s.name }
func (s *fakeServer) SampleRate() int { return s.sampleRate }

func (s *fakeServer) SetProcessHandler(fn ProcessHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.process = fn
	return nil
}

func (s *fakeServer) SetPortRegistrationHandler(fn PortRegistrationHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPort = fn
	return nil
}

func (s *fakeServer) RegisterPort(short string, dir Direction) (ServerPort, error) {
	s.mu.Lock()
	if s.registerErr != nil {
		s.mu.Unlock()
		return nil, s.registerErr
	}
	full := FullPortName(s.name, short)
	if _, ok := s.own[full]; ok {
		s.mu.Unlock()
		return nil, errFakeExists
	}
	p := &fakePort{name: full, short: short, dir: dir, buf: make([]float32, fakeBufferFrames)}
	s.own[full] = p
	s.order = append(s.order, full)
	notify := s.onPort
	s.mu.Unlock()

	if notify != nil {
		notify(full, true)
	}
	return p, nil
}

func (s *fakeServer) UnregisterPort(port ServerPort) error {
	s.mu.Lock()
	full := port.Name()
	delete(s.own, full)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == full })
	for link := range s.links {
		if link[0] == full || link[1] == full {
			delete(s.links, link)
		}
	}
	s.unregisters++
	notify := s.onPort
	s.mu.Unlock()

	if notify != nil {
		notify(full, false)
	}
	return nil
}

func (s *fakeServer) OwnPort(full string) (ServerPort, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.own[full]
	return p, ok
}

func (s *fakeServer) OwnPorts(dir Direction) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, n := range s.order {
		if s.own[n].dir == dir {
			names = append(names, n)
		}
	}
	return names
}

func (s *fakeServer) Ports(set PortSet) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for n, kind := range s.external {
		if set == AllPorts || set == kind {
			names = append(names, n)
		}
	}
	for _, n := range s.order {
		dir := s.own[n].dir
		if set == AllPorts || (set == CapturePorts && dir == Capture) || (set == PlaybackPorts && dir == Playback) {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

func (s *fakeServer) Connections(full string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for link := range s.links {
		switch full {
		case link[0]:
			names = append(names, link[1])
		case link[1]:
			names = append(names, link[0])
		}
	}
	return names, nil
}

func (s *fakeServer) Connect(src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[[2]string{src, dst}] = true
	return nil
}

func (s *fakeServer) Disconnect(src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.links[[2]string{src, dst}] {
		return errors.New("not connected")
	}
	delete(s.links, [2]string{src, dst})
	return nil
}

func (s *fakeServer) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	return nil
}

func (s *fakeServer) Deactivate() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.cycle.Lock()
	s.cycle.Unlock()
	return nil
}

func (s *fakeServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.process = nil
	return nil
}

// Tick runs one period if the server is active.
func (s *fakeServer) Tick(frames int) int {
	s.cycle.RLock()
	defer s.cycle.RUnlock()
	s.mu.Lock()
	fn, active := s.process, s.active
	s.mu.Unlock()
	if !active || fn == nil {
		return 0
	}
	return fn(frames)
}

// buffer returns the sample memory of one of our ports.
func (s *fakeServer) buffer(full string) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.own[full].buf
}

func (s *fakeServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func fill(buf []float32, v float32) {
	for i := range buf {
		buf[i] = v
	}
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) / float32(n)
	}
	return out
}
