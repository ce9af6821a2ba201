// SPDX-License-Identifier: MIT
//
// Package jackd connects the audio graph client to a running JACK server
// through github.com/xthexder/go-jack.
package jackd

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"jackconnector/internal/audio"
	applog "jackconnector/internal/log"

	"github.com/xthexder/go-jack"
)

// errExist is the status jack_connect reports for a pair that is already
// connected.
const errExist = 17

var errNoSuchPort = errors.New("no such port")

// status converts a JACK return code into an error.
func status(code int) error {
	if code == 0 {
		return nil
	}
	if err := jack.StrError(code); err != nil {
		return err
	}
	return fmt.Errorf("jack status %d", code)
}

type port struct {
	p     *jack.Port
	name  string
	short string
}

func (p *port) Name() string      { return p.name }
func (p *port) ShortName() string { return p.short }

// Buffer reinterprets the JACK sample memory in place. AudioSample is a
// float32, so the cast preserves layout.
func (p *port) Buffer(frames int) []float32 {
	samples := p.p.GetBuffer(uint32(frames))
	if len(samples) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&samples[0])), len(samples))
}

// Server is one JACK client connection.
type Server struct {
	client *jack.Client
	name   string
	logger *applog.Logger

	process  atomic.Pointer[audio.ProcessHandler]
	register atomic.Pointer[audio.PortRegistrationHandler]

	mu  sync.Mutex
	own map[string]*port
	// order is the registration order per direction.
	order map[audio.Direction][]string
}

// Dialer returns an audio.Dialer for JACK. With noStartServer set, a missing
// server is an error instead of being started on demand.
func Dialer(noStartServer bool) audio.Dialer {
	return func(name string) (audio.Server, error) {
		options := jack.NullOption
		if noStartServer {
			options = jack.NoStartServer
		}
		client, code := jack.ClientOpen(name, options)
		if client == nil {
			return nil, fmt.Errorf("jack_client_open %q: %w", name, status(code))
		}

		s := &Server{
			client: client,
			name:   client.GetName(),
			logger: applog.With("jackd"),
			own:    make(map[string]*port),
			order:  make(map[audio.Direction][]string),
		}
		if s.name != name {
			s.logger.Warnf("server assigned name %q instead of %q", s.name, name)
		}
		if code := client.SetProcessCallback(s.onProcess); code != 0 {
			client.Close()
			return nil, fmt.Errorf("set process callback: %w", status(code))
		}
		if code := client.SetPortRegistrationCallback(s.onPortRegistration); code != 0 {
			s.logger.Warnf("port registration callback unavailable: %v", status(code))
		}
		return s, nil
	}
}

// onProcess runs on the JACK realtime thread.
func (s *Server) onProcess(nframes uint32) int {
	fn := s.process.Load()
	if fn == nil {
		return 0
	}
	return (*fn)(int(nframes))
}

func (s *Server) onPortRegistration(id jack.PortId, registered bool) {
	fn := s.register.Load()
	if fn == nil {
		return
	}
	p := s.client.GetPortById(id)
	if p == nil {
		return
	}
	(*fn)(p.GetName(), registered)
}

func (s *Server) Name() string    { return s.name }
func (s *Server) SampleRate() int { return int(s.client.GetSampleRate()) }

func (s *Server) SetProcessHandler(fn audio.ProcessHandler) error {
	if fn == nil {
		s.process.Store(nil)
		return nil
	}
	s.process.Store(&fn)
	return nil
}

func (s *Server) SetPortRegistrationHandler(fn audio.PortRegistrationHandler) error {
	if fn == nil {
		s.register.Store(nil)
		return nil
	}
	s.register.Store(&fn)
	return nil
}

func flags(dir audio.Direction) uint64 {
	if dir == audio.Capture {
		return jack.PortIsInput
	}
	return jack.PortIsOutput
}

func (s *Server) RegisterPort(short string, dir audio.Direction) (audio.ServerPort, error) {
	jp := s.client.PortRegister(short, jack.DEFAULT_AUDIO_TYPE, flags(dir), 0)
	if jp == nil {
		return nil, fmt.Errorf("jack_port_register %q failed", short)
	}
	p := &port{p: jp, name: jp.GetName(), short: jp.GetShortName()}

	s.mu.Lock()
	s.own[p.name] = p
	s.order[dir] = append(s.order[dir], p.name)
	s.mu.Unlock()
	return p, nil
}

func (s *Server) UnregisterPort(sp audio.ServerPort) error {
	s.mu.Lock()
	p, ok := s.own[sp.Name()]
	if ok {
		delete(s.own, p.name)
		for dir, names := range s.order {
			for i, n := range names {
				if n == p.name {
					s.order[dir] = append(names[:i:i], names[i+1:]...)
					break
				}
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unregister %q: %w", sp.Name(), errNoSuchPort)
	}
	return status(s.client.PortUnregister(p.p))
}

func (s *Server) OwnPort(full string) (audio.ServerPort, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.own[full]
	return p, ok
}

func (s *Server) OwnPorts(dir audio.Direction) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order[dir]...)
}

func (s *Server) Ports(set audio.PortSet) []string {
	var f uint64
	switch set {
	case audio.CapturePorts:
		f = jack.PortIsInput
	case audio.PlaybackPorts:
		f = jack.PortIsOutput
	}
	return s.client.GetPorts("", "", f)
}

func (s *Server) Connections(full string) ([]string, error) {
	p := s.client.GetPortByName(full)
	if p == nil {
		return nil, fmt.Errorf("%q: %w", full, errNoSuchPort)
	}
	return p.GetConnections(), nil
}

func (s *Server) Connect(src, dst string) error {
	code := s.client.Connect(src, dst)
	if code == errExist {
		return nil
	}
	return status(code)
}

func (s *Server) Disconnect(src, dst string) error {
	return status(s.client.Disconnect(src, dst))
}

func (s *Server) Activate() error   { return status(s.client.Activate()) }
func (s *Server) Deactivate() error { return status(s.client.Deactivate()) }

func (s *Server) Close() error {
	s.process.Store(nil)
	s.register.Store(nil)
	return status(s.client.Close())
}
