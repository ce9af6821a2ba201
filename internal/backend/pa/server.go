// SPDX-License-Identifier: MIT
/*
Package pa runs the audio graph client without a JACK server. A single
PortAudio duplex stream provides the period clock, and a small in-process
router exposes the device channels as graph ports:

	system:capture_N   device input channel N (emits audio)
	system:playback_N  device output channel N (accepts audio)

Client ports connect to these by name, exactly as they would under JACK.

Thread Safety:
  - The stream callback reads an immutable routing table swapped atomically
  - Port and connection changes take a mutex the callback never touches
*/
package pa

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"jackconnector/internal/audio"
	"jackconnector/internal/config"
	applog "jackconnector/internal/log"

	"github.com/gordonklaus/portaudio"
)

const (
	systemClient   = "system"
	capturePrefix  = systemClient + ":capture_"
	playbackPrefix = systemClient + ":playback_"

	// minBufferFrames sizes client port buffers when the stream is opened
	// with a small or variable buffer size.
	minBufferFrames = 4096
)

var paLibOpenStream = portaudio.OpenStream

var (
	errNoSuchPort   = errors.New("no such port")
	errPortExists   = errors.New("port already exists")
	errNotConnected = errors.New("ports are not connected")
	errBadRoute     = errors.New("source must emit audio and destination must accept it")
)

type port struct {
	name  string
	short string
	dir   audio.Direction
	buf   []float32
}

func (p *port) Name() string                { return p.name }
func (p *port) ShortName() string           { return p.short }
func (p *port) Buffer(frames int) []float32 { return p.buf[:frames] }

// routing is what the stream callback needs for one period.
type routing struct {
	capture     []*port
	captureFrom [][]int   // device input channels mixed into capture[i]
	outFrom     [][]*port // client playback ports mixed into output channel ch
	passthrough [][]int   // device input channels mixed into output channel ch
}

// Server is a PortAudio-backed audio.Server.
type Server struct {
	name      string
	cfg       config.PortAudioConfig
	inDev     *portaudio.DeviceInfo
	outDev    *portaudio.DeviceInfo
	maxFrames int
	terminate bool
	logger    *applog.Logger
	process   atomic.Pointer[audio.ProcessHandler]
	onPort    atomic.Pointer[audio.PortRegistrationHandler]
	routes    atomic.Pointer[routing]
	callbacks atomic.Uint64
	oversized atomic.Uint64

	mu     sync.Mutex
	own    map[string]*port
	order  []string
	links  map[[2]string]bool
	stream *portaudio.Stream
}

// Dialer returns an audio.Dialer that opens the configured devices. Each
// dial initializes PortAudio; Close terminates it.
func Dialer(cfg config.PortAudioConfig) audio.Dialer {
	return func(name string) (audio.Server, error) {
		if err := Initialize(); err != nil {
			return nil, err
		}

		var inDev, outDev *portaudio.DeviceInfo
		var err error
		if cfg.InputChannels > 0 {
			if inDev, err = InputDevice(cfg.InputDevice); err != nil {
				Terminate()
				return nil, fmt.Errorf("input device: %w", err)
			}
			cfg.InputChannels = min(cfg.InputChannels, inDev.MaxInputChannels)
		}
		if cfg.OutputChannels > 0 {
			if outDev, err = OutputDevice(cfg.OutputDevice); err != nil {
				Terminate()
				return nil, fmt.Errorf("output device: %w", err)
			}
			cfg.OutputChannels = min(cfg.OutputChannels, outDev.MaxOutputChannels)
		}

		s := newServer(name, cfg, inDev, outDev)
		s.terminate = true
		return s, nil
	}
}

func newServer(name string, cfg config.PortAudioConfig, inDev, outDev *portaudio.DeviceInfo) *Server {
	s := &Server{
		name:      name,
		cfg:       cfg,
		inDev:     inDev,
		outDev:    outDev,
		maxFrames: max(cfg.FramesPerBuffer, minBufferFrames),
		logger:    applog.With("portaudio"),
		own:       make(map[string]*port),
		links:     make(map[[2]string]bool),
	}
	s.routes.Store(&routing{})
	return s
}

func (s *Server) Name() string    { return s.name }
func (s *Server) SampleRate() int { return int(s.cfg.SampleRate) }

func (s *Server) SetProcessHandler(fn audio.ProcessHandler) error {
	if fn == nil {
		s.process.Store(nil)
	} else {
		s.process.Store(&fn)
	}
	return nil
}

func (s *Server) SetPortRegistrationHandler(fn audio.PortRegistrationHandler) error {
	if fn == nil {
		s.onPort.Store(nil)
	} else {
		s.onPort.Store(&fn)
	}
	return nil
}

func (s *Server) notify(name string, registered bool) {
	if fn := s.onPort.Load(); fn != nil {
		(*fn)(name, registered)
	}
}

func (s *Server) RegisterPort(short string, dir audio.Direction) (audio.ServerPort, error) {
	full := audio.FullPortName(s.name, short)

	s.mu.Lock()
	if _, ok := s.own[full]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%q: %w", full, errPortExists)
	}
	p := &port{name: full, short: short, dir: dir, buf: make([]float32, s.maxFrames)}
	s.own[full] = p
	s.order = append(s.order, full)
	s.reroute()
	s.mu.Unlock()

	s.notify(full, true)
	return p, nil
}

func (s *Server) UnregisterPort(sp audio.ServerPort) error {
	full := sp.Name()

	s.mu.Lock()
	if _, ok := s.own[full]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%q: %w", full, errNoSuchPort)
	}
	delete(s.own, full)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == full })
	for link := range s.links {
		if link[0] == full || link[1] == full {
			delete(s.links, link)
		}
	}
	s.reroute()
	s.mu.Unlock()

	s.notify(full, false)
	return nil
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
	var names []string
	for _, n := range s.order {
		if s.own[n].dir == dir {
			names = append(names, n)
		}
	}
	return names
}

// Ports lists system ports first, then client ports in registration order.
func (s *Server) Ports(set audio.PortSet) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	if set != audio.CapturePorts {
		for ch := range s.cfg.InputChannels {
			names = append(names, capturePrefix+strconv.Itoa(ch+1))
		}
	}
	if set != audio.PlaybackPorts {
		for ch := range s.cfg.OutputChannels {
			names = append(names, playbackPrefix+strconv.Itoa(ch+1))
		}
	}
	for _, n := range s.order {
		dir := s.own[n].dir
		if set == audio.AllPorts ||
			(set == audio.CapturePorts && dir == audio.Capture) ||
			(set == audio.PlaybackPorts && dir == audio.Playback) {
			names = append(names, n)
		}
	}
	return names
}

// systemChannel parses "system:capture_N" or "system:playback_N" into a
// zero-based channel index.
func systemChannel(full, prefix string, channels int) (int, bool) {
	rest, ok := strings.CutPrefix(full, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > channels {
		return 0, false
	}
	return n - 1, true
}

// isSource reports whether full emits audio; callers hold s.mu.
func (s *Server) isSource(full string) bool {
	if _, ok := systemChannel(full, capturePrefix, s.cfg.InputChannels); ok {
		return true
	}
	p, ok := s.own[full]
	return ok && p.dir == audio.Playback
}

// isSink reports whether full accepts audio; callers hold s.mu.
func (s *Server) isSink(full string) bool {
	if _, ok := systemChannel(full, playbackPrefix, s.cfg.OutputChannels); ok {
		return true
	}
	p, ok := s.own[full]
	return ok && p.dir == audio.Capture
}

func (s *Server) exists(full string) bool {
	return s.isSource(full) || s.isSink(full)
}

func (s *Server) Connections(full string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(full) {
		return nil, fmt.Errorf("%q: %w", full, errNoSuchPort)
	}
	var names []string
	for link := range s.links {
		switch full {
		case link[0]:
			names = append(names, link[1])
		case link[1]:
			names = append(names, link[0])
		}
	}
	slices.Sort(names)
	return names, nil
}

// Connect routes src into dst. Client playback into client capture would
// need a period of delay and is refused.
func (s *Server) Connect(src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isSource(src) || !s.isSink(dst) {
		return fmt.Errorf("connect %s -> %s: %w", src, dst, errBadRoute)
	}
	if _, ok := s.own[src]; ok {
		if _, ok := s.own[dst]; ok {
			return fmt.Errorf("connect %s -> %s: %w", src, dst, errBadRoute)
		}
	}
	s.links[[2]string{src, dst}] = true
	s.reroute()
	return nil
}

func (s *Server) Disconnect(src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{src, dst}
	if !s.links[key] {
		return fmt.Errorf("disconnect %s -> %s: %w", src, dst, errNotConnected)
	}
	delete(s.links, key)
	s.reroute()
	return nil
}

// reroute rebuilds the callback's routing table; callers hold s.mu.
func (s *Server) reroute() {
	r := &routing{
		outFrom:     make([][]*port, s.cfg.OutputChannels),
		passthrough: make([][]int, s.cfg.OutputChannels),
	}
	index := make(map[string]int)
	for _, n := range s.order {
		if p := s.own[n]; p.dir == audio.Capture {
			index[n] = len(r.capture)
			r.capture = append(r.capture, p)
		}
	}
	r.captureFrom = make([][]int, len(r.capture))

	for link := range s.links {
		src, dst := link[0], link[1]
		inCh, fromDevice := systemChannel(src, capturePrefix, s.cfg.InputChannels)
		outCh, toDevice := systemChannel(dst, playbackPrefix, s.cfg.OutputChannels)
		switch {
		case fromDevice && toDevice:
			r.passthrough[outCh] = append(r.passthrough[outCh], inCh)
		case fromDevice:
			if i, ok := index[dst]; ok {
				r.captureFrom[i] = append(r.captureFrom[i], inCh)
			}
		case toDevice:
			if p, ok := s.own[src]; ok {
				r.outFrom[outCh] = append(r.outFrom[outCh], p)
			}
		}
	}
	s.routes.Store(r)
}

// callback is the PortAudio stream callback with non-interleaved buffers.
func (s *Server) callback(in, out [][]float32) {
	frames := 0
	switch {
	case len(out) > 0:
		frames = len(out[0])
	case len(in) > 0:
		frames = len(in[0])
	}
	if frames > s.maxFrames {
		s.oversized.Add(1)
		frames = s.maxFrames
	}
	s.callbacks.Add(1)

	r := s.routes.Load()
	for i, p := range r.capture {
		buf := p.buf[:frames]
		clear(buf)
		for _, ch := range r.captureFrom[i] {
			if ch < len(in) {
				mix(buf, in[ch])
			}
		}
	}

	if fn := s.process.Load(); fn != nil {
		(*fn)(frames)
	}

	for ch := range out {
		o := out[ch]
		clear(o)
		if ch >= len(r.outFrom) {
			continue
		}
		for _, p := range r.outFrom[ch] {
			mix(o, p.buf[:frames])
		}
		for _, ic := range r.passthrough[ch] {
			if ic < len(in) {
				mix(o, in[ic])
			}
		}
	}
}

func mix(dst, src []float32) {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] += src[i]
	}
}

func (s *Server) streamParameters() portaudio.StreamParameters {
	params := portaudio.StreamParameters{
		FramesPerBuffer: s.cfg.FramesPerBuffer,
		SampleRate:      s.cfg.SampleRate,
	}
	if s.inDev != nil && s.cfg.InputChannels > 0 {
		latency := s.inDev.DefaultHighInputLatency
		if s.cfg.LowLatency {
			latency = s.inDev.DefaultLowInputLatency
		}
		params.Input = portaudio.StreamDeviceParameters{
			Device:   s.inDev,
			Channels: s.cfg.InputChannels,
			Latency:  latency,
		}
	}
	if s.outDev != nil && s.cfg.OutputChannels > 0 {
		latency := s.outDev.DefaultHighOutputLatency
		if s.cfg.LowLatency {
			latency = s.outDev.DefaultLowOutputLatency
		}
		params.Output = portaudio.StreamDeviceParameters{
			Device:   s.outDev,
			Channels: s.cfg.OutputChannels,
			Latency:  latency,
		}
	}
	return params
}

// Activate opens and starts the duplex stream.
func (s *Server) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}

	stream, err := paLibOpenStream(s.streamParameters(), s.callback)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}
	s.stream = stream
	s.logger.Infof("stream started: %d in, %d out, %.0f Hz, %d frames",
		s.cfg.InputChannels, s.cfg.OutputChannels, s.cfg.SampleRate, s.cfg.FramesPerBuffer)
	return nil
}

// Deactivate stops the stream. PortAudio waits for the callback in
// progress to return.
func (s *Server) Deactivate() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()
	if stream == nil {
		return nil
	}

	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("stop stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	s.logger.Debugf("stream stopped after %d callbacks", s.callbacks.Load())
	return nil
}

func (s *Server) Close() error {
	errs := []error{s.Deactivate()}
	s.process.Store(nil)
	s.onPort.Store(nil)
	if n := s.oversized.Load(); n > 0 {
		s.logger.Warnf("%d callbacks exceeded %d frames", n, s.maxFrames)
	}
	if s.terminate {
		errs = append(errs, Terminate())
	}
	return errors.Join(errs...)
}
