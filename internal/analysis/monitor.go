// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"maps"
	"sync"
	"time"

	"jackconnector/internal/audio"
	applog "jackconnector/internal/log"
	"jackconnector/internal/transport"
	"jackconnector/pkg/bitint"
)

const (
	DefaultFFTSize   = 2048
	DefaultSmoothing = 0.3

	onsetThreshold = 0.05
	onsetRatio     = 1.8
)

// Options configures a Monitor.
type Options struct {
	Port      string // Capture short name; empty follows the first input.
	FFTSize   int    // Power of two; 0 means DefaultFFTSize.
	Window    WindowFunc
	Smoothing float64
	Interval  time.Duration // Minimum spacing of level frames; 0 sends one per block.
}

// Monitor taps one capture port. The tap copies the block into a single-slot
// mailbox and returns; a worker goroutine does the analysis. When the worker
// falls behind, newer blocks replace the unread one and count as drops.
type Monitor struct {
	opts       Options
	spectrum   *Spectrum
	bandEnergy *BandEnergy
	onset      *OnsetDetector
	transports []transport.Transport
	logger     *applog.Logger
	now        func() time.Time

	// Mailbox.
	mu       sync.Mutex
	cond     *sync.Cond
	slot     []float32
	slotPort string
	spare    []float32
	pending  bool
	closed   bool
	drops    uint64

	// Worker state.
	history  []float32
	seq      uint64
	lastSent time.Time
	levels   map[string]float64
	sendErrs int64

	latestMu sync.RWMutex
	latest   Frame
	ok       bool

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewMonitor builds a monitor publishing to every given transport.
func NewMonitor(opts Options, sampleRate float64, transports ...transport.Transport) (*Monitor, error) {
	if opts.FFTSize == 0 {
		opts.FFTSize = DefaultFFTSize
	}
	if opts.Interval < 0 {
		return nil, errors.New("monitor interval must not be negative")
	}
	spectrum, err := NewSpectrum(opts.FFTSize, sampleRate, opts.Window, opts.Smoothing)
	if err != nil {
		return nil, err
	}
	m := &Monitor{
		opts:       opts,
		spectrum:   spectrum,
		bandEnergy: NewBandEnergy(spectrum, nil),
		onset:      NewOnsetDetector(onsetThreshold, onsetRatio),
		transports: transports,
		logger:     applog.With("monitor"),
		now:        time.Now,
		history:    make([]float32, opts.FFTSize),
		levels:     make(map[string]float64),
	}
	m.cond = sync.NewCond(&m.mu)
	return m, nil
}

// Spectrum exposes the analyser for readers such as the UDP publisher.
func (m *Monitor) Spectrum() *Spectrum { return m.spectrum }

// Middleware installs the tap in front of a consumer.
func (m *Monitor) Middleware(next audio.ProcessFunc) audio.ProcessFunc {
	return func(req audio.PeriodRequest) (audio.PeriodResponse, error) {
		name := m.opts.Port
		if name == "" && len(req.Inputs) > 0 {
			name = req.Inputs[0]
		}
		if buf, ok := req.Capture[name]; ok {
			m.post(name, buf)
		}
		return next(req)
	}
}

func (m *Monitor) post(port string, buf []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.pending {
		m.drops++
	}
	m.slot = append(m.slot[:0], buf...)
	m.slotPort = port
	m.pending = true
	m.cond.Signal()
}

// Drops reports blocks that were overwritten before the worker read them.
func (m *Monitor) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// Start launches the worker. Later calls are no-ops.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.loop()
		m.logger.Infof("analysing %s (fft %d, window %v, every %s)",
			portLabel(m.opts.Port), m.opts.FFTSize, m.opts.Window, m.opts.Interval)
	})
}

// Stop ends the worker after the block it is analysing, if any. Transports
// are left open.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.cond.Broadcast()
		m.mu.Unlock()
		m.wg.Wait()
		m.logger.Debugf("stopped after %d frames, %d drops", m.seq, m.Drops())
	})
}

// Close implements io.Closer.
func (m *Monitor) Close() error {
	m.Stop()
	return nil
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		for !m.pending && !m.closed {
			m.cond.Wait()
		}
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.slot, m.spare = m.spare, m.slot
		port := m.slotPort
		m.pending = false
		m.mu.Unlock()

		m.analyse(port, m.spare)
	}
}

func (m *Monitor) analyse(port string, block []float32) {
	size, n := len(m.history), len(block)
	if n >= size {
		copy(m.history, block[n-size:])
	} else {
		copy(m.history, m.history[n:])
		copy(m.history[size-n:], block)
	}

	rms, peak := levels(block)
	if m.onset.Detect(rms) {
		m.seq++
		m.send(Frame{Type: FrameOnset, Seq: m.seq, Port: port, RMS: rms, Peak: peak})
	}

	now := m.now()
	if !m.lastSent.IsZero() && now.Sub(m.lastSent) < m.opts.Interval {
		return
	}
	m.lastSent = now

	m.spectrum.Process(m.history)
	if err := m.bandEnergy.Compute(m.levels); err != nil {
		m.logger.Errorf("band energy: %v", err)
		return
	}

	m.seq++
	frame := Frame{
		Type:  FrameLevel,
		Seq:   m.seq,
		Port:  port,
		RMS:   rms,
		Peak:  peak,
		Bands: maps.Clone(m.levels),
	}
	m.latestMu.Lock()
	m.latest, m.ok = frame, true
	m.latestMu.Unlock()
	m.send(frame)
}

func (m *Monitor) send(frame Frame) {
	for _, t := range m.transports {
		if err := t.Send(frame); err != nil {
			m.sendErrs++
			if bitint.IsPowerOfTwo64(m.sendErrs) {
				m.logger.Warnf("send failed (%d so far): %v", m.sendErrs, err)
			}
		}
	}
}

// Latest returns the most recent level frame.
func (m *Monitor) Latest() (Frame, bool) {
	m.latestMu.RLock()
	defer m.latestMu.RUnlock()
	return m.latest, m.ok
}

func portLabel(p string) string {
	if p == "" {
		return "first capture port"
	}
	return p
}

func (m *Monitor) Bins() int { return m.spectrum.Bins() }

func (m *Monitor) MagnitudesInto(dest []float64) error { return m.spectrum.MagnitudesInto(dest) }
