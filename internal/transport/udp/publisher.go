// SPDX-License-Identifier: MIT

// Package udp publishes monitor spectra as UDP datagrams.
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"jackconnector/internal/analysis"
	applog "jackconnector/internal/log"
	"jackconnector/pkg/bitint"

	"github.com/vmihailenco/msgpack/v5"
)

// Packet formats.
const (
	FormatBinary  = "binary"
	FormatMsgpack = "msgpack"
)

// HeaderSize is the fixed part of a binary packet.
const HeaderSize = 4 + 8 + 2

// Source is what the publisher reads on every tick. *analysis.Monitor
// implements it.
type Source interface {
	Bins() int
	MagnitudesInto(dest []float64) error
	Latest() (analysis.Frame, bool)
}

// sender is satisfied by *UDPSender.
type sender interface {
	Send(data []byte) error
}

// UDPPublisher periodically packs the latest analysis results and sends them
// with a UDPSender. It runs in a goroutine managed by Start and Stop.
type UDPPublisher struct {
	logger   *applog.Logger
	sender   sender
	source   Source
	format   string
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32
	lastFrame   uint64
	sendErrs    int64

	// Reused on every tick.
	magBuffer    []float64
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher for format FormatBinary or
// FormatMsgpack. An interval <= 0 defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, s *UDPSender, source Source, format string) (*UDPPublisher, error) {
	if s == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	return newPublisher(interval, s, source, format)
}

func newPublisher(interval time.Duration, s sender, source Source, format string) (*UDPPublisher, error) {
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: source cannot be nil")
	}
	switch format {
	case FormatBinary, FormatMsgpack:
	case "":
		format = FormatBinary
	default:
		return nil, fmt.Errorf("UDPPublisher: unknown format %q", format)
	}

	logger := applog.With("udp")
	if interval <= 0 {
		interval = 16 * time.Millisecond
		logger.Warnf("invalid interval, defaulting to %s", interval)
	}
	bins := source.Bins()
	if bins > math.MaxUint16 {
		return nil, fmt.Errorf("UDPPublisher: %d bins do not fit a packet", bins)
	}
	logger.Infof("publishing %s packets every %s (%d bins)", format, interval, bins)

	return &UDPPublisher{
		logger:       logger,
		sender:       s,
		source:       source,
		format:       format,
		interval:     interval,
		magBuffer:    make([]float64, bins),
		f32Buffer:    make([]float32, bins),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins periodic publishing. Calling it while running is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.logger.Warnf("Start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.tick()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine and waits for it. Safe to call more
// than once.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debugf("publisher stopped after %d packets", p.sequenceNum)
	return nil
}

func (p *UDPPublisher) Close() error {
	return p.Stop()
}

func (p *UDPPublisher) tick() {
	packet, err := p.build()
	if err != nil {
		p.logger.Errorf("building packet: %v", err)
		return
	}
	if packet == nil {
		return
	}
	if err := p.sender.Send(packet); err != nil {
		p.sendErrs++
		if bitint.IsPowerOfTwo64(p.sendErrs) {
			p.logger.Warnf("send failed (%d so far): %v", p.sendErrs, err)
		}
		return
	}
	p.logger.Debugf("sent packet %d (%d bytes)", p.sequenceNum, len(packet))
}

// build returns nil when there is nothing new to send.
func (p *UDPPublisher) build() ([]byte, error) {
	if p.format == FormatMsgpack {
		frame, ok := p.source.Latest()
		if !ok || frame.Seq == p.lastFrame {
			return nil, nil
		}
		p.lastFrame = frame.Seq
		p.sequenceNum++
		return msgpack.Marshal(&frame)
	}

	if err := p.source.MagnitudesInto(p.magBuffer); err != nil {
		return nil, err
	}
	for i, v := range p.magBuffer {
		p.f32Buffer[i] = float32(v)
	}
	p.sequenceNum++
	p.packetBuffer.Reset()
	if err := EncodeBinary(p.packetBuffer, p.sequenceNum, time.Now().UnixNano(), p.f32Buffer); err != nil {
		return nil, err
	}
	return p.packetBuffer.Bytes(), nil
}

/*
Binary packet (BigEndian)

| Field           | Type      | Bytes | Description              |
|-----------------|-----------|-------|--------------------------|
| Sequence Number | uint32    | 4     | Monotonically increasing |
| Timestamp       | int64     | 8     | Nanoseconds since epoch  |
| Magnitude Count | uint16    | 2     | Number of floats (N)     |
| Magnitudes      | []float32 | N * 4 | FFT magnitudes           |
*/

// EncodeBinary writes one binary packet to buf.
func EncodeBinary(buf *bytes.Buffer, seq uint32, timestamp int64, magnitudes []float32) error {
	if len(magnitudes) > math.MaxUint16 {
		return fmt.Errorf("%d magnitudes do not fit a packet", len(magnitudes))
	}
	err := binary.Write(buf, binary.BigEndian, seq)
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(len(magnitudes)))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, magnitudes)
	}
	return err
}

// DecodeBinary parses a packet written by EncodeBinary.
func DecodeBinary(packet []byte) (seq uint32, timestamp int64, magnitudes []float32, err error) {
	if len(packet) < HeaderSize {
		return 0, 0, nil, fmt.Errorf("short packet: %d bytes", len(packet))
	}
	seq = binary.BigEndian.Uint32(packet[0:4])
	timestamp = int64(binary.BigEndian.Uint64(packet[4:12]))
	n := int(binary.BigEndian.Uint16(packet[12:14]))
	if len(packet) != HeaderSize+4*n {
		return 0, 0, nil, fmt.Errorf("packet of %d bytes does not hold %d magnitudes", len(packet), n)
	}
	magnitudes = make([]float32, n)
	for i := range magnitudes {
		off := HeaderSize + 4*i
		magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(packet[off : off+4]))
	}
	return seq, timestamp, magnitudes, nil
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
