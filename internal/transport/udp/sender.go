// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	applog "jackconnector/internal/log"
	"jackconnector/internal/transport"
)

// MaxDatagram is the largest UDP payload over IPv4.
const MaxDatagram = 65507

var ErrPacketTooLarge = errors.New("packet exceeds UDP datagram size")

// UDPSender writes datagrams to one target. Send and Close may be called
// from different goroutines.
type UDPSender struct {
	logger *applog.Logger

	mu     sync.Mutex // guards conn against Close
	conn   *net.UDPConn
	closed bool

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// NewUDPSender dials targetAddress ("host:port"). No local bind is made.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve UDP target %q: %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial UDP target %q: %w", targetAddress, err)
	}

	logger := applog.With("udp")
	logger.Infof("sending to %s", conn.RemoteAddr())
	return &UDPSender{logger: logger, conn: conn}, nil
}

// Target is the resolved remote address.
func (s *UDPSender) Target() string { return s.conn.RemoteAddr().String() }

// Send transmits data as one datagram.
func (s *UDPSender) Send(data []byte) error {
	if len(data) > MaxDatagram {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(data))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	n, err := s.conn.Write(data)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("send UDP packet: %w", err)
	}
	s.packets.Add(1)
	s.bytes.Add(uint64(n))
	return nil
}

// Stats returns the number of datagrams and bytes sent so far.
func (s *UDPSender) Stats() (packets, bytes uint64) {
	return s.packets.Load(), s.bytes.Load()
}

// Close closes the connection. Later calls are no-ops.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	packets, bytes := s.Stats()
	s.logger.Debugf("closing %s after %d packets (%d bytes)", s.conn.RemoteAddr(), packets, bytes)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close UDP connection: %w", err)
	}
	return nil
}
