// SPDX-License-Identifier: MIT

// Package transport carries monitor frames out of the process.
package transport

import "errors"

// Transport defines a generic interface for sending processed data or events.
// Implementations must be safe for concurrent use and must not block for
// long: Send is called from the analysis worker.
type Transport interface {
	Send(data any) error
	Close() error
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Multi fans every Send out to several transports.
type Multi []Transport

func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
