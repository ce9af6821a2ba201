// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
)

// Lifecycle errors. They are returned synchronously and the call that
// returns one has no side effects.
var (
	ErrAlreadyOpen    = errors.New("client already opened, close it before opening a new one")
	ErrNotOpen        = errors.New("client is not opened")
	ErrAlreadyActive  = errors.New("client already activated")
	ErrNotActive      = errors.New("client is not active")
	ErrAlreadyClosing = errors.New("client is already closing")
	ErrEmptyName      = errors.New("empty name")
	ErrNameTooLong    = errors.New("name too long")
)

// Registry and lookup errors.
var (
	ErrCapacityExceeded = errors.New("port capacity exceeded")
	ErrPortNotFound     = errors.New("port not found")
)

// Bridge errors.
var (
	ErrAlreadyServing = errors.New("bridge is already being served")
	ErrBridgeStopped  = errors.New("bridge stopped")
)

// ServerError wraps a failure reported by the audio server.
type ServerError struct {
	Op  string // e.g. "activate", "connect system:capture_1 -> me:in"
	Err error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("audio server: %s: %v", e.Op, e.Err)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

func serverError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServerError{Op: op, Err: err}
}

// ViolationKind classifies a malformed consumer response.
type ViolationKind int

const (
	ViolationUnknownPort ViolationKind = iota
	ViolationLength
	ViolationNotANumber
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationUnknownPort:
		return "unknown_port"
	case ViolationLength:
		return "length"
	case ViolationNotANumber:
		return "not_a_number"
	default:
		return "unknown"
	}
}

// ContractError reports one output port the bridge refused to copy. The port
// stays silent for that period.
type ContractError struct {
	Port string
	Kind ViolationKind
	Got  int // sample count, or index of the NaN sample
	Want int // frame count
}

func (e *ContractError) Error() string {
	switch e.Kind {
	case ViolationUnknownPort:
		return fmt.Sprintf("process response: no output port named %q", e.Port)
	case ViolationLength:
		return fmt.Sprintf("process response: port %q has %d samples, period has %d frames", e.Port, e.Got, e.Want)
	case ViolationNotANumber:
		return fmt.Sprintf("process response: port %q sample %d is not a number", e.Port, e.Got)
	default:
		return fmt.Sprintf("process response: port %q rejected", e.Port)
	}
}
