// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "jackconnector/internal/log"
	"jackconnector/pkg/bitint"
)

// PeriodRequest is what the consumer sees for one period.
//
// Capture maps capture port short names to this period's samples. Both the
// map and the slices alias memory owned by the audio server and the bridge:
// they are valid only until the ProcessFunc returns and must not be kept.
type PeriodRequest struct {
	Frames  int
	Inputs  []string // capture short names in registry order
	Capture map[string][]float32
}

// PeriodResponse maps playback port short names to exactly Frames samples.
// A nil or empty response leaves every output silent.
type PeriodResponse map[string][]float32

// ProcessFunc computes one period of playback samples. It runs on the
// bridge's serving goroutine, never on the realtime thread, and is never
// invoked concurrently with itself.
type ProcessFunc func(req PeriodRequest) (PeriodResponse, error)

// ErrorHandler receives consumer errors and contract violations on the
// serving goroutine, after the audio thread has been released.
type ErrorHandler func(err error)

// Middleware wraps a ProcessFunc, e.g. to tap capture samples.
type Middleware func(next ProcessFunc) ProcessFunc

// Chain applies middlewares so that the first one is outermost.
func Chain(fn ProcessFunc, mws ...Middleware) ProcessFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		fn = mws[i](fn)
	}
	return fn
}

// BridgeState reports whether a period is in flight.
type BridgeState int32

const (
	StateIdle BridgeState = iota
	StateAwaitingResponse
)

func (s BridgeState) String() string {
	if s == StateAwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

type binding struct {
	process ProcessFunc
	onError ErrorHandler
}

// period is the rendezvous for one tick. done is created fresh per period
// and closed exactly once by the serving goroutine.
type period struct {
	req     PeriodRequest
	table   *portTable
	binding *binding
	done    chan struct{}
}

// Bridge hands each period from the audio server's realtime thread to a
// serving goroutine and blocks the realtime thread until the consumer's
// samples have been copied into the playback buffers.
//
// Thread Safety:
//   - Tick is called by the server's realtime thread only.
//   - Serve runs on exactly one goroutine for the lifetime of the bridge.
//   - Bind, Unbind, Enable, Disable and WaitIdle are safe from any goroutine
//     except the serving one (WaitIdle from inside a ProcessFunc deadlocks).
type Bridge struct {
	registry *PortRegistry
	metrics  *Metrics
	logger   *applog.Logger

	binding  atomic.Pointer[binding]
	enabled  atomic.Bool
	serving  atomic.Bool
	busy     atomic.Int32
	frames   atomic.Int64
	inflight atomic.Pointer[period]

	requests chan *period
	quit     chan struct{}
	stopOnce sync.Once

	violations atomic.Uint64
	failures   atomic.Uint64
}

// NewBridge creates a bridge reading port layout from registry. The bridge
// starts enabled but unbound, so periods are silent until Bind.
func NewBridge(registry *PortRegistry, metrics *Metrics) *Bridge {
	b := &Bridge{
		registry: registry,
		metrics:  metrics,
		logger:   applog.With("bridge"),
		requests: make(chan *period),
		quit:     make(chan struct{}),
	}
	b.enabled.Store(true)
	registry.quiesce = b.WaitIdle
	registry.metrics = metrics
	t := registry.snapshot()
	metrics.ports(len(t.capture), len(t.playback))
	return b
}

// Bind installs the consumer. onError may be nil.
func (b *Bridge) Bind(fn ProcessFunc, onError ErrorHandler) {
	if fn == nil {
		b.Unbind()
		return
	}
	b.binding.Store(&binding{process: fn, onError: onError})
}

// Unbind removes the consumer; later periods are silent no-ops. A period
// already in flight completes with the old consumer.
func (b *Bridge) Unbind() {
	b.binding.Store(nil)
}

// Bound reports whether a consumer is installed.
func (b *Bridge) Bound() bool {
	return b.binding.Load() != nil
}

// Enable and Disable gate processing globally. A disabled bridge behaves as
// if no consumer were bound.
func (b *Bridge) Enable()  { b.enabled.Store(true) }
func (b *Bridge) Disable() { b.enabled.Store(false) }

// State reports whether a period is awaiting the consumer.
func (b *Bridge) State() BridgeState {
	if b.inflight.Load() != nil {
		return StateAwaitingResponse
	}
	return StateIdle
}

// Frames returns the frame count of the most recent period, 0 before the
// first one.
func (b *Bridge) Frames() int {
	return int(b.frames.Load())
}

// Tick runs the period protocol. It is the ProcessHandler installed with the
// audio server and always returns 0.
func (b *Bridge) Tick(frames int) int {
	b.busy.Add(1)
	defer b.busy.Add(-1)
	b.frames.Store(int64(frames))

	table := b.registry.snapshot()
	bound := b.binding.Load()
	if bound == nil || !b.enabled.Load() || !b.serving.Load() {
		table.silence(frames)
		b.metrics.periodSilent(frames)
		return 0
	}

	p := &period{
		table:   table,
		binding: bound,
		done:    make(chan struct{}),
	}

	// Only one period may be in flight. Under a well-behaved server this
	// never loops because ticks are already serialized.
	for !b.inflight.CompareAndSwap(nil, p) {
		if prev := b.inflight.Load(); prev != nil {
			<-prev.done
		}
	}

	for i := range table.capture {
		table.captureMap[table.inputs[i]] = table.capture[i].handle.Buffer(frames)
	}
	p.req = PeriodRequest{Frames: frames, Inputs: table.inputs, Capture: table.captureMap}

	started := time.Now()
	select {
	case b.requests <- p:
	case <-b.quit:
		table.silence(frames)
		b.inflight.CompareAndSwap(p, nil)
		close(p.done)
		b.metrics.periodSilent(frames)
		return 0
	}

	<-p.done
	b.metrics.periodProcessed(frames, time.Since(started))
	return 0
}

// Serve runs consumer callbacks until ctx is done or Stop is called. It may
// be called once per bridge; a second call returns ErrAlreadyServing, a call
// after Stop returns ErrBridgeStopped.
func (b *Bridge) Serve(ctx context.Context) error {
	select {
	case <-b.quit:
		return ErrBridgeStopped
	default:
	}
	if !b.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer b.serving.Store(false)

	b.logger.Debugf("serving periods")
	for {
		select {
		case <-ctx.Done():
			b.Stop()
			return ctx.Err()
		case <-b.quit:
			return nil
		case p := <-b.requests:
			b.run(p)
		}
	}
}

// Stop ends Serve. Ticks after Stop are silent. Idempotent.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.quit)
		b.logger.Debugf("stopped after %d violations, %d consumer failures",
			b.violations.Load(), b.failures.Load())
	})
}

// WaitIdle blocks until no tick is running and no period is in flight.
func (b *Bridge) WaitIdle() {
	for {
		if p := b.inflight.Load(); p != nil {
			<-p.done
			continue
		}
		if b.busy.Load() == 0 {
			return
		}
		time.Sleep(50 * time.Microsecond)
	}
}

// run executes one period on the serving goroutine. The rendezvous is
// signalled on every path, including a panicking consumer.
func (b *Bridge) run(p *period) {
	defer func() {
		if r := recover(); r != nil {
			p.table.silence(p.req.Frames)
			b.fail(p, fmt.Errorf("process callback panicked: %v", r))
		}
		b.inflight.CompareAndSwap(p, nil)
		close(p.done)
	}()

	resp, err := p.binding.process(p.req)
	if err != nil {
		p.table.silence(p.req.Frames)
		b.fail(p, fmt.Errorf("process callback: %w", err))
		return
	}
	if err := b.copyOut(p, resp); err != nil {
		b.metrics.violations(err)
		n := b.violations.Add(1)
		if bitint.IsPowerOfTwo64(int64(n)) {
			b.logger.Warnf("rejected process response (%d so far): %v", n, err)
		}
		b.report(p, err)
	}
}

func (b *Bridge) fail(p *period, err error) {
	b.metrics.consumerError()
	n := b.failures.Add(1)
	if bitint.IsPowerOfTwo64(int64(n)) {
		b.logger.Errorf("%v (%d so far)", err, n)
	}
	b.report(p, err)
}

func (b *Bridge) report(p *period, err error) {
	if p.binding.onError != nil {
		p.binding.onError(err)
	}
}

// copyOut validates resp and copies each valid output into its playback
// buffer. Outputs that were omitted or rejected are zero-filled. Samples are
// copied verbatim, without clamping.
func (b *Bridge) copyOut(p *period, resp PeriodResponse) error {
	t, frames := p.table, p.req.Frames
	if len(resp) == 0 {
		t.silence(frames)
		return nil
	}

	written := make([]bool, len(t.playback))
	var errs []error
	for name, samples := range resp {
		i, ok := findPort(t.playback, name)
		if !ok {
			errs = append(errs, &ContractError{Port: name, Kind: ViolationUnknownPort})
			continue
		}
		if len(samples) != frames {
			errs = append(errs, &ContractError{Port: name, Kind: ViolationLength, Got: len(samples), Want: frames})
			continue
		}
		if j := indexNaN(samples); j >= 0 {
			errs = append(errs, &ContractError{Port: name, Kind: ViolationNotANumber, Got: j, Want: frames})
			continue
		}
		copy(t.playback[i].handle.Buffer(frames), samples)
		written[i] = true
	}

	for i := range t.playback {
		if !written[i] {
			clear(t.playback[i].handle.Buffer(frames))
		}
	}
	return errors.Join(errs...)
}

func indexNaN(samples []float32) int {
	for i, s := range samples {
		if s != s {
			return i
		}
	}
	return -1
}
