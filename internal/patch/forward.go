// SPDX-License-Identifier: MIT
package patch

import (
	"fmt"
	"slices"

	"jackconnector/internal/audio"
	"jackconnector/internal/config"
)

// Forward copies capture ports to playback ports. Without explicit routes
// the i-th input feeds the i-th output; surplus ports on either side stay
// unrouted and the bridge keeps unrouted outputs silent.
type Forward struct {
	routes []config.Route
	gain   float32
	resp   audio.PeriodResponse
	bufs   map[string][]float32
}

func NewForward(routes []config.Route, inputs, outputs []string, gain float32) (*Forward, error) {
	if len(routes) == 0 {
		for i := range min(len(inputs), len(outputs)) {
			routes = append(routes, config.Route{From: inputs[i], To: outputs[i]})
		}
	}
	seen := make(map[string]bool, len(routes))
	for _, r := range routes {
		if !slices.Contains(inputs, r.From) {
			return nil, fmt.Errorf("%w: route from unknown input %q", ErrBadRoute, r.From)
		}
		if !slices.Contains(outputs, r.To) {
			return nil, fmt.Errorf("%w: route to unknown output %q", ErrBadRoute, r.To)
		}
		if seen[r.To] {
			return nil, fmt.Errorf("%w: output %q routed twice", ErrBadRoute, r.To)
		}
		seen[r.To] = true
	}
	return &Forward{
		routes: routes,
		gain:   gain,
		resp:   make(audio.PeriodResponse, len(routes)),
		bufs:   make(map[string][]float32, len(routes)),
	}, nil
}

func (f *Forward) Routes() []config.Route { return slices.Clone(f.routes) }

// Process is an audio.ProcessFunc. With unity gain the capture buffers are
// handed back as is; the bridge copies them before the period ends.
func (f *Forward) Process(req audio.PeriodRequest) (audio.PeriodResponse, error) {
	clear(f.resp)
	for _, r := range f.routes {
		in, ok := req.Capture[r.From]
		if !ok {
			continue
		}
		if f.gain == 1 {
			f.resp[r.To] = in
			continue
		}
		buf := f.bufs[r.To]
		if cap(buf) < len(in) {
			buf = make([]float32, len(in))
			f.bufs[r.To] = buf
		}
		buf = buf[:len(in)]
		for i, s := range in {
			buf[i] = s * f.gain
		}
		f.resp[r.To] = buf
	}
	return f.resp, nil
}
