// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics is valid
// and records nothing. Every method is safe on the realtime thread: the
// children of the vectors are resolved once, up front.
type Metrics struct {
	Periods        *prometheus.CounterVec
	Violations     *prometheus.CounterVec
	ConsumerErrors prometheus.Counter
	Rendezvous     prometheus.Histogram
	PeriodFrames   prometheus.Gauge
	Ports          *prometheus.GaugeVec

	processed prometheus.Counter
	silent    prometheus.Counter
	byKind    [3]prometheus.Counter
}

// NewMetrics creates the bridge collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Periods: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jackconnector",
				Subsystem: "bridge",
				Name:      "periods_total",
				Help:      "Audio periods handled by the bridge, by outcome (processed, silent)",
			},
			[]string{"outcome"},
		),
		Violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jackconnector",
				Subsystem: "bridge",
				Name:      "contract_violations_total",
				Help:      "Output ports rejected from a process response, by kind",
			},
			[]string{"kind"},
		),
		ConsumerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jackconnector",
			Subsystem: "bridge",
			Name:      "consumer_errors_total",
			Help:      "Periods where the process callback returned an error or panicked",
		}),
		Rendezvous: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jackconnector",
			Subsystem: "bridge",
			Name:      "rendezvous_seconds",
			Help:      "Time the audio thread spent blocked waiting for the consumer",
			Buckets:   prometheus.ExponentialBuckets(50e-6, 2, 12),
		}),
		PeriodFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jackconnector",
			Subsystem: "bridge",
			Name:      "period_frames",
			Help:      "Frame count of the most recent period",
		}),
		Ports: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jackconnector",
				Subsystem: "registry",
				Name:      "ports",
				Help:      "Registered ports by direction",
			},
			[]string{"direction"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.Periods, m.Violations, m.ConsumerErrors, m.Rendezvous, m.PeriodFrames, m.Ports,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	m.processed = m.Periods.WithLabelValues("processed")
	m.silent = m.Periods.WithLabelValues("silent")
	for k := ViolationUnknownPort; k <= ViolationNotANumber; k++ {
		m.byKind[k] = m.Violations.WithLabelValues(k.String())
	}
	return m, nil
}

func (m *Metrics) periodSilent(frames int) {
	if m == nil {
		return
	}
	m.silent.Inc()
	m.PeriodFrames.Set(float64(frames))
}

func (m *Metrics) periodProcessed(frames int, waited time.Duration) {
	if m == nil {
		return
	}
	m.processed.Inc()
	m.PeriodFrames.Set(float64(frames))
	m.Rendezvous.Observe(waited.Seconds())
}

func (m *Metrics) consumerError() {
	if m == nil {
		return
	}
	m.ConsumerErrors.Inc()
}

// violations counts every ContractError inside a joined error.
func (m *Metrics) violations(err error) {
	if m == nil {
		return
	}
	for _, e := range flatten(err) {
		var ce *ContractError
		if errors.As(e, &ce) && int(ce.Kind) < len(m.byKind) {
			m.byKind[ce.Kind].Inc()
		}
	}
}

func (m *Metrics) ports(capture, playback int) {
	if m == nil {
		return
	}
	m.Ports.WithLabelValues(Capture.String()).Set(float64(capture))
	m.Ports.WithLabelValues(Playback.String()).Set(float64(playback))
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
