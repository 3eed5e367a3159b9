// Package metrics exports acquisition metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/pixdaq/internal/acquire"
	"github.com/bft-labs/pixdaq/internal/domain"
)

const (
	framesTotal  = "pixdaq_frames_written_total"
	bytesTotal   = "pixdaq_bytes_written_total"
	burstsTotal  = "pixdaq_bursts_total"
	loopState    = "pixdaq_loop_state"
	rejectsTotal = "pixdaq_reads_rejected_total"
	runPhase     = "pixdaq_run_phase"
)

var phases = []string{
	domain.PhaseConfiguring,
	domain.PhaseAcquiring,
	domain.PhaseDecoding,
	domain.PhaseDone,
	domain.PhaseFailed,
}

// PromObserver implements acquire.Observer on Prometheus collectors.
type PromObserver struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	rejects  *prometheus.CounterVec
	phase    *prometheus.GaugeVec
}

// NewPromObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPromObserver(reg prometheus.Registerer) *PromObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	frames := prometheus.NewCounter(prometheus.CounterOpts{
		Name: framesTotal,
		Help: "Frames persisted to the frame log.",
	})
	written := prometheus.NewCounter(prometheus.CounterOpts{
		Name: bytesTotal,
		Help: "Raw bytes persisted to the frame log.",
	})
	bursts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: burstsTotal,
		Help: "Hit bursts drained from the device.",
	})
	state := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: loopState,
		Help: "Acquisition loop state: 0 waiting, 1 draining.",
	})
	rejects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: rejectsTotal,
		Help: "Device reads not persisted, by reason.",
	}, []string{"reason"})
	phase := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: runPhase,
		Help: "Current run phase, 1 for the active phase.",
	}, []string{"phase"})

	reg.MustRegister(frames, written, bursts, state, rejects, phase)

	return &PromObserver{
		counters: map[string]prometheus.Counter{
			framesTotal: frames,
			bytesTotal:  written,
			burstsTotal: bursts,
		},
		gauges: map[string]prometheus.Gauge{
			loopState: state,
		},
		rejects: rejects,
		phase:   phase,
	}
}

// OnStateChange implements acquire.Observer.
func (p *PromObserver) OnStateChange(s acquire.State) {
	p.gauges[loopState].Set(float64(s))
	if s == acquire.StateDraining {
		p.counters[burstsTotal].Inc()
	}
}

// OnFrameWritten implements acquire.Observer.
func (p *PromObserver) OnFrameWritten(n int) {
	p.counters[framesTotal].Inc()
	p.counters[bytesTotal].Add(float64(n))
}

// OnReadRejected implements acquire.Observer.
func (p *PromObserver) OnReadRejected(reason acquire.RejectReason) {
	p.rejects.WithLabelValues(string(reason)).Inc()
}

// SetPhase marks ph as the active run phase.
func (p *PromObserver) SetPhase(ph string) {
	for _, known := range phases {
		v := 0.0
		if known == ph {
			v = 1
		}
		p.phase.WithLabelValues(known).Set(v)
	}
}

var _ acquire.Observer = (*PromObserver)(nil)
