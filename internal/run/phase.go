package run

import (
	"fmt"
	"sync"

	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// Phase is the run lifecycle phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConfiguring
	PhaseAcquiring
	PhaseDecoding
	PhaseDone
	PhaseFailed
)

// String returns the name persisted in the run status.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConfiguring:
		return domain.PhaseConfiguring
	case PhaseAcquiring:
		return domain.PhaseAcquiring
	case PhaseDecoding:
		return domain.PhaseDecoding
	case PhaseDone:
		return domain.PhaseDone
	case PhaseFailed:
		return domain.PhaseFailed
	default:
		return "unknown"
	}
}

// PhaseObserver is notified after every accepted transition.
type PhaseObserver interface {
	SetPhase(phase string)
}

// Lifecycle enforces the phase order of a run:
// Idle, Configuring, Acquiring, then optionally Decoding, then Done.
// Failed is reachable from every active phase.
type Lifecycle struct {
	mu       sync.RWMutex
	phase    Phase
	logger   ports.Logger
	observer PhaseObserver
}

// NewLifecycle returns a lifecycle in PhaseIdle. observer may be nil.
func NewLifecycle(logger ports.Logger, observer PhaseObserver) *Lifecycle {
	return &Lifecycle{phase: PhaseIdle, logger: logger, observer: observer}
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// TransitionTo moves to next, or returns ErrPhaseTransition.
func (l *Lifecycle) TransitionTo(next Phase, reason string) error {
	l.mu.Lock()
	prev := l.phase

	ok := false
	switch prev {
	case PhaseIdle:
		ok = next == PhaseConfiguring
	case PhaseConfiguring:
		ok = next == PhaseAcquiring || next == PhaseFailed
	case PhaseAcquiring:
		ok = next == PhaseDecoding || next == PhaseDone || next == PhaseFailed
	case PhaseDecoding:
		ok = next == PhaseDone || next == PhaseFailed
	}
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", domain.ErrPhaseTransition, prev, next)
	}

	l.phase = next
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.SetPhase(next.String())
	}
	l.logger.Info("phase transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}

// Terminal reports whether the run has finished.
func (l *Lifecycle) Terminal() bool {
	p := l.Phase()
	return p == PhaseDone || p == PhaseFailed
}
