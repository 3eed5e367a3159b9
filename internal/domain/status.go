package domain

import "time"

// Phase names persisted in RunStatus.
const (
	PhaseConfiguring = "configuring"
	PhaseAcquiring   = "acquiring"
	PhaseDecoding    = "decoding"
	PhaseDone        = "done"
	PhaseFailed      = "failed"
)

// RunStatus is the persisted progress of a single run.
// It is written atomically next to the run's frame log.
type RunStatus struct {
	RunID         string    `json:"run_id"`
	Prefix        string    `json:"prefix"`
	Phase         string    `json:"phase"`
	Acquired      bool      `json:"acquired"`
	FramesWritten uint64    `json:"frames_written"`
	BytesWritten  uint64    `json:"bytes_written"`
	LastSeq       *uint64   `json:"last_seq,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at,omitempty"`
}

// Complete reports whether the run has ended with its frame log closed.
// A run still decoding is not complete.
func (s RunStatus) Complete() bool {
	return s.Acquired && (s.Phase == PhaseDone || s.Phase == PhaseFailed)
}
