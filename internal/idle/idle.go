// Package idle classifies readout buffers as link idle traffic or payload.
//
// The front end pads its output with a small set of filler bytes whenever no
// hit data is queued. A buffer is idle when it is made almost entirely of
// those fillers and carries too few other bytes to hold a hit.
package idle

import "errors"

// Default thresholds.
const (
	DefaultFracCutoff = 0.99
	DefaultMinNonIdle = 20
)

// ErrEmptyFrame is the panic value raised when classifying an empty buffer.
var ErrEmptyFrame = errors.New("idle: cannot classify empty frame")

// Alphabet is the set of byte values treated as idle filler.
type Alphabet [256]bool

// NewAlphabet builds an Alphabet from the given byte values.
func NewAlphabet(values ...byte) Alphabet {
	var a Alphabet
	for _, v := range values {
		a[v] = true
	}
	return a
}

// DefaultAlphabet is the link idle set: the comma character and the
// all-ones fill byte.
var DefaultAlphabet = NewAlphabet(0xBC, 0xFF)

// Contains reports whether b is an idle byte.
func (a *Alphabet) Contains(b byte) bool {
	return a[b]
}

// Thresholds parameterise the idle decision.
type Thresholds struct {
	// FracCutoff is the minimum idle fraction for a buffer to be idle.
	FracCutoff float64

	// MinNonIdle is the non-idle byte count at which a buffer is never idle.
	MinNonIdle int
}

// DefaultThresholds returns the standard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{FracCutoff: DefaultFracCutoff, MinNonIdle: DefaultMinNonIdle}
}

// Verdict is the outcome of classifying one buffer.
type Verdict struct {
	Idle         bool
	IdleFraction float64
	NonIdle      int
}

// Classifier applies Thresholds over an Alphabet.
type Classifier struct {
	Alphabet   Alphabet
	Thresholds Thresholds
}

// NewClassifier returns a Classifier over the default alphabet.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{Alphabet: DefaultAlphabet, Thresholds: t}
}

// Classify counts idle bytes in frame and returns the verdict.
// It panics with ErrEmptyFrame if frame is empty; callers must guard.
func (c *Classifier) Classify(frame []byte) Verdict {
	if len(frame) == 0 {
		panic(ErrEmptyFrame)
	}

	nIdle := 0
	for _, b := range frame {
		if c.Alphabet.Contains(b) {
			nIdle++
		}
	}
	nonIdle := len(frame) - nIdle
	frac := float64(nIdle) / float64(len(frame))

	v := Verdict{IdleFraction: frac, NonIdle: nonIdle}
	if nonIdle == 0 {
		v.Idle = true
		return v
	}
	v.Idle = frac >= c.Thresholds.FracCutoff && nonIdle < c.Thresholds.MinNonIdle
	return v
}

// IsIdle reports whether frame is idle traffic.
func (c *Classifier) IsIdle(frame []byte) bool {
	return c.Classify(frame).Idle
}

// IsIdle classifies frame with the default alphabet.
func IsIdle(frame []byte, t Thresholds) bool {
	return Classify(frame, t).Idle
}

// Classify classifies frame with the default alphabet.
func Classify(frame []byte, t Thresholds) Verdict {
	c := Classifier{Alphabet: DefaultAlphabet, Thresholds: t}
	return c.Classify(frame)
}
