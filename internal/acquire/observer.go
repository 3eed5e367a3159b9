package acquire

// RejectReason says why a read was not persisted.
type RejectReason string

const (
	RejectEmpty RejectReason = "empty"
	RejectShort RejectReason = "short"
	RejectIdle  RejectReason = "idle"
)

// Observer receives loop events, typically to export metrics.
// Calls are made from the loop goroutine and must not block.
type Observer interface {
	OnStateChange(s State)
	OnFrameWritten(bytes int)
	OnReadRejected(reason RejectReason)
}

type nopObserver struct{}

func (nopObserver) OnStateChange(State)         {}
func (nopObserver) OnFrameWritten(int)          {}
func (nopObserver) OnReadRejected(RejectReason) {}
