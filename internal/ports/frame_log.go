package ports

import "github.com/bft-labs/pixdaq/internal/domain"

// FrameWriter persists accepted frames in arrival order.
// Each Append must be durable before it returns.
type FrameWriter interface {
	Append(frame domain.RawFrame) error
	Close() error
}
