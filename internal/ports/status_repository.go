package ports

import (
	"context"

	"github.com/bft-labs/pixdaq/internal/domain"
)

// StatusRepository handles run status persistence.
type StatusRepository interface {
	// Load retrieves the last saved status.
	// Returns an empty status and nil error if none exists.
	Load(ctx context.Context) (domain.RunStatus, error)

	// Save persists the status atomically.
	Save(ctx context.Context, status domain.RunStatus) error
}
