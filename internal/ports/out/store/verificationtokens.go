package store

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// VerificationTokenRepository persists single-use verification tokens.
type VerificationTokenRepository interface {
	// Create fails with ErrAlreadyExists.
	Create(ctx context.Context, v domain.VerificationToken) error

	// Take deletes the token and returns it as it was stored. Fails with ErrNotFound.
	Take(ctx context.Context, key domain.VerificationTokenKey) (domain.VerificationToken, error)

	// DeleteExpired removes tokens whose Expires is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
