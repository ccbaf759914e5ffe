package store

import (
	"context"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// AuthenticatorRepository persists WebAuthn credentials. CredentialID is globally unique.
type AuthenticatorRepository interface {
	// Create fails with ErrCredentialIDTaken or ErrMissingReference.
	Create(ctx context.Context, a domain.Authenticator) error
	Delete(ctx context.Context, id domain.CredentialID) error

	Get(ctx context.Context, id domain.CredentialID) (domain.Authenticator, error)
	// ListByUser returns authenticators ordered by credential id.
	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Authenticator, error)

	// BumpCounter stores counter iff it is strictly greater than the stored value.
	// Fails with ErrNotFound or ErrCounterNotIncreasing (stored value left unchanged).
	// Concurrent bumps of the same credential are strictly ordered.
	BumpCounter(ctx context.Context, id domain.CredentialID, counter int64) error

	DeleteByUser(ctx context.Context, userID domain.UserID) (int, error)
}
