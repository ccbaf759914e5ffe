package store

import (
	"context"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// TravelRepository persists travels.
//
// Result ordering expectations:
// - List methods return travels ordered by DateFrom ascending, then ID.
type TravelRepository interface {
	// Create fails with ErrAlreadyExists or ErrMissingReference (owner).
	Create(ctx context.Context, t domain.Travel) error
	// Save replaces all fields; fails with ErrNotFound or ErrMissingReference (owner).
	Save(ctx context.Context, t domain.Travel) error
	// Delete removes the travel together with its days. Fails with ErrNotFound.
	Delete(ctx context.Context, id domain.TravelID) error

	Get(ctx context.Context, id domain.TravelID) (domain.Travel, error)
	// GetForUpdate is Get that locks the travel exclusively until commit. Writers that
	// change its dates take it so concurrent day writes checking the range wait for them.
	// Fails with ErrReadOnly inside View.
	GetForUpdate(ctx context.Context, id domain.TravelID) (domain.Travel, error)
	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Travel, error)
	ListOwnerless(ctx context.Context) ([]domain.Travel, error)

	// Exists reports whether the travel exists and, inside Update, pins it against
	// concurrent deletion until commit.
	Exists(ctx context.Context, id domain.TravelID) (bool, error)

	// ClearOwner detaches every travel owned by userID and returns how many were detached.
	ClearOwner(ctx context.Context, userID domain.UserID) (int, error)
}
