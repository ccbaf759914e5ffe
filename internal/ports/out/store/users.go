package store

import (
	"context"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// UserRepository persists users. Email uniqueness is enforced by the store (case-insensitive).
type UserRepository interface {
	// Create fails with ErrAlreadyExists (id) or ErrEmailTaken.
	Create(ctx context.Context, u domain.User) error
	// Update replaces all fields; fails with ErrNotFound or ErrEmailTaken.
	Update(ctx context.Context, u domain.User) error
	// Delete removes the user. Its accounts, sessions and authenticators go with it;
	// travels it owned are detached. Fails with ErrNotFound.
	Delete(ctx context.Context, id domain.UserID) error

	Get(ctx context.Context, id domain.UserID) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)

	// Exists reports whether the user exists and, inside Update, pins it against
	// concurrent deletion until commit.
	Exists(ctx context.Context, id domain.UserID) (bool, error)
}
