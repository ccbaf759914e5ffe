package store

import (
	"context"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// AccountRepository persists identity-provider links keyed by (provider, providerAccountId).
type AccountRepository interface {
	// Link inserts the account or, when the key is already linked to the same user,
	// replaces its token fields. Fails with ErrAccountLinkedElsewhere when the key
	// belongs to a different user, or ErrMissingReference.
	Link(ctx context.Context, a domain.Account) error
	Delete(ctx context.Context, key domain.AccountKey) error

	Get(ctx context.Context, key domain.AccountKey) (domain.Account, error)
	// ListByUser returns accounts ordered by provider, then providerAccountId.
	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Account, error)

	DeleteByUser(ctx context.Context, userID domain.UserID) (int, error)
}
