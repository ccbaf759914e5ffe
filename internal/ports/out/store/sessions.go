package store

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// SessionRepository persists login sessions keyed by token. Expiry is not evaluated here.
type SessionRepository interface {
	// Create fails with ErrAlreadyExists or ErrMissingReference.
	Create(ctx context.Context, s domain.Session) error
	// SetExpires fails with ErrNotFound.
	SetExpires(ctx context.Context, token domain.SessionToken, expires time.Time) error
	Delete(ctx context.Context, token domain.SessionToken) error

	Get(ctx context.Context, token domain.SessionToken) (domain.Session, error)

	DeleteByUser(ctx context.Context, userID domain.UserID) (int, error)
	// DeleteExpired removes sessions whose Expires is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
