package httpapi

import (
	"context"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

type callerKey struct{}

// WithCaller stores the user resolved from the bearer session.
func WithCaller(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, callerKey{}, u)
}

func CallerFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(callerKey{}).(domain.User)
	return u, ok && u.ID != ""
}
