package users

import (
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/optional"
)

type CreateUserInput struct {
	Name          *string
	Email         *string
	EmailVerified *time.Time
	Image         *string
}

// UpdateUserInput patches a user. Every field may be cleared with null.
type UpdateUserInput struct {
	Name          optional.Optional[string]
	Email         optional.Optional[string]
	EmailVerified optional.Optional[time.Time]
	Image         optional.Optional[string]
}
