package itinerary

import (
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/optional"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// Policy holds validation rules applied at the service boundary only; storage never
// enforces them.
type Policy struct {
	// DayWithinTravel requires a day's date to fall within its travel's date range.
	DayWithinTravel bool
}

type CreateTravelInput struct {
	UserID   *domain.UserID
	Name     string
	Country  string
	DateFrom time.Time
	DateTo   time.Time
}

// UpdateTravelInput patches travel metadata. None of the fields may be null;
// ownership changes go through ReassignOwner.
type UpdateTravelInput struct {
	Name     optional.Optional[string]
	Country  optional.Optional[string]
	DateFrom optional.Optional[time.Time]
	DateTo   optional.Optional[time.Time]
}

type DayInput struct {
	TravelID  *domain.TravelID
	Date      time.Time
	Breakfast *string
	Morning   string
	Lunch     *string
	Afternoon string
	Diner     *string
	Link      *string
}

// UpsertDayInput creates a day when ID is nil and replaces day ID otherwise.
type UpsertDayInput struct {
	ID *domain.DayID
	DayInput
}

// UpdateDayInput patches a day. Morning, Afternoon and Date may not be null.
type UpdateDayInput struct {
	Date      optional.Optional[time.Time]
	Breakfast optional.Optional[string]
	Morning   optional.Optional[string]
	Lunch     optional.Optional[string]
	Afternoon optional.Optional[string]
	Diner     optional.Optional[string]
	Link      optional.Optional[string]
	TravelID  optional.Optional[domain.TravelID]
}
