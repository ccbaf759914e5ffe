package store

import (
	"context"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// DayRepository persists itinerary days. (TravelID, Date) is unique when TravelID is set.
type DayRepository interface {
	// Create fails with ErrAlreadyExists, ErrDayDateTaken or ErrMissingReference (travel).
	Create(ctx context.Context, d domain.Day) error
	// Save replaces all fields; fails with ErrNotFound, ErrDayDateTaken or ErrMissingReference.
	Save(ctx context.Context, d domain.Day) error
	Delete(ctx context.Context, id domain.DayID) error

	Get(ctx context.Context, id domain.DayID) (domain.Day, error)
	// ListByTravel returns the travel's days ordered by Date ascending.
	ListByTravel(ctx context.Context, travelID domain.TravelID) ([]domain.Day, error)

	// DeleteByTravel removes every day of the travel and returns how many were removed.
	DeleteByTravel(ctx context.Context, travelID domain.TravelID) (int, error)
}
