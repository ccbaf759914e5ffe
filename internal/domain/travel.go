package domain

import "time"

// Travel is a trip. UserID is nil for ownerless trips (e.g. imported, or whose owner
// deleted their account).
type Travel struct {
	ID TravelID

	Name    string
	Country string

	DateFrom time.Time // date-only semantics
	DateTo   time.Time // date-only semantics

	UserID *UserID
}

// Day is one itinerary entry for a calendar date.
// Morning and Afternoon are the only mandatory activity slots.
type Day struct {
	ID DayID

	Date time.Time // date-only semantics

	Breakfast *string
	Morning   string
	Lunch     *string
	Afternoon string
	Diner     *string
	Link      *string

	TravelID *TravelID
}

// Covers reports whether date falls within [DateFrom, DateTo].
func (t Travel) Covers(date time.Time) bool {
	d := NormalizeDate(date)
	return !d.Before(NormalizeDate(t.DateFrom)) && !d.After(NormalizeDate(t.DateTo))
}
