package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/optional"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

type Travel struct {
	TravelId string                    `json:"travelId"`
	Name     string                    `json:"name"`
	Country  string                    `json:"country"`
	DateFrom openapi_types.Date        `json:"dateFrom"`
	DateTo   openapi_types.Date        `json:"dateTo"`
	UserId   nullable.Nullable[string] `json:"userId"`
}

type TravelList struct {
	Travels []Travel `json:"travels"`
}

type DeletedTravel struct {
	DaysDeleted int `json:"daysDeleted"`
}

type Day struct {
	DayId     string                    `json:"dayId"`
	TravelId  nullable.Nullable[string] `json:"travelId"`
	Date      openapi_types.Date        `json:"date"`
	Breakfast nullable.Nullable[string] `json:"breakfast"`
	Morning   string                    `json:"morning"`
	Lunch     nullable.Nullable[string] `json:"lunch"`
	Afternoon string                    `json:"afternoon"`
	Diner     nullable.Nullable[string] `json:"diner"`
	Link      nullable.Nullable[string] `json:"link"`
}

type DayList struct {
	Days []Day `json:"days"`
}

type Me struct {
	UserId        string                       `json:"userId"`
	Name          nullable.Nullable[string]    `json:"name"`
	Email         nullable.Nullable[string]    `json:"email"`
	EmailVerified nullable.Nullable[time.Time] `json:"emailVerified"`
	Image         nullable.Nullable[string]    `json:"image"`
}

type DeletedAccount struct {
	Accounts        int `json:"accounts"`
	Sessions        int `json:"sessions"`
	Authenticators  int `json:"authenticators"`
	DetachedTravels int `json:"detachedTravels"`
}

type CreateTravelRequest struct {
	Name     string             `json:"name"`
	Country  string             `json:"country"`
	DateFrom openapi_types.Date `json:"dateFrom"`
	DateTo   openapi_types.Date `json:"dateTo"`
}

type UpdateTravelRequest struct {
	Name     nullable.Nullable[string]             `json:"name,omitempty"`
	Country  nullable.Nullable[string]             `json:"country,omitempty"`
	DateFrom nullable.Nullable[openapi_types.Date] `json:"dateFrom,omitempty"`
	DateTo   nullable.Nullable[openapi_types.Date] `json:"dateTo,omitempty"`
}

// SetOwnerRequest requires userId to be present; null detaches the travel.
type SetOwnerRequest struct {
	UserId nullable.Nullable[string] `json:"userId"`
}

// PutDayRequest creates a day, or replaces day DayId when it is set.
type PutDayRequest struct {
	DayId     *string            `json:"dayId,omitempty"`
	Date      openapi_types.Date `json:"date"`
	Breakfast *string            `json:"breakfast,omitempty"`
	Morning   string             `json:"morning"`
	Lunch     *string            `json:"lunch,omitempty"`
	Afternoon string             `json:"afternoon"`
	Diner     *string            `json:"diner,omitempty"`
	Link      *string            `json:"link,omitempty"`
}

type UpdateDayRequest struct {
	Date      nullable.Nullable[openapi_types.Date] `json:"date,omitempty"`
	Breakfast nullable.Nullable[string]             `json:"breakfast,omitempty"`
	Morning   nullable.Nullable[string]             `json:"morning,omitempty"`
	Lunch     nullable.Nullable[string]             `json:"lunch,omitempty"`
	Afternoon nullable.Nullable[string]             `json:"afternoon,omitempty"`
	Diner     nullable.Nullable[string]             `json:"diner,omitempty"`
	Link      nullable.Nullable[string]             `json:"link,omitempty"`
}

func travelFromDomain(t domain.Travel) Travel {
	out := Travel{
		TravelId: string(t.ID),
		Name:     t.Name,
		Country:  t.Country,
		DateFrom: openapi_types.Date{Time: t.DateFrom},
		DateTo:   openapi_types.Date{Time: t.DateTo},
		UserId:   nullable.NewNullNullable[string](),
	}
	if t.UserID != nil {
		out.UserId = nullable.NewNullableWithValue(string(*t.UserID))
	}
	return out
}

func dayFromDomain(d domain.Day) Day {
	out := Day{
		DayId:     string(d.ID),
		TravelId:  nullable.NewNullNullable[string](),
		Date:      openapi_types.Date{Time: d.Date},
		Breakfast: nullableString(d.Breakfast),
		Morning:   d.Morning,
		Lunch:     nullableString(d.Lunch),
		Afternoon: d.Afternoon,
		Diner:     nullableString(d.Diner),
		Link:      nullableString(d.Link),
	}
	if d.TravelID != nil {
		out.TravelId = nullable.NewNullableWithValue(string(*d.TravelID))
	}
	return out
}

func meFromDomain(u domain.User) Me {
	out := Me{
		UserId:        string(u.ID),
		Name:          nullableString(u.Name),
		Email:         nullableString(u.Email),
		EmailVerified: nullable.NewNullNullable[time.Time](),
		Image:         nullableString(u.Image),
	}
	if u.EmailVerified != nil {
		out.EmailVerified = nullable.NewNullableWithValue(u.EmailVerified.UTC())
	}
	return out
}

func deletedAccountFromCascade(c integrity.UserCascade) DeletedAccount {
	return DeletedAccount{
		Accounts:        c.Accounts,
		Sessions:        c.Sessions,
		Authenticators:  c.Authenticators,
		DetachedTravels: c.DetachedTravels,
	}
}

func nullableString(p *string) nullable.Nullable[string] {
	if p == nil {
		return nullable.NewNullNullable[string]()
	}
	return nullable.NewNullableWithValue(*p)
}

func optionalFromNullable[T any](n nullable.Nullable[T]) optional.Optional[T] {
	if !n.IsSpecified() {
		return optional.Unspecified[T]()
	}
	if n.IsNull() {
		return optional.Null[T]()
	}
	v, err := n.Get()
	if err != nil {
		return optional.Unspecified[T]()
	}
	return optional.Some(v)
}

func optionalTimeFromNullableDate(n nullable.Nullable[openapi_types.Date]) optional.Optional[time.Time] {
	d := optionalFromNullable(n)
	switch {
	case !d.IsSpecified():
		return optional.Unspecified[time.Time]()
	case d.IsNull():
		return optional.Null[time.Time]()
	default:
		return optional.Some(d.Value().Time)
	}
}
