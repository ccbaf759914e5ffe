// Package itinerary manages travels and their per-date days.
package itinerary

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/optional"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

type Service struct {
	st     store.Store
	policy Policy

	newTravelID func() domain.TravelID
	newDayID    func() domain.DayID
}

func NewService(st store.Store, policy Policy) *Service {
	return &Service{
		st:     st,
		policy: policy,
		newTravelID: func() domain.TravelID {
			return domain.TravelID(uuid.NewString())
		},
		newDayID: func() domain.DayID {
			return domain.DayID(uuid.NewString())
		},
	}
}

// --- travels ---

func (s *Service) CreateTravel(ctx context.Context, in CreateTravelInput) (domain.Travel, error) {
	tr := domain.Travel{
		ID:       s.newTravelID(),
		Name:     domain.NormalizeHumanName(in.Name),
		Country:  domain.NormalizeHumanName(in.Country),
		DateFrom: domain.NormalizeDate(in.DateFrom),
		DateTo:   domain.NormalizeDate(in.DateTo),
		UserID:   in.UserID,
	}
	if err := validateTravel(tr); err != nil {
		return domain.Travel{}, err
	}

	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if tr.UserID != nil {
			if err := integrity.RequireUser(ctx, tx, *tr.UserID); err != nil {
				return err
			}
		}
		return tx.Travels().Create(ctx, tr)
	})
	if err != nil {
		return domain.Travel{}, integrity.Translate(err, integrity.EntityTravel)
	}
	return tr, nil
}

func (s *Service) GetTravel(ctx context.Context, id domain.TravelID) (domain.Travel, error) {
	var tr domain.Travel
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		tr, err = tx.Travels().Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.Travel{}, integrity.Translate(err, integrity.EntityTravel)
	}
	return tr, nil
}

// ListTravelsByUser returns the user's travels ordered by start date.
func (s *Service) ListTravelsByUser(ctx context.Context, userID domain.UserID) ([]domain.Travel, error) {
	var out []domain.Travel
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Travels().ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, integrity.Translate(err, integrity.EntityTravel)
	}
	return out, nil
}

func (s *Service) ListOwnerlessTravels(ctx context.Context) ([]domain.Travel, error) {
	var out []domain.Travel
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Travels().ListOwnerless(ctx)
		return err
	})
	if err != nil {
		return nil, integrity.Translate(err, integrity.EntityTravel)
	}
	return out, nil
}

func (s *Service) UpdateTravel(ctx context.Context, id domain.TravelID, in UpdateTravelInput) (domain.Travel, error) {
	if field := firstNull(
		nullable{"name", in.Name.IsNull()},
		nullable{"country", in.Country.IsNull()},
		nullable{"dateFrom", in.DateFrom.IsNull()},
		nullable{"dateTo", in.DateTo.IsNull()},
	); field != "" {
		return domain.Travel{}, integrity.Invalid(field, "must not be null")
	}

	var out domain.Travel
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		tr, err := tx.Travels().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if in.Name.IsSpecified() {
			tr.Name = domain.NormalizeHumanName(in.Name.Value())
		}
		if in.Country.IsSpecified() {
			tr.Country = domain.NormalizeHumanName(in.Country.Value())
		}
		if in.DateFrom.IsSpecified() {
			tr.DateFrom = domain.NormalizeDate(in.DateFrom.Value())
		}
		if in.DateTo.IsSpecified() {
			tr.DateTo = domain.NormalizeDate(in.DateTo.Value())
		}
		if err := validateTravel(tr); err != nil {
			return err
		}
		if s.policy.DayWithinTravel && (in.DateFrom.IsSpecified() || in.DateTo.IsSpecified()) {
			ds, err := tx.Days().ListByTravel(ctx, id)
			if err != nil {
				return err
			}
			for _, d := range ds {
				if !tr.Covers(d.Date) {
					return dayOutsideTravel(d.Date, tr)
				}
			}
		}
		if err := tx.Travels().Save(ctx, tr); err != nil {
			return err
		}
		out = tr
		return nil
	})
	if err != nil {
		return domain.Travel{}, integrity.Translate(err, integrity.EntityTravel)
	}
	return out, nil
}

// ReassignOwner sets the travel's owner, or clears it when owner is nil.
func (s *Service) ReassignOwner(ctx context.Context, id domain.TravelID, owner *domain.UserID) (domain.Travel, error) {
	var out domain.Travel
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		tr, err := tx.Travels().Get(ctx, id)
		if err != nil {
			return err
		}
		if owner != nil {
			if err := integrity.RequireUser(ctx, tx, *owner); err != nil {
				return err
			}
		}
		tr.UserID = owner
		if err := tx.Travels().Save(ctx, tr); err != nil {
			return err
		}
		out = tr
		return nil
	})
	if err != nil {
		return domain.Travel{}, integrity.Translate(err, integrity.EntityTravel)
	}
	return out, nil
}

// DeleteTravel removes the travel and all of its days atomically and returns how many
// days were removed.
func (s *Service) DeleteTravel(ctx context.Context, id domain.TravelID) (int, error) {
	var n int
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = integrity.DeleteTravel(ctx, tx, id)
		return err
	})
	if err != nil {
		return 0, integrity.Translate(err, integrity.EntityTravel)
	}
	return n, nil
}

func validateTravel(tr domain.Travel) error {
	if tr.Name == "" {
		return integrity.Invalid("name", "must be non-empty")
	}
	if tr.Country == "" {
		return integrity.Invalid("country", "must be non-empty")
	}
	if tr.DateFrom.After(tr.DateTo) {
		return integrity.ConstraintViolation("INVALID_DATE_RANGE", "dateFrom must not be after dateTo", map[string]any{
			"dateFrom": tr.DateFrom.Format(time.DateOnly),
			"dateTo":   tr.DateTo.Format(time.DateOnly),
		})
	}
	return nil
}

// --- days ---

func (s *Service) CreateDay(ctx context.Context, in DayInput) (domain.Day, error) {
	d, err := buildDay(s.newDayID(), in)
	if err != nil {
		return domain.Day{}, err
	}
	err = s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := s.checkTravel(ctx, tx, d); err != nil {
			return err
		}
		return tx.Days().Create(ctx, d)
	})
	if err != nil {
		return domain.Day{}, integrity.Translate(err, integrity.EntityDay)
	}
	return d, nil
}

// UpsertDay creates a day when in.ID is nil. With an id it is an explicit update of that
// day: every field is replaced and the day may move to another date.
func (s *Service) UpsertDay(ctx context.Context, in UpsertDayInput) (domain.Day, error) {
	if in.ID == nil {
		return s.CreateDay(ctx, in.DayInput)
	}
	d, err := buildDay(*in.ID, in.DayInput)
	if err != nil {
		return domain.Day{}, err
	}
	err = s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Days().Get(ctx, d.ID); err != nil {
			return err
		}
		if err := s.checkTravel(ctx, tx, d); err != nil {
			return err
		}
		return tx.Days().Save(ctx, d)
	})
	if err != nil {
		return domain.Day{}, integrity.Translate(err, integrity.EntityDay)
	}
	return d, nil
}

func (s *Service) UpdateDay(ctx context.Context, id domain.DayID, in UpdateDayInput) (domain.Day, error) {
	if field := firstNull(
		nullable{"date", in.Date.IsNull()},
		nullable{"morning", in.Morning.IsNull()},
		nullable{"afternoon", in.Afternoon.IsNull()},
	); field != "" {
		return domain.Day{}, integrity.Invalid(field, "must not be null")
	}

	var out domain.Day
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.Days().Get(ctx, id)
		if err != nil {
			return err
		}
		next := DayInput{
			TravelID:  optional.ApplyPtr(in.TravelID, cur.TravelID),
			Date:      cur.Date,
			Breakfast: optional.ApplyPtr(in.Breakfast, cur.Breakfast),
			Morning:   cur.Morning,
			Lunch:     optional.ApplyPtr(in.Lunch, cur.Lunch),
			Afternoon: cur.Afternoon,
			Diner:     optional.ApplyPtr(in.Diner, cur.Diner),
			Link:      optional.ApplyPtr(in.Link, cur.Link),
		}
		if in.Date.IsSpecified() {
			next.Date = in.Date.Value()
		}
		if in.Morning.IsSpecified() {
			next.Morning = in.Morning.Value()
		}
		if in.Afternoon.IsSpecified() {
			next.Afternoon = in.Afternoon.Value()
		}

		d, err := buildDay(id, next)
		if err != nil {
			return err
		}
		if err := s.checkTravel(ctx, tx, d); err != nil {
			return err
		}
		if err := tx.Days().Save(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return domain.Day{}, integrity.Translate(err, integrity.EntityDay)
	}
	return out, nil
}

func (s *Service) GetDay(ctx context.Context, id domain.DayID) (domain.Day, error) {
	var d domain.Day
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		d, err = tx.Days().Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.Day{}, integrity.Translate(err, integrity.EntityDay)
	}
	return d, nil
}

// ListDays returns the travel's days ordered by date.
func (s *Service) ListDays(ctx context.Context, travelID domain.TravelID) ([]domain.Day, error) {
	var out []domain.Day
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Travels().Get(ctx, travelID); err != nil {
			return integrity.Translate(err, integrity.EntityTravel)
		}
		var err error
		out, err = tx.Days().ListByTravel(ctx, travelID)
		return err
	})
	if err != nil {
		return nil, integrity.Translate(err, integrity.EntityDay)
	}
	return out, nil
}

// DeleteDay removes one day; its travel is untouched.
func (s *Service) DeleteDay(ctx context.Context, id domain.DayID) error {
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Days().Delete(ctx, id)
	})
	return integrity.Translate(err, integrity.EntityDay)
}

// checkTravel verifies the day's travel exists and, under the range policy, covers the date.
func (s *Service) checkTravel(ctx context.Context, tx store.Tx, d domain.Day) error {
	if d.TravelID == nil {
		return nil
	}
	if err := integrity.RequireTravel(ctx, tx, *d.TravelID); err != nil {
		return err
	}
	if !s.policy.DayWithinTravel {
		return nil
	}
	tr, err := tx.Travels().Get(ctx, *d.TravelID)
	if err != nil {
		return err
	}
	if !tr.Covers(d.Date) {
		return dayOutsideTravel(d.Date, tr)
	}
	return nil
}

func dayOutsideTravel(date time.Time, tr domain.Travel) error {
	return integrity.ConstraintViolation("DAY_OUTSIDE_TRAVEL", "day falls outside the travel's dates", map[string]any{
		"date":     date.Format(time.DateOnly),
		"dateFrom": tr.DateFrom.Format(time.DateOnly),
		"dateTo":   tr.DateTo.Format(time.DateOnly),
	})
}

func buildDay(id domain.DayID, in DayInput) (domain.Day, error) {
	if in.Date.IsZero() {
		return domain.Day{}, integrity.Invalid("date", "is required")
	}
	d := domain.Day{
		ID:        id,
		Date:      domain.NormalizeDate(in.Date),
		Breakfast: trimOptional(in.Breakfast),
		Morning:   strings.TrimSpace(in.Morning),
		Lunch:     trimOptional(in.Lunch),
		Afternoon: strings.TrimSpace(in.Afternoon),
		Diner:     trimOptional(in.Diner),
		Link:      trimOptional(in.Link),
		TravelID:  in.TravelID,
	}
	if d.Morning == "" {
		return domain.Day{}, integrity.Invalid("morning", "must be non-empty")
	}
	if d.Afternoon == "" {
		return domain.Day{}, integrity.Invalid("afternoon", "must be non-empty")
	}
	if d.Link != nil {
		u, err := url.Parse(*d.Link)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return domain.Day{}, integrity.Invalid("link", "must be an absolute URL")
		}
	}
	return d, nil
}

// trimOptional trims free text; blank values are stored as absent.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

type nullable struct {
	field  string
	isNull bool
}

func firstNull(fs ...nullable) string {
	for _, f := range fs {
		if f.isNull {
			return f.field
		}
	}
	return ""
}
