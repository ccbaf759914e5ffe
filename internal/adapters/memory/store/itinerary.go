package store

import (
	"context"
	"errors"
	"sort"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

type travels struct{ t *tx }

func (r travels) Create(ctx context.Context, tr domain.Travel) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if tr.ID == "" {
		return errors.New("empty travel id")
	}
	st := r.t.st
	if _, ok := st.travels[tr.ID]; ok {
		return store.ErrAlreadyExists
	}
	if err := r.checkOwner(tr.UserID); err != nil {
		return err
	}
	st.travels[tr.ID] = cloneTravel(tr)
	return nil
}

func (r travels) Save(ctx context.Context, tr domain.Travel) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	st := r.t.st
	if _, ok := st.travels[tr.ID]; !ok {
		return store.ErrNotFound
	}
	if err := r.checkOwner(tr.UserID); err != nil {
		return err
	}
	st.travels[tr.ID] = cloneTravel(tr)
	return nil
}

// Delete mirrors the schema's foreign key action: the travel's days are removed with it.
func (r travels) Delete(ctx context.Context, id domain.TravelID) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.st.travels[id]; !ok {
		return store.ErrNotFound
	}
	if _, err := r.t.Days().DeleteByTravel(ctx, id); err != nil {
		return err
	}
	delete(r.t.st.travels, id)
	return nil
}

func (r travels) Get(ctx context.Context, id domain.TravelID) (domain.Travel, error) {
	_ = ctx
	tr, ok := r.t.st.travels[id]
	if !ok {
		return domain.Travel{}, store.ErrNotFound
	}
	return cloneTravel(tr), nil
}

// GetForUpdate needs no lock here; Update transactions already run one at a time.
func (r travels) GetForUpdate(ctx context.Context, id domain.TravelID) (domain.Travel, error) {
	if err := r.t.writable(); err != nil {
		return domain.Travel{}, err
	}
	return r.Get(ctx, id)
}

func (r travels) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Travel, error) {
	_ = ctx
	out := make([]domain.Travel, 0)
	for _, tr := range r.t.st.travels {
		if tr.UserID != nil && *tr.UserID == userID {
			out = append(out, cloneTravel(tr))
		}
	}
	sortTravels(out)
	return out, nil
}

func (r travels) ListOwnerless(ctx context.Context) ([]domain.Travel, error) {
	_ = ctx
	out := make([]domain.Travel, 0)
	for _, tr := range r.t.st.travels {
		if tr.UserID == nil {
			out = append(out, cloneTravel(tr))
		}
	}
	sortTravels(out)
	return out, nil
}

func (r travels) Exists(ctx context.Context, id domain.TravelID) (bool, error) {
	_ = ctx
	_, ok := r.t.st.travels[id]
	return ok, nil
}

func (r travels) ClearOwner(ctx context.Context, userID domain.UserID) (int, error) {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, tr := range r.t.st.travels {
		if tr.UserID != nil && *tr.UserID == userID {
			tr.UserID = nil
			r.t.st.travels[id] = tr
			n++
		}
	}
	return n, nil
}

func (r travels) checkOwner(userID *domain.UserID) error {
	if userID == nil {
		return nil
	}
	if _, ok := r.t.st.users[*userID]; !ok {
		return store.ErrMissingReference
	}
	return nil
}

type days struct{ t *tx }

func (r days) Create(ctx context.Context, d domain.Day) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if d.ID == "" {
		return errors.New("empty day id")
	}
	st := r.t.st
	if _, ok := st.days[d.ID]; ok {
		return store.ErrAlreadyExists
	}
	d = cloneDay(d)
	if err := r.checkTravel(d.TravelID); err != nil {
		return err
	}
	if k, ok := keyOf(d); ok {
		if _, taken := st.dayByKey[k]; taken {
			return store.ErrDayDateTaken
		}
		st.dayByKey[k] = d.ID
	}
	st.days[d.ID] = d
	return nil
}

func (r days) Save(ctx context.Context, d domain.Day) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	st := r.t.st
	existing, ok := st.days[d.ID]
	if !ok {
		return store.ErrNotFound
	}
	d = cloneDay(d)
	if err := r.checkTravel(d.TravelID); err != nil {
		return err
	}
	if k, ok := keyOf(d); ok {
		if holder, taken := st.dayByKey[k]; taken && holder != d.ID {
			return store.ErrDayDateTaken
		}
	}
	if k, ok := keyOf(existing); ok {
		delete(st.dayByKey, k)
	}
	if k, ok := keyOf(d); ok {
		st.dayByKey[k] = d.ID
	}
	st.days[d.ID] = d
	return nil
}

func (r days) Delete(ctx context.Context, id domain.DayID) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	d, ok := r.t.st.days[id]
	if !ok {
		return store.ErrNotFound
	}
	r.remove(d)
	return nil
}

func (r days) Get(ctx context.Context, id domain.DayID) (domain.Day, error) {
	_ = ctx
	d, ok := r.t.st.days[id]
	if !ok {
		return domain.Day{}, store.ErrNotFound
	}
	return cloneDay(d), nil
}

func (r days) ListByTravel(ctx context.Context, travelID domain.TravelID) ([]domain.Day, error) {
	_ = ctx
	out := make([]domain.Day, 0)
	for _, d := range r.t.st.days {
		if d.TravelID != nil && *d.TravelID == travelID {
			out = append(out, cloneDay(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return string(out[i].ID) < string(out[j].ID)
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (r days) DeleteByTravel(ctx context.Context, travelID domain.TravelID) (int, error) {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for _, d := range r.t.st.days {
		if d.TravelID != nil && *d.TravelID == travelID {
			r.remove(d)
			n++
		}
	}
	return n, nil
}

func (r days) remove(d domain.Day) {
	if k, ok := keyOf(d); ok {
		delete(r.t.st.dayByKey, k)
	}
	delete(r.t.st.days, d.ID)
}

func (r days) checkTravel(travelID *domain.TravelID) error {
	if travelID == nil {
		return nil
	}
	if _, ok := r.t.st.travels[*travelID]; !ok {
		return store.ErrMissingReference
	}
	return nil
}

// keyOf returns the uniqueness key of d; days without a travel have none.
func keyOf(d domain.Day) (dayKey, bool) {
	if d.TravelID == nil {
		return dayKey{}, false
	}
	return newDayKey(*d.TravelID, domain.NormalizeDate(d.Date).Unix()), true
}

func sortTravels(ts []domain.Travel) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].DateFrom.Equal(ts[j].DateFrom) {
			return string(ts[i].ID) < string(ts[j].ID)
		}
		return ts[i].DateFrom.Before(ts[j].DateFrom)
	})
}

func cloneTravel(tr domain.Travel) domain.Travel {
	out := tr
	out.DateFrom = domain.NormalizeDate(tr.DateFrom)
	out.DateTo = domain.NormalizeDate(tr.DateTo)
	out.UserID = clonePtr(tr.UserID)
	return out
}

func cloneDay(d domain.Day) domain.Day {
	out := d
	out.Date = domain.NormalizeDate(d.Date)
	out.Breakfast = clonePtr(d.Breakfast)
	out.Lunch = clonePtr(d.Lunch)
	out.Diner = clonePtr(d.Diner)
	out.Link = clonePtr(d.Link)
	out.TravelID = clonePtr(d.TravelID)
	return out
}
