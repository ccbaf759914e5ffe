package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/itinerary"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/users"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/idempotency"
)

// Server adapts HTTP requests onto the user and itinerary services.
// A caller may act on a travel it owns. Ownerless travels can be read by anyone
// and changed by no one.
type Server struct {
	Users     *users.Service
	Itinerary *itinerary.Service
	Idem      idempotency.Store

	logger *slog.Logger
}

func NewServer(usersSvc *users.Service, itinerarySvc *itinerary.Service, idem idempotency.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Users:     usersSvc,
		Itinerary: itinerarySvc,
		Idem:      idem,
		logger:    logger,
	}
}

func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	u, err := s.Users.Get(r.Context(), caller.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meFromDomain(u))
}

// DeleteMe deletes the caller's account. Credentials go with it; travels stay, ownerless.
func (s *Server) DeleteMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	res, err := s.Users.Delete(r.Context(), caller.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "account deleted",
		slog.String("user_id", string(caller.ID)),
		slog.Int("detached_travels", res.DetachedTravels),
	)
	writeJSON(w, http.StatusOK, deletedAccountFromCascade(res))
}

// --- travels ---

func (s *Server) ListTravels(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var ownerless *bool
	if err := runtime.BindQueryParameter("form", true, false, "ownerless", r.URL.Query(), &ownerless); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "Invalid format for parameter ownerless", map[string]any{"reason": err.Error()})
		return
	}

	var (
		ts  []domain.Travel
		err error
	)
	if ownerless != nil && *ownerless {
		ts, err = s.Itinerary.ListOwnerlessTravels(r.Context())
	} else {
		ts, err = s.Itinerary.ListTravelsByUser(r.Context(), caller.ID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]Travel, 0, len(ts))
	for _, t := range ts {
		out = append(out, travelFromDomain(t))
	}
	writeJSON(w, http.StatusOK, TravelList{Travels: out})
}

func (s *Server) CreateTravel(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body CreateTravelRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.DateFrom.IsZero() || body.DateTo.IsZero() {
		s.fail(w, r, integrity.Invalid("dateFrom", "dateFrom and dateTo are required"))
		return
	}

	owner := caller.ID
	t, err := s.Itinerary.CreateTravel(r.Context(), itinerary.CreateTravelInput{
		UserID:   &owner,
		Name:     body.Name,
		Country:  body.Country,
		DateFrom: body.DateFrom.Time,
		DateTo:   body.DateTo.Time,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, travelFromDomain(t))
}

func (s *Server) GetTravel(w http.ResponseWriter, r *http.Request) {
	t, ok := s.travelFromPath(w, r, readAccess)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, travelFromDomain(t))
}

func (s *Server) UpdateTravel(w http.ResponseWriter, r *http.Request) {
	t, ok := s.travelFromPath(w, r, writeAccess)
	if !ok {
		return
	}
	var body UpdateTravelRequest
	if !decodeBody(w, r, &body) {
		return
	}
	updated, err := s.Itinerary.UpdateTravel(r.Context(), t.ID, itinerary.UpdateTravelInput{
		Name:     optionalFromNullable(body.Name),
		Country:  optionalFromNullable(body.Country),
		DateFrom: optionalTimeFromNullableDate(body.DateFrom),
		DateTo:   optionalTimeFromNullableDate(body.DateTo),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, travelFromDomain(updated))
}

// DeleteTravel removes the travel together with all of its days.
func (s *Server) DeleteTravel(w http.ResponseWriter, r *http.Request) {
	t, ok := s.travelFromPath(w, r, writeAccess)
	if !ok {
		return
	}
	n, err := s.Itinerary.DeleteTravel(r.Context(), t.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeletedTravel{DaysDeleted: n})
}

func (s *Server) SetTravelOwner(w http.ResponseWriter, r *http.Request) {
	t, ok := s.travelFromPath(w, r, writeAccess)
	if !ok {
		return
	}
	var body SetOwnerRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if !body.UserId.IsSpecified() {
		s.fail(w, r, integrity.Invalid("userId", "is required (null detaches the travel)"))
		return
	}

	var owner *domain.UserID
	if !body.UserId.IsNull() {
		v, err := body.UserId.Get()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		id := domain.UserID(v)
		owner = &id
	}
	updated, err := s.Itinerary.ReassignOwner(r.Context(), t.ID, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, travelFromDomain(updated))
}

// --- days ---

func (s *Server) ListDays(w http.ResponseWriter, r *http.Request) {
	t, ok := s.travelFromPath(w, r, readAccess)
	if !ok {
		return
	}
	ds, err := s.Itinerary.ListDays(r.Context(), t.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]Day, 0, len(ds))
	for _, d := range ds {
		out = append(out, dayFromDomain(d))
	}
	writeJSON(w, http.StatusOK, DayList{Days: out})
}

// PutDay creates a day on the travel, or replaces an existing day when dayId is given.
// A second day for the same date is a conflict.
func (s *Server) PutDay(w http.ResponseWriter, r *http.Request) {
	t, ok := s.travelFromPath(w, r, writeAccess)
	if !ok {
		return
	}
	var body PutDayRequest
	if !decodeBody(w, r, &body) {
		return
	}

	in := itinerary.UpsertDayInput{
		DayInput: itinerary.DayInput{
			TravelID:  &t.ID,
			Date:      body.Date.Time,
			Breakfast: body.Breakfast,
			Morning:   body.Morning,
			Lunch:     body.Lunch,
			Afternoon: body.Afternoon,
			Diner:     body.Diner,
			Link:      body.Link,
		},
	}
	status := http.StatusCreated
	if body.DayId != nil {
		existing, err := s.Itinerary.GetDay(r.Context(), domain.DayID(*body.DayId))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.authorizeDay(r.Context(), existing, writeAccess); err != nil {
			s.fail(w, r, err)
			return
		}
		in.ID = &existing.ID
		status = http.StatusOK
	}

	d, err := s.Itinerary.UpsertDay(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, dayFromDomain(d))
}

func (s *Server) UpdateDay(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dayFromPath(w, r, writeAccess)
	if !ok {
		return
	}
	var body UpdateDayRequest
	if !decodeBody(w, r, &body) {
		return
	}
	updated, err := s.Itinerary.UpdateDay(r.Context(), d.ID, itinerary.UpdateDayInput{
		Date:      optionalTimeFromNullableDate(body.Date),
		Breakfast: optionalFromNullable(body.Breakfast),
		Morning:   optionalFromNullable(body.Morning),
		Lunch:     optionalFromNullable(body.Lunch),
		Afternoon: optionalFromNullable(body.Afternoon),
		Diner:     optionalFromNullable(body.Diner),
		Link:      optionalFromNullable(body.Link),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dayFromDomain(updated))
}

func (s *Server) DeleteDay(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dayFromPath(w, r, writeAccess)
	if !ok {
		return
	}
	if err := s.Itinerary.DeleteDay(r.Context(), d.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeAppError(w, r, s.logger, err)
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	u, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing caller", nil)
	}
	return u, ok
}

// access is the kind of operation a handler performs on a travel or day.
type access int

const (
	readAccess access = iota
	writeAccess
)

func (s *Server) travelFromPath(w http.ResponseWriter, r *http.Request, mode access) (domain.Travel, bool) {
	var id string
	if !bindPathID(w, r, "travelId", &id) {
		return domain.Travel{}, false
	}
	t, err := s.Itinerary.GetTravel(r.Context(), domain.TravelID(id))
	if err != nil {
		s.fail(w, r, err)
		return domain.Travel{}, false
	}
	if err := authorizeTravel(r.Context(), t, mode); err != nil {
		s.fail(w, r, err)
		return domain.Travel{}, false
	}
	return t, true
}

func (s *Server) dayFromPath(w http.ResponseWriter, r *http.Request, mode access) (domain.Day, bool) {
	var id string
	if !bindPathID(w, r, "dayId", &id) {
		return domain.Day{}, false
	}
	d, err := s.Itinerary.GetDay(r.Context(), domain.DayID(id))
	if err != nil {
		s.fail(w, r, err)
		return domain.Day{}, false
	}
	if err := s.authorizeDay(r.Context(), d, mode); err != nil {
		s.fail(w, r, err)
		return domain.Day{}, false
	}
	return d, true
}

// authorizeDay applies the travel rule to the day's travel. Detached days are
// treated like ownerless travels.
func (s *Server) authorizeDay(ctx context.Context, d domain.Day, mode access) error {
	if d.TravelID == nil {
		if mode == writeAccess {
			return errOwnerlessChanged
		}
		return nil
	}
	t, err := s.Itinerary.GetTravel(ctx, *d.TravelID)
	if err != nil {
		return err
	}
	return authorizeTravel(ctx, t, mode)
}

func authorizeTravel(ctx context.Context, t domain.Travel, mode access) error {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return errForbidden
	}
	if t.UserID == nil {
		if mode == writeAccess {
			return errOwnerlessChanged
		}
		return nil
	}
	if *t.UserID != caller.ID {
		return errNotOwner
	}
	return nil
}

func bindPathID(w http.ResponseWriter, r *http.Request, name string, dst *string) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dst, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", fmt.Sprintf("Invalid format for parameter %s", name), map[string]any{"reason": err.Error()})
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body", map[string]any{"reason": err.Error()})
		return false
	}
	return true
}
