package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memclock "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/clock"
	memidempotency "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/idempotency"
	memstore "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/store"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/credentials"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/itinerary"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/users"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

type testAPI struct {
	h     http.Handler
	clk   *memclock.ManualClock
	users *users.Service
	creds *credentials.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	st := memstore.NewStore()
	clk := memclock.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	usersSvc := users.NewService(st)
	credSvc := credentials.NewService(st, clk, credentials.Options{})
	itinSvc := itinerary.NewService(st, itinerary.Policy{})

	api := NewServer(usersSvc, itinSvc, memidempotency.NewStore(), logger)
	h := NewRouter(api, RouterOptions{
		AuthMiddleware: NewSessionAuthMiddleware(credSvc, logger),
		Logger:         logger,
	})
	return &testAPI{h: h, clk: clk, users: usersSvc, creds: credSvc}
}

// signIn creates a user with an open session and returns the user id and bearer header.
func (a *testAPI) signIn(t *testing.T, email string) (domain.UserID, string) {
	t.Helper()

	u, err := a.users.Create(context.Background(), users.CreateUserInput{Email: &email})
	require.NoError(t, err)
	sess, err := a.creds.CreateSession(context.Background(), u.ID, time.Time{})
	require.NoError(t, err)
	return u.ID, "Bearer " + string(sess.SessionToken)
}

func (a *testAPI) do(t *testing.T, method, path, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	return a.doWithHeaders(t, method, path, authz, body, nil)
}

func (a *testAPI) doWithHeaders(t *testing.T, method, path, authz, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body=%s", rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, rec).Error.Code
}

func (a *testAPI) createTravel(t *testing.T, authz string) Travel {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/travels", authz, `{"name":"Japan","country":"JP","dateFrom":"2024-04-01","dateTo":"2024-04-10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[Travel](t, rec)
}

func TestHealthz_NoAuth(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAuth_RejectsMissingAndUnknownTokens(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/me", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = a.do(t, http.MethodGet, "/me", "Token abc", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = a.do(t, http.MethodGet, "/me", "Bearer nope", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
}

func TestAuth_ExpiredSessionIsDistinct(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, authz := a.signIn(t, "a@x.com")

	rec := a.do(t, http.MethodGet, "/me", authz, "")
	require.Equal(t, http.StatusOK, rec.Code)

	a.clk.Advance(credentials.DefaultSessionMaxAge)
	rec = a.do(t, http.MethodGet, "/me", authz, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_EXPIRED", errorCode(t, rec))
}

func TestMe_ReturnsCaller(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	id, authz := a.signIn(t, "a@x.com")

	rec := a.do(t, http.MethodGet, "/me", authz, "")
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[Me](t, rec)
	assert.Equal(t, string(id), me.UserId)
	assert.Equal(t, "a@x.com", me.Email.MustGet())
	assert.True(t, me.Name.IsNull())
}

func TestTravels_DayLifecycle(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	owner, authz := a.signIn(t, "a@x.com")

	tr := a.createTravel(t, authz)
	assert.Equal(t, string(owner), tr.UserId.MustGet())
	assert.Equal(t, "2024-04-01", tr.DateFrom.String())

	rec := a.do(t, http.MethodPost, "/travels/"+tr.TravelId+"/days", authz, `{"date":"2024-04-02","morning":"Temple","afternoon":"Market","lunch":"Ramen"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	day := decode[Day](t, rec)
	assert.Equal(t, "Ramen", day.Lunch.MustGet())
	assert.True(t, day.Breakfast.IsNull())

	rec = a.do(t, http.MethodPost, "/travels/"+tr.TravelId+"/days", authz, `{"date":"2024-04-02","morning":"Park","afternoon":"Museum"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DAY_DATE_TAKEN", errorCode(t, rec))

	// Replacing by id keeps the same date without conflicting with itself.
	rec = a.do(t, http.MethodPost, "/travels/"+tr.TravelId+"/days", authz, `{"dayId":"`+day.DayId+`","date":"2024-04-02","morning":"Park","afternoon":"Museum"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Park", decode[Day](t, rec).Morning)

	rec = a.do(t, http.MethodPost, "/travels/"+tr.TravelId+"/days", authz, `{"date":"2024-04-03","morning":"Hike","afternoon":"Onsen"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/travels/"+tr.TravelId+"/days", authz, "")
	require.Equal(t, http.StatusOK, rec.Code)
	days := decode[DayList](t, rec).Days
	require.Len(t, days, 2)
	assert.Equal(t, "2024-04-02", days[0].Date.String())
	assert.Equal(t, "2024-04-03", days[1].Date.String())

	rec = a.do(t, http.MethodDelete, "/travels/"+tr.TravelId, authz, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[DeletedTravel](t, rec).DaysDeleted)

	rec = a.do(t, http.MethodGet, "/travels/"+tr.TravelId, authz, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TRAVEL_NOT_FOUND", errorCode(t, rec))

	rec = a.do(t, http.MethodPatch, "/days/"+day.DayId, authz, `{"morning":"x"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DAY_NOT_FOUND", errorCode(t, rec))
}

func TestTravels_CreateValidation(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, authz := a.signIn(t, "a@x.com")

	rec := a.do(t, http.MethodPost, "/travels", authz, `{"name":"Japan","country":"JP","dateFrom":"2024-04-10","dateTo":"2024-04-01"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_DATE_RANGE", errorCode(t, rec))

	rec = a.do(t, http.MethodPost, "/travels", authz, `{"name":"Japan","country":"JP"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = a.do(t, http.MethodPost, "/travels", authz, `{"name":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, rec))

	rec = a.do(t, http.MethodPost, "/travels", authz, `{"name":"Japan","country":"JP","dateFrom":"04/01/2024","dateTo":"2024-04-10"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTravels_UpdatePatch(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, authz := a.signIn(t, "a@x.com")
	tr := a.createTravel(t, authz)

	rec := a.do(t, http.MethodPatch, "/travels/"+tr.TravelId, authz, `{"name":"Kyushu","dateTo":"2024-04-12"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[Travel](t, rec)
	assert.Equal(t, "Kyushu", got.Name)
	assert.Equal(t, "JP", got.Country)
	assert.Equal(t, "2024-04-12", got.DateTo.String())

	rec = a.do(t, http.MethodPatch, "/travels/"+tr.TravelId, authz, `{"country":null}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = a.do(t, http.MethodPatch, "/travels/"+tr.TravelId, authz, `{"dateFrom":"2024-05-01"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_DATE_RANGE", errorCode(t, rec))
}

func TestTravels_OtherUsersTravelIsForbidden(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, alice := a.signIn(t, "a@x.com")
	_, bob := a.signIn(t, "b@x.com")
	tr := a.createTravel(t, alice)

	rec := a.do(t, http.MethodGet, "/travels/"+tr.TravelId, bob, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	rec = a.do(t, http.MethodPost, "/travels/"+tr.TravelId+"/days", bob, `{"date":"2024-04-02","morning":"a","afternoon":"b"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodGet, "/travels", bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[TravelList](t, rec).Travels)
}

func TestTravels_SetOwner(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, alice := a.signIn(t, "a@x.com")
	bobID, bob := a.signIn(t, "b@x.com")
	tr := a.createTravel(t, alice)
	path := "/travels/" + tr.TravelId + "/owner"

	rec := a.do(t, http.MethodPut, path, alice, `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = a.do(t, http.MethodPut, path, alice, `{"userId":"ghost"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "UNKNOWN_USER", errorCode(t, rec))

	rec = a.do(t, http.MethodPut, path, alice, `{"userId":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[Travel](t, rec).UserId.IsNull())

	// Once detached, nobody can claim the travel back.
	rec = a.do(t, http.MethodPut, path, bob, `{"userId":"`+string(bobID)+`"}`)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	rec = a.do(t, http.MethodGet, "/travels/"+tr.TravelId, bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[Travel](t, rec).UserId.IsNull())
}

func TestTravels_TransferToAnotherUser(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, alice := a.signIn(t, "a@x.com")
	bobID, bob := a.signIn(t, "b@x.com")
	tr := a.createTravel(t, alice)

	rec := a.do(t, http.MethodPut, "/travels/"+tr.TravelId+"/owner", alice, `{"userId":"`+string(bobID)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(bobID), decode[Travel](t, rec).UserId.MustGet())

	rec = a.do(t, http.MethodGet, "/travels/"+tr.TravelId, alice, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodGet, "/travels/"+tr.TravelId, bob, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDays_UpdateAndDelete(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, authz := a.signIn(t, "a@x.com")
	tr := a.createTravel(t, authz)

	rec := a.do(t, http.MethodPost, "/travels/"+tr.TravelId+"/days", authz, `{"date":"2024-04-02","morning":"Temple","afternoon":"Market","breakfast":"Toast"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	day := decode[Day](t, rec)

	rec = a.do(t, http.MethodPatch, "/days/"+day.DayId, authz, `{"breakfast":null,"link":"https://example.com/plan"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[Day](t, rec)
	assert.True(t, got.Breakfast.IsNull())
	assert.Equal(t, "https://example.com/plan", got.Link.MustGet())
	assert.Equal(t, "Temple", got.Morning)

	rec = a.do(t, http.MethodPatch, "/days/"+day.DayId, authz, `{"morning":null}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = a.do(t, http.MethodDelete, "/days/"+day.DayId, authz, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/travels/"+tr.TravelId, authz, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe_DeleteDetachesTravels(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, alice := a.signIn(t, "a@x.com")
	_, bob := a.signIn(t, "b@x.com")
	tr := a.createTravel(t, alice)

	rec := a.do(t, http.MethodDelete, "/me", alice, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[DeletedAccount](t, rec)
	assert.Equal(t, 1, res.Sessions)
	assert.Equal(t, 1, res.DetachedTravels)

	rec = a.do(t, http.MethodGet, "/me", alice, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/travels?ownerless=true", bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[TravelList](t, rec).Travels
	require.Len(t, list, 1)
	assert.Equal(t, tr.TravelId, list[0].TravelId)
	assert.True(t, list[0].UserId.IsNull())

	rec = a.do(t, http.MethodGet, "/travels?ownerless=maybe", bob, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe_DeletedUsersTravelsAreReadOnly(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, alice := a.signIn(t, "a@x.com")
	bobID, bob := a.signIn(t, "b@x.com")
	tr := a.createTravel(t, alice)
	travelPath := "/travels/" + tr.TravelId

	rec := a.do(t, http.MethodPost, travelPath+"/days", alice, `{"date":"2024-04-02","morning":"Temple","afternoon":"Market"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	day := decode[Day](t, rec)

	rec = a.do(t, http.MethodDelete, "/me", alice, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	writes := []struct {
		method, path, body string
	}{
		{http.MethodPut, travelPath + "/owner", `{"userId":"` + string(bobID) + `"}`},
		{http.MethodPatch, travelPath, `{"name":"Mine now"}`},
		{http.MethodDelete, travelPath, ""},
		{http.MethodPost, travelPath + "/days", `{"date":"2024-04-03","morning":"a","afternoon":"b"}`},
		{http.MethodPost, travelPath + "/days", `{"dayId":"` + day.DayId + `","date":"2024-04-02","morning":"a","afternoon":"b"}`},
		{http.MethodPatch, "/days/" + day.DayId, `{"morning":"Museum"}`},
		{http.MethodDelete, "/days/" + day.DayId, ""},
	}
	for _, w := range writes {
		rec = a.do(t, w.method, w.path, bob, w.body)
		require.Equal(t, http.StatusForbidden, rec.Code, "%s %s: %s", w.method, w.path, rec.Body.String())
		assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
	}

	rec = a.do(t, http.MethodGet, travelPath, bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[Travel](t, rec)
	assert.True(t, got.UserId.IsNull())
	assert.Equal(t, "Japan", got.Name)

	rec = a.do(t, http.MethodGet, travelPath+"/days", bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	days := decode[DayList](t, rec).Days
	require.Len(t, days, 1)
	assert.Equal(t, "Temple", days[0].Morning)
}

func TestErrorEnvelope_CarriesRequestID(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	er := decode[ErrorResponse](t, rec)
	assert.Equal(t, "req-123", er.Error.RequestId.MustGet())
}

func TestTravels_IdempotentCreate(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, alice := a.signIn(t, "a@x.com")
	_, bob := a.signIn(t, "b@x.com")
	key := map[string]string{"Idempotency-Key": "create-1"}
	body := `{"name":"Japan","country":"JP","dateFrom":"2024-04-01","dateTo":"2024-04-10"}`

	first := a.doWithHeaders(t, http.MethodPost, "/travels", alice, body, key)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	created := decode[Travel](t, first)

	// Whitespace differences are the same payload.
	again := a.doWithHeaders(t, http.MethodPost, "/travels", alice, "  "+body+"\n", key)
	require.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, created.TravelId, decode[Travel](t, again).TravelId)

	rec := a.do(t, http.MethodGet, "/travels", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[TravelList](t, rec).Travels, 1)

	rec = a.doWithHeaders(t, http.MethodPost, "/travels", alice, `{"name":"Peru","country":"PE","dateFrom":"2024-04-01","dateTo":"2024-04-10"}`, key)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IDEMPOTENCY_KEY_REUSE", errorCode(t, rec))

	// Keys are scoped per caller.
	rec = a.doWithHeaders(t, http.MethodPost, "/travels", bob, body, key)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("Idempotent-Replayed"))
	assert.NotEqual(t, created.TravelId, decode[Travel](t, rec).TravelId)
}

func TestDays_FailedRequestIsNotRecorded(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	_, authz := a.signIn(t, "a@x.com")
	tr := a.createTravel(t, authz)
	key := map[string]string{"Idempotency-Key": "day-1"}
	path := "/travels/" + tr.TravelId + "/days"

	rec := a.doWithHeaders(t, http.MethodPost, path, authz, `{"date":"2024-04-02","morning":"","afternoon":"Market"}`, key)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.doWithHeaders(t, http.MethodPost, path, authz, `{"date":"2024-04-02","morning":"Temple","afternoon":"Market"}`, key)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.doWithHeaders(t, http.MethodPost, path, authz, `{"date":"2024-04-02","morning":"Temple","afternoon":"Market"}`, key)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
}
