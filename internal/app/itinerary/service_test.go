package itinerary

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/store"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/optional"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/users"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func japan(owner *domain.UserID) CreateTravelInput {
	return CreateTravelInput{UserID: owner, Name: "Japan", Country: "JP", DateFrom: date(2024, 4, 1), DateTo: date(2024, 4, 10)}
}

// Walks the reference scenario: duplicate email, travel with days, user deletion orphaning the travel.
func TestScenario_UserTravelDayLifecycle(t *testing.T) {
	t.Parallel()

	st := memstore.NewStore()
	userSvc := users.NewService(st)
	svc := NewService(st, Policy{})
	ctx := context.Background()

	u, err := userSvc.Create(ctx, users.CreateUserInput{Email: ptr("a@x.com")})
	require.NoError(t, err)
	_, err = userSvc.Create(ctx, users.CreateUserInput{Email: ptr("a@x.com")})
	require.ErrorIs(t, err, integrity.ErrConstraintViolation)

	tr, err := svc.CreateTravel(ctx, japan(&u.ID))
	require.NoError(t, err)
	assert.NotEmpty(t, tr.ID)

	d, err := svc.CreateDay(ctx, DayInput{TravelID: &tr.ID, Date: date(2024, 4, 1), Morning: "Tokyo Tower", Afternoon: "Shibuya"})
	require.NoError(t, err)
	_, err = svc.CreateDay(ctx, DayInput{TravelID: &tr.ID, Date: date(2024, 4, 1), Morning: "X", Afternoon: "Y"})
	require.ErrorIs(t, err, integrity.ErrConstraintViolation)

	_, err = userSvc.Delete(ctx, u.ID)
	require.NoError(t, err)

	got, err := svc.GetTravel(ctx, tr.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)

	gotDay, err := svc.GetDay(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tokyo Tower", gotDay.Morning)
	require.NotNil(t, gotDay.TravelID)
	assert.Equal(t, tr.ID, *gotDay.TravelID)

	ownerless, err := svc.ListOwnerlessTravels(ctx)
	require.NoError(t, err)
	require.Len(t, ownerless, 1)
	assert.Equal(t, tr.ID, ownerless[0].ID)
}

func TestCreateTravel_Validation(t *testing.T) {
	t.Parallel()

	svc := NewService(memstore.NewStore(), Policy{})
	ctx := context.Background()

	in := japan(nil)
	in.DateFrom, in.DateTo = in.DateTo, in.DateFrom
	_, err := svc.CreateTravel(ctx, in)
	require.ErrorIs(t, err, integrity.ErrConstraintViolation)
	assert.ErrorIs(t, err, &integrity.Error{Kind: integrity.KindConstraintViolation, Code: "INVALID_DATE_RANGE"})

	in = japan(nil)
	in.Name = "   "
	_, err = svc.CreateTravel(ctx, in)
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	// Single-day trips are fine.
	in = japan(nil)
	in.DateTo = in.DateFrom
	_, err = svc.CreateTravel(ctx, in)
	assert.NoError(t, err)

	_, err = svc.CreateTravel(ctx, japan(ptr(domain.UserID("ghost"))))
	assert.ErrorIs(t, err, integrity.ErrDanglingReference)
}

func TestUpdateTravel(t *testing.T) {
	t.Parallel()

	svc := NewService(memstore.NewStore(), Policy{})
	ctx := context.Background()
	tr, err := svc.CreateTravel(ctx, japan(nil))
	require.NoError(t, err)

	got, err := svc.UpdateTravel(ctx, tr.ID, UpdateTravelInput{Name: optional.Some("  Japan   Spring "), DateTo: optional.Some(date(2024, 4, 12))})
	require.NoError(t, err)
	assert.Equal(t, "Japan Spring", got.Name)
	assert.True(t, got.DateTo.Equal(date(2024, 4, 12)))

	_, err = svc.UpdateTravel(ctx, tr.ID, UpdateTravelInput{DateFrom: optional.Some(date(2024, 5, 1))})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	_, err = svc.UpdateTravel(ctx, tr.ID, UpdateTravelInput{Country: optional.Null[string]()})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	_, err = svc.UpdateTravel(ctx, "missing", UpdateTravelInput{})
	assert.ErrorIs(t, err, integrity.ErrNotFound)
}

func TestReassignOwner(t *testing.T) {
	t.Parallel()

	st := memstore.NewStore()
	svc := NewService(st, Policy{})
	ctx := context.Background()
	u, err := users.NewService(st).Create(ctx, users.CreateUserInput{})
	require.NoError(t, err)

	tr, err := svc.CreateTravel(ctx, japan(nil))
	require.NoError(t, err)

	got, err := svc.ReassignOwner(ctx, tr.ID, &u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UserID)
	assert.Equal(t, u.ID, *got.UserID)

	list, err := svc.ListTravelsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got, err = svc.ReassignOwner(ctx, tr.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)

	_, err = svc.ReassignOwner(ctx, tr.ID, ptr(domain.UserID("ghost")))
	assert.ErrorIs(t, err, integrity.ErrDanglingReference)
}

func TestDeleteTravel_CascadesDays(t *testing.T) {
	t.Parallel()

	svc := NewService(memstore.NewStore(), Policy{})
	ctx := context.Background()
	tr, err := svc.CreateTravel(ctx, japan(nil))
	require.NoError(t, err)

	var ids []domain.DayID
	for i := 1; i <= 3; i++ {
		d, err := svc.CreateDay(ctx, DayInput{TravelID: &tr.ID, Date: date(2024, 4, i), Morning: "m", Afternoon: "a"})
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}

	n, err := svc.DeleteTravel(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, id := range ids {
		_, err := svc.GetDay(ctx, id)
		assert.ErrorIs(t, err, integrity.ErrNotFound)
	}
	_, err = svc.DeleteTravel(ctx, tr.ID)
	assert.ErrorIs(t, err, integrity.ErrNotFound)
}

func TestCreateDay_Validation(t *testing.T) {
	t.Parallel()

	svc := NewService(memstore.NewStore(), Policy{})
	ctx := context.Background()

	_, err := svc.CreateDay(ctx, DayInput{Date: date(2024, 4, 1), Morning: " ", Afternoon: "a"})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	_, err = svc.CreateDay(ctx, DayInput{Date: date(2024, 4, 1), Morning: "m", Afternoon: "a", Link: ptr("not a url")})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	_, err = svc.CreateDay(ctx, DayInput{TravelID: ptr(domain.TravelID("ghost")), Date: date(2024, 4, 1), Morning: "m", Afternoon: "a"})
	assert.ErrorIs(t, err, integrity.ErrDanglingReference)

	d, err := svc.CreateDay(ctx, DayInput{Date: date(2024, 4, 1), Morning: "m", Afternoon: "a", Lunch: ptr("  "), Link: ptr("https://example.com/x")})
	require.NoError(t, err)
	assert.Nil(t, d.Lunch)
	assert.Nil(t, d.TravelID)
}

func TestDayWithinTravelPolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memstore.NewStore()
	lenient := NewService(st, Policy{})
	strict := NewService(st, Policy{DayWithinTravel: true})

	tr, err := strict.CreateTravel(ctx, japan(nil))
	require.NoError(t, err)

	outside := DayInput{TravelID: &tr.ID, Date: date(2024, 5, 1), Morning: "m", Afternoon: "a"}
	_, err = strict.CreateDay(ctx, outside)
	require.ErrorIs(t, err, &integrity.Error{Kind: integrity.KindConstraintViolation, Code: "DAY_OUTSIDE_TRAVEL"})

	_, err = lenient.CreateDay(ctx, outside)
	require.NoError(t, err)

	// Shrinking a travel past an existing day is rejected under the policy.
	inside, err := strict.CreateDay(ctx, DayInput{TravelID: &tr.ID, Date: date(2024, 4, 9), Morning: "m", Afternoon: "a"})
	require.NoError(t, err)
	_, err = strict.UpdateTravel(ctx, tr.ID, UpdateTravelInput{DateTo: optional.Some(date(2024, 4, 5))})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)
	require.NoError(t, strict.DeleteDay(ctx, inside.ID))
}

func TestUpdateAndUpsertDay(t *testing.T) {
	t.Parallel()

	svc := NewService(memstore.NewStore(), Policy{})
	ctx := context.Background()
	tr, err := svc.CreateTravel(ctx, japan(nil))
	require.NoError(t, err)

	d1, err := svc.CreateDay(ctx, DayInput{TravelID: &tr.ID, Date: date(2024, 4, 1), Morning: "m1", Afternoon: "a1", Lunch: ptr("ramen")})
	require.NoError(t, err)
	d2, err := svc.CreateDay(ctx, DayInput{TravelID: &tr.ID, Date: date(2024, 4, 2), Morning: "m2", Afternoon: "a2"})
	require.NoError(t, err)

	// Moving onto a taken date conflicts.
	_, err = svc.UpdateDay(ctx, d2.ID, UpdateDayInput{Date: optional.Some(date(2024, 4, 1))})
	require.ErrorIs(t, err, &integrity.Error{Kind: integrity.KindConstraintViolation, Code: "DAY_DATE_TAKEN"})

	got, err := svc.UpdateDay(ctx, d1.ID, UpdateDayInput{Lunch: optional.Null[string](), Morning: optional.Some("museum")})
	require.NoError(t, err)
	assert.Nil(t, got.Lunch)
	assert.Equal(t, "museum", got.Morning)

	_, err = svc.UpdateDay(ctx, d1.ID, UpdateDayInput{Afternoon: optional.Null[string]()})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	// Upsert with an id replaces; keeping the same date is not a conflict with itself.
	up, err := svc.UpsertDay(ctx, UpsertDayInput{ID: &d1.ID, DayInput: DayInput{TravelID: &tr.ID, Date: date(2024, 4, 1), Morning: "x", Afternoon: "y"}})
	require.NoError(t, err)
	assert.Equal(t, d1.ID, up.ID)
	assert.Equal(t, "x", up.Morning)

	// Upsert without an id creates and rechecks uniqueness.
	_, err = svc.UpsertDay(ctx, UpsertDayInput{DayInput: DayInput{TravelID: &tr.ID, Date: date(2024, 4, 2), Morning: "x", Afternoon: "y"}})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	_, err = svc.UpsertDay(ctx, UpsertDayInput{ID: ptr(domain.DayID("missing")), DayInput: DayInput{Date: date(2024, 4, 3), Morning: "x", Afternoon: "y"}})
	assert.ErrorIs(t, err, integrity.ErrNotFound)

	days, err := svc.ListDays(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, d1.ID, days[0].ID)
	assert.Equal(t, d2.ID, days[1].ID)

	_, err = svc.ListDays(ctx, "missing")
	assert.ErrorIs(t, err, integrity.ErrNotFound)

	require.NoError(t, svc.DeleteDay(ctx, d2.ID))
	assert.ErrorIs(t, svc.DeleteDay(ctx, d2.ID), integrity.ErrNotFound)
	_, err = svc.GetTravel(ctx, tr.ID)
	assert.NoError(t, err)
}

func TestCreateDay_ConcurrentSameDate(t *testing.T) {
	t.Parallel()

	svc := NewService(memstore.NewStore(), Policy{})
	ctx := context.Background()
	tr, err := svc.CreateTravel(ctx, japan(nil))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateDay(ctx, DayInput{TravelID: &tr.ID, Date: date(2024, 4, 3), Morning: "m", Afternoon: "a"}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
