package integrity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/store"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", ConstraintViolation("EMAIL_TAKEN", "email already in use", nil))

	assert.ErrorIs(t, err, ErrConstraintViolation)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, &Error{Kind: KindConstraintViolation, Code: "EMAIL_TAKEN"})
	assert.NotErrorIs(t, err, &Error{Kind: KindConstraintViolation, Code: "DAY_DATE_TAKEN"})
	assert.Equal(t, KindConstraintViolation, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("io")))
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   error
		kind Kind
		code string
	}{
		{store.ErrNotFound, KindNotFound, "TRAVEL_NOT_FOUND"},
		{store.ErrEmailTaken, KindConstraintViolation, "EMAIL_TAKEN"},
		{store.ErrDayDateTaken, KindConstraintViolation, "DAY_DATE_TAKEN"},
		{store.ErrAccountLinkedElsewhere, KindConstraintViolation, "ACCOUNT_LINKED_ELSEWHERE"},
		{store.ErrCredentialIDTaken, KindConstraintViolation, "CREDENTIAL_ID_TAKEN"},
		{store.ErrAlreadyExists, KindConstraintViolation, "TRAVEL_ALREADY_EXISTS"},
		{store.ErrMissingReference, KindDanglingReference, "REFERENCE_MISSING"},
		{store.ErrCounterNotIncreasing, KindReplayDetected, "COUNTER_NOT_INCREASING"},
	}
	for _, tc := range cases {
		got := Translate(fmt.Errorf("ctx: %w", tc.in), EntityTravel)
		var e *Error
		require.ErrorAs(t, got, &e, "Translate(%v)", tc.in)
		assert.Equal(t, tc.kind, e.Kind, "Translate(%v)", tc.in)
		assert.Equal(t, tc.code, e.Code, "Translate(%v)", tc.in)
	}

	infra := errors.New("connection reset")
	assert.Same(t, infra, Translate(infra, EntityUser))
	assert.NoError(t, Translate(nil, EntityUser))
	assert.Equal(t, "verification token not found", Translate(store.ErrNotFound, EntityVerificationToken).Error())
}

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T, s store.Store) (domain.UserID, domain.TravelID) {
	t.Helper()
	uid := domain.UserID("u1")
	tid := domain.TravelID("t1")
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.Users().Create(ctx, domain.User{ID: uid, Email: ptr("a@x.com")}); err != nil {
			return err
		}
		if err := tx.Travels().Create(ctx, domain.Travel{
			ID: tid, Name: "Japan", Country: "JP", UserID: &uid,
			DateFrom: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			DateTo:   time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			return err
		}
		if err := tx.Days().Create(ctx, domain.Day{ID: "d1", Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), Morning: "Tokyo Tower", Afternoon: "Shibuya", TravelID: &tid}); err != nil {
			return err
		}
		if err := tx.Accounts().Link(ctx, domain.Account{AccountKey: domain.AccountKey{Provider: "github", ProviderAccountID: "42"}, UserID: uid, Type: domain.AccountTypeOAuth}); err != nil {
			return err
		}
		if err := tx.Sessions().Create(ctx, domain.Session{SessionToken: "tok", UserID: uid, Expires: time.Now().Add(time.Hour)}); err != nil {
			return err
		}
		return tx.Authenticators().Create(ctx, domain.Authenticator{CredentialID: "cred", UserID: uid, ProviderAccountID: "p", CredentialPublicKey: "k", CredentialDeviceType: "singleDevice"})
	})
	require.NoError(t, err)
	return uid, tid
}

func TestDeleteUser_CascadesCredentialsAndOrphansTravels(t *testing.T) {
	t.Parallel()

	s := memstore.NewStore()
	uid, tid := seed(t, s)

	var res UserCascade
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = DeleteUser(ctx, tx, uid)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, UserCascade{Accounts: 1, Sessions: 1, Authenticators: 1, DetachedTravels: 1}, res)

	err = s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		tr, err := tx.Travels().Get(ctx, tid)
		require.NoError(t, err)
		assert.Nil(t, tr.UserID)

		_, err = tx.Days().Get(ctx, "d1")
		assert.NoError(t, err)

		_, err = tx.Sessions().Get(ctx, "tok")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.Authenticators().Get(ctx, "cred")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.Accounts().Get(ctx, domain.AccountKey{Provider: "github", ProviderAccountID: "42"})
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteUser_Unknown(t *testing.T) {
	t.Parallel()

	s := memstore.NewStore()
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := DeleteUser(ctx, tx, "nobody")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUser_FailureLeavesNoPartialCascade(t *testing.T) {
	t.Parallel()

	s := memstore.NewStore()
	uid, _ := seed(t, s)

	boom := errors.New("boom")
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := DeleteUser(ctx, tx, uid); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Sessions().Get(ctx, "tok")
		assert.NoError(t, err)
		_, err = tx.Authenticators().Get(ctx, "cred")
		assert.NoError(t, err)
		ok, err := tx.Users().Exists(ctx, uid)
		assert.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteTravel_RemovesDays(t *testing.T) {
	t.Parallel()

	s := memstore.NewStore()
	_, tid := seed(t, s)

	var removed int
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		removed, err = DeleteTravel(ctx, tx, tid)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	err = s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Days().Get(ctx, "d1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestRequireReferences(t *testing.T) {
	t.Parallel()

	s := memstore.NewStore()
	uid, tid := seed(t, s)

	err := s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		assert.NoError(t, RequireUser(ctx, tx, uid))
		assert.NoError(t, RequireTravel(ctx, tx, tid))
		assert.ErrorIs(t, RequireUser(ctx, tx, "ghost"), ErrDanglingReference)
		assert.ErrorIs(t, RequireTravel(ctx, tx, "ghost"), ErrDanglingReference)
		return nil
	})
	require.NoError(t, err)
}
