package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/store"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/optional"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

func ptr[T any](v T) *T { return &v }

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.NewStore()
	return NewService(st), st
}

func TestService_Create_NormalizesAndGeneratesID(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	u, err := svc.Create(context.Background(), CreateUserInput{
		Name:  ptr("  Alice   Smith "),
		Email: ptr(" Alice@Example.com "),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	require.NotNil(t, u.Name)
	assert.Equal(t, "Alice Smith", *u.Name)
	require.NotNil(t, u.Email)
	assert.Equal(t, "Alice@Example.com", *u.Email)

	got, err := svc.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestService_Create_DuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), CreateUserInput{Email: ptr("a@x.com")})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateUserInput{Email: ptr("A@X.COM")})
	require.ErrorIs(t, err, integrity.ErrConstraintViolation)
	assert.ErrorIs(t, err, &integrity.Error{Kind: integrity.KindConstraintViolation, Code: "EMAIL_TAKEN"})
}

func TestService_Create_InvalidFields(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), CreateUserInput{Email: ptr("not an email")})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	_, err = svc.Create(context.Background(), CreateUserInput{Image: ptr("relative/path.png")})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	u, err := svc.Create(context.Background(), CreateUserInput{Name: ptr("   "), Email: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, u.Name)
	assert.Nil(t, u.Email)
}

func TestService_Update_Patch(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, CreateUserInput{Name: ptr("Alice"), Email: ptr("a@x.com"), Image: ptr("https://img.example/a.png")})
	require.NoError(t, err)

	verified := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := svc.Update(ctx, u.ID, UpdateUserInput{
		Email:         optional.Some("alice@new.example"),
		Image:         optional.Null[string](),
		EmailVerified: optional.Some(verified),
	})
	require.NoError(t, err)
	require.NotNil(t, got.Name)
	assert.Equal(t, "Alice", *got.Name)
	require.NotNil(t, got.Email)
	assert.Equal(t, "alice@new.example", *got.Email)
	assert.Nil(t, got.Image)
	require.NotNil(t, got.EmailVerified)
	assert.True(t, got.EmailVerified.Equal(verified))

	// Old email is free again.
	_, err = svc.Create(ctx, CreateUserInput{Email: ptr("a@x.com")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, u.ID, UpdateUserInput{Email: optional.Some("A@x.com")})
	assert.ErrorIs(t, err, integrity.ErrConstraintViolation)

	_, err = svc.Update(ctx, "missing", UpdateUserInput{})
	assert.ErrorIs(t, err, integrity.ErrNotFound)
}

func TestService_Delete_CascadesAndOrphans(t *testing.T) {
	t.Parallel()

	svc, st := newService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, CreateUserInput{Email: ptr("a@x.com")})
	require.NoError(t, err)

	tid := domain.TravelID("t1")
	require.NoError(t, st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Travels().Create(ctx, domain.Travel{ID: tid, Name: "Japan", Country: "JP", DateFrom: time.Now(), DateTo: time.Now(), UserID: &u.ID}); err != nil {
			return err
		}
		return tx.Sessions().Create(ctx, domain.Session{SessionToken: "s", UserID: u.ID, Expires: time.Now().Add(time.Hour)})
	}))

	res, err := svc.Delete(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sessions)
	assert.Equal(t, 1, res.DetachedTravels)

	_, err = svc.Get(ctx, u.ID)
	assert.ErrorIs(t, err, integrity.ErrNotFound)

	_, err = svc.Delete(ctx, u.ID)
	assert.ErrorIs(t, err, integrity.ErrNotFound)
}

func TestService_GetByAccount(t *testing.T) {
	t.Parallel()

	svc, st := newService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, CreateUserInput{})
	require.NoError(t, err)

	key := domain.AccountKey{Provider: "github", ProviderAccountID: "42"}
	require.NoError(t, st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Accounts().Link(ctx, domain.Account{AccountKey: key, UserID: u.ID, Type: domain.AccountTypeOAuth})
	}))

	got, err := svc.GetByAccount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.GetByAccount(ctx, domain.AccountKey{Provider: "github", ProviderAccountID: "nope"})
	require.ErrorIs(t, err, integrity.ErrNotFound)
	assert.ErrorIs(t, err, &integrity.Error{Kind: integrity.KindNotFound, Code: "ACCOUNT_NOT_FOUND"})
}
