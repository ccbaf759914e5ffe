package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	idempotencyport "github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/idempotency"
)

type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:    "k-1",
		UserID: domain.UserID("user-1"),
		Method: "POST",
		Route:  "/travels",
	}

	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get() on empty store ok=%v err=%v, want miss", ok, err)
	}

	first := idempotencyport.Record{
		BodyHash:    "hash-abc",
		StatusCode:  201,
		ContentType: "application/json",
		Body:        []byte(`{"travelId":"t-1"}`),
		CreatedAt:   time.Unix(1000, 0).UTC(),
	}
	got, stored, err := store.Put(ctx, fp, first)
	if err != nil || !stored {
		t.Fatalf("Put() stored=%v err=%v, want stored", stored, err)
	}
	if got.BodyHash != "hash-abc" {
		t.Fatalf("Put() winner=%+v, want first record", got)
	}

	got, ok, err := store.Get(ctx, fp)
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v, want hit", ok, err)
	}
	if got.StatusCode != 201 || got.ContentType != "application/json" || string(got.Body) != `{"travelId":"t-1"}` || got.BodyHash != "hash-abc" {
		t.Fatalf("Get()=%+v, want %+v", got, first)
	}

	// First write wins.
	second := first
	second.BodyHash = "hash-def"
	second.Body = []byte(`{"travelId":"t-2"}`)
	got, stored, err = store.Put(ctx, fp, second)
	if err != nil || stored {
		t.Fatalf("second Put() stored=%v err=%v, want existing record", stored, err)
	}
	if got.BodyHash != "hash-abc" || string(got.Body) != `{"travelId":"t-1"}` {
		t.Fatalf("second Put() winner=%+v, want first record", got)
	}

	// Scoped per user and route.
	other := fp
	other.UserID = "user-2"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get(other user) ok=%v err=%v, want miss", ok, err)
	}
	otherRoute := fp
	otherRoute.Route = "/travels/{travelId}/days"
	if _, ok, err := store.Get(ctx, otherRoute); err != nil || ok {
		t.Fatalf("Get(other route) ok=%v err=%v, want miss", ok, err)
	}

	recent := fp
	recent.Key = "k-2"
	if _, _, err := store.Put(ctx, recent, idempotencyport.Record{BodyHash: "h", StatusCode: 201, ContentType: "application/json", Body: []byte("{}"), CreatedAt: time.Unix(5000, 0).UTC()}); err != nil {
		t.Fatalf("Put(recent) err=%v", err)
	}
	n, err := store.DeleteBefore(ctx, time.Unix(2000, 0).UTC())
	if err != nil || n != 1 {
		t.Fatalf("DeleteBefore()=%d err=%v, want 1", n, err)
	}
	if _, ok, _ := store.Get(ctx, fp); ok {
		t.Fatalf("Get() after DeleteBefore ok=true, want miss")
	}
	if _, ok, _ := store.Get(ctx, recent); !ok {
		t.Fatalf("Get(recent) after DeleteBefore ok=false, want hit")
	}

	runReservations(t, store, fp)
}

// runReservations covers the pending record a request holds while its handler runs.
func runReservations(t *testing.T, store idempotencyport.Store, base idempotencyport.Fingerprint) {
	ctx := context.Background()
	created := time.Unix(6000, 0).UTC()

	fp := base
	fp.Key = "k-reserve"
	if _, stored, err := store.Put(ctx, fp, idempotencyport.Record{BodyHash: "h", CreatedAt: created}); err != nil || !stored {
		t.Fatalf("Put(pending) stored=%v err=%v, want stored", stored, err)
	}
	winner, stored, err := store.Put(ctx, fp, idempotencyport.Record{BodyHash: "h", CreatedAt: created})
	if err != nil || stored || !winner.Pending() {
		t.Fatalf("second Put(pending)=%+v stored=%v err=%v, want the pending reservation", winner, stored, err)
	}

	done := idempotencyport.Record{BodyHash: "h", StatusCode: 201, ContentType: "application/json", Body: []byte(`{"dayId":"d-1"}`)}
	wrong := done
	wrong.BodyHash = "other"
	if err := store.Complete(ctx, fp, wrong); !errors.Is(err, idempotencyport.ErrNotPending) {
		t.Fatalf("Complete(other hash) err=%v, want %v", err, idempotencyport.ErrNotPending)
	}
	if err := store.Complete(ctx, fp, done); err != nil {
		t.Fatalf("Complete() err=%v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil || !ok || got.Pending() || got.StatusCode != 201 || string(got.Body) != `{"dayId":"d-1"}` {
		t.Fatalf("Get() after Complete=%+v ok=%v err=%v, want completed record", got, ok, err)
	}
	if err := store.Complete(ctx, fp, done); !errors.Is(err, idempotencyport.ErrNotPending) {
		t.Fatalf("second Complete() err=%v, want %v", err, idempotencyport.ErrNotPending)
	}
	if err := store.Release(ctx, fp); err != nil {
		t.Fatalf("Release(completed) err=%v", err)
	}
	if _, ok, _ := store.Get(ctx, fp); !ok {
		t.Fatalf("Release() dropped a completed record")
	}

	released := base
	released.Key = "k-release"
	if _, _, err := store.Put(ctx, released, idempotencyport.Record{BodyHash: "h", CreatedAt: created}); err != nil {
		t.Fatalf("Put(pending) err=%v", err)
	}
	if err := store.Release(ctx, released); err != nil {
		t.Fatalf("Release() err=%v", err)
	}
	if _, ok, err := store.Get(ctx, released); err != nil || ok {
		t.Fatalf("Get() after Release ok=%v err=%v, want miss", ok, err)
	}
	if _, stored, err := store.Put(ctx, released, idempotencyport.Record{BodyHash: "h2", CreatedAt: created}); err != nil || !stored {
		t.Fatalf("Put() after Release stored=%v err=%v, want stored", stored, err)
	}
}
