package contracttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

type CleanupFunc = func()

// StoreFactory returns an empty store. Each call must be isolated from the others.
type StoreFactory func(t *testing.T) (store.Store, CleanupFunc)

// RunStore exercises the behavior every store.Store implementation must share.
func RunStore(t *testing.T, newStore StoreFactory) {
	t.Helper()

	open := func(t *testing.T) store.Store {
		t.Helper()
		s, cleanup := newStore(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		return s
	}

	t.Run("users", func(t *testing.T) { runUsers(t, open(t)) })
	t.Run("user delete cascades", func(t *testing.T) { runUserDeleteCascade(t, open(t)) })
	t.Run("travels", func(t *testing.T) { runTravels(t, open(t)) })
	t.Run("days", func(t *testing.T) { runDays(t, open(t)) })
	t.Run("accounts", func(t *testing.T) { runAccounts(t, open(t)) })
	t.Run("sessions", func(t *testing.T) { runSessions(t, open(t)) })
	t.Run("verification tokens", func(t *testing.T) { runVerificationTokens(t, open(t)) })
	t.Run("authenticators", func(t *testing.T) { runAuthenticators(t, open(t)) })
	t.Run("rollback", func(t *testing.T) { runRollback(t, open(t)) })
	t.Run("concurrent bumps", func(t *testing.T) { runConcurrentBumps(t, open(t)) })
	t.Run("concurrent email claims", func(t *testing.T) { runConcurrentEmail(t, open(t)) })
	t.Run("concurrent account links", func(t *testing.T) { runConcurrentLinks(t, open(t)) })
	t.Run("travel lock orders day writes", func(t *testing.T) { runTravelLock(t, open(t)) })
}

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func update(t *testing.T, s store.Store, fn func(ctx context.Context, tx store.Tx) error) error {
	t.Helper()
	return s.Update(context.Background(), store.TxFunc(fn))
}

func view(t *testing.T, s store.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	if err := s.View(context.Background(), store.TxFunc(fn)); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func mustCreateUser(t *testing.T, s store.Store, email string) domain.UserID {
	t.Helper()
	id := domain.UserID(uuid.NewString())
	u := domain.User{ID: id, Name: ptr("Traveler")}
	if email != "" {
		u.Email = ptr(email)
	}
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, u)
	}); err != nil {
		t.Fatalf("Users.Create(%q): %v", email, err)
	}
	return id
}

func mustCreateTravel(t *testing.T, s store.Store, owner *domain.UserID, from time.Time) domain.TravelID {
	t.Helper()
	id := domain.TravelID(uuid.NewString())
	tr := domain.Travel{ID: id, Name: "Trip", Country: "Japan", DateFrom: from, DateTo: from.AddDate(0, 0, 7), UserID: owner}
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Travels().Create(ctx, tr)
	}); err != nil {
		t.Fatalf("Travels.Create: %v", err)
	}
	return id
}

func runUsers(t *testing.T, s store.Store) {
	id := mustCreateUser(t, s, "Alice@Example.com")

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Users().GetByEmail(ctx, "alice@example.COM")
		if err != nil {
			t.Fatalf("GetByEmail() err=%v", err)
		}
		if got.ID != id || got.Email == nil || *got.Email != "Alice@Example.com" {
			t.Fatalf("GetByEmail()=%+v, want id %s with email as stored", got, id)
		}
		if ok, err := tx.Users().Exists(ctx, id); err != nil || !ok {
			t.Fatalf("Exists()=%v err=%v, want true", ok, err)
		}
		if _, err := tx.Users().Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get(missing) err=%v, want %v", err, store.ErrNotFound)
		}
		return nil
	})

	// Email uniqueness is case-insensitive.
	err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, domain.User{ID: domain.UserID(uuid.NewString()), Email: ptr("ALICE@example.com")})
	})
	if !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("Create duplicate email err=%v, want %v", err, store.ErrEmailTaken)
	}

	// Users without an email never collide.
	mustCreateUser(t, s, "")
	mustCreateUser(t, s, "")

	// Changing the email frees the old one.
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().Get(ctx, id)
		if err != nil {
			return err
		}
		u.Email = ptr("alice@new.example.com")
		return tx.Users().Update(ctx, u)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	bob := mustCreateUser(t, s, "alice@example.com")

	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().Get(ctx, bob)
		if err != nil {
			return err
		}
		u.Email = ptr("Alice@New.Example.com")
		return tx.Users().Update(ctx, u)
	})
	if !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("Update to taken email err=%v, want %v", err, store.ErrEmailTaken)
	}

	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Update(ctx, domain.User{ID: "missing"})
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Update(missing) err=%v, want %v", err, store.ErrNotFound)
	}
}

func runUserDeleteCascade(t *testing.T, s store.Store) {
	alice := mustCreateUser(t, s, "alice@example.com")
	bob := mustCreateUser(t, s, "bob@example.com")
	aliceTravel := mustCreateTravel(t, s, &alice, date(2026, 5, 1))
	bobTravel := mustCreateTravel(t, s, &bob, date(2026, 6, 1))

	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Accounts().Link(ctx, domain.Account{AccountKey: domain.AccountKey{Provider: "github", ProviderAccountID: "1"}, UserID: alice, Type: domain.AccountTypeOAuth}); err != nil {
			return err
		}
		if err := tx.Sessions().Create(ctx, domain.Session{SessionToken: "s-alice", UserID: alice, Expires: time.Now().Add(time.Hour)}); err != nil {
			return err
		}
		if err := tx.Sessions().Create(ctx, domain.Session{SessionToken: "s-bob", UserID: bob, Expires: time.Now().Add(time.Hour)}); err != nil {
			return err
		}
		return tx.Authenticators().Create(ctx, domain.Authenticator{CredentialID: "cred-alice", UserID: alice, ProviderAccountID: "pa", CredentialPublicKey: "pk", CredentialDeviceType: "singleDevice"})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Delete(ctx, alice)
	}); err != nil {
		t.Fatalf("Users.Delete: %v", err)
	}

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Accounts().Get(ctx, domain.AccountKey{Provider: "github", ProviderAccountID: "1"}); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("account after user delete err=%v, want %v", err, store.ErrNotFound)
		}
		if _, err := tx.Sessions().Get(ctx, "s-alice"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("session after user delete err=%v, want %v", err, store.ErrNotFound)
		}
		if _, err := tx.Sessions().Get(ctx, "s-bob"); err != nil {
			t.Fatalf("unrelated session err=%v, want nil", err)
		}
		if _, err := tx.Authenticators().Get(ctx, "cred-alice"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("authenticator after user delete err=%v, want %v", err, store.ErrNotFound)
		}
		tr, err := tx.Travels().Get(ctx, aliceTravel)
		if err != nil {
			t.Fatalf("orphaned travel err=%v, want nil", err)
		}
		if tr.UserID != nil {
			t.Fatalf("orphaned travel owner=%v, want nil", *tr.UserID)
		}
		ownerless, err := tx.Travels().ListOwnerless(ctx)
		if err != nil || len(ownerless) != 1 || ownerless[0].ID != aliceTravel {
			t.Fatalf("ListOwnerless()=%v err=%v, want [%s]", ownerless, err, aliceTravel)
		}
		other, err := tx.Travels().Get(ctx, bobTravel)
		if err != nil || other.UserID == nil || *other.UserID != bob {
			t.Fatalf("unrelated travel=%+v err=%v", other, err)
		}
		return nil
	})

	// The email is free again.
	mustCreateUser(t, s, "alice@example.com")

	err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Delete(ctx, alice)
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Delete err=%v, want %v", err, store.ErrNotFound)
	}
}

func runTravels(t *testing.T, s store.Store) {
	owner := mustCreateUser(t, s, "owner@example.com")

	later := mustCreateTravel(t, s, &owner, date(2026, 9, 1))
	earlier := mustCreateTravel(t, s, &owner, date(2026, 3, 1))
	mustCreateTravel(t, s, nil, date(2026, 1, 1))

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Travels().ListByUser(ctx, owner)
		if err != nil {
			t.Fatalf("ListByUser() err=%v", err)
		}
		if len(got) != 2 || got[0].ID != earlier || got[1].ID != later {
			t.Fatalf("ListByUser() order=%v, want [%s %s]", got, earlier, later)
		}
		if !got[0].DateFrom.Equal(date(2026, 3, 1)) {
			t.Fatalf("DateFrom=%v, want 2026-03-01", got[0].DateFrom)
		}
		return nil
	})

	err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		missing := domain.UserID(uuid.NewString())
		return tx.Travels().Create(ctx, domain.Travel{ID: domain.TravelID(uuid.NewString()), Name: "x", Country: "y", DateFrom: date(2026, 1, 1), DateTo: date(2026, 1, 2), UserID: &missing})
	})
	if !errors.Is(err, store.ErrMissingReference) {
		t.Fatalf("Create with unknown owner err=%v, want %v", err, store.ErrMissingReference)
	}

	// Reassign and detach.
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		tr, err := tx.Travels().Get(ctx, later)
		if err != nil {
			return err
		}
		tr.UserID = nil
		tr.Name = "Renamed"
		return tx.Travels().Save(ctx, tr)
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	view(t, s, func(ctx context.Context, tx store.Tx) error {
		tr, err := tx.Travels().Get(ctx, later)
		if err != nil || tr.UserID != nil || tr.Name != "Renamed" {
			t.Fatalf("Get() after Save=%+v err=%v", tr, err)
		}
		return nil
	})

	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Travels().Delete(ctx, domain.TravelID(uuid.NewString()))
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Delete(missing) err=%v, want %v", err, store.ErrNotFound)
	}
	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Travels().GetForUpdate(ctx, domain.TravelID(uuid.NewString()))
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetForUpdate(missing) err=%v, want %v", err, store.ErrNotFound)
	}
	err = s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Travels().GetForUpdate(ctx, earlier)
		return err
	})
	if !errors.Is(err, store.ErrReadOnly) {
		t.Fatalf("GetForUpdate in View err=%v, want %v", err, store.ErrReadOnly)
	}
}

func runDays(t *testing.T, s store.Store) {
	travel := mustCreateTravel(t, s, nil, date(2026, 4, 1))
	other := mustCreateTravel(t, s, nil, date(2026, 4, 1))

	mk := func(travelID *domain.TravelID, d time.Time) domain.Day {
		return domain.Day{ID: domain.DayID(uuid.NewString()), Date: d, Morning: "Museum", Afternoon: "Park", TravelID: travelID}
	}

	d2 := mk(&travel, date(2026, 4, 2))
	d1 := mk(&travel, date(2026, 4, 1))
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Days().Create(ctx, d2); err != nil {
			return err
		}
		return tx.Days().Create(ctx, d1)
	}); err != nil {
		t.Fatalf("Days.Create: %v", err)
	}

	// (travel, date) is unique, time of day is ignored.
	err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Days().Create(ctx, mk(&travel, date(2026, 4, 2).Add(15*time.Hour)))
	})
	if !errors.Is(err, store.ErrDayDateTaken) {
		t.Fatalf("duplicate day err=%v, want %v", err, store.ErrDayDateTaken)
	}

	// Same date on another travel, and travel-less days, are fine.
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Days().Create(ctx, mk(&other, date(2026, 4, 2))); err != nil {
			return err
		}
		if err := tx.Days().Create(ctx, mk(nil, date(2026, 4, 2))); err != nil {
			return err
		}
		return tx.Days().Create(ctx, mk(nil, date(2026, 4, 2)))
	}); err != nil {
		t.Fatalf("non-conflicting days: %v", err)
	}

	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		missing := domain.TravelID(uuid.NewString())
		return tx.Days().Create(ctx, mk(&missing, date(2026, 4, 2)))
	})
	if !errors.Is(err, store.ErrMissingReference) {
		t.Fatalf("day for unknown travel err=%v, want %v", err, store.ErrMissingReference)
	}

	// Moving d1 onto d2's date conflicts.
	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		moved := d1
		moved.Date = d2.Date
		return tx.Days().Save(ctx, moved)
	})
	if !errors.Is(err, store.ErrDayDateTaken) {
		t.Fatalf("Save onto taken date err=%v, want %v", err, store.ErrDayDateTaken)
	}

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Days().ListByTravel(ctx, travel)
		if err != nil {
			t.Fatalf("ListByTravel() err=%v", err)
		}
		if len(got) != 2 || got[0].ID != d1.ID || got[1].ID != d2.ID {
			t.Fatalf("ListByTravel() order=%v, want [%s %s]", got, d1.ID, d2.ID)
		}
		return nil
	})

	// Deleting a travel removes its days and frees nothing else.
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Travels().Delete(ctx, travel)
	}); err != nil {
		t.Fatalf("Travels.Delete: %v", err)
	}
	view(t, s, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Days().Get(ctx, d1.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("day after travel delete err=%v, want %v", err, store.ErrNotFound)
		}
		got, err := tx.Days().ListByTravel(ctx, other)
		if err != nil || len(got) != 1 {
			t.Fatalf("other travel days=%v err=%v, want 1", got, err)
		}
		return nil
	})
}

func runAccounts(t *testing.T, s store.Store) {
	alice := mustCreateUser(t, s, "alice@example.com")
	bob := mustCreateUser(t, s, "bob@example.com")
	key := domain.AccountKey{Provider: "google", ProviderAccountID: "g-1"}

	link := func(uid domain.UserID, access string) error {
		return update(t, s, func(ctx context.Context, tx store.Tx) error {
			return tx.Accounts().Link(ctx, domain.Account{AccountKey: key, UserID: uid, Type: domain.AccountTypeOIDC, AccessToken: ptr(access)})
		})
	}

	if err := link(alice, "a1"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := link(alice, "a2"); err != nil {
		t.Fatalf("re-Link same user: %v", err)
	}
	if err := link(bob, "b1"); !errors.Is(err, store.ErrAccountLinkedElsewhere) {
		t.Fatalf("Link to other user err=%v, want %v", err, store.ErrAccountLinkedElsewhere)
	}
	err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Accounts().Link(ctx, domain.Account{AccountKey: domain.AccountKey{Provider: "x", ProviderAccountID: "y"}, UserID: "missing", Type: domain.AccountTypeOAuth})
	})
	if !errors.Is(err, store.ErrMissingReference) {
		t.Fatalf("Link for unknown user err=%v, want %v", err, store.ErrMissingReference)
	}

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Accounts().Get(ctx, key)
		if err != nil || got.UserID != alice || got.AccessToken == nil || *got.AccessToken != "a2" {
			t.Fatalf("Get()=%+v err=%v, want alice with token a2", got, err)
		}
		list, err := tx.Accounts().ListByUser(ctx, alice)
		if err != nil || len(list) != 1 {
			t.Fatalf("ListByUser()=%v err=%v, want 1 account", list, err)
		}
		return nil
	})

	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Accounts().Delete(ctx, key)
	}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := link(bob, "b1"); err != nil {
		t.Fatalf("Link after unlink: %v", err)
	}
}

func runSessions(t *testing.T, s store.Store) {
	uid := mustCreateUser(t, s, "")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Sessions().Create(ctx, domain.Session{SessionToken: "live", UserID: uid, Expires: now.Add(time.Hour)}); err != nil {
			return err
		}
		if err := tx.Sessions().Create(ctx, domain.Session{SessionToken: "edge", UserID: uid, Expires: now}); err != nil {
			return err
		}
		return tx.Sessions().Create(ctx, domain.Session{SessionToken: "old", UserID: uid, Expires: now.Add(-time.Hour)})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Sessions().Create(ctx, domain.Session{SessionToken: "live", UserID: uid, Expires: now})
	})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate token err=%v, want %v", err, store.ErrAlreadyExists)
	}
	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Sessions().Create(ctx, domain.Session{SessionToken: "orphan", UserID: "missing", Expires: now})
	})
	if !errors.Is(err, store.ErrMissingReference) {
		t.Fatalf("session for unknown user err=%v, want %v", err, store.ErrMissingReference)
	}

	var removed int
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.Sessions().DeleteExpired(ctx, now)
		removed = n
		return err
	}); err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if removed != 2 {
		t.Fatalf("DeleteExpired()=%d, want 2", removed)
	}

	newExpiry := now.Add(48 * time.Hour)
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Sessions().SetExpires(ctx, "live", newExpiry)
	}); err != nil {
		t.Fatalf("SetExpires: %v", err)
	}
	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Sessions().Get(ctx, "live")
		if err != nil || !got.Expires.Equal(newExpiry) || got.UserID != uid {
			t.Fatalf("Get()=%+v err=%v, want expires %v", got, err, newExpiry)
		}
		return nil
	})
	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Sessions().SetExpires(ctx, "old", newExpiry)
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("SetExpires(removed) err=%v, want %v", err, store.ErrNotFound)
	}
}

func runVerificationTokens(t *testing.T, s store.Store) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	key := domain.VerificationTokenKey{Identifier: "alice@example.com", Token: "tok-1"}

	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.VerificationTokens().Create(ctx, domain.VerificationToken{VerificationTokenKey: key, Expires: now.Add(time.Hour)}); err != nil {
			return err
		}
		return tx.VerificationTokens().Create(ctx, domain.VerificationToken{
			VerificationTokenKey: domain.VerificationTokenKey{Identifier: "alice@example.com", Token: "tok-old"},
			Expires:              now.Add(-time.Minute),
		})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.VerificationTokens().Create(ctx, domain.VerificationToken{VerificationTokenKey: key, Expires: now})
	})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate token err=%v, want %v", err, store.ErrAlreadyExists)
	}

	var got domain.VerificationToken
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.VerificationTokens().Take(ctx, key)
		return err
	}); err != nil {
		t.Fatalf("Take: %v", err)
	}
	if got.VerificationTokenKey != key || !got.Expires.Equal(now.Add(time.Hour)) {
		t.Fatalf("Take()=%+v, want key %+v", got, key)
	}

	// Single use.
	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.VerificationTokens().Take(ctx, key)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Take err=%v, want %v", err, store.ErrNotFound)
	}

	var removed int
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.VerificationTokens().DeleteExpired(ctx, now)
		removed = n
		return err
	}); err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("DeleteExpired()=%d, want 1", removed)
	}
}

func runAuthenticators(t *testing.T, s store.Store) {
	alice := mustCreateUser(t, s, "")
	bob := mustCreateUser(t, s, "")

	a := domain.Authenticator{
		CredentialID:         "cred-1",
		UserID:               alice,
		ProviderAccountID:    "pa-1",
		CredentialPublicKey:  "pk",
		Counter:              0,
		CredentialDeviceType: "multiDevice",
		CredentialBackedUp:   true,
		Transports:           ptr("usb,nfc"),
	}
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Authenticators().Create(ctx, a)
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Credential ids are unique across users.
	dup := a
	dup.UserID = bob
	err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Authenticators().Create(ctx, dup)
	})
	if !errors.Is(err, store.ErrCredentialIDTaken) {
		t.Fatalf("duplicate credential err=%v, want %v", err, store.ErrCredentialIDTaken)
	}

	bump := func(n int64) error {
		return update(t, s, func(ctx context.Context, tx store.Tx) error {
			return tx.Authenticators().BumpCounter(ctx, "cred-1", n)
		})
	}
	if err := bump(0); !errors.Is(err, store.ErrCounterNotIncreasing) {
		t.Fatalf("BumpCounter(0) err=%v, want %v", err, store.ErrCounterNotIncreasing)
	}
	if err := bump(5); err != nil {
		t.Fatalf("BumpCounter(5): %v", err)
	}
	if err := bump(5); !errors.Is(err, store.ErrCounterNotIncreasing) {
		t.Fatalf("BumpCounter(5) replay err=%v, want %v", err, store.ErrCounterNotIncreasing)
	}
	if err := bump(3); !errors.Is(err, store.ErrCounterNotIncreasing) {
		t.Fatalf("BumpCounter(3) err=%v, want %v", err, store.ErrCounterNotIncreasing)
	}
	err = update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Authenticators().BumpCounter(ctx, "missing", 10)
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("BumpCounter(missing) err=%v, want %v", err, store.ErrNotFound)
	}

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Authenticators().Get(ctx, "cred-1")
		if err != nil || got.Counter != 5 || got.Transports == nil || *got.Transports != "usb,nfc" || !got.CredentialBackedUp {
			t.Fatalf("Get()=%+v err=%v, want counter 5", got, err)
		}
		list, err := tx.Authenticators().ListByUser(ctx, bob)
		if err != nil || len(list) != 0 {
			t.Fatalf("ListByUser(bob)=%v err=%v, want empty", list, err)
		}
		return nil
	})
}

func runRollback(t *testing.T, s store.Store) {
	boom := errors.New("boom")
	var uid domain.UserID
	err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		uid = domain.UserID(uuid.NewString())
		if err := tx.Users().Create(ctx, domain.User{ID: uid, Email: ptr("ghost@example.com")}); err != nil {
			return err
		}
		if err := tx.Travels().Create(ctx, domain.Travel{ID: domain.TravelID(uuid.NewString()), Name: "n", Country: "c", DateFrom: date(2026, 1, 1), DateTo: date(2026, 1, 1), UserID: &uid}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() err=%v, want %v", err, boom)
	}

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		if ok, err := tx.Users().Exists(ctx, uid); err != nil || ok {
			t.Fatalf("Exists() after rollback=%v err=%v, want false", ok, err)
		}
		list, err := tx.Travels().ListOwnerless(ctx)
		if err != nil || len(list) != 0 {
			t.Fatalf("travels after rollback=%v err=%v, want none", list, err)
		}
		return nil
	})

	// The rolled-back email is still available.
	mustCreateUser(t, s, "ghost@example.com")

	err = s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, domain.User{ID: domain.UserID(uuid.NewString())})
	})
	if err == nil {
		t.Fatalf("write in View() err=nil, want error")
	}
}

func runConcurrentBumps(t *testing.T, s store.Store) {
	uid := mustCreateUser(t, s, "")
	if err := update(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.Authenticators().Create(ctx, domain.Authenticator{CredentialID: "race", UserID: uid, ProviderAccountID: "p", CredentialPublicKey: "k", CredentialDeviceType: "singleDevice"})
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Every worker presents the same counter; exactly one may win.
	const workers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
				return tx.Authenticators().BumpCounter(ctx, "race", 1)
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("successful bumps=%d, want 1", got)
	}
}

func runConcurrentEmail(t *testing.T, s store.Store) {
	const workers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
				return tx.Users().Create(ctx, domain.User{ID: domain.UserID(uuid.NewString()), Email: ptr("race@example.com")})
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("users holding the email=%d, want 1", got)
	}
}

// runConcurrentLinks races two users for the same provider account several times.
// Each round must leave exactly one owner and report the other as linked elsewhere.
func runConcurrentLinks(t *testing.T, s store.Store) {
	alice := mustCreateUser(t, s, "alice@example.com")
	bob := mustCreateUser(t, s, "bob@example.com")

	for round := 0; round < 5; round++ {
		key := domain.AccountKey{Provider: "google", ProviderAccountID: uuid.NewString()}
		owners := []domain.UserID{alice, bob}
		errs := make([]error, len(owners))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i, uid := range owners {
			wg.Add(1)
			go func(i int, uid domain.UserID) {
				defer wg.Done()
				<-start
				errs[i] = s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
					return tx.Accounts().Link(ctx, domain.Account{AccountKey: key, UserID: uid, Type: domain.AccountTypeOAuth})
				})
			}(i, uid)
		}
		close(start)
		wg.Wait()

		var winner domain.UserID
		wins, elsewhere := 0, 0
		for i, err := range errs {
			switch {
			case err == nil:
				wins++
				winner = owners[i]
			case errors.Is(err, store.ErrAccountLinkedElsewhere):
				elsewhere++
			default:
				t.Fatalf("round %d: Link(%s) err=%v, want nil or %v", round, owners[i], err, store.ErrAccountLinkedElsewhere)
			}
		}
		if wins != 1 || elsewhere != 1 {
			t.Fatalf("round %d: wins=%d linked elsewhere=%d, want 1 and 1", round, wins, elsewhere)
		}

		view(t, s, func(ctx context.Context, tx store.Tx) error {
			got, err := tx.Accounts().Get(ctx, key)
			if err != nil || got.UserID != winner {
				t.Fatalf("round %d: Get()=%+v err=%v, want owner %s", round, got, err, winner)
			}
			return nil
		})
	}
}

var errOutsideRange = errors.New("day outside travel")

// runTravelLock narrows a travel's dates while holding GetForUpdate. A day write that
// pins the travel after the lock is taken must wait and then see the narrowed range.
func runTravelLock(t *testing.T, s store.Store) {
	from := date(2026, 5, 1)
	id := mustCreateTravel(t, s, nil, from)
	dayDate := from.AddDate(0, 0, 3)

	locked := make(chan struct{})
	narrowed := make(chan error, 1)
	go func() {
		narrowed <- s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
			tr, err := tx.Travels().GetForUpdate(ctx, id)
			if err != nil {
				close(locked)
				return err
			}
			close(locked)
			time.Sleep(100 * time.Millisecond)
			tr.DateTo = tr.DateFrom
			return tx.Travels().Save(ctx, tr)
		})
	}()
	<-locked

	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.Travels().Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrMissingReference
		}
		tr, err := tx.Travels().Get(ctx, id)
		if err != nil {
			return err
		}
		if !tr.Covers(dayDate) {
			return errOutsideRange
		}
		return tx.Days().Create(ctx, domain.Day{ID: domain.DayID(uuid.NewString()), TravelID: &id, Date: dayDate, Morning: "m", Afternoon: "a"})
	})
	if err := <-narrowed; err != nil {
		t.Fatalf("narrowing Update: %v", err)
	}
	if !errors.Is(err, errOutsideRange) {
		t.Fatalf("day write err=%v, want %v", err, errOutsideRange)
	}
}
