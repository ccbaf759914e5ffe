// Package integrity holds the rules that span repositories: referential checks, cascade
// orchestration and the typed failure taxonomy. Every function here runs inside a store
// transaction supplied by the caller, so a rule and the write it guards commit together.
package integrity

import (
	"context"
	"fmt"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

// RequireUser fails with DanglingReference unless the user exists. Inside an Update
// the user stays pinned until commit.
func RequireUser(ctx context.Context, tx store.Tx, id domain.UserID) error {
	ok, err := tx.Users().Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return DanglingReference("UNKNOWN_USER", "user does not exist", map[string]any{"userId": string(id)})
	}
	return nil
}

// RequireTravel fails with DanglingReference unless the travel exists.
func RequireTravel(ctx context.Context, tx store.Tx, id domain.TravelID) error {
	ok, err := tx.Travels().Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check travel: %w", err)
	}
	if !ok {
		return DanglingReference("UNKNOWN_TRAVEL", "travel does not exist", map[string]any{"travelId": string(id)})
	}
	return nil
}

// UserCascade reports what a user deletion removed or detached.
type UserCascade struct {
	Accounts        int
	Sessions        int
	Authenticators  int
	DetachedTravels int
}

// DeleteUser removes the user with every credential that references it and detaches
// the travels it owned. Travels and their days are retained.
func DeleteUser(ctx context.Context, tx store.Tx, id domain.UserID) (UserCascade, error) {
	var res UserCascade

	if _, err := tx.Users().Get(ctx, id); err != nil {
		return res, Translate(err, EntityUser)
	}

	var err error
	if res.Accounts, err = tx.Accounts().DeleteByUser(ctx, id); err != nil {
		return UserCascade{}, fmt.Errorf("delete accounts: %w", err)
	}
	if res.Sessions, err = tx.Sessions().DeleteByUser(ctx, id); err != nil {
		return UserCascade{}, fmt.Errorf("delete sessions: %w", err)
	}
	if res.Authenticators, err = tx.Authenticators().DeleteByUser(ctx, id); err != nil {
		return UserCascade{}, fmt.Errorf("delete authenticators: %w", err)
	}
	if res.DetachedTravels, err = tx.Travels().ClearOwner(ctx, id); err != nil {
		return UserCascade{}, fmt.Errorf("detach travels: %w", err)
	}
	if err := tx.Users().Delete(ctx, id); err != nil {
		return UserCascade{}, Translate(err, EntityUser)
	}
	return res, nil
}

// DeleteTravel removes the travel and all of its days and returns how many days went with it.
func DeleteTravel(ctx context.Context, tx store.Tx, id domain.TravelID) (int, error) {
	if _, err := tx.Travels().Get(ctx, id); err != nil {
		return 0, Translate(err, EntityTravel)
	}
	n, err := tx.Days().DeleteByTravel(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete days: %w", err)
	}
	if err := tx.Travels().Delete(ctx, id); err != nil {
		return 0, Translate(err, EntityTravel)
	}
	return n, nil
}
