package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// Fingerprint scopes a key to one user and one route, so the same key may be reused
// across users or endpoints.
type Fingerprint struct {
	Key    Key
	UserID domain.UserID
	Method string
	Route  string // route template, e.g. "/travels/{travelId}/days"
}

// ErrNotPending is returned by Complete when fp has no reservation to fill.
var ErrNotPending = errors.New("idempotency record is not pending")

// Record is the first successful response for a fingerprint. BodyHash identifies the
// request payload it answered; a retry with a different payload must not be replayed.
//
// A record with StatusCode 0 is a reservation: a request holding the key is still running.
type Record struct {
	BodyHash    string
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

func (r Record) Pending() bool { return r.StatusCode == 0 }

// Store persists responses for replay on retries.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	// Put stores rec for fp. When a record already exists the first one wins and is
	// returned with stored=false. Putting a pending record reserves the key.
	Put(ctx context.Context, fp Fingerprint, rec Record) (winner Record, stored bool, err error)
	// Complete fills a reservation with the response. Fails with ErrNotPending when fp
	// holds no reservation for rec.BodyHash.
	Complete(ctx context.Context, fp Fingerprint, rec Record) error
	// Release drops a reservation so the key can be retried. Completed records stay.
	Release(ctx context.Context, fp Fingerprint) error
	// DeleteBefore drops records created before cutoff and reports how many went.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}
