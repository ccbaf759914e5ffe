package lease

import (
	"context"
	"time"
)

// Release gives a held lease back before its TTL elapses.
type Release func(ctx context.Context) error

// Locker hands out short-lived exclusive leases by name.
//
// TryAcquire never blocks waiting for a holder: ok=false means another holder has it.
// A lease that is never released expires after ttl.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (release Release, ok bool, err error)
}
