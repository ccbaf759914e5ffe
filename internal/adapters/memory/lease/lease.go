// Package lease is an in-process lease.Locker for single-instance deployments and tests.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	clockport "github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/clock"
	leaseport "github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/lease"
)

type held struct {
	gen     uint64
	expires time.Time
}

// Locker is safe for concurrent use.
type Locker struct {
	clk clockport.Clock

	mu     sync.Mutex
	gen    uint64
	leases map[string]held
}

func NewLocker(clk clockport.Clock) *Locker {
	return &Locker{clk: clk, leases: make(map[string]held)}
}

var _ leaseport.Locker = (*Locker)(nil)

func (l *Locker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (leaseport.Release, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if ttl <= 0 {
		return nil, false, errors.New("lease ttl must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	if h, ok := l.leases[name]; ok && now.Before(h.expires) {
		return nil, false, nil
	}
	l.gen++
	gen := l.gen
	l.leases[name] = held{gen: gen, expires: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.leases[name]; ok && h.gen == gen {
			delete(l.leases, name)
		}
		return nil
	}
	return release, true, nil
}
