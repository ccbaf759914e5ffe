package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/idempotency"
)

// Store is an in-memory implementation of idempotency.Store.
// It is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	m  map[idempotency.Fingerprint]idempotency.Record
}

func NewStore() *Store {
	return &Store{
		m: make(map[idempotency.Fingerprint]idempotency.Record),
	}
}

var _ idempotency.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return idempotency.Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[fp]
	if !ok {
		return idempotency.Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) (idempotency.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return idempotency.Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[fp]; ok {
		return cloneRecord(existing), false, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec = cloneRecord(rec)
	rec.CreatedAt = rec.CreatedAt.UTC()
	s.m[fp] = rec
	return cloneRecord(rec), true, nil
}

func (s *Store) Complete(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[fp]
	if !ok || !cur.Pending() || cur.BodyHash != rec.BodyHash {
		return idempotency.ErrNotPending
	}
	cur.StatusCode = rec.StatusCode
	cur.ContentType = rec.ContentType
	cur.Body = append([]byte(nil), rec.Body...)
	s.m[fp] = cur
	return nil
}

func (s *Store) Release(ctx context.Context, fp idempotency.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[fp]; ok && cur.Pending() {
		delete(s.m, fp)
	}
	return nil
}

func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for fp, rec := range s.m {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.m, fp)
			n++
		}
	}
	return n, nil
}

func cloneRecord(rec idempotency.Record) idempotency.Record {
	rec.Body = append([]byte(nil), rec.Body...)
	return rec
}
