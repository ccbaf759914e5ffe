package store

import (
	"context"
	"sync"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent use.
//
// Update transactions are serialized and copy-on-write: fn mutates a private clone of the
// state which replaces the shared state only when fn returns nil. View transactions share
// the committed state under a read lock and reject writes.
type Store struct {
	mu sync.RWMutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Update(ctx context.Context, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &tx{st: s.st, readOnly: true})
}

type dayKey struct {
	travelID domain.TravelID
	date     int64 // unix seconds of the normalized date
}

func newDayKey(travelID domain.TravelID, date int64) dayKey {
	return dayKey{travelID: travelID, date: date}
}

type state struct {
	users    map[domain.UserID]domain.User
	idByMail map[string]domain.UserID

	travels  map[domain.TravelID]domain.Travel
	days     map[domain.DayID]domain.Day
	dayByKey map[dayKey]domain.DayID

	accounts       map[domain.AccountKey]domain.Account
	sessions       map[domain.SessionToken]domain.Session
	vtokens        map[domain.VerificationTokenKey]domain.VerificationToken
	authenticators map[domain.CredentialID]domain.Authenticator
}

func newState() *state {
	return &state{
		users:          make(map[domain.UserID]domain.User),
		idByMail:       make(map[string]domain.UserID),
		travels:        make(map[domain.TravelID]domain.Travel),
		days:           make(map[domain.DayID]domain.Day),
		dayByKey:       make(map[dayKey]domain.DayID),
		accounts:       make(map[domain.AccountKey]domain.Account),
		sessions:       make(map[domain.SessionToken]domain.Session),
		vtokens:        make(map[domain.VerificationTokenKey]domain.VerificationToken),
		authenticators: make(map[domain.CredentialID]domain.Authenticator),
	}
}

// clone copies every index. Stored values are never mutated in place (writers always
// store fresh clones), so sharing pointer fields between generations is safe.
func (s *state) clone() *state {
	return &state{
		users:          copyMap(s.users),
		idByMail:       copyMap(s.idByMail),
		travels:        copyMap(s.travels),
		days:           copyMap(s.days),
		dayByKey:       copyMap(s.dayByKey),
		accounts:       copyMap(s.accounts),
		sessions:       copyMap(s.sessions),
		vtokens:        copyMap(s.vtokens),
		authenticators: copyMap(s.authenticators),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

func (t *tx) Users() store.UserRepository                           { return users{t} }
func (t *tx) Travels() store.TravelRepository                       { return travels{t} }
func (t *tx) Days() store.DayRepository                             { return days{t} }
func (t *tx) Accounts() store.AccountRepository                     { return accounts{t} }
func (t *tx) Sessions() store.SessionRepository                     { return sessions{t} }
func (t *tx) VerificationTokens() store.VerificationTokenRepository { return vtokens{t} }
func (t *tx) Authenticators() store.AuthenticatorRepository         { return authenticators{t} }

// --- clone helpers ---

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
