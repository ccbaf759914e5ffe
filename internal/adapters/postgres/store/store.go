// Package store is the Postgres implementation of the store port. Every repository call
// runs inside the pgx transaction opened by Update or View.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

// Store is a Postgres implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Update(ctx context.Context, fn store.TxFunc) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, false, fn)
}

func (s *Store) View(ctx context.Context, fn store.TxFunc) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, true, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, readOnly bool, fn store.TxFunc) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	return pgx.BeginTxFunc(ctx, s.pool, opts, func(ptx pgx.Tx) error {
		return fn(ctx, &tx{tx: ptx, readOnly: readOnly})
	})
}

type tx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

// lockSuffix pins a parent row for the rest of a read-write transaction.
// Read-only transactions cannot take row locks.
func (t *tx) lockSuffix() string {
	if t.readOnly {
		return ""
	}
	return " FOR KEY SHARE"
}

func (t *tx) Users() store.UserRepository       { return users{t} }
func (t *tx) Travels() store.TravelRepository   { return travels{t} }
func (t *tx) Days() store.DayRepository         { return days{t} }
func (t *tx) Accounts() store.AccountRepository { return accounts{t} }
func (t *tx) Sessions() store.SessionRepository { return sessions{t} }

func (t *tx) VerificationTokens() store.VerificationTokenRepository {
	return vtokens{t}
}

func (t *tx) Authenticators() store.AuthenticatorRepository {
	return authenticators{t}
}

// classify maps constraint failures onto store sentinels. uniques names the sentinel for
// each unique constraint the statement can hit.
func classify(err error, uniques map[string]error) error {
	pe, ok := postgres.AsPgError(err)
	if !ok {
		return err
	}
	switch pe.Code {
	case postgres.UniqueViolationCode:
		if mapped, ok := uniques[pe.ConstraintName]; ok {
			return mapped
		}
		return store.ErrAlreadyExists
	case postgres.ForeignKeyViolationCode:
		return store.ErrMissingReference
	case postgres.ReadOnlyTxCode:
		return store.ErrReadOnly
	}
	return err
}

// exists reports whether the single-row query returns a row.
func exists(ctx context.Context, q pgx.Tx, sql string, args ...any) (bool, error) {
	var one int
	err := q.QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
