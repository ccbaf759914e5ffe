package store

import "context"

// Tx exposes every repository bound to one transaction.
// Writes made through a Tx become visible together when the transaction commits.
type Tx interface {
	Users() UserRepository
	Travels() TravelRepository
	Days() DayRepository
	Accounts() AccountRepository
	Sessions() SessionRepository
	VerificationTokens() VerificationTokenRepository
	Authenticators() AuthenticatorRepository
}

// TxFunc is the body of a transaction.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the single source of truth for the entity graph.
//
// Isolation expectations:
//   - Update serializes against concurrent Updates touching the same keys; uniqueness,
//     cascade and counter checks performed inside fn are race-free.
//   - If fn returns an error nothing it wrote is visible to any caller.
type Store interface {
	// Update runs fn in a read-write transaction.
	Update(ctx context.Context, fn TxFunc) error

	// View runs fn in a read-only transaction. Writes fail with ErrReadOnly.
	View(ctx context.Context, fn TxFunc) error
}
