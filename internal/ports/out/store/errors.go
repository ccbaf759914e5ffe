package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists indicates a record with the same primary key already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrEmailTaken indicates another user already holds the email (case-insensitive).
	ErrEmailTaken = errors.New("email already in use")

	// ErrDayDateTaken indicates a day already exists for the (travel, date) pair.
	ErrDayDateTaken = errors.New("day already exists for travel date")

	// ErrAccountLinkedElsewhere indicates the (provider, providerAccountId) pair belongs to another user.
	ErrAccountLinkedElsewhere = errors.New("provider account linked to another user")

	// ErrCredentialIDTaken indicates the credential id is already registered, for any user.
	ErrCredentialIDTaken = errors.New("credential id already registered")

	// ErrCounterNotIncreasing indicates a presented authenticator counter is not greater than the stored one.
	ErrCounterNotIncreasing = errors.New("authenticator counter did not increase")

	// ErrMissingReference indicates a foreign key points at a row that does not exist.
	ErrMissingReference = errors.New("referenced record does not exist")

	// ErrReadOnly indicates a write was attempted inside a read-only transaction.
	ErrReadOnly = errors.New("write in read-only transaction")
)
