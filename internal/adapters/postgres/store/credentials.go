package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

var sessionUniques = map[string]error{
	"sessions_pkey": store.ErrAlreadyExists,
}

var vtokenUniques = map[string]error{
	"verification_tokens_pkey": store.ErrAlreadyExists,
}

var authenticatorUniques = map[string]error{
	"authenticators_pkey":              store.ErrCredentialIDTaken,
	"authenticators_credential_id_key": store.ErrCredentialIDTaken,
}

const accountColumns = `provider, provider_account_id, user_id, type, refresh_token, access_token,
	expires_at, token_type, scope, id_token, session_state`

const authenticatorColumns = `credential_id, user_id, provider_account_id, credential_public_key,
	counter, credential_device_type, credential_backed_up, transports`

type accounts struct{ t *tx }

// Link upserts only while the key stays with the same user; the conditional DO UPDATE
// returns no row when another user holds it.
func (r accounts) Link(ctx context.Context, a domain.Account) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	var owner string
	err := r.t.tx.QueryRow(ctx, `
		INSERT INTO accounts (
			provider, provider_account_id, user_id, type, refresh_token, access_token,
			expires_at, token_type, scope, id_token, session_state
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider, provider_account_id) DO UPDATE
		SET type = EXCLUDED.type,
		    refresh_token = EXCLUDED.refresh_token,
		    access_token = EXCLUDED.access_token,
		    expires_at = EXCLUDED.expires_at,
		    token_type = EXCLUDED.token_type,
		    scope = EXCLUDED.scope,
		    id_token = EXCLUDED.id_token,
		    session_state = EXCLUDED.session_state
		WHERE accounts.user_id = EXCLUDED.user_id
		RETURNING user_id
	`,
		a.Provider,
		a.ProviderAccountID,
		string(a.UserID),
		string(a.Type),
		a.RefreshToken,
		a.AccessToken,
		a.ExpiresAt,
		a.TokenType,
		a.Scope,
		a.IDToken,
		a.SessionState,
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrAccountLinkedElsewhere
	}
	if err != nil {
		return classify(err, nil)
	}
	return nil
}

func (r accounts) Delete(ctx context.Context, key domain.AccountKey) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `
		DELETE FROM accounts WHERE provider = $1 AND provider_account_id = $2
	`, key.Provider, key.ProviderAccountID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r accounts) Get(ctx context.Context, key domain.AccountKey) (domain.Account, error) {
	row := r.t.tx.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE provider = $1 AND provider_account_id = $2
	`, key.Provider, key.ProviderAccountID)
	a, err := scanAccount(row)
	return a, notFound(err)
}

func (r accounts) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Account, error) {
	rows, err := r.t.tx.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE user_id = $1
		ORDER BY provider, provider_account_id
	`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r accounts) DeleteByUser(ctx context.Context, userID domain.UserID) (int, error) {
	return deleteByUser(ctx, r.t, `DELETE FROM accounts WHERE user_id = $1`, userID)
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a       domain.Account
		userID  string
		accType string
	)
	err := row.Scan(
		&a.Provider,
		&a.ProviderAccountID,
		&userID,
		&accType,
		&a.RefreshToken,
		&a.AccessToken,
		&a.ExpiresAt,
		&a.TokenType,
		&a.Scope,
		&a.IDToken,
		&a.SessionState,
	)
	if err != nil {
		return domain.Account{}, err
	}
	a.UserID = domain.UserID(userID)
	a.Type = domain.AccountType(accType)
	return a, nil
}

type sessions struct{ t *tx }

func (r sessions) Create(ctx context.Context, s domain.Session) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	_, err := r.t.tx.Exec(ctx, `
		INSERT INTO sessions (session_token, user_id, expires) VALUES ($1, $2, $3)
	`, string(s.SessionToken), string(s.UserID), s.Expires.UTC())
	if err != nil {
		return classify(err, sessionUniques)
	}
	return nil
}

func (r sessions) SetExpires(ctx context.Context, token domain.SessionToken, expires time.Time) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `
		UPDATE sessions SET expires = $2 WHERE session_token = $1
	`, string(token), expires.UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r sessions) Delete(ctx context.Context, token domain.SessionToken) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `DELETE FROM sessions WHERE session_token = $1`, string(token))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r sessions) Get(ctx context.Context, token domain.SessionToken) (domain.Session, error) {
	var (
		userID  string
		expires time.Time
	)
	err := r.t.tx.QueryRow(ctx, `
		SELECT user_id, expires FROM sessions WHERE session_token = $1
	`, string(token)).Scan(&userID, &expires)
	if err != nil {
		return domain.Session{}, notFound(err)
	}
	return domain.Session{SessionToken: token, UserID: domain.UserID(userID), Expires: expires.UTC()}, nil
}

func (r sessions) DeleteByUser(ctx context.Context, userID domain.UserID) (int, error) {
	return deleteByUser(ctx, r.t, `DELETE FROM sessions WHERE user_id = $1`, userID)
}

func (r sessions) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	ct, err := r.t.tx.Exec(ctx, `DELETE FROM sessions WHERE expires <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

type vtokens struct{ t *tx }

func (r vtokens) Create(ctx context.Context, v domain.VerificationToken) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	_, err := r.t.tx.Exec(ctx, `
		INSERT INTO verification_tokens (identifier, token, expires) VALUES ($1, $2, $3)
	`, v.Identifier, v.Token, v.Expires.UTC())
	if err != nil {
		return classify(err, vtokenUniques)
	}
	return nil
}

// Take deletes and returns in one statement, so a token can be taken at most once.
func (r vtokens) Take(ctx context.Context, key domain.VerificationTokenKey) (domain.VerificationToken, error) {
	if err := r.t.writable(); err != nil {
		return domain.VerificationToken{}, err
	}
	var expires time.Time
	err := r.t.tx.QueryRow(ctx, `
		DELETE FROM verification_tokens
		WHERE identifier = $1 AND token = $2
		RETURNING expires
	`, key.Identifier, key.Token).Scan(&expires)
	if err != nil {
		return domain.VerificationToken{}, notFound(err)
	}
	return domain.VerificationToken{VerificationTokenKey: key, Expires: expires.UTC()}, nil
}

func (r vtokens) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	ct, err := r.t.tx.Exec(ctx, `DELETE FROM verification_tokens WHERE expires <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

type authenticators struct{ t *tx }

func (r authenticators) Create(ctx context.Context, a domain.Authenticator) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	_, err := r.t.tx.Exec(ctx, `
		INSERT INTO authenticators (`+authenticatorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		string(a.CredentialID),
		string(a.UserID),
		a.ProviderAccountID,
		a.CredentialPublicKey,
		a.Counter,
		a.CredentialDeviceType,
		a.CredentialBackedUp,
		a.Transports,
	)
	if err != nil {
		return classify(err, authenticatorUniques)
	}
	return nil
}

func (r authenticators) Delete(ctx context.Context, id domain.CredentialID) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `DELETE FROM authenticators WHERE credential_id = $1`, string(id))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r authenticators) Get(ctx context.Context, id domain.CredentialID) (domain.Authenticator, error) {
	row := r.t.tx.QueryRow(ctx, `
		SELECT `+authenticatorColumns+` FROM authenticators WHERE credential_id = $1
	`, string(id))
	a, err := scanAuthenticator(row)
	return a, notFound(err)
}

func (r authenticators) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Authenticator, error) {
	rows, err := r.t.tx.Query(ctx, `
		SELECT `+authenticatorColumns+` FROM authenticators
		WHERE user_id = $1
		ORDER BY credential_id
	`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Authenticator, 0)
	for rows.Next() {
		a, err := scanAuthenticator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// BumpCounter is a conditional update: the row lock taken by UPDATE orders concurrent
// bumps, and a loser re-evaluates counter < $2 against the winner's value.
func (r authenticators) BumpCounter(ctx context.Context, id domain.CredentialID, counter int64) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `
		UPDATE authenticators SET counter = $2
		WHERE credential_id = $1 AND counter < $2
	`, string(id), counter)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	ok, err := exists(ctx, r.t.tx, `SELECT 1 FROM authenticators WHERE credential_id = $1`, string(id))
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return store.ErrCounterNotIncreasing
}

func (r authenticators) DeleteByUser(ctx context.Context, userID domain.UserID) (int, error) {
	return deleteByUser(ctx, r.t, `DELETE FROM authenticators WHERE user_id = $1`, userID)
}

func scanAuthenticator(row pgx.Row) (domain.Authenticator, error) {
	var (
		a      domain.Authenticator
		id     string
		userID string
	)
	err := row.Scan(
		&id,
		&userID,
		&a.ProviderAccountID,
		&a.CredentialPublicKey,
		&a.Counter,
		&a.CredentialDeviceType,
		&a.CredentialBackedUp,
		&a.Transports,
	)
	if err != nil {
		return domain.Authenticator{}, err
	}
	a.CredentialID = domain.CredentialID(id)
	a.UserID = domain.UserID(userID)
	return a, nil
}

func deleteByUser(ctx context.Context, t *tx, sql string, userID domain.UserID) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	ct, err := t.tx.Exec(ctx, sql, string(userID))
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}
