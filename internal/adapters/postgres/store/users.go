package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

var userUniques = map[string]error{
	"users_pkey":      store.ErrAlreadyExists,
	"users_email_key": store.ErrEmailTaken,
}

const userColumns = `id, name, email, email_verified, image`

type users struct{ t *tx }

func (r users) Create(ctx context.Context, u domain.User) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	_, err := r.t.tx.Exec(ctx, `
		INSERT INTO users (id, name, email, email_verified, image)
		VALUES ($1, $2, $3, $4, $5)
	`, string(u.ID), u.Name, u.Email, utcPtr(u.EmailVerified), u.Image)
	if err != nil {
		return classify(err, userUniques)
	}
	return nil
}

func (r users) Update(ctx context.Context, u domain.User) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `
		UPDATE users
		SET name = $2,
		    email = $3,
		    email_verified = $4,
		    image = $5
		WHERE id = $1
	`, string(u.ID), u.Name, u.Email, utcPtr(u.EmailVerified), u.Image)
	if err != nil {
		return classify(err, userUniques)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete relies on the schema's foreign keys: credentials cascade, travels are set ownerless.
func (r users) Delete(ctx context.Context, id domain.UserID) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r users) Get(ctx context.Context, id domain.UserID) (domain.User, error) {
	row := r.t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, string(id))
	u, err := scanUser(row)
	return u, notFound(err)
}

func (r users) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, domain.EmailKey(email))
	u, err := scanUser(row)
	return u, notFound(err)
}

func (r users) Exists(ctx context.Context, id domain.UserID) (bool, error) {
	return exists(ctx, r.t.tx, `SELECT 1 FROM users WHERE id = $1`+r.t.lockSuffix(), string(id))
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u        domain.User
		id       string
		verified *time.Time
	)
	if err := row.Scan(&id, &u.Name, &u.Email, &verified, &u.Image); err != nil {
		return domain.User{}, err
	}
	u.ID = domain.UserID(id)
	u.EmailVerified = utcPtr(verified)
	return u, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
