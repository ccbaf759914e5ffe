// Package users is the user registry: the canonical identity records every credential
// and travel hangs off.
package users

import (
	"context"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/optional"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

type Service struct {
	st store.Store

	newUserID func() domain.UserID
}

func NewService(st store.Store) *Service {
	return &Service{
		st: st,
		newUserID: func() domain.UserID {
			return domain.UserID(uuid.NewString())
		},
	}
}

func (s *Service) Create(ctx context.Context, in CreateUserInput) (domain.User, error) {
	u := domain.User{ID: s.newUserID()}
	var err error
	if u.Name, err = normalizeName(in.Name); err != nil {
		return domain.User{}, err
	}
	if u.Email, err = normalizeEmail(in.Email); err != nil {
		return domain.User{}, err
	}
	if u.Image, err = normalizeImage(in.Image); err != nil {
		return domain.User{}, err
	}
	u.EmailVerified = utc(in.EmailVerified)

	err = s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, u)
	})
	if err != nil {
		return domain.User{}, integrity.Translate(err, integrity.EntityUser)
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id domain.UserID) (domain.User, error) {
	var u domain.User
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.Users().Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.User{}, integrity.Translate(err, integrity.EntityUser)
	}
	return u, nil
}

// GetByEmail matches case-insensitively.
func (s *Service) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.Users().GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		return domain.User{}, integrity.Translate(err, integrity.EntityUser)
	}
	return u, nil
}

// GetByAccount resolves the user linked to a provider account.
func (s *Service) GetByAccount(ctx context.Context, key domain.AccountKey) (domain.User, error) {
	var u domain.User
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.Accounts().Get(ctx, key)
		if err != nil {
			return integrity.Translate(err, integrity.EntityAccount)
		}
		u, err = tx.Users().Get(ctx, a.UserID)
		return err
	})
	if err != nil {
		return domain.User{}, integrity.Translate(err, integrity.EntityUser)
	}
	return u, nil
}

func (s *Service) Update(ctx context.Context, id domain.UserID, in UpdateUserInput) (domain.User, error) {
	var out domain.User
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().Get(ctx, id)
		if err != nil {
			return err
		}

		if in.Name.IsSpecified() {
			if u.Name, err = normalizeName(optional.ApplyPtr(in.Name, nil)); err != nil {
				return err
			}
		}
		if in.Email.IsSpecified() {
			if u.Email, err = normalizeEmail(optional.ApplyPtr(in.Email, nil)); err != nil {
				return err
			}
		}
		if in.Image.IsSpecified() {
			if u.Image, err = normalizeImage(optional.ApplyPtr(in.Image, nil)); err != nil {
				return err
			}
		}
		u.EmailVerified = utc(optional.ApplyPtr(in.EmailVerified, u.EmailVerified))

		if err := tx.Users().Update(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return domain.User{}, integrity.Translate(err, integrity.EntityUser)
	}
	return out, nil
}

// Delete removes the user together with its accounts, sessions and authenticators in
// one transaction. Travels it owned are kept and become ownerless.
func (s *Service) Delete(ctx context.Context, id domain.UserID) (integrity.UserCascade, error) {
	var res integrity.UserCascade
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = integrity.DeleteUser(ctx, tx, id)
		return err
	})
	if err != nil {
		return integrity.UserCascade{}, integrity.Translate(err, integrity.EntityUser)
	}
	return res, nil
}

// normalizeName collapses whitespace; a blank name is stored as absent.
func normalizeName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	n := domain.NormalizeHumanName(*name)
	if n == "" {
		return nil, nil
	}
	return &n, nil
}

// normalizeEmail trims the address and keeps its case; a blank email is stored as absent.
func normalizeEmail(email *string) (*string, error) {
	if email == nil {
		return nil, nil
	}
	e := strings.TrimSpace(*email)
	if e == "" {
		return nil, nil
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return nil, integrity.Invalid("email", "must be a valid email address")
	}
	return &e, nil
}

func normalizeImage(image *string) (*string, error) {
	if image == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*image)
	if v == "" {
		return nil, nil
	}
	if u, err := url.Parse(v); err != nil || !u.IsAbs() {
		return nil, integrity.Invalid("image", "must be an absolute URI")
	}
	return &v, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
