package store

import (
	"context"
	"errors"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

type users struct{ t *tx }

func (r users) Create(ctx context.Context, u domain.User) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if u.ID == "" {
		return errors.New("empty user id")
	}
	st := r.t.st
	if _, ok := st.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	if u.Email != nil {
		if _, ok := st.idByMail[domain.EmailKey(*u.Email)]; ok {
			return store.ErrEmailTaken
		}
		st.idByMail[domain.EmailKey(*u.Email)] = u.ID
	}
	st.users[u.ID] = cloneUser(u)
	return nil
}

func (r users) Update(ctx context.Context, u domain.User) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	st := r.t.st
	existing, ok := st.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	if u.Email != nil {
		if holder, ok := st.idByMail[domain.EmailKey(*u.Email)]; ok && holder != u.ID {
			return store.ErrEmailTaken
		}
	}
	if existing.Email != nil {
		delete(st.idByMail, domain.EmailKey(*existing.Email))
	}
	if u.Email != nil {
		st.idByMail[domain.EmailKey(*u.Email)] = u.ID
	}
	st.users[u.ID] = cloneUser(u)
	return nil
}

// Delete mirrors the schema's foreign key actions: credentials cascade, travels are detached.
func (r users) Delete(ctx context.Context, id domain.UserID) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	st := r.t.st
	u, ok := st.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if _, err := r.t.Accounts().DeleteByUser(ctx, id); err != nil {
		return err
	}
	if _, err := r.t.Sessions().DeleteByUser(ctx, id); err != nil {
		return err
	}
	if _, err := r.t.Authenticators().DeleteByUser(ctx, id); err != nil {
		return err
	}
	if _, err := r.t.Travels().ClearOwner(ctx, id); err != nil {
		return err
	}

	if u.Email != nil {
		delete(st.idByMail, domain.EmailKey(*u.Email))
	}
	delete(st.users, id)
	return nil
}

func (r users) Get(ctx context.Context, id domain.UserID) (domain.User, error) {
	_ = ctx
	u, ok := r.t.st.users[id]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r users) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	id, ok := r.t.st.idByMail[domain.EmailKey(email)]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r users) Exists(ctx context.Context, id domain.UserID) (bool, error) {
	_ = ctx
	_, ok := r.t.st.users[id]
	return ok, nil
}

func cloneUser(u domain.User) domain.User {
	out := u
	out.Name = clonePtr(u.Name)
	out.Email = clonePtr(u.Email)
	out.EmailVerified = clonePtr(u.EmailVerified)
	out.Image = clonePtr(u.Image)
	return out
}
