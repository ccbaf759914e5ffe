package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

type accounts struct{ t *tx }

func (r accounts) Link(ctx context.Context, a domain.Account) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if a.Provider == "" || a.ProviderAccountID == "" {
		return errors.New("empty account key")
	}
	st := r.t.st
	if _, ok := st.users[a.UserID]; !ok {
		return store.ErrMissingReference
	}
	if existing, ok := st.accounts[a.AccountKey]; ok && existing.UserID != a.UserID {
		return store.ErrAccountLinkedElsewhere
	}
	st.accounts[a.AccountKey] = cloneAccount(a)
	return nil
}

func (r accounts) Delete(ctx context.Context, key domain.AccountKey) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.st.accounts[key]; !ok {
		return store.ErrNotFound
	}
	delete(r.t.st.accounts, key)
	return nil
}

func (r accounts) Get(ctx context.Context, key domain.AccountKey) (domain.Account, error) {
	_ = ctx
	a, ok := r.t.st.accounts[key]
	if !ok {
		return domain.Account{}, store.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (r accounts) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Account, error) {
	_ = ctx
	out := make([]domain.Account, 0)
	for _, a := range r.t.st.accounts {
		if a.UserID == userID {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider == out[j].Provider {
			return out[i].ProviderAccountID < out[j].ProviderAccountID
		}
		return out[i].Provider < out[j].Provider
	})
	return out, nil
}

func (r accounts) DeleteByUser(ctx context.Context, userID domain.UserID) (int, error) {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for k, a := range r.t.st.accounts {
		if a.UserID == userID {
			delete(r.t.st.accounts, k)
			n++
		}
	}
	return n, nil
}

type sessions struct{ t *tx }

func (r sessions) Create(ctx context.Context, s domain.Session) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if s.SessionToken == "" {
		return errors.New("empty session token")
	}
	st := r.t.st
	if _, ok := st.sessions[s.SessionToken]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := st.users[s.UserID]; !ok {
		return store.ErrMissingReference
	}
	st.sessions[s.SessionToken] = s
	return nil
}

func (r sessions) SetExpires(ctx context.Context, token domain.SessionToken, expires time.Time) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	s, ok := r.t.st.sessions[token]
	if !ok {
		return store.ErrNotFound
	}
	s.Expires = expires
	r.t.st.sessions[token] = s
	return nil
}

func (r sessions) Delete(ctx context.Context, token domain.SessionToken) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.st.sessions[token]; !ok {
		return store.ErrNotFound
	}
	delete(r.t.st.sessions, token)
	return nil
}

func (r sessions) Get(ctx context.Context, token domain.SessionToken) (domain.Session, error) {
	_ = ctx
	s, ok := r.t.st.sessions[token]
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	return s, nil
}

func (r sessions) DeleteByUser(ctx context.Context, userID domain.UserID) (int, error) {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for k, s := range r.t.st.sessions {
		if s.UserID == userID {
			delete(r.t.st.sessions, k)
			n++
		}
	}
	return n, nil
}

func (r sessions) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for k, s := range r.t.st.sessions {
		if s.ExpiredAt(now) {
			delete(r.t.st.sessions, k)
			n++
		}
	}
	return n, nil
}

type vtokens struct{ t *tx }

func (r vtokens) Create(ctx context.Context, v domain.VerificationToken) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if v.Identifier == "" || v.Token == "" {
		return errors.New("empty verification token key")
	}
	if _, ok := r.t.st.vtokens[v.VerificationTokenKey]; ok {
		return store.ErrAlreadyExists
	}
	r.t.st.vtokens[v.VerificationTokenKey] = v
	return nil
}

func (r vtokens) Take(ctx context.Context, key domain.VerificationTokenKey) (domain.VerificationToken, error) {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return domain.VerificationToken{}, err
	}
	v, ok := r.t.st.vtokens[key]
	if !ok {
		return domain.VerificationToken{}, store.ErrNotFound
	}
	delete(r.t.st.vtokens, key)
	return v, nil
}

func (r vtokens) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for k, v := range r.t.st.vtokens {
		if v.ExpiredAt(now) {
			delete(r.t.st.vtokens, k)
			n++
		}
	}
	return n, nil
}

type authenticators struct{ t *tx }

func (r authenticators) Create(ctx context.Context, a domain.Authenticator) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if a.CredentialID == "" {
		return errors.New("empty credential id")
	}
	st := r.t.st
	if _, ok := st.authenticators[a.CredentialID]; ok {
		return store.ErrCredentialIDTaken
	}
	if _, ok := st.users[a.UserID]; !ok {
		return store.ErrMissingReference
	}
	st.authenticators[a.CredentialID] = cloneAuthenticator(a)
	return nil
}

func (r authenticators) Delete(ctx context.Context, id domain.CredentialID) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.st.authenticators[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.t.st.authenticators, id)
	return nil
}

func (r authenticators) Get(ctx context.Context, id domain.CredentialID) (domain.Authenticator, error) {
	_ = ctx
	a, ok := r.t.st.authenticators[id]
	if !ok {
		return domain.Authenticator{}, store.ErrNotFound
	}
	return cloneAuthenticator(a), nil
}

func (r authenticators) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Authenticator, error) {
	_ = ctx
	out := make([]domain.Authenticator, 0)
	for _, a := range r.t.st.authenticators {
		if a.UserID == userID {
			out = append(out, cloneAuthenticator(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CredentialID < out[j].CredentialID })
	return out, nil
}

func (r authenticators) BumpCounter(ctx context.Context, id domain.CredentialID, counter int64) error {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return err
	}
	a, ok := r.t.st.authenticators[id]
	if !ok {
		return store.ErrNotFound
	}
	if counter <= a.Counter {
		return store.ErrCounterNotIncreasing
	}
	a.Counter = counter
	r.t.st.authenticators[id] = a
	return nil
}

func (r authenticators) DeleteByUser(ctx context.Context, userID domain.UserID) (int, error) {
	_ = ctx
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for k, a := range r.t.st.authenticators {
		if a.UserID == userID {
			delete(r.t.st.authenticators, k)
			n++
		}
	}
	return n, nil
}

func cloneAccount(a domain.Account) domain.Account {
	out := a
	out.RefreshToken = clonePtr(a.RefreshToken)
	out.AccessToken = clonePtr(a.AccessToken)
	out.ExpiresAt = clonePtr(a.ExpiresAt)
	out.TokenType = clonePtr(a.TokenType)
	out.Scope = clonePtr(a.Scope)
	out.IDToken = clonePtr(a.IDToken)
	out.SessionState = clonePtr(a.SessionState)
	return out
}

func cloneAuthenticator(a domain.Authenticator) domain.Authenticator {
	out := a
	out.Transports = clonePtr(a.Transports)
	return out
}
