// Package credentials is the identity credential store: provider accounts, login
// sessions, verification tokens and WebAuthn authenticators, all anchored to a user.
package credentials

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	clockport "github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

const tokenBytes = 32

type Service struct {
	st  store.Store
	clk clockport.Clock

	sessionMaxAge        time.Duration
	verificationTokenTTL time.Duration

	newToken func() (string, error)
}

func NewService(st store.Store, clk clockport.Clock, opts Options) *Service {
	if opts.SessionMaxAge <= 0 {
		opts.SessionMaxAge = DefaultSessionMaxAge
	}
	if opts.VerificationTokenTTL <= 0 {
		opts.VerificationTokenTTL = DefaultVerificationTokenTTL
	}
	return &Service{
		st:                   st,
		clk:                  clk,
		sessionMaxAge:        opts.SessionMaxAge,
		verificationTokenTTL: opts.VerificationTokenTTL,
		newToken:             randomToken,
	}
}

// randomToken returns 32 random bytes, base64url encoded without padding.
func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// --- accounts ---

// LinkAccount links a provider account to a user. Re-linking the same pair to the same
// user refreshes its tokens; a pair held by another user is a ConstraintViolation.
func (s *Service) LinkAccount(ctx context.Context, in LinkAccountInput) (domain.Account, error) {
	provider := strings.TrimSpace(in.Provider)
	providerAccountID := strings.TrimSpace(in.ProviderAccountID)
	if provider == "" {
		return domain.Account{}, integrity.Invalid("provider", "must be non-empty")
	}
	if providerAccountID == "" {
		return domain.Account{}, integrity.Invalid("providerAccountId", "must be non-empty")
	}
	if !in.Type.Valid() {
		return domain.Account{}, integrity.Invalid("type", "must be one of oauth, oidc, email, webauthn")
	}

	a := domain.Account{
		AccountKey:   domain.AccountKey{Provider: provider, ProviderAccountID: providerAccountID},
		UserID:       in.UserID,
		Type:         in.Type,
		RefreshToken: in.RefreshToken,
		AccessToken:  in.AccessToken,
		ExpiresAt:    in.ExpiresAt,
		TokenType:    in.TokenType,
		Scope:        in.Scope,
		IDToken:      in.IDToken,
		SessionState: in.SessionState,
	}
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := integrity.RequireUser(ctx, tx, in.UserID); err != nil {
			return err
		}
		return tx.Accounts().Link(ctx, a)
	})
	if err != nil {
		return domain.Account{}, integrity.Translate(err, integrity.EntityAccount)
	}
	return a, nil
}

func (s *Service) UnlinkAccount(ctx context.Context, key domain.AccountKey) error {
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Accounts().Delete(ctx, key)
	})
	return integrity.Translate(err, integrity.EntityAccount)
}

func (s *Service) GetAccount(ctx context.Context, key domain.AccountKey) (domain.Account, error) {
	var a domain.Account
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		a, err = tx.Accounts().Get(ctx, key)
		return err
	})
	if err != nil {
		return domain.Account{}, integrity.Translate(err, integrity.EntityAccount)
	}
	return a, nil
}

func (s *Service) ListAccounts(ctx context.Context, userID domain.UserID) ([]domain.Account, error) {
	var out []domain.Account
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := integrity.RequireUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.Accounts().ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, integrity.Translate(err, integrity.EntityAccount)
	}
	return out, nil
}

// --- sessions ---

// CreateSession opens a session for userID. A zero expires means now + the configured
// max age; an expires that is not in the future is rejected.
func (s *Service) CreateSession(ctx context.Context, userID domain.UserID, expires time.Time) (domain.Session, error) {
	now := s.clk.Now()
	if expires.IsZero() {
		expires = now.Add(s.sessionMaxAge)
	}
	if !now.Before(expires) {
		return domain.Session{}, integrity.Invalid("expires", "must be in the future")
	}
	token, err := s.newToken()
	if err != nil {
		return domain.Session{}, err
	}

	sess := domain.Session{SessionToken: domain.SessionToken(token), UserID: userID, Expires: expires.UTC()}
	err = s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := integrity.RequireUser(ctx, tx, userID); err != nil {
			return err
		}
		return tx.Sessions().Create(ctx, sess)
	})
	if err != nil {
		return domain.Session{}, integrity.Translate(err, integrity.EntitySession)
	}
	return sess, nil
}

// GetSession returns the session. Past its expiry the session is still returned, together
// with an Expired failure, so callers can tell an expired session from an unknown one.
func (s *Service) GetSession(ctx context.Context, token domain.SessionToken) (domain.Session, error) {
	var sess domain.Session
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		sess, err = tx.Sessions().Get(ctx, token)
		return err
	})
	if err != nil {
		return domain.Session{}, integrity.Translate(err, integrity.EntitySession)
	}
	if sess.ExpiredAt(s.clk.Now()) {
		return sess, sessionExpired(sess)
	}
	return sess, nil
}

// GetSessionAndUser resolves a bearer token to its session and user.
func (s *Service) GetSessionAndUser(ctx context.Context, token domain.SessionToken) (SessionAndUser, error) {
	var out SessionAndUser
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, err := tx.Sessions().Get(ctx, token)
		if err != nil {
			return err
		}
		u, err := tx.Users().Get(ctx, sess.UserID)
		if err != nil {
			return integrity.Translate(err, integrity.EntityUser)
		}
		out = SessionAndUser{Session: sess, User: u}
		return nil
	})
	if err != nil {
		return SessionAndUser{}, integrity.Translate(err, integrity.EntitySession)
	}
	if out.Session.ExpiredAt(s.clk.Now()) {
		return out, sessionExpired(out.Session)
	}
	return out, nil
}

func (s *Service) UpdateSessionExpiry(ctx context.Context, token domain.SessionToken, expires time.Time) (domain.Session, error) {
	var sess domain.Session
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Sessions().SetExpires(ctx, token, expires.UTC()); err != nil {
			return err
		}
		var err error
		sess, err = tx.Sessions().Get(ctx, token)
		return err
	})
	if err != nil {
		return domain.Session{}, integrity.Translate(err, integrity.EntitySession)
	}
	return sess, nil
}

func (s *Service) DeleteSession(ctx context.Context, token domain.SessionToken) error {
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Sessions().Delete(ctx, token)
	})
	return integrity.Translate(err, integrity.EntitySession)
}

func sessionExpired(sess domain.Session) error {
	return integrity.Expired("SESSION_EXPIRED", "session expired", map[string]any{
		"expires": sess.Expires.UTC().Format(time.RFC3339),
	})
}

// --- verification tokens ---

// IssueVerificationToken creates a single-use token for identifier. A ttl <= 0 uses the
// configured default.
func (s *Service) IssueVerificationToken(ctx context.Context, identifier string, ttl time.Duration) (domain.VerificationToken, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.VerificationToken{}, integrity.Invalid("identifier", "must be non-empty")
	}
	if ttl <= 0 {
		ttl = s.verificationTokenTTL
	}
	token, err := s.newToken()
	if err != nil {
		return domain.VerificationToken{}, err
	}

	v := domain.VerificationToken{
		VerificationTokenKey: domain.VerificationTokenKey{Identifier: identifier, Token: token},
		Expires:              s.clk.Now().Add(ttl).UTC(),
	}
	err = s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.VerificationTokens().Create(ctx, v)
	})
	if err != nil {
		return domain.VerificationToken{}, integrity.Translate(err, integrity.EntityVerificationToken)
	}
	return v, nil
}

// ConsumeVerificationToken deletes the token and returns it. The deletion commits even
// when the token turns out to be expired, in which case Expired is returned.
func (s *Service) ConsumeVerificationToken(ctx context.Context, identifier, token string) (domain.VerificationToken, error) {
	key := domain.VerificationTokenKey{Identifier: strings.TrimSpace(identifier), Token: token}

	var v domain.VerificationToken
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		v, err = tx.VerificationTokens().Take(ctx, key)
		return err
	})
	if err != nil {
		return domain.VerificationToken{}, integrity.Translate(err, integrity.EntityVerificationToken)
	}
	if v.ExpiredAt(s.clk.Now()) {
		return domain.VerificationToken{}, integrity.Expired("VERIFICATION_TOKEN_EXPIRED", "verification token expired", nil)
	}
	return v, nil
}

// --- authenticators ---

func (s *Service) RegisterAuthenticator(ctx context.Context, in RegisterAuthenticatorInput) (domain.Authenticator, error) {
	if strings.TrimSpace(string(in.CredentialID)) == "" {
		return domain.Authenticator{}, integrity.Invalid("credentialId", "must be non-empty")
	}
	if in.CredentialPublicKey == "" {
		return domain.Authenticator{}, integrity.Invalid("credentialPublicKey", "must be non-empty")
	}
	if in.CredentialDeviceType == "" {
		return domain.Authenticator{}, integrity.Invalid("credentialDeviceType", "must be non-empty")
	}
	if in.Counter < 0 {
		return domain.Authenticator{}, integrity.Invalid("counter", "must be >= 0")
	}

	a := domain.Authenticator{
		CredentialID:         in.CredentialID,
		UserID:               in.UserID,
		ProviderAccountID:    in.ProviderAccountID,
		CredentialPublicKey:  in.CredentialPublicKey,
		Counter:              in.Counter,
		CredentialDeviceType: in.CredentialDeviceType,
		CredentialBackedUp:   in.CredentialBackedUp,
		Transports:           in.Transports,
	}
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := integrity.RequireUser(ctx, tx, in.UserID); err != nil {
			return err
		}
		return tx.Authenticators().Create(ctx, a)
	})
	if err != nil {
		return domain.Authenticator{}, integrity.Translate(err, integrity.EntityAuthenticator)
	}
	return a, nil
}

func (s *Service) GetAuthenticator(ctx context.Context, id domain.CredentialID) (domain.Authenticator, error) {
	var a domain.Authenticator
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		a, err = tx.Authenticators().Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.Authenticator{}, integrity.Translate(err, integrity.EntityAuthenticator)
	}
	return a, nil
}

func (s *Service) ListAuthenticators(ctx context.Context, userID domain.UserID) ([]domain.Authenticator, error) {
	var out []domain.Authenticator
	err := s.st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := integrity.RequireUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.Authenticators().ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, integrity.Translate(err, integrity.EntityAuthenticator)
	}
	return out, nil
}

func (s *Service) DeleteAuthenticator(ctx context.Context, id domain.CredentialID) error {
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Authenticators().Delete(ctx, id)
	})
	return integrity.Translate(err, integrity.EntityAuthenticator)
}

// VerifyAndBumpCounter accepts a signature counter only if it strictly exceeds the stored
// one. Anything else is ReplayDetected and leaves the stored counter untouched.
func (s *Service) VerifyAndBumpCounter(ctx context.Context, id domain.CredentialID, presented int64) (domain.Authenticator, error) {
	var a domain.Authenticator
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Authenticators().BumpCounter(ctx, id, presented); err != nil {
			return err
		}
		var err error
		a, err = tx.Authenticators().Get(ctx, id)
		return err
	})
	if err != nil {
		err = integrity.Translate(err, integrity.EntityAuthenticator)
		var e *integrity.Error
		if errors.As(err, &e) && e.Kind == integrity.KindReplayDetected {
			e.Details = map[string]any{"credentialId": string(id), "presentedCounter": presented}
		}
		return domain.Authenticator{}, err
	}
	return a, nil
}

// --- maintenance ---

// SweepExpired removes sessions and verification tokens whose expiry is not after the
// current time. Reads never depend on it having run.
func (s *Service) SweepExpired(ctx context.Context) (SweepResult, error) {
	now := s.clk.Now()
	var res SweepResult
	err := s.st.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if res.Sessions, err = tx.Sessions().DeleteExpired(ctx, now); err != nil {
			return fmt.Errorf("sweep sessions: %w", err)
		}
		if res.VerificationTokens, err = tx.VerificationTokens().DeleteExpired(ctx, now); err != nil {
			return fmt.Errorf("sweep verification tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return res, nil
}
