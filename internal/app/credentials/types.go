package credentials

import (
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// LinkAccountInput carries the provider data an identity library hands over after a
// successful sign-in.
type LinkAccountInput struct {
	UserID            domain.UserID
	Type              domain.AccountType
	Provider          string
	ProviderAccountID string

	RefreshToken *string
	AccessToken  *string
	ExpiresAt    *int64
	TokenType    *string
	Scope        *string
	IDToken      *string
	SessionState *string
}

type RegisterAuthenticatorInput struct {
	UserID               domain.UserID
	CredentialID         domain.CredentialID
	ProviderAccountID    string
	CredentialPublicKey  string
	Counter              int64
	CredentialDeviceType string
	CredentialBackedUp   bool
	Transports           *string
}

// SessionAndUser is a resolved, unexpired session.
type SessionAndUser struct {
	Session domain.Session
	User    domain.User
}

// SweepResult counts what a sweep removed.
type SweepResult struct {
	Sessions           int
	VerificationTokens int
}

// Options tunes credential lifetimes. Zero values fall back to the defaults.
type Options struct {
	SessionMaxAge        time.Duration
	VerificationTokenTTL time.Duration
}

const (
	DefaultSessionMaxAge        = 30 * 24 * time.Hour
	DefaultVerificationTokenTTL = 24 * time.Hour
)
