package domain

import "time"

type AccountType string

const (
	AccountTypeOAuth    AccountType = "oauth"
	AccountTypeOIDC     AccountType = "oidc"
	AccountTypeEmail    AccountType = "email"
	AccountTypeWebAuthn AccountType = "webauthn"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeOAuth, AccountTypeOIDC, AccountTypeEmail, AccountTypeWebAuthn:
		return true
	default:
		return false
	}
}

// AccountKey is the composite identity of an Account. A key maps to exactly one Account
// and is never shared across users.
type AccountKey struct {
	Provider          string
	ProviderAccountID string
}

// Account links a User to an external identity provider.
type Account struct {
	AccountKey

	UserID UserID
	Type   AccountType

	RefreshToken *string
	AccessToken  *string
	ExpiresAt    *int64 // seconds since epoch, as issued by the provider
	TokenType    *string
	Scope        *string
	IDToken      *string
	SessionState *string
}

// Session is an active login session.
type Session struct {
	SessionToken SessionToken
	UserID       UserID
	Expires      time.Time
}

// ExpiredAt reports whether the session is no longer valid at now.
// A session is valid only while now precedes Expires.
func (s Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.Expires)
}

// VerificationTokenKey is the composite key of a VerificationToken.
type VerificationTokenKey struct {
	Identifier string
	Token      string
}

// VerificationToken is a short-lived single-use token for email/passwordless verification.
// It is not linked to a User; Identifier (typically an email) is the join point.
type VerificationToken struct {
	VerificationTokenKey
	Expires time.Time
}

func (v VerificationToken) ExpiredAt(now time.Time) bool {
	return !now.Before(v.Expires)
}

// Authenticator is a registered WebAuthn credential.
type Authenticator struct {
	CredentialID CredentialID
	UserID       UserID

	ProviderAccountID    string
	CredentialPublicKey  string
	Counter              int64 // monotonic signature counter
	CredentialDeviceType string
	CredentialBackedUp   bool
	Transports           *string
}
