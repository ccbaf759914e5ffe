package domain

// UserID is the opaque identifier of a user record, generated at creation.
type UserID string

// TravelID is the opaque identifier of a travel (trip) record.
type TravelID string

// DayID is the opaque identifier of a single itinerary day.
type DayID string

// SessionToken is the primary key of a login session. It is a bearer secret.
type SessionToken string

// CredentialID identifies a registered WebAuthn credential. It is globally unique.
type CredentialID string
