package domain

import "time"

// User is the canonical identity record and the root of all ownership.
// All profile fields are optional; Email is globally unique when present.
type User struct {
	ID UserID

	Name          *string
	Email         *string
	EmailVerified *time.Time
	Image         *string
}
