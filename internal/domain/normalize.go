package domain

import (
	"strings"
	"time"
)

// NormalizeHumanName trims leading/trailing whitespace and collapses internal whitespace runs.
// It is used for user, travel and country name normalization.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// EmailKey is the comparison key for email uniqueness. Emails are stored as given (trimmed)
// but compared case-insensitively.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeDate truncates t to its calendar date at UTC midnight.
// Itinerary dates have date-only semantics; the time of day is discarded.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
