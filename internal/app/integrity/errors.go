package integrity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

// Kind classifies a typed failure. Callers branch on Kind; Code refines it for clients.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindConstraintViolation Kind = "CONSTRAINT_VIOLATION"
	KindDanglingReference   Kind = "DANGLING_REFERENCE"
	KindExpired             Kind = "EXPIRED"
	KindReplayDetected      Kind = "REPLAY_DETECTED"
)

// Error is an application-layer failure that can be mapped to a client response.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return string(e.Kind)
}

// Is matches the kind sentinels below, so errors.Is(err, ErrNotFound) holds for any
// NOT_FOUND failure regardless of its code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrConstraintViolation = &Error{Kind: KindConstraintViolation}
	ErrDanglingReference   = &Error{Kind: KindDanglingReference}
	ErrExpired             = &Error{Kind: KindExpired}
	ErrReplayDetected      = &Error{Kind: KindReplayDetected}
)

// KindOf returns the kind of the first *Error in err's chain, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func NotFound(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message, Details: details}
}

func ConstraintViolation(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindConstraintViolation, Code: code, Message: message, Details: details}
}

func DanglingReference(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindDanglingReference, Code: code, Message: message, Details: details}
}

func Expired(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindExpired, Code: code, Message: message, Details: details}
}

func ReplayDetected(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindReplayDetected, Code: code, Message: message, Details: details}
}

// Invalid reports a field-level validation failure.
func Invalid(field, reason string) *Error {
	return ConstraintViolation("VALIDATION_ERROR", "invalid "+field, map[string]any{field: reason})
}

// Entity names the record an operation was addressing; it prefixes NotFound codes.
type Entity string

const (
	EntityUser              Entity = "USER"
	EntityTravel            Entity = "TRAVEL"
	EntityDay               Entity = "DAY"
	EntityAccount           Entity = "ACCOUNT"
	EntitySession           Entity = "SESSION"
	EntityVerificationToken Entity = "VERIFICATION_TOKEN"
	EntityAuthenticator     Entity = "AUTHENTICATOR"
)

// Translate maps store sentinels onto typed failures. Typed failures and
// infrastructure errors pass through unchanged.
func Translate(err error, entity Entity) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NotFound(string(entity)+"_NOT_FOUND", fmt.Sprintf("%s not found", humanize(entity)), nil)
	case errors.Is(err, store.ErrEmailTaken):
		return ConstraintViolation("EMAIL_TAKEN", "email already in use", nil)
	case errors.Is(err, store.ErrDayDateTaken):
		return ConstraintViolation("DAY_DATE_TAKEN", "a day already exists for this travel and date", nil)
	case errors.Is(err, store.ErrAccountLinkedElsewhere):
		return ConstraintViolation("ACCOUNT_LINKED_ELSEWHERE", "provider account is linked to another user", nil)
	case errors.Is(err, store.ErrCredentialIDTaken):
		return ConstraintViolation("CREDENTIAL_ID_TAKEN", "credential id already registered", nil)
	case errors.Is(err, store.ErrAlreadyExists):
		return ConstraintViolation(string(entity)+"_ALREADY_EXISTS", fmt.Sprintf("%s already exists", humanize(entity)), nil)
	case errors.Is(err, store.ErrMissingReference):
		return DanglingReference("REFERENCE_MISSING", "referenced record does not exist", nil)
	case errors.Is(err, store.ErrCounterNotIncreasing):
		return ReplayDetected("COUNTER_NOT_INCREASING", "authenticator counter did not increase", nil)
	}
	return err
}

func humanize(e Entity) string {
	if e == "" {
		return "record"
	}
	return strings.ToLower(strings.ReplaceAll(string(e), "_", " "))
}
