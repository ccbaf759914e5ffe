package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
)

// ErrorResponse is the envelope for every non-2xx response.
type ErrorResponse struct {
	Error struct {
		Code      string                            `json:"code"`
		Message   string                            `json:"message"`
		Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
		RequestId nullable.Nullable[string]         `json:"requestId,omitempty"`
	} `json:"error"`
}

// errForbidden is returned when the caller may not act on the travel it addresses.
var errForbidden = errors.New("forbidden")

var (
	errNotOwner         = fmt.Errorf("%w: travel belongs to another user", errForbidden)
	errOwnerlessChanged = fmt.Errorf("%w: ownerless travels are read-only", errForbidden)
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestId = nullable.NewNullableWithValue(rid)
	}
	writeJSON(w, status, er)
}

// writeAppError maps typed failures onto statuses. Anything untyped is logged and
// reported as a 500 without leaking its text.
func writeAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if errors.Is(err, errForbidden) {
		writeError(w, r, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		return
	}
	var ae *integrity.Error
	if !errors.As(err, &ae) {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	writeError(w, r, statusFor(ae), ae.Code, ae.Error(), ae.Details)
}

func statusFor(e *integrity.Error) int {
	switch e.Kind {
	case integrity.KindNotFound:
		return http.StatusNotFound
	case integrity.KindConstraintViolation:
		switch e.Code {
		case "VALIDATION_ERROR", "INVALID_DATE_RANGE", "DAY_OUTSIDE_TRAVEL":
			return http.StatusUnprocessableEntity
		}
		return http.StatusConflict
	case integrity.KindDanglingReference:
		return http.StatusUnprocessableEntity
	case integrity.KindExpired:
		if e.Code == "SESSION_EXPIRED" {
			return http.StatusUnauthorized
		}
		return http.StatusGone
	case integrity.KindReplayDetected:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
