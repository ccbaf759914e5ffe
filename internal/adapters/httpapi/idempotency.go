package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/idempotency"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
	maxBodyBytes         = 1 << 20
)

// Idempotent replays the first successful response for a repeated Idempotency-Key.
//
// Records are scoped to caller + method + route. The key is reserved before the handler
// runs, so a concurrent request with the same key gets a 409 instead of running twice.
// Reusing a key with a different payload is also a 409. A non-2xx response releases the
// key for retry. Requests without the header pass straight through.
func (s *Server) Idempotent(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			caller, ok := CallerFromContext(r.Context())
			if s.Idem == nil || key == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				writeError(w, r, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "Idempotency-Key is too long", map[string]any{"maxLength": maxIdempotencyKeyLen})
				return
			}

			raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "unreadable request body", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			bodyHash := hashBody(raw)

			fp := idempotency.Fingerprint{
				Key:    idempotency.Key(key),
				UserID: caller.ID,
				Method: r.Method,
				Route:  route,
			}
			winner, reserved, err := s.Idem.Put(r.Context(), fp, idempotency.Record{
				BodyHash:  bodyHash,
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				s.fail(w, r, err)
				return
			}
			if !reserved {
				s.replay(w, r, winner, bodyHash)
				return
			}

			// The outcome must be recorded even if the client has gone away.
			ctx := context.WithoutCancel(r.Context())
			completed := false
			defer func() {
				if completed {
					return
				}
				if err := s.Idem.Release(ctx, fp); err != nil {
					s.logIdemFailure(r, "idempotency key not released", err)
				}
			}()

			var captured bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status < 200 || status >= 300 {
				return
			}
			if err := s.Idem.Complete(ctx, fp, idempotency.Record{
				BodyHash:    bodyHash,
				StatusCode:  status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
			}); err != nil {
				s.logIdemFailure(r, "idempotency record not stored", err)
				return
			}
			completed = true
		})
	}
}

func (s *Server) logIdemFailure(r *http.Request, msg string, err error) {
	s.logger.WarnContext(r.Context(), msg,
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request, rec idempotency.Record, bodyHash string) {
	if rec.BodyHash != bodyHash {
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
		return
	}
	if rec.Pending() {
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "a request with this idempotency key is still running", nil)
		return
	}
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(rec.StatusCode)
	_, _ = w.Write(rec.Body)
}

// hashBody hashes the compacted JSON so whitespace changes do not count as a new payload.
func hashBody(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		raw = buf.Bytes()
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
