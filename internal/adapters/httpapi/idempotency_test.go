package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memidempotency "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/memory/idempotency"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

func newIdemServer() *Server {
	return NewServer(nil, nil, memidempotency.NewStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sendKeyed(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/things", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", key)
	req = req.WithContext(WithCaller(req.Context(), domain.User{ID: "u-1"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotent_ConcurrentRequestDoesNotRunHandlerTwice(t *testing.T) {
	t.Parallel()

	api := newIdemServer()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	h := api.Idempotent("/things")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": "t-1"})
	}))

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- sendKeyed(h, "k-1", `{"a":1}`) }()
	<-entered

	rec := sendKeyed(h, "k-1", `{"a":1}`)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "IDEMPOTENCY_IN_PROGRESS", errorCode(t, rec))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = sendKeyed(h, "k-1", `{"a":2}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IDEMPOTENCY_KEY_REUSE", errorCode(t, rec))

	close(release)
	rec = <-first
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = sendKeyed(h, "k-1", `{"a":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(replayedHeader))
	assert.JSONEq(t, `{"id":"t-1"}`, rec.Body.String())
	assert.Equal(t, int32(1), calls.Load())
}

func TestIdempotent_PanicReleasesKey(t *testing.T) {
	t.Parallel()

	api := newIdemServer()
	var calls atomic.Int32
	h := api.Idempotent("/things")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": "t-2"})
	}))

	func() {
		defer func() { _ = recover() }()
		sendKeyed(h, "k-2", `{}`)
	}()

	rec := sendKeyed(h, "k-2", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Header().Get(replayedHeader))
	assert.Equal(t, int32(2), calls.Load())
}
