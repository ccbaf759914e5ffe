package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

type RouterOptions struct {
	// AuthMiddleware resolves the caller. Every route except /healthz sits behind it.
	AuthMiddleware func(http.Handler) http.Handler
	Logger         *slog.Logger

	// CORSAllowedOrigins enables CORS for browser clients when non-empty.
	CORSAllowedOrigins []string
	// RateLimiter throttles every route when set.
	RateLimiter *RateLimiter
}

// NewRouter constructs the API HTTP router.
func NewRouter(api *Server, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if len(opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: opts.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", idempotencyKeyHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader, replayedHeader},
			MaxAge:         600,
		}).Handler)
	}
	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		if opts.AuthMiddleware != nil {
			r.Use(opts.AuthMiddleware)
		}

		r.Get("/me", api.GetMe)
		r.Delete("/me", api.DeleteMe)

		r.Route("/travels", func(r chi.Router) {
			r.Get("/", api.ListTravels)
			r.With(api.Idempotent("/travels")).Post("/", api.CreateTravel)
			r.Route("/{travelId}", func(r chi.Router) {
				r.Get("/", api.GetTravel)
				r.Patch("/", api.UpdateTravel)
				r.Delete("/", api.DeleteTravel)
				r.Put("/owner", api.SetTravelOwner)
				r.Get("/days", api.ListDays)
				r.With(api.Idempotent("/travels/{travelId}/days")).Post("/days", api.PutDay)
			})
		})

		r.Patch("/days/{dayId}", api.UpdateDay)
		r.Delete("/days/{dayId}", api.DeleteDay)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", status),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			)
		})
	}
}
