package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// Routes returns the HTTP handler for the promotion API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)

	r.Route("/promotions", func(r chi.Router) {
		r.Use(h.requireActor)
		r.Use(h.rateLimit)

		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/summary", h.handleSummary)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)
			r.Get("/history", h.handleHistory)
			r.Post("/submit", h.handleSubmit)
			r.Post("/withdraw", h.handleWithdraw)
			r.Post("/review", h.handleReview)
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequestLogger logs each served request through the global logger.
func RequestLogger(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logging.Info().
			Add(logging.Component("api")).
			Add(logging.Str("method", r.Method)).
			Add(logging.Str("path", r.URL.Path)).
			Add(logging.Int("status", ww.Status())).
			Add(logging.Int("bytes_written", ww.BytesWritten())).
			Add(logging.Duration(time.Since(start))).
			Add(logging.Str("http_request_id", middleware.GetReqID(r.Context()))).
			Add(logging.Actor(actorOf(r))).
			Msg("request served")
	}
	return http.HandlerFunc(fn)
}

// requireActor rejects calls without an X-Actor header.
func (h *Handler) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorOf(r) == "" {
			h.respondCode(w, http.StatusUnauthorized, CodeMissingActor, HeaderActor+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies the per-actor limiter.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		actor := actorOf(r)
		if !h.limiter.Allow(r.Context(), actor) {
			logging.Warn().
				Add(logging.Component("api")).
				Add(logging.Actor(actor)).
				Add(logging.Str("path", r.URL.Path)).
				Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			h.respondCode(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
