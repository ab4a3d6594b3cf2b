// Package api exposes the promotion workflow over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/promote/application"
	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// Headers carrying the caller identity and the idempotency token.
const (
	HeaderActor          = "X-Actor"
	HeaderIdempotencyKey = "Idempotency-Key"
)

const maxBodyBytes = 1 << 20

// Error codes that do not come from application.Kind.
const (
	CodeMissingActor = "MISSING_ACTOR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeBadRequest   = "BAD_REQUEST"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps APIError.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Handler serves the promotion API.
type Handler struct {
	svc     *application.Service
	limiter ratelimit.RateLimiter
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRateLimiter limits requests per actor. A nil limiter disables limiting.
func WithRateLimiter(l ratelimit.RateLimiter) HandlerOption {
	return func(h *Handler) {
		h.limiter = l
	}
}

// NewHandler creates a handler over svc.
func NewHandler(svc *application.Service, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewLimiter returns a per-key token bucket limiter, or nil when rate is
// not positive. Burst defaults to rate.
func NewLimiter(rate, burst int) ratelimit.RateLimiter {
	if rate <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = rate
	}
	return ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    burst,
		FailOpen: true,
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().
			Add(logging.Component("api")).
			Add(logging.ErrorField(err)).
			Msg("failed to write json response")
	}
}

func (h *Handler) respondCode(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

// respondError maps err to a status code through application.Kind.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := application.Kind(err)
	status := StatusFor(kind)

	if status >= http.StatusInternalServerError {
		logging.Error().
			Add(logging.Component("api")).
			Add(logging.Str("method", r.Method)).
			Add(logging.Str("path", r.URL.Path)).
			Add(logging.ErrorField(err)).
			Msg("http server error")
	}

	message := err.Error()
	if kind == application.KindInternal {
		message = "internal error"
	}
	h.respondCode(w, status, strings.ToUpper(kind), message)
}

// StatusFor returns the HTTP status for an application error kind.
func StatusFor(kind string) int {
	switch kind {
	case application.KindNotFound:
		return http.StatusNotFound
	case application.KindInvalidTransition, application.KindConflict:
		return http.StatusConflict
	case application.KindCompletenessTooLow:
		return http.StatusUnprocessableEntity
	case application.KindForbidden:
		return http.StatusForbidden
	case application.KindStoreUnavailable, application.KindUnavailable:
		return http.StatusServiceUnavailable
	case application.KindInvalidInput:
		return http.StatusBadRequest
	case application.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", promotion.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: %w", promotion.ErrInvalidRequest, err)
	}
	return nil
}

func actorOf(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderActor))
}

func tokenOf(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
}
