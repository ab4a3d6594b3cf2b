package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Server runs the API until its context ends.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// NewServer creates a server for handler using cfg.
func NewServer(handler http.Handler, cfg config.ServerConfig) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout.Or(15 * time.Second),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout.Or(30 * time.Second),
		},
		shutdownTimeout: DefaultShutdownTimeout,
	}
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Add(logging.Component("api")).
			Add(logging.Str("addr", ln.Addr().String())).
			Msg("http server listening")
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	logging.Info().
		Add(logging.Component("api")).
		Msg("http server shutting down")

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
