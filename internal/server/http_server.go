package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use. WriteTimeout is left
// unset because hijacked websocket connections manage their own deadlines.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ListenAndServe serves until ctx is cancelled, then stops accepting
// requests and shuts the hub down within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := CreateServer(s.cfg.Port, s.Handler())

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			_ = s.hub.Shutdown(s.cfg.ShutdownTimeout)
			return fmt.Errorf("listening on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown(srv)
}

// Shutdown stops srv gracefully and then closes every chat session.
func (s *Server) Shutdown(srv *http.Server) error {
	s.log.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Error("HTTP server shutdown", "error", err)
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		s.log.Error("hub shutdown", "error", err)
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if len(errs) == 0 {
		s.log.Info("shutdown completed")
	}
	return errors.Join(errs...)
}
