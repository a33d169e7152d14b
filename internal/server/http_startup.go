package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cohortlens/internal/errors"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Run listens on the configured address and serves until ctx is cancelled
// or the process receives SIGINT or SIGTERM
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodeServerFailed, fmt.Sprintf("failed to listen on %s", addr), err)
	}
	s.displayServerInfo(listener.Addr().String())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx, listener)
}

// Serve handles connections on listener until ctx is done, then shuts down
// gracefully
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	tlsConfig, err := buildTLSConfig(s.cfg.TLS)
	if err != nil {
		_ = listener.Close()
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to set up TLS", err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server",
			"address", listener.Addr().String(),
			"tls_enabled", tlsConfig != nil)

		var err error
		if tlsConfig != nil {
			// certificates are already in TLSConfig
			err = httpServer.ServeTLS(listener, "", "")
		} else {
			err = httpServer.Serve(listener)
		}
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err, ok := <-serverErrors:
		s.closeRateLimiter()
		if ok {
			return errors.NewNetworkError(errors.ErrCodeServerFailed, "server failed", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("Shutdown requested, draining connections")
		return s.shutdown(httpServer)
	}
}

func (s *Server) shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.closeRateLimiter()
	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return httpServer.Close()
	}
	s.logger.Info("Server shutdown completed successfully")
	return nil
}

func (s *Server) closeRateLimiter() {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
}
