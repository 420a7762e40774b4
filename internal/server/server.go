// Package server runs the HTTP listener together with the background
// workers that share its lifetime, and stops them in order on shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ShutdownFunc stops one component within the shutdown deadline.
type ShutdownFunc func(ctx context.Context) error

type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type component struct {
	name string
	stop ShutdownFunc
}

type Server struct {
	http            *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu         sync.Mutex
	components []component
}

func New(handler http.Handler, cfg Config, logger *slog.Logger) *Server {
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 2 * cfg.WriteTimeout
	}
	return &Server{
		http: &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       idle,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}
}

// OnShutdown registers fn to run after the HTTP listener has drained.
// Components stop in reverse registration order.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, component{name: name, stop: fn})
}

// Background runs fn in its own goroutine. Shutdown cancels the context fn
// was given and waits for it to return.
func (s *Server) Background(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.logger.Info("background component started", "name", name)
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("background component exited", "name", name, "error", err)
		}
	}()

	s.OnShutdown(name, func(shutdownCtx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-shutdownCtx.Done():
			return fmt.Errorf("%s did not stop: %w", name, shutdownCtx.Err())
		}
	})
}

// Run listens on the configured port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. A listener failure also triggers
// the full shutdown sequence.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		_ = s.gracefulShutdown()
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
		return s.gracefulShutdown()
	}
}

// gracefulShutdown drains HTTP first so in-flight requests can still reach
// the workers, then stops the workers newest first.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.http.SetKeepAlivesEnabled(false)
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown", "error", err)
	}
	s.logger.Info("http server stopped")

	s.mu.Lock()
	components := s.components
	s.mu.Unlock()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.stop(ctx); err != nil {
			s.logger.Error("component shutdown failed", "name", c.name, "error", err)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("component stopped", "name", c.name)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

func (s *Server) Addr() string {
	return s.http.Addr
}
