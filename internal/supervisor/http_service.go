// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPListener is the listener surface the HTTP service wrapper needs.
// Satisfied by *server.Listener.
type HTTPListener interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Name() string
}

// HTTPService adapts a blocking ListenAndServe listener to suture's
// context-aware Serve: the listener runs in a goroutine and context
// cancellation turns into a bounded graceful Shutdown.
type HTTPService struct {
	listener        HTTPListener
	shutdownTimeout time.Duration
}

// NewHTTPService wraps one listener for supervision.
func NewHTTPService(listener HTTPListener, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{listener: listener, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is the expected
// exit after Shutdown and maps to nil.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.listener.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listener %s failed: %w", s.listener.Name(), err)
		}
		return nil

	case <-ctx.Done():
		// The serve context is already canceled; shutdown gets its own
		// deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.listener.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("listener %s shutdown: %w", s.listener.Name(), err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String identifies the service in supervisor logs.
func (s *HTTPService) String() string { return s.listener.Name() }
