// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package server owns the two HTTP listeners: the docs port the appliance
// crawls, and the dashboard port administrators use. Both become TLS
// listeners when server.secure is set; the docs listener additionally
// requests (but does not require) a client certificate so the appliance
// can be whitelisted.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/authn"
	"github.com/searchbridge/adaptor/internal/config"
)

// Routes is the handler set mounted on the two listeners.
type Routes struct {
	// Docs serves document URLs under server.docIdPath.
	Docs http.Handler

	// Authn and AssertionConsumer are the SAML endpoints on the docs port.
	Authn             http.Handler
	AssertionConsumer http.Handler

	// Authz answers the appliance's batched authorization POSTs.
	Authz http.Handler

	// Dashboard is the admin surface mounted at / on the dashboard port.
	Dashboard http.Handler
}

// Server is the pair of configured listeners.
type Server struct {
	docs *http.Server
	dash *http.Server

	certFile string
	keyFile  string
	secure   bool
	logger   zerolog.Logger
}

// New builds both listeners from config.
func New(cfg *config.Config, routes Routes, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "server").Logger()

	docs := chi.NewRouter()
	docs.Use(chimiddleware.RealIP)
	docs.Use(chimiddleware.Recoverer)
	docs.Handle(cfg.Server.DocIdPath+"*", routes.Docs)
	if routes.Authn != nil {
		docs.Handle(authn.InitiatePath, routes.Authn)
		docs.Handle(authn.ConsumerPath, routes.AssertionConsumer)
	}
	if routes.Authz != nil {
		docs.Method(http.MethodPost, "/saml-authz", routes.Authz)
	}

	dash := chi.NewRouter()
	dash.Use(chimiddleware.RealIP)
	dash.Use(chimiddleware.Recoverer)
	dash.Mount("/", routes.Dashboard)

	s := &Server{
		docs: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           docs,
			ReadHeaderTimeout: 10 * time.Second,
		},
		dash: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.DashboardPort),
			Handler:           dash,
			ReadHeaderTimeout: 10 * time.Second,
		},
		certFile: cfg.Server.CertFile,
		keyFile:  cfg.Server.KeyFile,
		secure:   cfg.Server.Secure,
		logger:   l,
	}
	if s.secure {
		s.docs.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ClientAuth: tls.RequestClientCert,
		}
		s.dash.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return s
}

// Docs returns the docs-port listener.
func (s *Server) Docs() *Listener {
	return &Listener{srv: s.docs, name: "docs-http", secure: s.secure, certFile: s.certFile, keyFile: s.keyFile}
}

// Dashboard returns the dashboard-port listener.
func (s *Server) Dashboard() *Listener {
	return &Listener{srv: s.dash, name: "dashboard-http", secure: s.secure, certFile: s.certFile, keyFile: s.keyFile}
}

// Listener is one bound server, shaped for the supervisor's HTTP service
// wrapper.
type Listener struct {
	srv      *http.Server
	name     string
	secure   bool
	certFile string
	keyFile  string
}

// ListenAndServe blocks serving the listener, with TLS when configured.
func (l *Listener) ListenAndServe() error {
	if l.secure {
		return l.srv.ListenAndServeTLS(l.certFile, l.keyFile)
	}
	return l.srv.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (l *Listener) Shutdown(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}

// Name identifies the listener in supervisor logs.
func (l *Listener) Name() string { return l.name }
