// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package authn drives the SAML authentication exchange with the
// configured identity provider.
//
// Each browser session carries a small state machine: NONE until the user
// first hits the initiation endpoint, PENDING while the identity provider
// holds the user, AUTHENTICATED once a valid assertion comes back. Invalid
// assertions and expiry drop the session back to NONE.
package authn

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/adaptor"
	"github.com/searchbridge/adaptor/internal/config"
	"github.com/searchbridge/adaptor/internal/metrics"
	"github.com/searchbridge/adaptor/internal/session"
)

// InitiatePath and ConsumerPath are the authentication endpoints on the
// docs port.
const (
	InitiatePath = "/samlip"
	ConsumerPath = "/samlassertionconsumer"
)

// ReturnPathParam names the query parameter with the URI to return to
// after a successful exchange.
const ReturnPathParam = "returnPath"

// stateKey is the session attribute holding the authn record.
const stateKey = "authn"

// groupsAttribute is the assertion attribute carrying group membership.
const groupsAttribute = "member-of"

type authnState int

const (
	stateNone authnState = iota
	statePending
	stateAuthenticated
)

// record is the per-session authn state. It is stored by pointer in the
// session attribute map and only mutated inside session.Update.
type record struct {
	state       authnState
	relayState  string
	originalURI string
	principal   string
	groups      []string
	expiresAt   time.Time
}

// Authenticator owns the SAML service-provider role.
type Authenticator struct {
	sp       *saml2.SAMLServiceProvider
	sessions *session.Store
	expiry   time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// New builds the authenticator from config. The identity provider's
// signing certificate comes from saml.idpCertFile; the adaptor's own TLS
// keypair signs outgoing AuthnRequests when present.
func New(cfg *config.Config, sessions *session.Store, logger *zerolog.Logger) (*Authenticator, error) {
	certStore, err := loadIdpCerts(cfg.Saml.IdpCertFile)
	if err != nil {
		return nil, err
	}

	var keyStore dsig.X509KeyStore
	if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
		pair, err := tls.LoadX509KeyPair(cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("authn: loading signing keypair: %w", err)
		}
		keyStore = dsig.TLSCertKeyStore(pair)
	} else {
		keyStore = dsig.RandomKeyStoreForTest()
	}

	scheme := "http"
	if cfg.Server.Secure {
		scheme = "https"
	}
	acsURL := fmt.Sprintf("%s://%s:%d%s", scheme, cfg.Hostname(), cfg.Server.Port, ConsumerPath)

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.Saml.IdpSSOURL,
		IdentityProviderIssuer:      cfg.Saml.IdpEntityID,
		ServiceProviderIssuer:       cfg.Saml.SpEntityID,
		AssertionConsumerServiceURL: acsURL,
		AudienceURI:                 cfg.Saml.SpEntityID,
		SignAuthnRequests:           true,
		IDPCertificateStore:         certStore,
		SPKeyStore:                  keyStore,
	}

	return &Authenticator{
		sp:       sp,
		sessions: sessions,
		expiry:   cfg.Saml.Expiry,
		now:      time.Now,
		logger:   logger.With().Str("component", "authn").Logger(),
	}, nil
}

func loadIdpCerts(path string) (*dsig.MemoryX509CertificateStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("authn: reading idp certificate: %w", err)
	}
	store := &dsig.MemoryX509CertificateStore{}
	for len(raw) > 0 {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("authn: parsing idp certificate: %w", err)
		}
		store.Roots = append(store.Roots, cert)
	}
	if len(store.Roots) == 0 {
		return nil, fmt.Errorf("authn: no certificates in %s", path)
	}
	return store, nil
}

// Identity returns the authenticated principal for the request's session.
// An expired authentication resets the session to NONE and reports false.
func (a *Authenticator) Identity(r *http.Request) (adaptor.Identity, bool) {
	s, ok := a.sessions.Lookup(r)
	if !ok {
		return adaptor.Identity{}, false
	}

	var id adaptor.Identity
	var authed bool
	s.Update(func(attrs map[string]any) {
		rec, ok := attrs[stateKey].(*record)
		if !ok || rec.state != stateAuthenticated {
			return
		}
		if a.now().After(rec.expiresAt) {
			attrs[stateKey] = &record{}
			return
		}
		id = adaptor.Identity{User: rec.principal, Groups: rec.groups}
		authed = true
	})
	return id, authed
}

// Initiate handles the authn endpoint: park the session in PENDING and
// bounce the browser to the identity provider.
func (a *Authenticator) Initiate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s := a.sessions.Get(w, r)
	relayState := session.NewToken()
	originalURI := r.URL.Query().Get(ReturnPathParam)
	if originalURI == "" || originalURI[0] != '/' {
		originalURI = "/"
	}

	redirect, err := a.sp.BuildAuthURL(relayState)
	if err != nil {
		a.logger.Error().Err(err).Msg("building authn request")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	s.Update(func(attrs map[string]any) {
		attrs[stateKey] = &record{
			state:       statePending,
			relayState:  relayState,
			originalURI: originalURI,
		}
	})
	metrics.AuthnRequests.WithLabelValues("started").Inc()
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Consume handles the assertion consumer endpoint. Valid assertions move
// the session to AUTHENTICATED and redirect to the original URI; anything
// else resets to NONE with 403. A request without a pending session gets
// 409, telling the caller to restart the exchange.
func (a *Authenticator) Consume(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	encodedResponse := r.FormValue("SAMLResponse")
	relayState := r.FormValue("RelayState")

	s, ok := a.sessions.Lookup(r)
	if !ok {
		http.Error(w, "no session in progress, restart authentication", http.StatusConflict)
		return
	}

	var pending *record
	s.Update(func(attrs map[string]any) {
		if rec, ok := attrs[stateKey].(*record); ok && rec.state == statePending {
			pending = rec
		}
	})
	if pending == nil || pending.relayState != relayState {
		a.reject(w, s, "assertion does not match a pending exchange")
		return
	}

	info, err := a.sp.RetrieveAssertionInfo(encodedResponse)
	if err != nil {
		a.reject(w, s, fmt.Sprintf("assertion rejected: %v", err))
		return
	}
	if info.WarningInfo.InvalidTime || info.WarningInfo.NotInAudience {
		a.reject(w, s, "assertion outside validity window or audience")
		return
	}

	expiry := a.now().Add(a.expiry)
	if info.SessionNotOnOrAfter != nil && info.SessionNotOnOrAfter.Before(expiry) {
		expiry = *info.SessionNotOnOrAfter
	}

	s.Update(func(attrs map[string]any) {
		attrs[stateKey] = &record{
			state:     stateAuthenticated,
			principal: info.NameID,
			groups:    assertionGroups(info),
			expiresAt: expiry,
		}
	})
	metrics.AuthnRequests.WithLabelValues("succeeded").Inc()
	a.logger.Info().Str("principal", info.NameID).Msg("authentication succeeded")
	http.Redirect(w, r, pending.originalURI, http.StatusFound)
}

func (a *Authenticator) reject(w http.ResponseWriter, s *session.Session, why string) {
	s.Update(func(attrs map[string]any) {
		attrs[stateKey] = &record{}
	})
	metrics.AuthnRequests.WithLabelValues("rejected").Inc()
	a.logger.Warn().Str("reason", why).Msg("authentication rejected")
	http.Error(w, "authentication failed", http.StatusForbidden)
}

func assertionGroups(info *saml2.AssertionInfo) []string {
	var groups []string
	for name, attr := range info.Values {
		if name != groupsAttribute {
			continue
		}
		for _, v := range attr.Values {
			if v.Value != "" {
				groups = append(groups, v.Value)
			}
		}
	}
	return groups
}
