// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package server

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/acl"
	"github.com/searchbridge/adaptor/internal/adaptor"
	"github.com/searchbridge/adaptor/internal/authn"
	"github.com/searchbridge/adaptor/internal/docid"
	"github.com/searchbridge/adaptor/internal/journal"
	"github.com/searchbridge/adaptor/internal/metrics"
)

// gsaUserAgent marks appliance crawl traffic when the IP whitelist is not
// configured.
const gsaUserAgent = "gsa-crawler"

// IdentityProvider resolves the authenticated principal behind a request.
// Satisfied by the SAML authenticator.
type IdentityProvider interface {
	Identity(r *http.Request) (adaptor.Identity, bool)
}

// DocHandler serves document content on the docs port.
type DocHandler struct {
	codec      *docid.Codec
	adaptor    adaptor.Adaptor
	authorizer *adaptor.Authorizer
	journal    *journal.Journal
	identities IdentityProvider
	gsaIPs     map[string]struct{}
	secure     bool
	fallback   string
	logger     zerolog.Logger
}

// NewDocHandler wires the serving path. In secure mode non-appliance
// clients must authenticate through identities and hold a Permit for the
// requested document; a nil identities denies them outright. fallbackHost
// substitutes for a missing Host header when reconstructing request URLs.
func NewDocHandler(codec *docid.Codec, a adaptor.Adaptor, j *journal.Journal, identities IdentityProvider, gsaIPs []string, secure bool, fallbackHost string, logger *zerolog.Logger) *DocHandler {
	ips := make(map[string]struct{}, len(gsaIPs))
	for _, ip := range gsaIPs {
		if ip = strings.TrimSpace(ip); ip != "" {
			ips[ip] = struct{}{}
		}
	}
	return &DocHandler{
		codec:      codec,
		adaptor:    a,
		authorizer: adaptor.NewAuthorizer(a, logger),
		journal:    j,
		identities: identities,
		gsaIPs:     ips,
		secure:     secure,
		fallback:   fallbackHost,
		logger:     logger.With().Str("component", "server").Logger(),
	}
}

func (h *DocHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := h.codec.Decode(h.requestURL(r))
	if err != nil {
		h.logger.Debug().Err(err).Str("uri", r.RequestURI).Msg("request is not a document URL")
		http.NotFound(w, r)
		return
	}

	fromGsa := h.isGsa(r)
	origin := "other"
	if fromGsa {
		origin = "gsa"
		h.journal.RecordGsaContentRequest(id)
	} else {
		h.journal.RecordNonGsaContentRequest(id)
	}

	if h.secure && !fromGsa && !h.authorizeUser(w, r, origin, id) {
		return
	}

	start := time.Now()
	trace := h.journal.StartTrace()
	trace.AddBytes(requestBytes(r), 0)
	resp := newDocResponse(w, r, trace)

	req := adaptor.Request{DocID: id, LastAccess: parseIfModifiedSince(r)}
	err = h.adaptor.GetDocContent(r.Context(), req, resp)
	resp.finish()
	metrics.DocRequestDuration.WithLabelValues(origin).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		h.journal.RecordRetrieverOutcome(false)
		status := http.StatusOK
		if resp.notModified {
			status = http.StatusNotModified
		}
		metrics.DocRequestsTotal.WithLabelValues(origin, httpStatusLabel(status)).Inc()

	case errors.Is(err, adaptor.ErrNotFound):
		// An absent document is a correct answer, not a retriever error.
		h.journal.RecordRetrieverOutcome(false)
		metrics.DocRequestsTotal.WithLabelValues(origin, httpStatusLabel(http.StatusNotFound)).Inc()
		if !resp.committed {
			http.NotFound(w, r)
		}

	default:
		h.journal.RecordRetrieverOutcome(true)
		metrics.DocRequestsTotal.WithLabelValues(origin, httpStatusLabel(http.StatusInternalServerError)).Inc()
		if resp.committed {
			// Headers and possibly body bytes are on the wire; all we can
			// do is log and let the connection drop.
			h.logger.Error().Err(err).Str("docid", string(id)).Msg("retrieval failed mid-response")
			return
		}
		h.logger.Error().Err(err).Str("docid", string(id)).Msg("retrieval failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// authorizeUser gates non-appliance traffic in secure mode. Anonymous
// browsers bounce into the authentication exchange with the document URI
// as the return path; authenticated ones must hold a Permit.
func (h *DocHandler) authorizeUser(w http.ResponseWriter, r *http.Request, origin string, id docid.DocId) bool {
	if h.identities == nil {
		metrics.DocRequestsTotal.WithLabelValues(origin, httpStatusLabel(http.StatusForbidden)).Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	identity, ok := h.identities.Identity(r)
	if !ok {
		metrics.DocRequestsTotal.WithLabelValues(origin, httpStatusLabel(http.StatusFound)).Inc()
		target := authn.InitiatePath + "?" + authn.ReturnPathParam + "=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusFound)
		return false
	}
	decisions, err := h.authorizer.Authorize(r.Context(), identity, []docid.DocId{id})
	if err != nil {
		h.logger.Error().Err(err).Str("docid", string(id)).Str("user", identity.User).Msg("authorization lookup failed")
		metrics.DocRequestsTotal.WithLabelValues(origin, httpStatusLabel(http.StatusInternalServerError)).Inc()
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return false
	}
	if decisions[id] != acl.Permit {
		h.logger.Info().Str("docid", string(id)).Str("user", identity.User).Msg("denying document access")
		metrics.DocRequestsTotal.WithLabelValues(origin, httpStatusLabel(http.StatusForbidden)).Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// requestURL rebuilds the absolute URL the client requested. The scheme
// comes from the listener, the host from the Host header with a configured
// fallback for clients that omit it.
func (h *DocHandler) requestURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Scheme = "http"
	if h.secure {
		u.Scheme = "https"
	}
	u.Host = r.Host
	if u.Host == "" {
		u.Host = h.fallback
	}
	return &u
}

// isGsa classifies the request origin, by whitelisted IP when configured
// and by crawler user agent otherwise.
func (h *DocHandler) isGsa(r *http.Request) bool {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if _, ok := h.gsaIPs[host]; ok {
			return true
		}
	}
	return strings.Contains(strings.ToLower(r.Header.Get("User-Agent")), gsaUserAgent)
}

func parseIfModifiedSince(r *http.Request) time.Time {
	v := r.Header.Get("If-Modified-Since")
	if v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// requestBytes approximates the wire size of a request: request line,
// headers, and any declared body.
func requestBytes(r *http.Request) int64 {
	n := int64(len(r.Method) + len(r.RequestURI) + len(r.Proto) + 4)
	for name, values := range r.Header {
		for _, v := range values {
			n += int64(len(name) + len(v) + 4)
		}
	}
	if r.ContentLength > 0 {
		n += r.ContentLength
	}
	return n
}

func httpStatusLabel(status int) string {
	return strconv.Itoa(status)
}
