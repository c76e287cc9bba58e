// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package dashboard is the admin surface on the dashboard port: a
// credential-gated status page, an RPC endpoint driving it, a websocket
// stream of journal snapshots, and the Prometheus scrape endpoint.
package dashboard

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/config"
	"github.com/searchbridge/adaptor/internal/journal"
	"github.com/searchbridge/adaptor/internal/metrics"
	"github.com/searchbridge/adaptor/internal/session"
)

// Session attribute keys.
const (
	adminKey = "dashboard-admin"
	xsrfKey  = "dashboard-xsrf"
)

// XSRFHeader must echo the session's token on every RPC call.
const XSRFHeader = "X-Adaptor-Xsrf"

// Login attempts allowed per client IP per window.
const (
	loginRateLimit  = 5
	loginRateWindow = time.Minute
)

// streamInterval paces websocket snapshot pushes.
const streamInterval = 5 * time.Second

// FeedTrigger requests an immediate full listing. Satisfied by the
// scheduler.
type FeedTrigger interface {
	TriggerNow()
}

// Handler is the dashboard-port HTTP handler.
type Handler struct {
	cfg      *config.Config
	sessions *session.Store
	journal  *journal.Journal
	monitor  *Monitor
	trigger  FeedTrigger
	logger   zerolog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
}

// New assembles the dashboard routes.
func New(cfg *config.Config, sessions *session.Store, j *journal.Journal, monitor *Monitor, trigger FeedTrigger, logger *zerolog.Logger) *Handler {
	h := &Handler{
		cfg:      cfg,
		sessions: sessions,
		journal:  j,
		monitor:  monitor,
		trigger:  trigger,
		logger:   logger.With().Str("component", "dashboard").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	r := chi.NewRouter()
	r.Get("/login", h.loginForm)
	r.With(httprate.LimitByIP(loginRateLimit, loginRateWindow)).Post("/login", h.login)
	r.Get("/logout", h.logout)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/", h.index)
		r.Post("/rpc", h.rpc)
		r.Get("/stream", h.stream)
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// requireAdmin redirects anonymous browsers to the login form.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.sessions.Lookup(r)
		if !ok || s.Value(adminKey) != true {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(loginPage))
}

// login checks the posted credentials against the configured admin
// account. The password travels as plain text over the (ideally TLS)
// connection and is compared as a SHA-256 digest.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	user := r.PostFormValue("username")
	pass := r.PostFormValue("password")

	if !h.credentialsValid(user, pass) {
		h.logger.Warn().Str("username", user).Str("remote", r.RemoteAddr).Msg("rejected dashboard login")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(loginPage))
		return
	}

	s := h.sessions.Get(w, r)
	s.SetValue(adminKey, true)
	s.SetValue(xsrfKey, uuid.NewString())
	h.logger.Info().Str("username", user).Msg("dashboard login")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) credentialsValid(user, pass string) bool {
	if h.cfg.Admin.Username == "" || h.cfg.Admin.PasswordHash == "" {
		return false
	}
	sum := sha256.Sum256([]byte(pass))
	hash := hex.EncodeToString(sum[:])
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.cfg.Admin.Username))
	passOK := subtle.ConstantTimeCompare([]byte(hash), []byte(h.cfg.Admin.PasswordHash))
	return userOK&passOK == 1
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// index serves the dashboard shell. The page reads its XSRF token from
// the response header and attaches it to every RPC.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	s, _ := h.sessions.Lookup(r)
	token, _ := s.Value(xsrfKey).(string)
	w.Header().Set(XSRFHeader, token)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}

// rpcRequest is the envelope the dashboard page posts.
type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) rpc(w http.ResponseWriter, r *http.Request) {
	s, _ := h.sessions.Lookup(r)
	token, _ := s.Value(xsrfKey).(string)
	if token == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get(XSRFHeader)), []byte(token)) != 1 {
		http.Error(w, "missing or stale XSRF token", http.StatusForbidden)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, rpcResponse{Error: "malformed request"})
		return
	}

	switch req.Method {
	case "getStatuses":
		h.writeJSON(w, http.StatusOK, rpcResponse{Result: h.monitor.Statuses()})

	case "getStats":
		metrics.SessionsActive.Set(float64(h.sessions.Len()))
		h.writeJSON(w, http.StatusOK, rpcResponse{Result: h.journal.Snapshot()})

	case "startFeedPush":
		h.trigger.TriggerNow()
		h.logger.Info().Msg("full push requested from dashboard")
		h.writeJSON(w, http.StatusOK, rpcResponse{Result: "started"})

	case "checkConfig":
		if err := h.cfg.Validate(); err != nil {
			h.writeJSON(w, http.StatusOK, rpcResponse{Error: err.Error()})
			return
		}
		h.writeJSON(w, http.StatusOK, rpcResponse{Result: "ok"})

	default:
		h.writeJSON(w, http.StatusBadRequest, rpcResponse{Error: "unknown method " + req.Method})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("encoding rpc response")
	}
}

// stream pushes a journal snapshot over a websocket every few seconds
// until the browser goes away.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// The read pump only watches for the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()
	for {
		metrics.SessionsActive.Set(float64(h.sessions.Len()))
		payload, err := json.Marshal(h.journal.Snapshot())
		if err != nil {
			h.logger.Error().Err(err).Msg("encoding snapshot")
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

const loginPage = `<!DOCTYPE html>
<html>
<head><title>Adaptor Dashboard</title></head>
<body>
<h1>Adaptor Dashboard</h1>
<form method="post" action="/login">
  <label>Username <input type="text" name="username" autocomplete="username"></label>
  <label>Password <input type="password" name="password" autocomplete="current-password"></label>
  <button type="submit">Sign in</button>
</form>
</body>
</html>
`

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Adaptor Dashboard</title></head>
<body>
<h1>Adaptor Dashboard</h1>
<section id="statuses"></section>
<section id="stats"></section>
<button id="push">Start full push</button>
<a href="/logout">Sign out</a>
</body>
</html>
`
