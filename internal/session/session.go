// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package session tracks browser sessions across the SAML authentication
// exchange. Sessions live in memory, are keyed by an unguessable cookie,
// and expire after a fixed idle time. Expired sessions are swept lazily
// from the request path, so no background goroutine is needed.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CookieName carries the session identifier.
const CookieName = "sessid"

// idBytes gives 128-bit identifiers, 32 hex characters on the wire.
const idBytes = 16

// Session is one browser's conversation with the adaptor. Attribute
// access is internally locked; Update provides an atomic
// read-modify-write for multi-step state transitions.
type Session struct {
	id string

	mu         sync.Mutex
	attrs      map[string]any
	lastAccess time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Value returns one attribute, nil when absent.
func (s *Session) Value(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[key]
}

// SetValue stores one attribute.
func (s *Session) SetValue(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Remove drops one attribute.
func (s *Session) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, key)
}

// Update runs fn with exclusive access to the attribute map. fn must not
// call back into the session.
func (s *Session) Update(fn func(attrs map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.attrs)
}

// Store owns all live sessions.
type Store struct {
	lifetime time.Duration
	cleanup  time.Duration
	secure   bool
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time
}

// NewStore builds a store whose sessions expire after lifetime of
// inactivity. Expired entries are swept at most once per cleanup period,
// piggybacked on lookups. secure marks issued cookies Secure.
func NewStore(lifetime, cleanup time.Duration, secure bool, logger *zerolog.Logger) *Store {
	return &Store{
		lifetime: lifetime,
		cleanup:  cleanup,
		secure:   secure,
		logger:   logger.With().Str("component", "session").Logger(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Lookup returns the live session named by the request's cookie, if any.
// Expired sessions are treated as absent.
func (st *Store) Lookup(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()

	s, ok := st.sessions[c.Value]
	if !ok || st.expiredLocked(s) {
		return nil, false
	}
	s.touch(st.now())
	return s, true
}

// Get returns the request's session, creating one and setting the cookie
// when the request has none.
func (st *Store) Get(w http.ResponseWriter, r *http.Request) *Session {
	if s, ok := st.Lookup(r); ok {
		return s
	}

	s := &Session{
		id:         newID(),
		attrs:      make(map[string]any),
		lastAccess: st.now(),
	}
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.id,
		Path:     "/",
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	})
	st.logger.Debug().Str("session", s.id).Msg("session created")
	return s
}

// Destroy drops the request's session and clears the cookie.
func (st *Store) Destroy(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return
	}
	st.mu.Lock()
	delete(st.sessions, c.Value)
	st.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   st.secure,
		MaxAge:   -1,
	})
}

// Len reports the number of live sessions, for the dashboard.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()
	return len(st.sessions)
}

func (st *Store) expiredLocked(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return st.now().Sub(s.lastAccess) >= st.lifetime
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

// sweepLocked drops expired sessions, at most once per cleanup period.
func (st *Store) sweepLocked() {
	now := st.now()
	if now.Sub(st.lastSweep) < st.cleanup {
		return
	}
	st.lastSweep = now

	var dropped int
	for id, s := range st.sessions {
		if st.expiredLocked(s) {
			delete(st.sessions, id)
			dropped++
		}
	}
	if dropped > 0 {
		st.logger.Debug().Int("dropped", dropped).Msg("swept expired sessions")
	}
}

func newID() string {
	b := make([]byte, idBytes)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// NewToken returns 128 bits of randomness as 32 hex chars, for relay
// states and XSRF tokens.
func NewToken() string { return newID() }
