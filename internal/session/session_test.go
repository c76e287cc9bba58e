// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package session

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var idPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func testStore(lifetime, cleanup time.Duration) (*Store, *time.Time) {
	logger := zerolog.Nop()
	st := NewStore(lifetime, cleanup, false, &logger)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }
	return st, &now
}

func requestWithCookie(w *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestGetCreatesSessionAndCookie(t *testing.T) {
	st, _ := testStore(30*time.Minute, 5*time.Minute)

	w := httptest.NewRecorder()
	s := st.Get(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if !idPattern.MatchString(s.ID()) {
		t.Errorf("session id %q is not 32 hex chars", s.ID())
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != s.ID() {
		t.Fatalf("cookie = %+v, want %s=%s", cookies, CookieName, s.ID())
	}
	if !cookies[0].HttpOnly {
		t.Error("cookie is not HttpOnly")
	}

	// The same cookie comes back to the same session.
	s2 := st.Get(httptest.NewRecorder(), requestWithCookie(w))
	if s2.ID() != s.ID() {
		t.Error("cookie did not resolve to the original session")
	}
}

func TestLookupWithoutCookie(t *testing.T) {
	st, _ := testStore(30*time.Minute, 5*time.Minute)
	if _, ok := st.Lookup(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Error("cookieless request resolved a session")
	}
}

func TestSessionExpires(t *testing.T) {
	st, now := testStore(30*time.Minute, 5*time.Minute)

	w := httptest.NewRecorder()
	st.Get(w, httptest.NewRequest(http.MethodGet, "/", nil))
	r := requestWithCookie(w)

	*now = now.Add(29 * time.Minute)
	if _, ok := st.Lookup(r); !ok {
		t.Error("session expired early")
	}
	// The lookup refreshed lastAccess, so another 29 minutes of idleness
	// still finds it.
	*now = now.Add(29 * time.Minute)
	if _, ok := st.Lookup(r); !ok {
		t.Error("active session expired despite recent access")
	}
	*now = now.Add(31 * time.Minute)
	if _, ok := st.Lookup(r); ok {
		t.Error("session survived past its idle lifetime")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	st, now := testStore(30*time.Minute, 5*time.Minute)

	for range 3 {
		st.Get(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if st.Len() != 3 {
		t.Fatalf("len = %d, want 3", st.Len())
	}

	*now = now.Add(31 * time.Minute)
	if st.Len() != 0 {
		t.Errorf("len = %d after expiry, want 0", st.Len())
	}
}

func TestSweepThrottledByCleanupPeriod(t *testing.T) {
	st, now := testStore(30*time.Minute, 5*time.Minute)

	w := httptest.NewRecorder()
	st.Get(w, httptest.NewRequest(http.MethodGet, "/", nil))

	// First Len sweeps and sets the sweep clock.
	st.Len()
	*now = now.Add(31 * time.Minute)

	// Within the cleanup period of the last sweep nothing is removed from
	// the map, but expired sessions still do not resolve.
	st.mu.Lock()
	st.lastSweep = now.Add(-time.Minute)
	remaining := len(st.sessions)
	st.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("session swept inside the cleanup period")
	}
	if _, ok := st.Lookup(requestWithCookie(w)); ok {
		t.Error("expired session still resolves")
	}
}

func TestDestroy(t *testing.T) {
	st, _ := testStore(30*time.Minute, 5*time.Minute)

	w := httptest.NewRecorder()
	st.Get(w, httptest.NewRequest(http.MethodGet, "/", nil))
	r := requestWithCookie(w)

	w2 := httptest.NewRecorder()
	st.Destroy(w2, r)
	if _, ok := st.Lookup(r); ok {
		t.Error("destroyed session still resolves")
	}
	cookies := w2.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Error("destroy did not clear the cookie")
	}
}

func TestAttributes(t *testing.T) {
	st, _ := testStore(30*time.Minute, 5*time.Minute)
	s := st.Get(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if s.Value("user") != nil {
		t.Error("fresh session has attributes")
	}
	s.SetValue("user", "alice")
	if s.Value("user") != "alice" {
		t.Error("attribute did not round-trip")
	}
	s.Update(func(attrs map[string]any) {
		if attrs["user"] == "alice" {
			attrs["state"] = "authenticated"
		}
	})
	if s.Value("state") != "authenticated" {
		t.Error("update not applied")
	}
	s.Remove("user")
	if s.Value("user") != nil {
		t.Error("removed attribute still present")
	}
}
