// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package dashboard

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/config"
	"github.com/searchbridge/adaptor/internal/docid"
	"github.com/searchbridge/adaptor/internal/journal"
	"github.com/searchbridge/adaptor/internal/session"
)

type fakeTrigger struct {
	fired int
}

func (f *fakeTrigger) TriggerNow() { f.fired++ }

func testDashboard(t *testing.T) (*Handler, *journal.Journal, *fakeTrigger) {
	t.Helper()
	cfg := config.Default()
	cfg.Gsa.Hostname = "gsa.example.com"
	cfg.Admin.Username = "admin"
	sum := sha256.Sum256([]byte("hunter2"))
	cfg.Admin.PasswordHash = hex.EncodeToString(sum[:])

	logger := zerolog.Nop()
	sessions := session.NewStore(30*time.Minute, 5*time.Minute, false, &logger)
	j := journal.New()
	trigger := &fakeTrigger{}
	h := New(cfg, sessions, j, NewMonitor(JournalSources(j)...), trigger, &logger)
	return h, j, trigger
}

// loginAs performs the login POST and returns the session cookie plus
// the XSRF token read from the index page.
func loginAs(t *testing.T, h *Handler, user, pass string) (*http.Cookie, string) {
	t.Helper()
	form := url.Values{"username": {user}, "password": {pass}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("login set no session cookie")
	}
	cookie := cookies[0]

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("index status = %d", w.Code)
	}
	token := w.Header().Get(XSRFHeader)
	if token == "" {
		t.Fatal("index carries no XSRF token")
	}
	return cookie, token
}

func rpcCall(h *Handler, cookie *http.Cookie, token, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	if cookie != nil {
		r.AddCookie(cookie)
	}
	if token != "" {
		r.Header.Set(XSRFHeader, token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestAnonymousRedirectedToLogin(t *testing.T) {
	h, _, _ := testDashboard(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("status = %d location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestBadCredentialsRejected(t *testing.T) {
	h, _, _ := testDashboard(t)
	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("failed login issued a session cookie")
	}
}

func TestStartFeedPushRPC(t *testing.T) {
	h, _, trigger := testDashboard(t)
	cookie, token := loginAs(t, h, "admin", "hunter2")

	w := rpcCall(h, cookie, token, `{"method":"startFeedPush"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	if trigger.fired != 1 {
		t.Errorf("trigger fired %d times", trigger.fired)
	}
}

func TestRPCRequiresXSRFToken(t *testing.T) {
	h, _, trigger := testDashboard(t)
	cookie, _ := loginAs(t, h, "admin", "hunter2")

	if w := rpcCall(h, cookie, "", `{"method":"startFeedPush"}`); w.Code != http.StatusForbidden {
		t.Errorf("missing token status = %d, want 403", w.Code)
	}
	if w := rpcCall(h, cookie, "bogus", `{"method":"startFeedPush"}`); w.Code != http.StatusForbidden {
		t.Errorf("wrong token status = %d, want 403", w.Code)
	}
	if trigger.fired != 0 {
		t.Error("trigger fired without a valid token")
	}
}

func TestGetStatsReturnsSnapshot(t *testing.T) {
	h, j, _ := testDashboard(t)
	j.RecordPushedDocIds([]docid.DocId{"a", "b"})
	cookie, token := loginAs(t, h, "admin", "hunter2")

	w := rpcCall(h, cookie, token, `{"method":"getStats"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Result journal.Snapshot `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result.Pushed.Total != 2 {
		t.Errorf("pushed total = %d, want 2", resp.Result.Pushed.Total)
	}
}

func TestGetStatusesReflectsJournal(t *testing.T) {
	h, j, _ := testDashboard(t)
	j.RecordFullPushStarted()
	j.RecordFullPushFailed()
	cookie, token := loginAs(t, h, "admin", "hunter2")

	w := rpcCall(h, cookie, token, `{"method":"getStatuses"}`)
	var resp struct {
		Result []Status `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	byName := map[string]Status{}
	for _, s := range resp.Result {
		byName[s.Source] = s
	}
	if got := byName["feed-push"].Code; got != "ERROR" {
		t.Errorf("feed-push code = %q, want ERROR", got)
	}
	if got := byName["retriever"].Code; got != "INACTIVE" {
		t.Errorf("retriever code = %q, want INACTIVE", got)
	}
	if got := byName["appliance-crawl"].Code; got != "WARNING" {
		t.Errorf("appliance-crawl code = %q, want WARNING", got)
	}
}

func TestUnknownRPCMethod(t *testing.T) {
	h, _, _ := testDashboard(t)
	cookie, token := loginAs(t, h, "admin", "hunter2")
	if w := rpcCall(h, cookie, token, `{"method":"dropTables"}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	h, _, _ := testDashboard(t)
	cookie, _ := loginAs(t, h, "admin", "hunter2")

	r := httptest.NewRequest(http.MethodGet, "/logout", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("logout status = %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusSeeOther {
		t.Errorf("index after logout status = %d, want redirect", w.Code)
	}
}

func TestMetricsEndpointOpen(t *testing.T) {
	h, _, _ := testDashboard(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics body missing standard collectors")
	}
}

func TestRetrieverStatusThresholds(t *testing.T) {
	j := journal.New()
	src := retrieverSource{j}

	for i := 0; i < 15; i++ {
		j.RecordRetrieverOutcome(false)
	}
	j.RecordRetrieverOutcome(true)
	if got := src.Status().Code; got != "WARNING" {
		t.Errorf("at 1/16 code = %q, want WARNING", got)
	}

	j.RecordRetrieverOutcome(true)
	j.RecordRetrieverOutcome(true)
	if got := src.Status().Code; got != "ERROR" {
		t.Errorf("above 1/8 code = %q, want ERROR", got)
	}
}
