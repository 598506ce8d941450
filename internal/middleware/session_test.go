package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

const existingSessionID = "5f0c1c52-2b1e-4f8b-9a43-8f3a1d6c2e10"

func TestCartSessionMiddleware_ExistingCookie_InjectsSessionID(t *testing.T) {
	mw := NewCartSessionMiddleware(false)

	var captured string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := SessionIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		captured = id
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: existingSessionID})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if captured != existingSessionID {
		t.Errorf("sessionID = %q, want %q", captured, existingSessionID)
	}
	// 既存のセッションではCookieを再発行しない
	if cookies := w.Result().Cookies(); len(cookies) != 0 {
		t.Errorf("cookies = %v, want none", cookies)
	}
}

func TestCartSessionMiddleware_NoCookie_IssuesNewSession(t *testing.T) {
	mw := NewCartSessionMiddleware(true)

	var captured string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != SessionCookieName {
		t.Errorf("cookie name = %q, want %q", c.Name, SessionCookieName)
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		t.Errorf("cookie value should be a UUID: %q", c.Value)
	}
	if c.Value != captured {
		t.Errorf("context sessionID = %q, cookie = %q", captured, c.Value)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie attributes = %+v", c)
	}
	if c.MaxAge != 30*24*60*60 {
		t.Errorf("MaxAge = %d, want 30 days", c.MaxAge)
	}
}

func TestCartSessionMiddleware_InvalidCookie_IsReplaced(t *testing.T) {
	mw := NewCartSessionMiddleware(false)

	var captured string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "../../etc/passwd"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if captured == "../../etc/passwd" {
		t.Fatal("invalid session ID should not be accepted")
	}
	if _, err := uuid.Parse(captured); err != nil {
		t.Errorf("replacement sessionID should be a UUID: %q", captured)
	}
	if len(w.Result().Cookies()) != 1 {
		t.Error("a new cookie should be issued")
	}
}

func TestCartSessionMiddleware_IssuedSessionsAreUnique(t *testing.T) {
	mw := NewCartSessionMiddleware(false)
	seen := make(map[string]bool)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := SessionIDFromContext(r.Context())
		seen[id] = true
	}))

	for i := 0; i < 10; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	}
	if len(seen) != 10 {
		t.Errorf("unique sessions = %d, want 10", len(seen))
	}
}

func TestSessionIDFromContext_NotSet(t *testing.T) {
	if _, err := SessionIDFromContext(context.Background()); err == nil {
		t.Error("expected error when session ID is not set")
	}
}

func TestContextWithSessionID(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "abc")
	id, err := SessionIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc" {
		t.Errorf("sessionID = %q, want %q", id, "abc")
	}
}
