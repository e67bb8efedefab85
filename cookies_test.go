package authcore

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func issuedCookie(t *testing.T, w *CookieWriter, set func(http.ResponseWriter)) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	set(rec)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	return cookies[0]
}

func TestProductionCookieAttributes(t *testing.T) {
	w := NewCookieWriter(CookieConfig{Production: true})

	c := issuedCookie(t, w, func(rw http.ResponseWriter) {
		w.Set(rw, CookieAccessToken, "tok", 15*time.Minute)
	})

	if c.Name != "access_token" || c.Value != "tok" {
		t.Fatalf("cookie %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly {
		t.Fatal("cookie must be httpOnly")
	}
	if c.Path != "/" {
		t.Fatalf("path = %q, want /", c.Path)
	}
	if !c.Secure || c.SameSite != http.SameSiteNoneMode {
		t.Fatalf("production cookie must be Secure with SameSite=None, got secure=%v samesite=%v", c.Secure, c.SameSite)
	}
	if c.MaxAge != int((15 * time.Minute).Seconds()) {
		t.Fatalf("max-age = %d", c.MaxAge)
	}
}

func TestDevelopmentCookieAttributes(t *testing.T) {
	w := NewCookieWriter(CookieConfig{Production: false})

	c := issuedCookie(t, w, func(rw http.ResponseWriter) {
		w.Set(rw, CookieRefreshToken, "tok", time.Hour)
	})

	if c.Secure {
		t.Fatal("development cookie must not be Secure")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("samesite = %v, want Lax", c.SameSite)
	}
}

func TestClearUsesSameTuple(t *testing.T) {
	w := NewCookieWriter(CookieConfig{Production: true})

	set := issuedCookie(t, w, func(rw http.ResponseWriter) {
		w.Set(rw, CookieAccessToken, "tok", time.Minute)
	})
	cleared := issuedCookie(t, w, func(rw http.ResponseWriter) {
		w.Clear(rw, CookieAccessToken)
	})

	// Everything except value and max-age must match, or browsers keep the
	// original cookie.
	if cleared.Path != set.Path || cleared.Domain != set.Domain ||
		cleared.Secure != set.Secure || cleared.SameSite != set.SameSite ||
		cleared.HttpOnly != set.HttpOnly {
		t.Fatalf("clear tuple %+v differs from set tuple %+v", cleared, set)
	}
	if cleared.MaxAge >= 0 {
		t.Fatalf("clear max-age = %d, want negative", cleared.MaxAge)
	}
	if cleared.Value != "" {
		t.Fatalf("clear value = %q, want empty", cleared.Value)
	}
}
