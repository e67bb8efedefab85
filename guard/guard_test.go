package guard

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubVerifier struct {
	valid map[string]*Principal
}

func (v stubVerifier) VerifyAccess(token string) (*Principal, error) {
	if p, ok := v.valid[token]; ok {
		return p, nil
	}
	return nil, errors.New("unauthorized")
}

func newTestGuard(extractors ...TokenExtractor) *Guard {
	return New(stubVerifier{valid: map[string]*Principal{
		"good-token": {UserID: "u1", SessionID: "s1", RoleName: "user"},
		"admin-tok":  {UserID: "u2", SessionID: "s2", RoleName: "admin"},
	}}, extractors)
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok {
			t.Fatal("principal missing from context")
		}
		w.Write([]byte(p.UserID))
	})
}

func TestHeaderBearerToken(t *testing.T) {
	g := newTestGuard(HeaderExtractor{Scheme: "Bearer"})
	srv := g.Middleware(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "u1" {
		t.Fatalf("body = %q, want u1", rec.Body.String())
	}
}

func TestDeniesMissingAndInvalidTokens(t *testing.T) {
	g := newTestGuard(HeaderExtractor{Scheme: "Bearer"})
	srv := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for name, header := range map[string]string{
		"no header":    "",
		"wrong scheme": "Basic good-token",
		"bad token":    "Bearer forged",
	} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}

func TestExtractorOrder(t *testing.T) {
	// Header wins over cookie when both are present.
	g := newTestGuard(HeaderExtractor{Scheme: "Bearer"}, CookieExtractor{Name: "access_token"})
	srv := g.Middleware(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer admin-tok")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "good-token"})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Body.String() != "u2" {
		t.Fatalf("body = %q, want u2 from header token", rec.Body.String())
	}
}

func TestCookieFallback(t *testing.T) {
	g := newTestGuard(HeaderExtractor{Scheme: "Bearer"}, CookieExtractor{Name: "access_token"})
	srv := g.Middleware(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "good-token"})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestBodyFieldExtractorRestoresBody(t *testing.T) {
	g := newTestGuard(BodyFieldExtractor{Field: "registration_token"})

	var seenBody string
	srv := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		seenBody = string(data)
	}))

	body := `{"registration_token":"good-token","email":"a@b.c"}`
	req := httptest.NewRequest(http.MethodPost, "/register/email", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seenBody != body {
		t.Fatalf("downstream body = %q, want original", seenBody)
	}
}

func TestRequireRole(t *testing.T) {
	g := newTestGuard(HeaderExtractor{Scheme: "Bearer"})
	srv := g.Middleware(RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-tok")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin status = %d, want 204", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user status = %d, want 403", rec.Code)
	}
}
