// Package guard provides HTTP middleware that gates requests on a verified
// access credential. A guard is assembled from an ordered list of
// [TokenExtractor] values and one injected [Verifier]; guards differ only in
// that configuration, never in subtype.
package guard

import (
	"context"
	"net/http"
)

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	UserID    string
	SessionID string
	RoleName  string
}

// Verifier turns a raw token into a [Principal]. Implementations must return
// an error for every invalid token without leaking why.
type Verifier interface {
	VerifyAccess(token string) (*Principal, error)
}

type principalContextKey struct{}

// FromContext returns the principal attached by a guard, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok
}

// Guard extracts a token, verifies it and either attaches the principal and
// passes the request on, or denies with 401.
type Guard struct {
	verifier   Verifier
	extractors []TokenExtractor
	onDenied   http.HandlerFunc
}

// Option adjusts guard behavior.
type Option func(*Guard)

// WithDeniedHandler replaces the default 401 response.
func WithDeniedHandler(h http.HandlerFunc) Option {
	return func(g *Guard) {
		g.onDenied = h
	}
}

// New builds a guard over the given verifier and extractor chain.
func New(v Verifier, extractors []TokenExtractor, opts ...Option) *Guard {
	g := &Guard{
		verifier:   v,
		extractors: extractors,
		onDenied: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware wraps next so only authenticated requests reach it.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := g.extract(r)
		if !ok {
			g.onDenied(w, r)
			return
		}

		principal, err := g.verifier.VerifyAccess(token)
		if err != nil {
			g.onDenied(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps next so only principals with the given role reach it.
// It must run inside [Guard.Middleware].
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok || p.RoleName != role {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) extract(r *http.Request) (string, bool) {
	for _, x := range g.extractors {
		if token, ok := x.Extract(r); ok {
			return token, true
		}
	}
	return "", false
}
