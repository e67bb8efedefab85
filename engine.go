// Package authcore is an embeddable authentication and session-trust engine
// for multi-tenant applications. It issues and verifies three credential
// families: stateless HS256 access tokens, HMAC-signed opaque flow tokens
// and federated provider identity tokens, and manages persisted sessions
// with refresh rotation behind them.
//
// The host application supplies user storage through [UserProvider], code
// delivery through [OTPSender] and the backing stores (Redis for ephemeral
// flow state and counters, a relational database for sessions). Everything
// else is wired by [Builder].
package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/candidsky/authcore/federated"
	"github.com/candidsky/authcore/guard"
	"github.com/candidsky/authcore/internal/audit"
	"github.com/candidsky/authcore/internal/kv"
	"github.com/candidsky/authcore/internal/rate"
	"github.com/candidsky/authcore/jwt"
	"github.com/candidsky/authcore/opaque"
	"github.com/candidsky/authcore/password"
	"github.com/candidsky/authcore/session"
)

// Engine exposes every auth flow. Construct it with [Builder.Build]; the
// zero value is not usable. All methods are safe for concurrent use.
type Engine struct {
	config    Config
	users     UserProvider
	sender    OTPSender
	tokens    *opaque.Authority
	access    *jwt.Manager
	hasher    *password.Hasher
	sessions  *session.Manager
	federated *federated.Verifier
	flows     *kv.Store
	limiter   *rate.Limiter
	cookies   *CookieWriter
	audit     *audit.Dispatcher

	now func() time.Time
}

// AuthResult is returned by every flow that ends in a session.
type AuthResult struct {
	UserID    string
	SessionID string
	RoleName  string
	Provider  string
	Tokens    *session.TokenPair
}

// Cookies returns the writer that emits the engine's cookie contract.
func (e *Engine) Cookies() *CookieWriter {
	return e.cookies
}

// Sessions exposes the session manager for hosts that need direct revocation.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// VerifyAccessToken validates a bearer access token and returns its claims.
// Every failure is [ErrUnauthorized].
func (e *Engine) VerifyAccessToken(tokenStr string) (*jwt.AccessClaims, error) {
	claims, err := e.access.Verify(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// AccessVerifier adapts the engine's access-token authority to the guard
// middleware.
func (e *Engine) AccessVerifier() guard.Verifier {
	return accessVerifier{engine: e}
}

type accessVerifier struct {
	engine *Engine
}

func (v accessVerifier) VerifyAccess(token string) (*guard.Principal, error) {
	claims, err := v.engine.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}
	return &guard.Principal{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		RoleName:  claims.RoleName,
	}, nil
}

// Close stops background workers. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.audit.Close()
}

// AuditDropped reports audit events discarded on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// ipScopeFactor widens per-IP rate-limit thresholds relative to the
// per-identifier ones, since one IP can front many legitimate clients.
const ipScopeFactor = 10

func (e *Engine) checkLimiter(ctx context.Context, scope string, limit int, window time.Duration, sentinel error) error {
	err := e.limiter.Hit(ctx, scope, limit, window)
	if err == nil {
		return nil
	}
	if errors.Is(err, rate.ErrRateLimited) {
		return sentinel
	}
	return err
}
