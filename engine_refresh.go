package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/candidsky/authcore/session"
)

// Refresh rotates a session's refresh token. The access token may be expired;
// only its signature must still check out, since it carries the session id
// the rotation is scoped to. On success the old refresh token is dead and a
// fresh pair is returned.
func (e *Engine) Refresh(ctx context.Context, accessToken, refreshToken string) (*session.TokenPair, error) {
	claims, err := e.access.VerifyExpired(accessToken)
	if err != nil {
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrUnauthorized, nil)
		return nil, ErrUnauthorized
	}

	scope := "refresh:" + claims.SessionID
	if err := e.checkLimiter(ctx, scope, e.config.RateLimit.RefreshAttempts, e.config.RateLimit.RefreshWindow, ErrRefreshRateLimited); err != nil {
		if errors.Is(err, ErrRefreshRateLimited) {
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, claims.Subject, claims.SessionID, "", err, nil)
		}
		return nil, err
	}

	pair, err := e.sessions.Rotate(ctx, claims.SessionID, refreshToken, clientIPFromContext(ctx))
	if err != nil {
		if errors.Is(err, session.ErrRefreshInvalid) {
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, claims.SessionID, "", err, nil)
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventRefreshSuccess, true, claims.Subject, claims.SessionID, "", nil, nil)
	return pair, nil
}

// Logout revokes one session. Revoking a session that is already gone
// succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, "", nil, nil)
	return nil
}

// LogoutAll revokes every session of a user.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", nil, nil)
	return nil
}
