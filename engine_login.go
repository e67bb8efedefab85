package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Login authenticates an email and password pair and opens a session. Wrong
// password, unknown email and a missing password hash all collapse to
// [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, email, pass string) (*AuthResult, error) {
	email = normalizeEmail(email)
	scope := "login:" + email

	if err := e.checkLimiter(ctx, scope, e.config.RateLimit.LoginAttempts, e.config.RateLimit.LoginWindow, ErrLoginRateLimited); err != nil {
		if errors.Is(err, ErrLoginRateLimited) {
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ProviderPassword, err, map[string]string{"email": email})
		}
		return nil, err
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		// Per-IP scope is shared by everyone behind a NAT, so it gets a
		// higher threshold than the per-identifier one.
		if err := e.checkLimiter(ctx, "login:ip:"+ip, ipScopeFactor*e.config.RateLimit.LoginAttempts, e.config.RateLimit.LoginWindow, ErrLoginRateLimited); err != nil {
			if errors.Is(err, ErrLoginRateLimited) {
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ProviderPassword, err, map[string]string{"ip": ip})
			}
			return nil, err
		}
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ProviderPassword, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if user.PasswordHash == "" {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ProviderPassword, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ProviderPassword, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if upgrade, err := e.hasher.NeedsUpgrade(user.PasswordHash); err == nil && upgrade {
		if newHash, err := e.hasher.Hash(pass); err == nil {
			if err := e.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
				log.Printf("authcore: password hash upgrade for user %s failed: %v", user.ID, err)
			}
		}
	}

	result, err := e.openSession(ctx, user, ProviderPassword)
	if err != nil {
		return nil, err
	}

	if err := e.limiter.Reset(ctx, scope); err != nil {
		log.Printf("authcore: login limiter reset failed: %v", err)
	}

	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, result.SessionID, ProviderPassword, nil, nil)
	return result, nil
}

func (e *Engine) openSession(ctx context.Context, user *UserRecord, provider string) (*AuthResult, error) {
	pair, s, err := e.sessions.Create(ctx, user.ID, user.RoleName,
		provider,
		deviceInfoFromContext(ctx),
		networkMetadataFromContext(ctx),
		clientIPFromContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &AuthResult{
		UserID:    user.ID,
		SessionID: s.ID,
		RoleName:  user.RoleName,
		Provider:  provider,
		Tokens:    pair,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}
