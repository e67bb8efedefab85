package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/candidsky/authcore/internal/kv"
	"github.com/candidsky/authcore/opaque"
)

// Password reset state is keyed by the opaque verification token mailed to
// the account, not by the email address: presenting the token is the proof.
// A second request for the same address supersedes the first token through
// the current-pointer key.

type passwordResetState struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func resetStateKey(token string) string   { return "reset:token:" + token }
func resetCurrentKey(email string) string { return "reset:current:" + email }

// StartPasswordReset mails a single-use reset token to an existing account.
// Starting a second reset for the same address invalidates the first token.
func (e *Engine) StartPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	if err := e.checkLimiter(ctx, "reset:"+email, e.config.RateLimit.ResetAttempts, e.config.RateLimit.ResetWindow, ErrPasswordResetRateLimited); err != nil {
		return err
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		if err := e.checkLimiter(ctx, "reset:ip:"+ip, ipScopeFactor*e.config.RateLimit.ResetAttempts, e.config.RateLimit.ResetWindow, ErrPasswordResetRateLimited); err != nil {
			return err
		}
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	token, err := e.tokens.Generate(opaque.TypeOTPVerification)
	if err != nil {
		return err
	}

	// One current token per address.
	var prior string
	if err := e.flows.Get(ctx, resetCurrentKey(email), &prior); err == nil && prior != "" {
		if err := e.flows.Delete(ctx, resetStateKey(prior)); err != nil {
			log.Printf("authcore: stale reset state delete failed: %v", err)
		}
	}

	ttl := e.tokens.TTL(opaque.TypeOTPVerification)
	state := passwordResetState{UserID: user.ID, Email: email}
	if err := e.flows.Put(ctx, resetStateKey(token), state, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.flows.Put(ctx, resetCurrentKey(email), token, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.sender == nil {
		return ErrEngineNotReady
	}
	if err := e.sender.SendCode(ctx, ChannelEmail, email, token); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", "", nil, nil)
	return nil
}

// ConfirmPasswordReset exchanges a reset token for a password change and
// revokes every session of the account. The token is single use.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if _, err := e.tokens.Verify(token, opaque.TypeOTPVerification); err != nil {
		return ErrUnauthorized
	}

	var state passwordResetState
	if err := e.flows.Get(ctx, resetStateKey(token), &state); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrFlowNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if len(newPassword) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, state.UserID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.flows.Delete(ctx, resetStateKey(token), resetCurrentKey(state.Email)); err != nil {
		log.Printf("authcore: reset state delete failed: %v", err)
	}

	// A changed password invalidates every open session.
	if err := e.sessions.RevokeAllForUser(ctx, state.UserID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, state.UserID, "", "", nil, nil)
	return nil
}
