package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/candidsky/authcore/internal"
	"github.com/candidsky/authcore/internal/kv"
	"github.com/candidsky/authcore/opaque"
)

// Phone login runs in three steps. StartPhoneLogin sends a code and parks
// state under the phone number. ConfirmPhoneLogin burns the code and re-keys
// the state under a provisional opaque token, so a later step never needs the
// code again. CompletePhoneLogin exchanges that token for a session.

type phoneLoginState struct {
	UserID   string `json:"user_id"`
	Phone    string `json:"phone"`
	CodeHash []byte `json:"code_hash"`
	Attempts int    `json:"attempts"`
}

type phoneLoginHandoff struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone"`
}

func phonePendingKey(phone string) string { return "otp:pending:" + phone }
func phoneHandoffKey(token string) string { return "otp:token:" + token }
func phoneCurrentKey(phone string) string { return "otp:current:" + phone }
func sendCooldownKey(dest string) string  { return "otpsend:cooldown:" + dest }
func sendHourlyKey(dest string) string    { return "otpsend:hourly:" + dest }

// StartPhoneLogin looks up the account behind a phone number, generates a
// verification code and hands it to the OTP sender. A second start for the
// same phone replaces the pending state.
func (e *Engine) StartPhoneLogin(ctx context.Context, phone string) error {
	phone = normalizePhone(phone)

	user, err := e.users.GetUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventOTPFailure, false, "", "", ProviderPhone, ErrInvalidCredentials, nil)
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.allowCodeSend(ctx, phone); err != nil {
		e.emitAudit(ctx, auditEventOTPSendRateLimited, false, user.ID, "", ProviderPhone, err, nil)
		return err
	}

	code, err := internal.NewNumericCode(e.config.Verification.CodeDigits)
	if err != nil {
		return err
	}

	state := phoneLoginState{
		UserID:   user.ID,
		Phone:    phone,
		CodeHash: internal.HashCode(code),
	}
	if err := e.flows.Put(ctx, phonePendingKey(phone), state, e.config.Verification.CodeTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.sender == nil {
		return ErrEngineNotReady
	}
	if err := e.sender.SendCode(ctx, ChannelSMS, phone, code); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventOTPSent, true, user.ID, "", ProviderPhone, nil, nil)
	return nil
}

// ConfirmPhoneLogin checks a submitted code. On success the pending state is
// destroyed and replaced by a short-lived provisional token; any earlier
// provisional token for the same phone stops working.
func (e *Engine) ConfirmPhoneLogin(ctx context.Context, phone, code string) (string, error) {
	phone = normalizePhone(phone)
	key := phonePendingKey(phone)

	var state phoneLoginState
	if err := e.flows.Get(ctx, key, &state); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", ErrFlowNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !internal.CodeEqual(code, state.CodeHash) {
		state.Attempts++
		if state.Attempts >= e.config.RateLimit.OTPVerifyAttempts {
			if err := e.flows.Delete(ctx, key); err != nil {
				log.Printf("authcore: phone login state delete failed: %v", err)
			}
			e.emitAudit(ctx, auditEventOTPAttemptsExceeded, false, state.UserID, "", ProviderPhone, ErrOTPAttemptsExceeded, nil)
			return "", ErrOTPAttemptsExceeded
		}
		if err := e.flows.Update(ctx, key, state); err != nil && !errors.Is(err, kv.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.emitAudit(ctx, auditEventOTPFailure, false, state.UserID, "", ProviderPhone, ErrCodeInvalid, nil)
		return "", ErrCodeInvalid
	}

	token, err := e.tokens.Generate(opaque.TypeOTPVerification)
	if err != nil {
		return "", err
	}

	// One current token per phone: drop the prior handoff before writing
	// the new one.
	var prior string
	if err := e.flows.Get(ctx, phoneCurrentKey(phone), &prior); err == nil && prior != "" {
		if err := e.flows.Delete(ctx, phoneHandoffKey(prior)); err != nil {
			log.Printf("authcore: stale phone handoff delete failed: %v", err)
		}
	}

	ttl := e.tokens.TTL(opaque.TypeOTPVerification)
	handoff := phoneLoginHandoff{UserID: state.UserID, Phone: phone}
	if err := e.flows.Put(ctx, phoneHandoffKey(token), handoff, ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.flows.Put(ctx, phoneCurrentKey(phone), token, ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.flows.Delete(ctx, key); err != nil {
		log.Printf("authcore: phone login state delete failed: %v", err)
	}

	e.emitAudit(ctx, auditEventOTPConfirmed, true, state.UserID, "", ProviderPhone, nil, nil)
	return token, nil
}

// CompletePhoneLogin exchanges a provisional token for a session. The token
// is single use.
func (e *Engine) CompletePhoneLogin(ctx context.Context, token string) (*AuthResult, error) {
	if _, err := e.tokens.Verify(token, opaque.TypeOTPVerification); err != nil {
		return nil, ErrUnauthorized
	}

	var handoff phoneLoginHandoff
	if err := e.flows.Get(ctx, phoneHandoffKey(token), &handoff); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.flows.Delete(ctx, phoneHandoffKey(token), phoneCurrentKey(handoff.Phone)); err != nil {
		log.Printf("authcore: phone handoff delete failed: %v", err)
	}

	user, err := e.users.GetUserByPhone(ctx, handoff.Phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result, err := e.openSession(ctx, user, ProviderPhone)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, result.SessionID, ProviderPhone, nil, nil)
	return result, nil
}

func (e *Engine) allowCodeSend(ctx context.Context, destination string) error {
	if err := e.checkLimiter(ctx, sendCooldownKey(destination), 1, e.config.RateLimit.OTPSendCooldown, ErrOTPSendRateLimited); err != nil {
		return err
	}
	if err := e.checkLimiter(ctx, sendHourlyKey(destination), e.config.RateLimit.OTPSendHourlyCap, time.Hour, ErrOTPSendRateLimited); err != nil {
		return err
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		return e.checkLimiter(ctx, "otpsend:ip:"+ip, ipScopeFactor*e.config.RateLimit.OTPSendHourlyCap, time.Hour, ErrOTPSendRateLimited)
	}
	return nil
}
