package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/candidsky/authcore/federated"
	"github.com/candidsky/authcore/internal"
	"github.com/candidsky/authcore/internal/kv"
	"github.com/candidsky/authcore/opaque"
)

// Registration is a multi-step flow parked in ephemeral storage under an
// opaque registration token. Steps may arrive in any order that satisfies
// their prerequisites; Complete creates the account and opens the first
// session. Abandoned flows simply expire with their key.

type registrationState struct {
	Email         string `json:"email,omitempty"`
	EmailCodeHash []byte `json:"email_code_hash,omitempty"`
	EmailAttempts int    `json:"email_attempts,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`

	Phone         string `json:"phone,omitempty"`
	PhoneCodeHash []byte `json:"phone_code_hash,omitempty"`
	PhoneAttempts int    `json:"phone_attempts,omitempty"`
	PhoneVerified bool   `json:"phone_verified,omitempty"`

	PasswordHash  string `json:"password_hash,omitempty"`
	TermsAccepted bool   `json:"terms_accepted,omitempty"`

	// Set when the flow was seeded from a federated identity; such flows
	// need no password and no email verification round trip.
	Provider        string `json:"provider,omitempty"`
	ProviderSubject string `json:"provider_subject,omitempty"`
	DisplayName     string `json:"display_name,omitempty"`
}

func registrationKey(token string) string { return "reg:" + token }

func (s *registrationState) providerSeeded() bool { return s.ProviderSubject != "" }

// StartRegistration opens an empty flow and returns its token. The flow and
// token share one lifetime; an expired token means the state is gone too.
func (e *Engine) StartRegistration(ctx context.Context) (string, error) {
	token, err := e.tokens.Generate(opaque.TypeRegistration)
	if err != nil {
		return "", err
	}

	if err := e.flows.Put(ctx, registrationKey(token), registrationState{}, e.tokens.TTL(opaque.TypeRegistration)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventRegistrationStarted, true, "", "", "", nil, nil)
	return token, nil
}

// StartFederatedRegistration opens a flow pre-seeded from a verified provider
// identity. Email arrives already verified when the provider vouches for it.
func (e *Engine) StartFederatedRegistration(ctx context.Context, provider federated.Provider, idToken string) (string, error) {
	if e.federated == nil {
		return "", ErrEngineNotReady
	}

	identity, err := e.federated.Verify(ctx, idToken, provider)
	if err != nil {
		e.emitAudit(ctx, auditEventFederatedFailure, false, "", "", string(provider), ErrInvalidCredentials, nil)
		return "", ErrInvalidCredentials
	}

	if _, err := e.users.GetUserByProviderSubject(ctx, string(provider), identity.Subject); err == nil {
		return "", ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	token, err := e.tokens.Generate(opaque.TypeRegistration)
	if err != nil {
		return "", err
	}

	state := registrationState{
		Email:           normalizeEmail(identity.Email),
		EmailVerified:   identity.EmailVerified,
		Provider:        string(provider),
		ProviderSubject: identity.Subject,
		DisplayName:     identity.Name,
	}
	if err := e.flows.Put(ctx, registrationKey(token), state, e.tokens.TTL(opaque.TypeRegistration)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventRegistrationStarted, true, "", "", string(provider), nil, nil)
	return token, nil
}

// loadRegistration verifies the flow token before touching state, so an
// expired or forged token never reaches the store.
func (e *Engine) loadRegistration(ctx context.Context, token string) (*registrationState, error) {
	if _, err := e.tokens.Verify(token, opaque.TypeRegistration); err != nil {
		return nil, ErrUnauthorized
	}

	var state registrationState
	if err := e.flows.Get(ctx, registrationKey(token), &state); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &state, nil
}

func (e *Engine) saveRegistrationState(ctx context.Context, token string, state *registrationState) error {
	// Mutations never extend the flow's lease.
	if err := e.flows.Update(ctx, registrationKey(token), state); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrFlowNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SubmitEmail records the address and sends a verification code to it.
// Resubmitting a different address before verification restarts that step.
func (e *Engine) SubmitEmail(ctx context.Context, token, email string) error {
	state, err := e.loadRegistration(ctx, token)
	if err != nil {
		return err
	}
	if state.EmailVerified {
		return ErrAlreadyVerified
	}

	email = normalizeEmail(email)
	if _, err := e.users.GetUserByEmail(ctx, email); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.allowCodeSend(ctx, email); err != nil {
		e.emitAudit(ctx, auditEventOTPSendRateLimited, false, "", "", "", err, map[string]string{"step": "email"})
		return err
	}

	code, err := internal.NewNumericCode(e.config.Verification.CodeDigits)
	if err != nil {
		return err
	}

	state.Email = email
	state.EmailCodeHash = internal.HashCode(code)
	state.EmailAttempts = 0
	if err := e.saveRegistrationState(ctx, token, state); err != nil {
		return err
	}

	if e.sender == nil {
		return ErrEngineNotReady
	}
	if err := e.sender.SendCode(ctx, ChannelEmail, email, code); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventOTPSent, true, "", "", "", nil, map[string]string{"step": "email"})
	return nil
}

// VerifyEmail checks the emailed code and marks the step done.
func (e *Engine) VerifyEmail(ctx context.Context, token, code string) error {
	state, err := e.loadRegistration(ctx, token)
	if err != nil {
		return err
	}
	if state.EmailVerified {
		return ErrAlreadyVerified
	}
	if len(state.EmailCodeHash) == 0 {
		return ErrNotVerified
	}

	if !internal.CodeEqual(code, state.EmailCodeHash) {
		state.EmailAttempts++
		if state.EmailAttempts >= e.config.RateLimit.OTPVerifyAttempts {
			if err := e.flows.Delete(ctx, registrationKey(token)); err != nil {
				log.Printf("authcore: registration state delete failed: %v", err)
			}
			e.emitAudit(ctx, auditEventOTPAttemptsExceeded, false, "", "", "", ErrOTPAttemptsExceeded, map[string]string{"step": "email"})
			return ErrOTPAttemptsExceeded
		}
		if err := e.saveRegistrationState(ctx, token, state); err != nil {
			return err
		}
		return ErrCodeInvalid
	}

	state.EmailVerified = true
	state.EmailCodeHash = nil
	if err := e.saveRegistrationState(ctx, token, state); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventRegistrationStep, true, "", "", "", nil, map[string]string{"step": "email_verified"})
	return nil
}

// SubmitPhone records the phone number and sends an SMS code.
func (e *Engine) SubmitPhone(ctx context.Context, token, phone string) error {
	state, err := e.loadRegistration(ctx, token)
	if err != nil {
		return err
	}
	if state.PhoneVerified {
		return ErrAlreadyVerified
	}

	phone = normalizePhone(phone)
	if _, err := e.users.GetUserByPhone(ctx, phone); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.allowCodeSend(ctx, phone); err != nil {
		e.emitAudit(ctx, auditEventOTPSendRateLimited, false, "", "", "", err, map[string]string{"step": "phone"})
		return err
	}

	code, err := internal.NewNumericCode(e.config.Verification.CodeDigits)
	if err != nil {
		return err
	}

	state.Phone = phone
	state.PhoneCodeHash = internal.HashCode(code)
	state.PhoneAttempts = 0
	if err := e.saveRegistrationState(ctx, token, state); err != nil {
		return err
	}

	if e.sender == nil {
		return ErrEngineNotReady
	}
	if err := e.sender.SendCode(ctx, ChannelSMS, phone, code); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventOTPSent, true, "", "", "", nil, map[string]string{"step": "phone"})
	return nil
}

// VerifyPhone checks the SMS code and marks the step done.
func (e *Engine) VerifyPhone(ctx context.Context, token, code string) error {
	state, err := e.loadRegistration(ctx, token)
	if err != nil {
		return err
	}
	if state.PhoneVerified {
		return ErrAlreadyVerified
	}
	if len(state.PhoneCodeHash) == 0 {
		return ErrNotVerified
	}

	if !internal.CodeEqual(code, state.PhoneCodeHash) {
		state.PhoneAttempts++
		if state.PhoneAttempts >= e.config.RateLimit.OTPVerifyAttempts {
			if err := e.flows.Delete(ctx, registrationKey(token)); err != nil {
				log.Printf("authcore: registration state delete failed: %v", err)
			}
			e.emitAudit(ctx, auditEventOTPAttemptsExceeded, false, "", "", "", ErrOTPAttemptsExceeded, map[string]string{"step": "phone"})
			return ErrOTPAttemptsExceeded
		}
		if err := e.saveRegistrationState(ctx, token, state); err != nil {
			return err
		}
		return ErrCodeInvalid
	}

	state.PhoneVerified = true
	state.PhoneCodeHash = nil
	if err := e.saveRegistrationState(ctx, token, state); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventRegistrationStep, true, "", "", "", nil, map[string]string{"step": "phone_verified"})
	return nil
}

// SetPassword hashes and stores the chosen password. It may run only once
// per flow and never on federated flows.
func (e *Engine) SetPassword(ctx context.Context, token, pass string) error {
	state, err := e.loadRegistration(ctx, token)
	if err != nil {
		return err
	}
	if state.providerSeeded() {
		return ErrPasswordAlreadySet
	}
	if state.PasswordHash != "" {
		return ErrPasswordAlreadySet
	}
	if len(pass) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return err
	}

	state.PasswordHash = hash
	if err := e.saveRegistrationState(ctx, token, state); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventRegistrationStep, true, "", "", "", nil, map[string]string{"step": "password_set"})
	return nil
}

// AcceptTerms records the terms acceptance step.
func (e *Engine) AcceptTerms(ctx context.Context, token string) error {
	state, err := e.loadRegistration(ctx, token)
	if err != nil {
		return err
	}

	state.TermsAccepted = true
	if err := e.saveRegistrationState(ctx, token, state); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventRegistrationStep, true, "", "", "", nil, map[string]string{"step": "terms_accepted"})
	return nil
}

// CompleteRegistration validates that every required step ran, creates the
// account and opens its first session. The flow state is destroyed either
// way once the account exists.
func (e *Engine) CompleteRegistration(ctx context.Context, token string) (*AuthResult, error) {
	state, err := e.loadRegistration(ctx, token)
	if err != nil {
		return nil, err
	}

	if !state.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}
	if !state.EmailVerified {
		return nil, ErrRegistrationIncomplete
	}
	if !state.providerSeeded() && state.PasswordHash == "" {
		return nil, ErrRegistrationIncomplete
	}

	// Re-check uniqueness; another flow may have claimed the identifiers
	// while this one was in flight.
	if _, err := e.users.GetUserByEmail(ctx, state.Email); err == nil {
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	provider := state.Provider
	if provider == "" {
		provider = ProviderPassword
	}

	user, err := e.users.CreateUser(ctx, &NewUser{
		Email:           state.Email,
		EmailVerified:   state.EmailVerified,
		Phone:           state.Phone,
		PhoneVerified:   state.PhoneVerified,
		PasswordHash:    state.PasswordHash,
		RoleName:        "user",
		Provider:        provider,
		ProviderSubject: state.ProviderSubject,
		DisplayName:     state.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.flows.Delete(ctx, registrationKey(token)); err != nil {
		log.Printf("authcore: registration state delete failed: %v", err)
	}

	result, err := e.openSession(ctx, user, provider)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventRegistrationCompleted, true, user.ID, result.SessionID, provider, nil, nil)
	return result, nil
}
