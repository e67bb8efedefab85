package authcore

import "errors"

var (
	// ErrUnauthorized is the single outcome for every token verification
	// failure. Callers cannot distinguish a bad signature from an expired or
	// mistyped token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials covers wrong password, unknown identifier and
	// rejected federated identity alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by flows that may say so safely, such as
	// password reset preflight inside the engine.
	ErrUserNotFound = errors.New("user not found")

	// ErrLoginRateLimited signals too many password attempts for one scope.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrOTPSendRateLimited signals the per-destination send cooldown or the
	// hourly send cap was hit.
	ErrOTPSendRateLimited = errors.New("verification code send rate limited")
	// ErrOTPAttemptsExceeded signals too many wrong codes for one challenge.
	ErrOTPAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrRefreshRateLimited signals too many refresh attempts for one scope.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrPasswordResetRateLimited signals too many reset starts for one scope.
	ErrPasswordResetRateLimited = errors.New("password reset rate limited")

	// ErrAccountExists is returned when registration hits an identifier that
	// already belongs to an account.
	ErrAccountExists = errors.New("account already exists")
	// ErrCodeInvalid is returned for a wrong or stale verification code.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrFlowNotFound is returned when ephemeral flow state is absent or has
	// expired.
	ErrFlowNotFound = errors.New("flow state not found")
	// ErrAlreadyVerified is returned when a verification step is repeated
	// after it succeeded.
	ErrAlreadyVerified = errors.New("already verified")
	// ErrNotVerified is returned when a step runs before its verification
	// prerequisite.
	ErrNotVerified = errors.New("verification step pending")
	// ErrPasswordAlreadySet is returned when registration submits a password
	// twice.
	ErrPasswordAlreadySet = errors.New("password already set")
	// ErrTermsNotAccepted is returned when registration completes without the
	// terms step.
	ErrTermsNotAccepted = errors.New("terms not accepted")
	// ErrRegistrationIncomplete is returned when completion runs with steps
	// missing.
	ErrRegistrationIncomplete = errors.New("registration incomplete")
	// ErrPasswordPolicy is returned when a new password fails policy.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrSessionNotFound is returned when a session id resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEngineNotReady is returned when the builder produced no engine or a
	// required dependency was never supplied.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable wraps transport failures of the backing stores.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
